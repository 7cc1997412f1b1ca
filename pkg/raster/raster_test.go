package raster

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendRun_Merges(t *testing.T) {
	t.Parallel()

	var runs []Run
	runs = AppendRun(runs, 3, 0)
	runs = AppendRun(runs, 0, 0xFF)
	runs = AppendRun(runs, 2, 0)
	runs = AppendRun(runs, 4, 0xFF)

	want := []Run{{Length: 5, Value: 0}, {Length: 4, Value: 0xFF}}
	if diff := cmp.Diff(want, runs); diff != "" {
		t.Errorf("runs mismatch (-want +got):\n%s", diff)
	}
}

func TestCompressExpand(t *testing.T) {
	t.Parallel()

	pix := []byte{0, 0, 7, 7, 7, 0xFF, 0}
	runs := Compress(pix)
	assert.Len(t, runs, 4)
	assert.Equal(t, uint64(len(pix)), TotalLength(runs))
	assert.Equal(t, pix, Expand(runs))
	assert.Empty(t, Compress(nil))
}

func TestLayer_Rows(t *testing.T) {
	t.Parallel()

	// 4x3 layer; the middle foreground run wraps from row 0 into row 1.
	l := Layer{Width: 4, Height: 3, Runs: []Run{
		{Length: 2, Value: 0},
		{Length: 4, Value: 0xFF},
		{Length: 6, Value: 0},
	}}
	require.NoError(t, l.Validate())

	want := [][]Span{
		{{Start: 0, End: 2, Value: 0}, {Start: 2, End: 4, Value: 0xFF}},
		{{Start: 0, End: 2, Value: 0xFF}, {Start: 2, End: 4, Value: 0}},
		{{Start: 0, End: 4, Value: 0}},
	}
	if diff := cmp.Diff(want, l.Rows()); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, uint64(4), l.ForegroundPixels())
}

func TestLayer_Validate(t *testing.T) {
	t.Parallel()

	l := Layer{Width: 2, Height: 2, Runs: []Run{{Length: 3, Value: 0}}}
	err := l.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrLayerSize))

	assert.NoError(t, EmptyLayer(5, 5).Validate())
}

func TestLayer_ImageRoundTrip(t *testing.T) {
	t.Parallel()

	l := Layer{Width: 3, Height: 2, Runs: []Run{
		{Length: 1, Value: 0},
		{Length: 3, Value: 0xFF},
		{Length: 1, Value: 0x80},
		{Length: 1, Value: 0},
	}}
	img := l.Image()
	assert.Equal(t, uint8(0xFF), img.At(1, 0))
	assert.Equal(t, uint8(0xFF), img.At(0, 1))
	assert.Equal(t, uint8(0x80), img.At(1, 1))
	assert.Equal(t, Background, img.At(-1, 0))

	if diff := cmp.Diff(l, FromImage(img)); diff != "" {
		t.Errorf("layer mismatch (-want +got):\n%s", diff)
	}
}

func TestSpan_Overlaps(t *testing.T) {
	t.Parallel()

	a := Span{Start: 0, End: 4}
	assert.True(t, a.Overlaps(Span{Start: 3, End: 6}))
	assert.False(t, a.Overlaps(Span{Start: 4, End: 6}))
	assert.True(t, a.Overlaps(Span{Start: 1, End: 2}))
}

func TestStore_CheckoutCommit(t *testing.T) {
	t.Parallel()

	s := NewStore([]Layer{EmptyLayer(2, 2), EmptyLayer(2, 2)})

	img, err := s.Checkout(0)
	require.NoError(t, err)

	_, err = s.Checkout(0)
	assert.ErrorIs(t, err, ErrCheckedOut)

	// A different layer can be borrowed at the same time.
	other, err := s.Checkout(1)
	require.NoError(t, err)
	require.NoError(t, s.Commit(1, other))

	img.Set(1, 1, 0xFF)
	require.NoError(t, s.Commit(0, img))
	assert.Equal(t, uint64(1), s.Layer(0).ForegroundPixels())

	assert.ErrorIs(t, s.Commit(0, img), ErrNotCheckedOut)
	_, err = s.Checkout(2)
	assert.ErrorIs(t, err, ErrLayerIndex)
}

func TestStore_WithCommitsOnError(t *testing.T) {
	t.Parallel()

	s := NewStore([]Layer{EmptyLayer(3, 1)})
	boom := errors.New("boom")

	err := s.With(0, func(img *Image) error {
		img.Set(0, 0, 0xFF)
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, uint64(1), s.Layer(0).ForegroundPixels())

	// The layer was released, so it can be borrowed again.
	require.NoError(t, s.With(0, func(*Image) error { return nil }))
}

func TestStore_WithCommitsOnPanic(t *testing.T) {
	t.Parallel()

	s := NewStore([]Layer{EmptyLayer(3, 1)})
	func() {
		defer func() { _ = recover() }()
		_ = s.With(0, func(img *Image) error {
			img.Set(2, 0, 0xFF)
			panic("pass failed")
		})
	}()

	assert.Equal(t, uint64(1), s.Layer(0).ForegroundPixels())
	_, err := s.Checkout(0)
	assert.NoError(t, err)
}
