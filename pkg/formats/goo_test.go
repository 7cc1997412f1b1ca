package formats

import (
	"encoding/binary"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Faultbox/resin-slicer/pkg/raster"
)

func assembleGOO(t *testing.T, layers []raster.Layer) []byte {
	t.Helper()
	enc := GOOEncoder{}
	data, err := enc.Assemble(testSettings(), Previews{}, encodeLayers(t, enc, layers), testStats())
	require.NoError(t, err)
	return data
}

func TestGOOEncodeLayerBytes(t *testing.T) {
	l := raster.Layer{Width: 4, Height: 1, Runs: []raster.Run{
		{Length: 2, Value: raster.Background},
		{Length: 2, Value: raster.Foreground},
	}}
	got, err := GOOEncoder{}.EncodeLayer(l)
	require.NoError(t, err)

	// 0x02 = black x2, 0xC2 = white x2, checksum ^(0x02+0xC2).
	assert.Equal(t, []byte{0x55, 0x02, 0xC2, 0x3B}, got)
}

func TestGOOEncodeGrayRun(t *testing.T) {
	l := raster.Layer{Width: 20, Height: 1, Runs: []raster.Run{{Length: 20, Value: 0x80}}}
	got, err := GOOEncoder{}.EncodeLayer(l)
	require.NoError(t, err)

	// Gray chunk, one extra length byte, low nibble 4, value, then 20>>4.
	assert.Equal(t, []byte{0x55, 0x54, 0x80, 0x01}, got[:4])
	assert.Len(t, got, 5)
}

func TestGOOLongRuns(t *testing.T) {
	var runs []raster.Run
	runs = raster.AppendRun(runs, 5, raster.Background)
	runs = raster.AppendRun(runs, 20, 0x80)
	runs = raster.AppendRun(runs, 0x12345, raster.Foreground)
	runs = raster.AppendRun(runs, 1000*100-5-20-0x12345, raster.Background)
	l := raster.Layer{Width: 1000, Height: 100, Runs: runs}

	block, err := GOOEncoder{}.EncodeLayer(l)
	require.NoError(t, err)

	got, warn, err := decodeGOOLayer(block)
	require.NoError(t, err)
	assert.Empty(t, warn)
	assert.Empty(t, cmp.Diff(runs, got))
}

func TestGOORoundTrip(t *testing.T) {
	layers := testLayers(4)
	data := assembleGOO(t, layers)

	f, err := Detect(data)
	require.NoError(t, err)
	assert.Equal(t, FormatGOO, f)

	doc, err := Decode(data)
	require.NoError(t, err)
	assert.Empty(t, doc.Warnings)
	assert.Equal(t, FormatGOO, doc.Format)
	assert.Empty(t, cmp.Diff(layers, doc.Layers))

	want := testSettings()
	want.ResinDensity, want.ResinPrice = 0, 0
	assert.Empty(t, cmp.Diff(want, doc.Settings))
	assert.Equal(t, testStats(), doc.Stats)

	require.NotNil(t, doc.Previews.Small)
	require.NotNil(t, doc.Previews.Large)
	assert.Equal(t, SmallPreviewSize, doc.Previews.Small.Width)
	assert.Equal(t, LargePreviewSize, doc.Previews.Large.Height)
}

func TestGOOPreviewsPreserved(t *testing.T) {
	small := BlankPreview(SmallPreviewSize, SmallPreviewSize)
	small.Pixels[0] = RGB565(255, 0, 0)
	large := BlankPreview(LargePreviewSize, LargePreviewSize)
	large.Pixels[len(large.Pixels)-1] = 0x1234

	enc := GOOEncoder{}
	data, err := enc.Assemble(testSettings(), Previews{Small: small, Large: large}, encodeLayers(t, enc, testLayers(1)), testStats())
	require.NoError(t, err)

	doc, err := DecodeGOO(data)
	require.NoError(t, err)
	assert.Equal(t, small.Pixels, doc.Previews.Small.Pixels)
	assert.Equal(t, large.Pixels, doc.Previews.Large.Pixels)
}

func TestGOOChecksumMismatchIsWarning(t *testing.T) {
	layers := testLayers(2)
	data := assembleGOO(t, layers)

	block, err := GOOEncoder{}.EncodeLayer(layers[0])
	require.NoError(t, err)
	// Last byte of the first layer block.
	pos := gooContentOffset + binary.Size(gooLayerDef{}) + 2 + 4 + len(block) - 1
	data[pos] ^= 0xFF

	doc, err := DecodeGOO(data)
	require.NoError(t, err)
	require.Len(t, doc.Warnings, 1)
	assert.Equal(t, 0, doc.Warnings[0].Layer)
	assert.Contains(t, doc.Warnings[0].Message, "checksum")
	assert.Empty(t, cmp.Diff(layers, doc.Layers))
}

func TestGOOMissingEnding(t *testing.T) {
	data := assembleGOO(t, testLayers(1))
	doc, err := DecodeGOO(data[:len(data)-3])
	require.NoError(t, err)
	require.Len(t, doc.Warnings, 1)
	assert.Equal(t, -1, doc.Warnings[0].Layer)
}

func TestGOOInvalidMagic(t *testing.T) {
	data := assembleGOO(t, testLayers(1))
	data[5] = 'X'
	_, err := DecodeGOO(data)
	assert.ErrorIs(t, err, ErrInvalidMagic)
}

func TestGOOInvalidOffset(t *testing.T) {
	data := assembleGOO(t, testLayers(1))
	// LayerContentOffset precedes the grey-scale flag and transition count.
	binary.BigEndian.PutUint32(data[gooContentOffset-7:], 0xFFFFFF00)
	_, err := DecodeGOO(data)
	assert.ErrorIs(t, err, ErrInvalidOffset)
}

func TestGOOTruncated(t *testing.T) {
	data := assembleGOO(t, testLayers(1))
	_, err := DecodeGOO(data[:100])
	assert.ErrorIs(t, err, ErrTruncated)

	_, err = DecodeGOO(data[:gooContentOffset+10])
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestGOOFieldOverflow(t *testing.T) {
	s := testSettings()
	s.MachineName = strings.Repeat("m", 33)
	_, err := GOOEncoder{}.Assemble(s, Previews{}, nil, Stats{})
	assert.ErrorIs(t, err, ErrFieldOverflow)

	s = testSettings()
	s.ResolutionX = 70000
	_, err = GOOEncoder{}.Assemble(s, Previews{}, nil, Stats{})
	assert.ErrorIs(t, err, ErrFieldOverflow)
}

func TestGOOPreviewSizeMismatch(t *testing.T) {
	_, err := GOOEncoder{}.Assemble(testSettings(), Previews{Small: BlankPreview(10, 10)}, nil, Stats{})
	assert.ErrorIs(t, err, ErrPreviewSize)
}

func TestGOODiffChunk(t *testing.T) {
	// White x1, then a diff chunk subtracting 3 with a one-byte length of 4.
	body := []byte{0xC1, 0x80 | 0x30 | 0x3, 4}
	var sum uint8
	for _, b := range body {
		sum += b
	}
	block := append(append([]byte{gooLayerMagic}, body...), ^sum)

	runs, warn, err := decodeGOOLayer(block)
	require.NoError(t, err)
	assert.Empty(t, warn)
	assert.Equal(t, []raster.Run{{Length: 1, Value: 0xFF}, {Length: 4, Value: 0xFC}}, runs)
}
