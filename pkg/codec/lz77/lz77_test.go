package lz77

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Faultbox/resin-slicer/pkg/raster"
)

func checkLimits(t *testing.T, tokens []Token) {
	t.Helper()
	for i, tok := range tokens {
		if tok.IsLiteral() {
			continue
		}
		if tok.Length < MinMatch || tok.Length > MaxMatch {
			t.Fatalf("token %d: length %d out of range", i, tok.Length)
		}
		if tok.Distance == 0 || int(tok.Distance) > MaxWindow {
			t.Fatalf("token %d: distance %d out of range", i, tok.Distance)
		}
	}
}

func roundTrip(t *testing.T, data []byte) []Token {
	t.Helper()
	tokens := Tokenize(data, DefaultOptions())
	checkLimits(t, tokens)
	got, err := Decode(tokens)
	require.NoError(t, err)
	require.True(t, bytes.Equal(data, got), "round trip mismatch for %d bytes", len(data))
	return tokens
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(7))
	random := make([]byte, 100_000)
	rng.Read(random)

	text := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog. "), 500)

	mixed := make([]byte, 0, 200_000)
	for len(mixed) < 200_000 {
		n := rng.Intn(2000)
		mixed = append(mixed, bytes.Repeat([]byte{byte(rng.Intn(3)) * 0x7F}, n)...)
		chunk := make([]byte, rng.Intn(50))
		rng.Read(chunk)
		mixed = append(mixed, chunk...)
	}

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"one byte", []byte{0x42}},
		{"two bytes", []byte{1, 2}},
		{"random", random},
		{"text", text},
		{"mixed", mixed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			roundTrip(t, tt.data)
		})
	}
}

func TestLongRun_RepeatedMatches(t *testing.T) {
	t.Parallel()

	// Longer than both the window and the maximum match.
	data := bytes.Repeat([]byte{0xFF}, 3*MaxWindow+17)
	tokens := roundTrip(t, data)

	assert.True(t, tokens[0].IsLiteral())
	assert.Less(t, len(tokens), len(data)/MaxMatch+8)
}

func TestIncompressible_AllLiterals(t *testing.T) {
	t.Parallel()

	// A permutation of all byte values has no repeated three-byte sequence.
	rng := rand.New(rand.NewSource(3))
	data := make([]byte, 256)
	for i, v := range rng.Perm(256) {
		data[i] = byte(v)
	}

	tokens := roundTrip(t, data)
	require.Len(t, tokens, len(data))
	for _, tok := range tokens {
		assert.True(t, tok.IsLiteral())
	}
}

func TestFromRuns(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(11))
	runs := []raster.Run{
		{Length: 100_000, Value: 0},
		{Length: 5, Value: 0xFF},
		{Length: 3, Value: 0},
		{Length: 5, Value: 0xFF},
		{Length: 70_000, Value: 0},
		{Length: 5, Value: 0xFF},
		{Length: 1_200, Value: 0x80},
	}
	for i := 0; i < 500; i++ {
		runs = append(runs, raster.Run{Length: uint64(1 + rng.Intn(400)), Value: byte(rng.Intn(256))})
	}
	runs = append(runs, raster.Run{Length: 2_000_000, Value: 0})

	tokens := FromRuns(runs, DefaultOptions())
	checkLimits(t, tokens)

	got, err := Decode(tokens)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(raster.Expand(runs), got))
}

func TestFromRuns_MatchesTokenize(t *testing.T) {
	t.Parallel()

	// Short runs go through the same path as raw bytes.
	runs := []raster.Run{{Length: 10, Value: 1}, {Length: 20, Value: 2}, {Length: 10, Value: 1}}
	assert.Equal(t, Tokenize(raster.Expand(runs), DefaultOptions()), FromRuns(runs, DefaultOptions()))
}

func TestDecode_InvalidDistance(t *testing.T) {
	t.Parallel()

	_, err := Decode([]Token{Literal(1), Match(3, 2)})
	assert.ErrorIs(t, err, ErrInvalidDistance)

	_, err = Decode([]Token{Match(3, 0)})
	assert.ErrorIs(t, err, ErrInvalidDistance)
}

func TestOptions_Normalize(t *testing.T) {
	t.Parallel()

	o := Options{Window: 1000, MinMatch: 1, MaxMatch: 999}.normalize()
	assert.Equal(t, MaxWindow, o.Window)
	assert.Equal(t, MinMatch, o.MinMatch)
	assert.Equal(t, MaxMatch, o.MaxMatch)
	assert.Equal(t, DefaultOptions().ChainLimit, o.ChainLimit)

	small := Options{Window: 1024, MinMatch: 4, MaxMatch: 16, ChainLimit: 4}
	assert.Equal(t, small, small.normalize())

	data := bytes.Repeat([]byte("abcdefgh"), 1000)
	tokens := Tokenize(data, small)
	for _, tok := range tokens {
		if !tok.IsLiteral() {
			assert.LessOrEqual(t, int(tok.Length), 16)
			assert.LessOrEqual(t, int(tok.Distance), 1024)
		}
	}
	got, err := Decode(tokens)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}
