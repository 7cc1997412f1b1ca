package adler

import (
	"hash/adler32"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUpdate_MatchesStdlib(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(1))
	for _, n := range []int{0, 1, 100, 5552, 5553, 70000} {
		data := make([]byte, n)
		rng.Read(data)

		c := New()
		c.Update(data)
		assert.Equal(t, adler32.Checksum(data), c.Sum32(), "n=%d", n)
	}
}

func TestUpdateRun_MatchesByteWise(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		runs [][2]uint64 // length, value
	}{
		{"empty", nil},
		{"zero length", [][2]uint64{{0, 0xFF}}},
		{"single byte", [][2]uint64{{1, 7}}},
		{"mixed", [][2]uint64{{3, 0}, {0, 9}, {250, 0xFF}, {17, 0x80}}},
		{"past modulus", [][2]uint64{{65521, 0xFF}, {65522, 1}, {131073, 0xAB}}},
		{"long", [][2]uint64{{1 << 20, 0xFF}, {3_000_001, 0x00}, {999_999, 0x42}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var raw []byte
			byRun := New()
			for _, r := range tt.runs {
				byRun.UpdateRun(r[0], byte(r[1]))
				for i := uint64(0); i < r[0]; i++ {
					raw = append(raw, byte(r[1]))
				}
			}

			byByte := New()
			byByte.Update(raw)
			assert.Equal(t, byByte.Sum32(), byRun.Sum32())
			assert.Equal(t, adler32.Checksum(raw), byRun.Sum32())
		})
	}
}

func TestUpdateRun_HugeLength(t *testing.T) {
	t.Parallel()

	// Splitting a run must not change the result, even for lengths whose
	// triangular number overflows 64 bits.
	whole := New()
	whole.UpdateRun(1<<40, 0xFF)

	split := New()
	split.UpdateRun(1<<39, 0xFF)
	split.UpdateRun(1<<39, 0xFF)

	assert.Equal(t, whole.Sum32(), split.Sum32())
}

func TestReset(t *testing.T) {
	t.Parallel()

	c := New()
	c.Update([]byte("resin"))
	c.Reset()
	assert.Equal(t, uint32(1), c.Sum32())
}
