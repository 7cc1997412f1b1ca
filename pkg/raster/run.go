// Package raster holds rasterized layers as run sequences and the 8-bit
// images that post-processing works on.
package raster

// Pixel values written by the slicer.
const (
	Background uint8 = 0x00
	Foreground uint8 = 0xFF
)

// Run is a horizontal span of identical pixel values.
type Run struct {
	Length uint64
	Value  uint8
}

// Span is a run placed on a row: pixels [Start, End) share Value.
type Span struct {
	Start, End int
	Value      uint8
}

// Overlaps reports whether two spans share at least one column.
func (s Span) Overlaps(other Span) bool {
	return s.Start < other.End && other.Start < s.End
}

// AppendRun appends a run, merging it into the last run when the values
// match. Zero-length runs are dropped.
func AppendRun(runs []Run, length uint64, value uint8) []Run {
	if length == 0 {
		return runs
	}
	if n := len(runs); n > 0 && runs[n-1].Value == value {
		runs[n-1].Length += length
		return runs
	}
	return append(runs, Run{Length: length, Value: value})
}

// TotalLength returns the number of pixels covered by runs.
func TotalLength(runs []Run) uint64 {
	var n uint64
	for _, r := range runs {
		n += r.Length
	}
	return n
}

// Expand writes the pixels described by runs into a new byte slice.
func Expand(runs []Run) []byte {
	out := make([]byte, 0, TotalLength(runs))
	for _, r := range runs {
		for i := uint64(0); i < r.Length; i++ {
			out = append(out, r.Value)
		}
	}
	return out
}

// Compress converts raw pixels into merged runs.
func Compress(pixels []byte) []Run {
	var runs []Run
	for i := 0; i < len(pixels); {
		j := i + 1
		for j < len(pixels) && pixels[j] == pixels[i] {
			j++
		}
		runs = append(runs, Run{Length: uint64(j - i), Value: pixels[i]})
		i = j
	}
	return runs
}
