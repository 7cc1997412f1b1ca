package raster

import (
	"errors"
	"fmt"
)

// ErrLayerSize is returned when runs do not cover exactly width*height pixels.
var ErrLayerSize = errors.New("runs do not match layer size")

// Layer is one rasterized cross-section stored as row-major runs. Runs may
// continue across row boundaries; adjacent runs always differ in value.
type Layer struct {
	Width  int
	Height int
	Runs   []Run
}

// EmptyLayer returns a layer filled with the background value.
func EmptyLayer(width, height int) Layer {
	l := Layer{Width: width, Height: height}
	l.Runs = AppendRun(l.Runs, uint64(width)*uint64(height), Background)
	return l
}

// Validate checks that the runs cover the layer exactly.
func (l Layer) Validate() error {
	want := uint64(l.Width) * uint64(l.Height)
	if got := TotalLength(l.Runs); got != want {
		return fmt.Errorf("%w: %d pixels, want %d", ErrLayerSize, got, want)
	}
	return nil
}

// Rows splits the runs at row boundaries and returns the spans of each row.
func (l Layer) Rows() [][]Span {
	rows := make([][]Span, l.Height)
	if l.Width == 0 {
		return rows
	}

	row, col := 0, 0
	for _, r := range l.Runs {
		remaining := r.Length
		for remaining > 0 && row < l.Height {
			n := uint64(l.Width - col)
			if remaining < n {
				n = remaining
			}
			rows[row] = append(rows[row], Span{Start: col, End: col + int(n), Value: r.Value})
			col += int(n)
			remaining -= n
			if col == l.Width {
				row++
				col = 0
			}
		}
	}
	return rows
}

// ForegroundPixels counts the pixels that are not background.
func (l Layer) ForegroundPixels() uint64 {
	var n uint64
	for _, r := range l.Runs {
		if r.Value != Background {
			n += r.Length
		}
	}
	return n
}

// Image expands the layer into an 8-bit image.
func (l Layer) Image() *Image {
	img := NewImage(l.Width, l.Height)
	i := 0
	for _, r := range l.Runs {
		end := i + int(r.Length)
		if end > len(img.Pix) {
			end = len(img.Pix)
		}
		if r.Value != 0 {
			for j := i; j < end; j++ {
				img.Pix[j] = r.Value
			}
		}
		i = end
	}
	return img
}

// FromImage compresses an image back into a layer.
func FromImage(img *Image) Layer {
	return Layer{Width: img.Width, Height: img.Height, Runs: Compress(img.Pix)}
}
