package formats

import (
	"fmt"
	"image"
	"image/color"

	"golang.org/x/image/draw"

	"github.com/Faultbox/resin-slicer/pkg/raster"
)

// Preview thumbnail sizes used by the containers.
const (
	SmallPreviewSize = 116
	LargePreviewSize = 290
)

// Preview is an RGB565 thumbnail with explicit dimensions.
type Preview struct {
	Width  int
	Height int
	Pixels []uint16
}

// Previews holds the thumbnails embedded in a container. Nil entries are
// written as blank images of the size the format requires.
type Previews struct {
	Small *Preview
	Large *Preview
}

// NewPreview validates that pixels holds exactly width*height entries.
func NewPreview(width, height int, pixels []uint16) (*Preview, error) {
	if width <= 0 || height <= 0 || len(pixels) != width*height {
		return nil, fmt.Errorf("%w: %d pixels for %dx%d", ErrPreviewSize, len(pixels), width, height)
	}
	return &Preview{Width: width, Height: height, Pixels: pixels}, nil
}

// BlankPreview returns a black preview.
func BlankPreview(width, height int) *Preview {
	return &Preview{Width: width, Height: height, Pixels: make([]uint16, width*height)}
}

// RGB565 packs an 8-bit colour into 16 bits.
func RGB565(r, g, b uint8) uint16 {
	return uint16(r>>3)<<11 | uint16(g>>2)<<5 | uint16(b>>3)
}

// Unpack565 expands a 16-bit colour to 8 bits per channel.
func Unpack565(c uint16) (r, g, b uint8) {
	r5, g6, b5 := uint8(c>>11), uint8(c>>5&0x3F), uint8(c&0x1F)
	return r5<<3 | r5>>2, g6<<2 | g6>>4, b5<<3 | b5>>2
}

// Image converts the preview to an RGBA image.
func (p *Preview) Image() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, p.Width, p.Height))
	for i, c := range p.Pixels {
		r, g, b := Unpack565(c)
		img.SetRGBA(i%p.Width, i/p.Width, color.RGBA{R: r, G: g, B: b, A: 0xFF})
	}
	return img
}

// FromImage converts any image to a preview of the same size.
func FromImage(img image.Image) *Preview {
	b := img.Bounds()
	p := BlankPreview(b.Dx(), b.Dy())
	for y := 0; y < p.Height; y++ {
		for x := 0; x < p.Width; x++ {
			c := color.RGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.RGBA)
			p.Pixels[y*p.Width+x] = RGB565(c.R, c.G, c.B)
		}
	}
	return p
}

// RenderPreview draws a top-down view of the layers: every pixel shows how
// many layers cover it, scaled to fit width x height with the aspect ratio
// kept.
func RenderPreview(layers []raster.Layer, width, height int) (*Preview, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrPreviewSize, width, height)
	}
	if len(layers) == 0 || layers[0].Width == 0 || layers[0].Height == 0 {
		return BlankPreview(width, height), nil
	}

	w, h := layers[0].Width, layers[0].Height
	stride := w + 1
	diff := make([]int32, stride*h)
	for i, l := range layers {
		if l.Width != w || l.Height != h {
			return nil, fmt.Errorf("%w: layer %d is %dx%d, want %dx%d", raster.ErrLayerSize, i, l.Width, l.Height, w, h)
		}
		for y, row := range l.Rows() {
			for _, s := range row {
				if s.Value != raster.Background {
					diff[y*stride+s.Start]++
					diff[y*stride+s.End]--
				}
			}
		}
	}

	var peak int32
	coverage := make([]int32, w*h)
	for y := 0; y < h; y++ {
		var acc int32
		for x := 0; x < w; x++ {
			acc += diff[y*stride+x]
			coverage[y*w+x] = acc
			if acc > peak {
				peak = acc
			}
		}
	}

	src := image.NewGray(image.Rect(0, 0, w, h))
	if peak > 0 {
		for i, c := range coverage {
			if c > 0 {
				src.Pix[i] = uint8(64 + 191*int64(c)/int64(peak))
			}
		}
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)
	draw.CatmullRom.Scale(dst, fitRect(w, h, width, height), src, src.Bounds(), draw.Src, nil)
	return FromImage(dst), nil
}

// fitRect centres a w x h source inside a width x height target.
func fitRect(w, h, width, height int) image.Rectangle {
	dw, dh := width, h*width/w
	if dh > height {
		dw, dh = w*height/h, height
	}
	if dw < 1 {
		dw = 1
	}
	if dh < 1 {
		dh = 1
	}
	x0, y0 := (width-dw)/2, (height-dh)/2
	return image.Rect(x0, y0, x0+dw, y0+dh)
}

// previewOrBlank returns p, or a blank preview when p is nil, and checks
// that the result has the size the format requires.
func previewOrBlank(p *Preview, width, height int) (*Preview, error) {
	if p == nil {
		return BlankPreview(width, height), nil
	}
	if p.Width != width || p.Height != height || len(p.Pixels) != width*height {
		return nil, fmt.Errorf("%w: got %dx%d, want %dx%d", ErrPreviewSize, p.Width, p.Height, width, height)
	}
	return p, nil
}
