package raster

import "image"

// Image is an 8-bit grayscale bitmap in row-major order.
type Image struct {
	Width  int
	Height int
	Pix    []byte
}

// NewImage allocates a background-filled image.
func NewImage(width, height int) *Image {
	return &Image{Width: width, Height: height, Pix: make([]byte, width*height)}
}

// At returns the pixel at (x, y); out-of-range coordinates read as background.
func (img *Image) At(x, y int) uint8 {
	if x < 0 || y < 0 || x >= img.Width || y >= img.Height {
		return Background
	}
	return img.Pix[y*img.Width+x]
}

// Set writes the pixel at (x, y), ignoring out-of-range coordinates.
func (img *Image) Set(x, y int, v uint8) {
	if x < 0 || y < 0 || x >= img.Width || y >= img.Height {
		return
	}
	img.Pix[y*img.Width+x] = v
}

// Clone returns a deep copy.
func (img *Image) Clone() *Image {
	c := &Image{Width: img.Width, Height: img.Height, Pix: make([]byte, len(img.Pix))}
	copy(c.Pix, img.Pix)
	return c
}

// Gray returns an image.Gray view that shares the pixel buffer.
func (img *Image) Gray() *image.Gray {
	return &image.Gray{
		Pix:    img.Pix,
		Stride: img.Width,
		Rect:   image.Rect(0, 0, img.Width, img.Height),
	}
}
