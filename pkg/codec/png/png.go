// Package png writes 8-bit grayscale PNG images whose pixel data is
// compressed with the deflate package.
package png

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"

	"github.com/Faultbox/resin-slicer/pkg/codec/deflate"
	"github.com/Faultbox/resin-slicer/pkg/raster"
)

// ErrInvalidSize is returned for empty or oversized images.
var ErrInvalidSize = errors.New("png: invalid image size")

var signature = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1A, '\n'}

const (
	bitDepth8     = 8
	colorGray     = 0
	filterNone    = 0
	maxDimension  = 1<<31 - 1
	interlaceNone = 0
)

// EncodeLayer encodes a run layer. Runs are never expanded to pixels.
func EncodeLayer(l raster.Layer) ([]byte, error) {
	if err := checkSize(l.Width, l.Height); err != nil {
		return nil, err
	}
	if err := l.Validate(); err != nil {
		return nil, fmt.Errorf("png: %w", err)
	}

	// Each scanline starts with its filter type byte.
	runs := make([]raster.Run, 0, len(l.Runs)+2*l.Height)
	for _, row := range l.Rows() {
		runs = append(runs, raster.Run{Length: 1, Value: filterNone})
		for _, s := range row {
			runs = raster.AppendRun(runs, uint64(s.End-s.Start), s.Value)
		}
	}
	return assemble(l.Width, l.Height, deflate.EncodeRuns(runs)), nil
}

// EncodeGray encodes an 8-bit image.
func EncodeGray(img *raster.Image) ([]byte, error) {
	if err := checkSize(img.Width, img.Height); err != nil {
		return nil, err
	}
	raw := make([]byte, 0, (img.Width+1)*img.Height)
	for y := 0; y < img.Height; y++ {
		raw = append(raw, filterNone)
		raw = append(raw, img.Pix[y*img.Width:(y+1)*img.Width]...)
	}
	return assemble(img.Width, img.Height, deflate.Encode(raw)), nil
}

func checkSize(w, h int) error {
	if w <= 0 || h <= 0 || w > maxDimension || h > maxDimension {
		return fmt.Errorf("%w: %dx%d", ErrInvalidSize, w, h)
	}
	return nil
}

func assemble(w, h int, idat []byte) []byte {
	var out bytes.Buffer
	out.Write(signature)

	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:4], uint32(w))
	binary.BigEndian.PutUint32(ihdr[4:8], uint32(h))
	ihdr[8] = bitDepth8
	ihdr[9] = colorGray
	ihdr[10] = 0 // deflate
	ihdr[11] = 0 // adaptive filtering
	ihdr[12] = interlaceNone

	WriteChunk(&out, "IHDR", ihdr)
	WriteChunk(&out, "IDAT", idat)
	WriteChunk(&out, "IEND", nil)
	return out.Bytes()
}

// WriteChunk appends a length, tag, data, CRC framed chunk. The CRC covers
// the tag and the data.
func WriteChunk(out *bytes.Buffer, tag string, data []byte) {
	var word [4]byte
	binary.BigEndian.PutUint32(word[:], uint32(len(data)))
	out.Write(word[:])

	crc := crc32.NewIEEE()
	crc.Write([]byte(tag))
	crc.Write(data)

	out.WriteString(tag)
	out.Write(data)
	binary.BigEndian.PutUint32(word[:], crc.Sum32())
	out.Write(word[:])
}
