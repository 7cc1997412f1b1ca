// Package formats assembles sliced layers into printer container files and
// reads them back.
package formats

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Faultbox/resin-slicer/pkg/encoding"
	"github.com/Faultbox/resin-slicer/pkg/raster"
)

// Container errors.
var (
	ErrUnknownFormat = errors.New("unknown file format")
	ErrInvalidMagic  = errors.New("invalid magic")
	ErrInvalidOffset = errors.New("invalid section offset")
	ErrTruncated     = errors.New("truncated data")
	ErrCorruptLayer  = errors.New("corrupt layer data")
	ErrLayerCount    = errors.New("layer count mismatch")
	ErrPreviewSize   = errors.New("preview size mismatch")

	// ErrFieldOverflow is returned when a value does not fit its fixed-size field.
	ErrFieldOverflow = encoding.ErrFieldOverflow
)

// Format identifies a container format.
type Format int

// Supported formats.
const (
	FormatGOO Format = iota
	FormatCTB
	FormatNanoDLP
)

// Formats lists every supported format.
var Formats = []Format{FormatGOO, FormatCTB, FormatNanoDLP}

// String returns the format name.
func (f Format) String() string {
	switch f {
	case FormatGOO:
		return "goo"
	case FormatCTB:
		return "ctb"
	case FormatNanoDLP:
		return "nanodlp"
	default:
		return fmt.Sprintf("Format(%d)", int(f))
	}
}

// Extension returns the file extension including the dot.
func (f Format) Extension() string {
	switch f {
	case FormatGOO:
		return ".goo"
	case FormatCTB:
		return ".ctb"
	case FormatNanoDLP:
		return ".nanodlp"
	default:
		return ""
	}
}

// ParseFormat resolves a format name or file extension.
func ParseFormat(s string) (Format, error) {
	name := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), ".")
	for _, f := range Formats {
		if name == f.String() {
			return f, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// FormatFromPath picks the format from a file name's extension.
func FormatFromPath(path string) (Format, error) {
	i := strings.LastIndexByte(path, '.')
	if i < 0 {
		return 0, fmt.Errorf("%w: %q has no extension", ErrUnknownFormat, path)
	}
	return ParseFormat(path[i:])
}

// Encoder turns layers into one container format. EncodeLayer is called
// once per layer, possibly concurrently; Assemble joins the results.
type Encoder interface {
	Format() Format
	EncodeLayer(l raster.Layer) ([]byte, error)
	Assemble(settings PrintSettings, previews Previews, layers [][]byte, stats Stats) ([]byte, error)
}

// NewEncoder returns the encoder for f.
func NewEncoder(f Format) (Encoder, error) {
	switch f {
	case FormatGOO:
		return GOOEncoder{}, nil
	case FormatCTB:
		return CTBEncoder{}, nil
	case FormatNanoDLP:
		return NanoDLPEncoder{}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, f)
	}
}

// Warning is a non-fatal problem found while decoding.
type Warning struct {
	// Layer is the layer index, or -1 for file-level warnings.
	Layer   int
	Message string
}

func (w Warning) String() string {
	if w.Layer < 0 {
		return w.Message
	}
	return fmt.Sprintf("layer %d: %s", w.Layer, w.Message)
}

// Document is a decoded container.
type Document struct {
	Format   Format
	Settings PrintSettings
	Stats    Stats
	Previews Previews
	Layers   []raster.Layer
	Warnings []Warning
}

// Detect identifies the container format from its leading bytes.
func Detect(data []byte) (Format, error) {
	switch {
	case len(data) >= 12 && string(data[4:12]) == string(gooMagic[:]):
		return FormatGOO, nil
	case len(data) >= 4 && leUint32(data) == ctbMagic:
		return FormatCTB, nil
	case len(data) >= 4 && string(data[:4]) == "PK\x03\x04":
		return FormatNanoDLP, nil
	}
	return 0, ErrUnknownFormat
}

// Decode detects the format of data and decodes it.
func Decode(data []byte) (*Document, error) {
	f, err := Detect(data)
	if err != nil {
		return nil, err
	}
	switch f {
	case FormatGOO:
		return DecodeGOO(data)
	case FormatCTB:
		return DecodeCTB(data)
	default:
		return DecodeNanoDLP(data)
	}
}

func leUint32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}
