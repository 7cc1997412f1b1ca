package formats

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	gomath "math"
	"time"

	"github.com/Faultbox/resin-slicer/pkg/codec/bits"
	"github.com/Faultbox/resin-slicer/pkg/encoding"
	"github.com/Faultbox/resin-slicer/pkg/raster"
)

// Elegoo GOO container, big-endian throughout.

var (
	gooVersion   = [4]byte{'V', '3', '.', '0'}
	gooMagic     = [8]byte{0x07, 0x00, 0x00, 0x00, 'D', 'L', 'P', 0x00}
	gooEnding    = []byte{0x00, 0x00, 0x00, 0x07, 0x00, 0x00, 0x00, 'D', 'L', 'P', 0x00}
	gooDelimiter = []byte{0x0D, 0x0A}
)

const (
	gooLayerMagic = 0x55
	gooTimeLayout = "2006-01-02 15:04:05"

	// Runs longer than this are split.
	gooMaxRun = 0xFFFFFFF
)

// Run chunk types, stored in the top two bits of the head byte.
const (
	gooChunkBlack = 0b00
	gooChunkGray  = 0b01
	gooChunkDiff  = 0b10
	gooChunkWhite = 0b11
)

type gooHeader struct {
	Version         [4]byte
	Magic           [8]byte
	SoftwareInfo    [32]byte
	SoftwareVersion [24]byte
	FileTime        [24]byte
	PrinterName     [32]byte
	PrinterType     [32]byte
	ProfileName     [32]byte
	AntiAliasLevel  uint16
	GreyLevel       uint16
	BlurLevel       uint16
}

type gooParams struct {
	LayerCount                  uint32
	ResolutionX                 uint16
	ResolutionY                 uint16
	MirrorX                     bool
	MirrorY                     bool
	SizeX                       float32
	SizeY                       float32
	SizeZ                       float32
	LayerThickness              float32
	ExposureTime                float32
	ExposureDelayMode           bool
	TurnOffTime                 float32
	BottomBeforeLiftTime        float32
	BottomAfterLiftTime         float32
	BottomAfterRetractTime      float32
	BeforeLiftTime              float32
	AfterLiftTime               float32
	AfterRetractTime            float32
	BottomExposureTime          float32
	BottomLayers                uint32
	BottomLiftDistance          float32
	BottomLiftSpeed             float32
	LiftDistance                float32
	LiftSpeed                   float32
	BottomRetractDistance       float32
	BottomRetractSpeed          float32
	RetractDistance             float32
	RetractSpeed                float32
	BottomSecondLiftDistance    float32
	BottomSecondLiftSpeed       float32
	SecondLiftDistance          float32
	SecondLiftSpeed             float32
	BottomSecondRetractDistance float32
	BottomSecondRetractSpeed    float32
	SecondRetractDistance       float32
	SecondRetractSpeed          float32
	BottomLightPWM              uint16
	LightPWM                    uint16
	AdvanceMode                 bool
	PrintingTime                uint32
	TotalVolume                 float32
	TotalWeight                 float32
	TotalPrice                  float32
	PriceUnit                   [8]byte
	LayerContentOffset          uint32
	GreyScaleLevel              bool
	TransitionLayers            uint16
}

type gooLayerDef struct {
	PauseFlag             uint16
	PausePositionZ        float32
	PositionZ             float32
	ExposureTime          float32
	OffTime               float32
	BeforeLiftTime        float32
	AfterLiftTime         float32
	AfterRetractTime      float32
	LiftDistance          float32
	LiftSpeed             float32
	SecondLiftDistance    float32
	SecondLiftSpeed       float32
	RetractDistance       float32
	RetractSpeed          float32
	SecondRetractDistance float32
	SecondRetractSpeed    float32
	LightPWM              uint16
}

// gooContentOffset is the offset of the first layer definition.
var gooContentOffset = binary.Size(gooHeader{}) +
	SmallPreviewSize*SmallPreviewSize*2 + 2 +
	LargePreviewSize*LargePreviewSize*2 + 2 +
	binary.Size(gooParams{})

// GOOEncoder writes Elegoo GOO files.
type GOOEncoder struct{}

func (GOOEncoder) Format() Format { return FormatGOO }

// EncodeLayer returns the layer's data block: 0x55, the run chunks and a
// checksum byte that is the bitwise NOT of the chunk byte sum.
func (GOOEncoder) EncodeLayer(l raster.Layer) ([]byte, error) {
	if err := l.Validate(); err != nil {
		return nil, fmt.Errorf("goo: %w", err)
	}

	buf := bits.NewBuffer(len(l.Runs)*2 + 2)
	buf.Extend(gooLayerMagic, 8)
	for _, r := range l.Runs {
		for rem := r.Length; rem > 0; {
			n := rem
			if n > gooMaxRun {
				n = gooMaxRun
			}
			writeGOORun(buf, n, r.Value)
			rem -= n
		}
	}

	data := buf.Bytes()
	var sum uint8
	for _, b := range data[1:] {
		sum += b
	}
	return append(data, ^sum), nil
}

// writeGOORun writes one chunk: head byte aabbcccc (type, extra length
// bytes, low length nibble), the value byte for gray chunks, then the
// remaining length bits most significant byte first.
func writeGOORun(buf *bits.Buffer, length uint64, value uint8) {
	var size uint64
	switch {
	case length <= 0xF:
		size = 0
	case length <= 0xFFF:
		size = 1
	case length <= 0xFFFFF:
		size = 2
	default:
		size = 3
	}

	chunk := uint64(gooChunkGray)
	switch value {
	case 0x00:
		chunk = gooChunkBlack
	case 0xFF:
		chunk = gooChunkWhite
	}

	buf.Extend(chunk<<6|size<<4|length&0xF, 8)
	if chunk == gooChunkGray {
		buf.Extend(uint64(value), 8)
	}
	for k := size; k > 0; k-- {
		buf.Extend(length>>(4+8*(k-1))&0xFF, 8)
	}
}

// Assemble writes the header, previews, parameters and layers.
func (GOOEncoder) Assemble(s PrintSettings, previews Previews, layers [][]byte, stats Stats) ([]byte, error) {
	small, err := previewOrBlank(previews.Small, SmallPreviewSize, SmallPreviewSize)
	if err != nil {
		return nil, fmt.Errorf("goo small preview: %w", err)
	}
	large, err := previewOrBlank(previews.Large, LargePreviewSize, LargePreviewSize)
	if err != nil {
		return nil, fmt.Errorf("goo large preview: %w", err)
	}
	if s.ResolutionX > gomath.MaxUint16 || s.ResolutionY > gomath.MaxUint16 {
		return nil, fmt.Errorf("%w: resolution %dx%d", ErrFieldOverflow, s.ResolutionX, s.ResolutionY)
	}
	if s.TransitionLayers > gomath.MaxUint16 {
		return nil, fmt.Errorf("%w: %d transition layers", ErrFieldOverflow, s.TransitionLayers)
	}

	h := gooHeader{
		Version:        gooVersion,
		Magic:          gooMagic,
		AntiAliasLevel: uint16(s.AntiAliasLevel),
		GreyLevel:      boolUint16(s.AntiAliasLevel > 1),
	}
	created := s.Created
	if created.IsZero() {
		created = time.Unix(0, 0).UTC()
	}
	fields := []struct {
		dst  []byte
		val  string
		name string
	}{
		{h.SoftwareInfo[:], s.SoftwareName, "software name"},
		{h.SoftwareVersion[:], s.SoftwareVersion, "software version"},
		{h.FileTime[:], created.Format(gooTimeLayout), "file time"},
		{h.PrinterName[:], s.MachineName, "machine name"},
		{h.PrinterType[:], "MSLA", "printer type"},
		{h.ProfileName[:], s.ProfileName, "profile name"},
	}
	for _, f := range fields {
		if err := encoding.PutFixedString(f.dst, f.val); err != nil {
			return nil, fmt.Errorf("goo %s: %w", f.name, err)
		}
	}

	p := gooParams{
		LayerCount:            uint32(len(layers)),
		ResolutionX:           uint16(s.ResolutionX),
		ResolutionY:           uint16(s.ResolutionY),
		MirrorX:               s.MirrorX,
		MirrorY:               s.MirrorY,
		SizeX:                 float32(s.SizeX),
		SizeY:                 float32(s.SizeY),
		SizeZ:                 float32(s.SizeZ),
		LayerThickness:        float32(s.LayerHeight),
		ExposureTime:          float32(s.ExposureTime),
		TurnOffTime:           float32(s.LightOffDelay),
		BottomBeforeLiftTime:  float32(s.BottomLightOffDelay),
		BeforeLiftTime:        float32(s.LightOffDelay),
		BottomExposureTime:    float32(s.BottomExposureTime),
		BottomLayers:          s.BottomLayers,
		BottomLiftDistance:    float32(s.BottomLiftDistance),
		BottomLiftSpeed:       float32(s.BottomLiftSpeed),
		LiftDistance:          float32(s.LiftDistance),
		LiftSpeed:             float32(s.LiftSpeed),
		BottomRetractDistance: float32(s.BottomRetractDistance),
		BottomRetractSpeed:    float32(s.BottomRetractSpeed),
		RetractDistance:       float32(s.RetractDistance),
		RetractSpeed:          float32(s.RetractSpeed),
		BottomLightPWM:        uint16(s.BottomLightPWM),
		LightPWM:              uint16(s.LightPWM),
		PrintingTime:          uint32(stats.PrintTime / time.Second),
		TotalVolume:           float32(stats.VolumeML),
		TotalWeight:           float32(stats.WeightG),
		TotalPrice:            float32(stats.Price),
		LayerContentOffset:    uint32(gooContentOffset),
		GreyScaleLevel:        s.AntiAliasLevel > 1,
		TransitionLayers:      uint16(s.TransitionLayers),
	}
	if err := encoding.PutFixedString(p.PriceUnit[:], s.PriceUnit); err != nil {
		return nil, fmt.Errorf("goo price unit: %w", err)
	}

	size := gooContentOffset + len(gooEnding)
	for _, l := range layers {
		size += binary.Size(gooLayerDef{}) + 2 + 4 + len(l) + 2
	}
	out := bytes.NewBuffer(make([]byte, 0, size))

	binary.Write(out, binary.BigEndian, &h)
	binary.Write(out, binary.BigEndian, small.Pixels)
	out.Write(gooDelimiter)
	binary.Write(out, binary.BigEndian, large.Pixels)
	out.Write(gooDelimiter)
	binary.Write(out, binary.BigEndian, &p)

	for i, data := range layers {
		def := gooLayerDef{
			PositionZ:       float32(s.LayerZ(i)),
			ExposureTime:    float32(s.LayerExposure(i)),
			OffTime:         float32(s.LightOffDelay),
			BeforeLiftTime:  float32(s.LightOffDelay),
			LiftDistance:    float32(s.LiftDistance),
			LiftSpeed:       float32(s.LiftSpeed),
			RetractDistance: float32(s.RetractDistance),
			RetractSpeed:    float32(s.RetractSpeed),
			LightPWM:        uint16(s.LightPWM),
		}
		if s.IsBottom(i) {
			def.OffTime = float32(s.BottomLightOffDelay)
			def.BeforeLiftTime = float32(s.BottomLightOffDelay)
			def.LiftDistance = float32(s.BottomLiftDistance)
			def.LiftSpeed = float32(s.BottomLiftSpeed)
			def.RetractDistance = float32(s.BottomRetractDistance)
			def.RetractSpeed = float32(s.BottomRetractSpeed)
			def.LightPWM = uint16(s.BottomLightPWM)
		}
		binary.Write(out, binary.BigEndian, &def)
		out.Write(gooDelimiter)
		binary.Write(out, binary.BigEndian, uint32(len(data)))
		out.Write(data)
		out.Write(gooDelimiter)
	}
	out.Write(gooEnding)
	return out.Bytes(), nil
}

func boolUint16(b bool) uint16 {
	if b {
		return 1
	}
	return 0
}

// DecodeGOO parses a GOO file. Structural problems are errors; checksum
// and size mismatches are returned as warnings.
func DecodeGOO(data []byte) (*Document, error) {
	r := bytes.NewReader(data)

	var h gooHeader
	if err := binary.Read(r, binary.BigEndian, &h); err != nil {
		return nil, fmt.Errorf("%w: reading goo header", ErrTruncated)
	}
	if h.Magic != gooMagic {
		return nil, fmt.Errorf("%w: goo header", ErrInvalidMagic)
	}

	doc := &Document{Format: FormatGOO}
	if h.Version != gooVersion {
		doc.Warnings = append(doc.Warnings, Warning{Layer: -1,
			Message: fmt.Sprintf("unexpected version %q", encoding.FixedStringToUTF8(h.Version[:]))})
	}

	small, err := readGOOPreview(r, SmallPreviewSize)
	if err != nil {
		return nil, fmt.Errorf("goo small preview: %w", err)
	}
	large, err := readGOOPreview(r, LargePreviewSize)
	if err != nil {
		return nil, fmt.Errorf("goo large preview: %w", err)
	}
	doc.Previews = Previews{Small: small, Large: large}

	var p gooParams
	if err := binary.Read(r, binary.BigEndian, &p); err != nil {
		return nil, fmt.Errorf("%w: reading goo parameters", ErrTruncated)
	}
	if int64(p.LayerContentOffset) > int64(len(data)) || p.LayerContentOffset < uint32(gooContentOffset) {
		return nil, fmt.Errorf("%w: layer content at %d in %d bytes", ErrInvalidOffset, p.LayerContentOffset, len(data))
	}
	if _, err := r.Seek(int64(p.LayerContentOffset), io.SeekStart); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOffset, err)
	}

	doc.Settings = PrintSettings{
		ResolutionX:           uint32(p.ResolutionX),
		ResolutionY:           uint32(p.ResolutionY),
		SizeX:                 float64(p.SizeX),
		SizeY:                 float64(p.SizeY),
		SizeZ:                 float64(p.SizeZ),
		MirrorX:               p.MirrorX,
		MirrorY:               p.MirrorY,
		LayerHeight:           float64(p.LayerThickness),
		ExposureTime:          float64(p.ExposureTime),
		BottomExposureTime:    float64(p.BottomExposureTime),
		BottomLayers:          p.BottomLayers,
		TransitionLayers:      uint32(p.TransitionLayers),
		LiftDistance:          float64(p.LiftDistance),
		LiftSpeed:             float64(p.LiftSpeed),
		BottomLiftDistance:    float64(p.BottomLiftDistance),
		BottomLiftSpeed:       float64(p.BottomLiftSpeed),
		RetractDistance:       float64(p.RetractDistance),
		RetractSpeed:          float64(p.RetractSpeed),
		BottomRetractDistance: float64(p.BottomRetractDistance),
		BottomRetractSpeed:    float64(p.BottomRetractSpeed),
		LightOffDelay:         float64(p.TurnOffTime),
		BottomLightOffDelay:   float64(p.BottomBeforeLiftTime),
		LightPWM:              uint8(p.LightPWM),
		BottomLightPWM:        uint8(p.BottomLightPWM),
		AntiAliasLevel:        uint8(h.AntiAliasLevel),
		MachineName:           encoding.FixedStringToUTF8(h.PrinterName[:]),
		ProfileName:           encoding.FixedStringToUTF8(h.ProfileName[:]),
		SoftwareName:          encoding.FixedStringToUTF8(h.SoftwareInfo[:]),
		SoftwareVersion:       encoding.FixedStringToUTF8(h.SoftwareVersion[:]),
		PriceUnit:             encoding.FixedStringToUTF8(p.PriceUnit[:]),
	}
	if t, err := time.Parse(gooTimeLayout, encoding.FixedStringToUTF8(h.FileTime[:])); err == nil {
		doc.Settings.Created = t
	}
	doc.Stats = Stats{
		LayerCount: int(p.LayerCount),
		VolumeML:   float64(p.TotalVolume),
		WeightG:    float64(p.TotalWeight),
		Price:      float64(p.TotalPrice),
		PrintTime:  time.Duration(p.PrintingTime) * time.Second,
	}

	pixels := uint64(p.ResolutionX) * uint64(p.ResolutionY)
	for i := 0; i < int(p.LayerCount); i++ {
		var def gooLayerDef
		if err := binary.Read(r, binary.BigEndian, &def); err != nil {
			return nil, fmt.Errorf("%w: layer %d definition", ErrTruncated, i)
		}
		if err := expectDelimiter(r); err != nil {
			return nil, fmt.Errorf("layer %d definition: %w", i, err)
		}
		var n uint32
		if err := binary.Read(r, binary.BigEndian, &n); err != nil {
			return nil, fmt.Errorf("%w: layer %d length", ErrTruncated, i)
		}
		if int64(n) > int64(r.Len()) || n < 2 {
			return nil, fmt.Errorf("%w: layer %d claims %d bytes, %d left", ErrInvalidOffset, i, n, r.Len())
		}
		block := make([]byte, n)
		if _, err := r.Read(block); err != nil {
			return nil, fmt.Errorf("%w: layer %d data", ErrTruncated, i)
		}
		if err := expectDelimiter(r); err != nil {
			return nil, fmt.Errorf("layer %d data: %w", i, err)
		}

		runs, warn, err := decodeGOOLayer(block)
		if err != nil {
			return nil, fmt.Errorf("layer %d: %w", i, err)
		}
		if warn != "" {
			doc.Warnings = append(doc.Warnings, Warning{Layer: i, Message: warn})
		}
		if got := raster.TotalLength(runs); got != pixels {
			doc.Warnings = append(doc.Warnings, Warning{Layer: i,
				Message: fmt.Sprintf("runs cover %d pixels, want %d", got, pixels)})
		}
		doc.Layers = append(doc.Layers, raster.Layer{
			Width:  int(p.ResolutionX),
			Height: int(p.ResolutionY),
			Runs:   runs,
		})
	}

	tail := make([]byte, len(gooEnding))
	if n, _ := r.Read(tail); n != len(tail) || !bytes.Equal(tail, gooEnding) {
		doc.Warnings = append(doc.Warnings, Warning{Layer: -1, Message: "missing ending string"})
	}
	return doc, nil
}

func readGOOPreview(r *bytes.Reader, size int) (*Preview, error) {
	pixels := make([]uint16, size*size)
	if err := binary.Read(r, binary.BigEndian, pixels); err != nil {
		return nil, fmt.Errorf("%w: preview pixels", ErrTruncated)
	}
	if err := expectDelimiter(r); err != nil {
		return nil, err
	}
	return NewPreview(size, size, pixels)
}

func expectDelimiter(r *bytes.Reader) error {
	var d [2]byte
	if _, err := r.Read(d[:]); err != nil {
		return fmt.Errorf("%w: delimiter", ErrTruncated)
	}
	if !bytes.Equal(d[:], gooDelimiter) {
		return fmt.Errorf("%w: bad delimiter % x", ErrCorruptLayer, d)
	}
	return nil
}

// decodeGOOLayer decodes a layer block. A checksum mismatch is reported as
// a warning message; malformed chunks are errors.
func decodeGOOLayer(block []byte) ([]raster.Run, string, error) {
	if block[0] != gooLayerMagic {
		return nil, "", fmt.Errorf("%w: magic %#02x", ErrCorruptLayer, block[0])
	}
	body := block[1 : len(block)-1]

	var warn string
	var sum uint8
	for _, b := range body {
		sum += b
	}
	if want := block[len(block)-1]; ^sum != want {
		warn = fmt.Sprintf("checksum %#02x, want %#02x", ^sum, want)
	}

	var runs []raster.Run
	var prev uint8
	for pos := 0; pos < len(body); {
		head := body[pos]
		pos++
		chunk, size, nibble := head>>6, uint64(head>>4&0x3), uint64(head&0xF)

		var value uint8
		switch chunk {
		case gooChunkBlack:
			value = 0x00
		case gooChunkWhite:
			value = 0xFF
		case gooChunkGray:
			if pos >= len(body) {
				return nil, "", fmt.Errorf("%w: gray chunk without value", ErrCorruptLayer)
			}
			value = body[pos]
			pos++
		case gooChunkDiff:
			// Low nibble is a delta from the previous value; bit 5 selects
			// subtraction and bit 4 a one-byte run length.
			value = prev + uint8(nibble)
			if size&0b10 != 0 {
				value = prev - uint8(nibble)
			}
			length := uint64(1)
			if size&0b01 != 0 {
				if pos >= len(body) {
					return nil, "", fmt.Errorf("%w: diff chunk without length", ErrCorruptLayer)
				}
				length = uint64(body[pos])
				pos++
			}
			runs = raster.AppendRun(runs, length, value)
			prev = value
			continue
		}

		if pos+int(size) > len(body) {
			return nil, "", fmt.Errorf("%w: chunk length truncated", ErrCorruptLayer)
		}
		length := nibble
		for k := uint64(0); k < size; k++ {
			length |= uint64(body[pos]) << (4 + 8*(size-1-k))
			pos++
		}
		runs = raster.AppendRun(runs, length, value)
		prev = value
	}
	return runs, warn, nil
}
