package formats

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/Faultbox/resin-slicer/pkg/encoding"
	"github.com/Faultbox/resin-slicer/pkg/raster"
)

// ChiTu CTB version 3, little-endian, written unencrypted.

// ErrEncrypted is returned for CTB files with a non-zero encryption key.
var ErrEncrypted = errors.New("encrypted ctb files are not supported")

const (
	ctbMagic   = 0x12FD0086
	ctbVersion = 3

	ctbMaxRun          = 0xFFFFFFF
	ctbPreviewRunFlag  = 0x20
	ctbPreviewMaxRun   = 0xFFF
	ctbPreviewRunMark  = 0x3000
	ctbAntiAliasFlag   = 0x7
	ctbSoftwareVersion = 0x01090000
)

type ctbHeader struct {
	Magic              uint32
	Version            uint32
	BedSizeX           float32
	BedSizeY           float32
	BedSizeZ           float32
	Unknown1           uint32
	Unknown2           uint32
	TotalHeight        float32
	LayerHeight        float32
	ExposureTime       float32
	BottomExposureTime float32
	LightOffDelay      float32
	BottomLayers       uint32
	ResolutionX        uint32
	ResolutionY        uint32
	LargePreviewOffset uint32
	LayerTableOffset   uint32
	LayerCount         uint32
	SmallPreviewOffset uint32
	PrintTime          uint32
	ProjectorType      uint32
	PrintParamsOffset  uint32
	PrintParamsSize    uint32
	AntiAliasLevel     uint32
	LightPWM           uint16
	BottomLightPWM     uint16
	EncryptionKey      uint32
	SlicerInfoOffset   uint32
	SlicerInfoSize     uint32
}

type ctbPreviewHeader struct {
	ResolutionX uint32
	ResolutionY uint32
	DataOffset  uint32
	DataSize    uint32
	Unknown     [4]uint32
}

type ctbPrintParams struct {
	BottomLiftDistance  float32
	BottomLiftSpeed     float32
	LiftDistance        float32
	LiftSpeed           float32
	RetractSpeed        float32
	VolumeML            float32
	WeightG             float32
	Cost                float32
	BottomLightOffDelay float32
	LightOffDelay       float32
	BottomLayers        uint32
	Padding             [4]uint32
}

type ctbSlicerInfo struct {
	BottomLiftDistance2  float32
	BottomLiftSpeed2     float32
	LiftDistance2        float32
	LiftSpeed2           float32
	RetractDistance2     float32
	RetractSpeed2        float32
	RestTimeAfterLift    float32
	MachineNameOffset    uint32
	MachineNameSize      uint32
	AntiAliasFlag        uint32
	Padding1             uint32
	PerLayerSettings     uint32
	ModifiedMinutes      uint32
	AntiAliasLevel       uint32
	SoftwareVersion      uint32
	RestTimeAfterRetract float32
	RestTimeAfterLift2   float32
	TransitionLayers     uint32
	PrintParamsV4Offset  uint32
	Padding2             [2]uint32
}

type ctbLayerHeader struct {
	PositionZ     float32
	ExposureTime  float32
	LightOffDelay float32
	DataOffset    uint32
	DataSize      uint32
	Unknown       [4]uint32
}

// CTBEncoder writes unencrypted CTB v3 files.
type CTBEncoder struct{}

func (CTBEncoder) Format() Format { return FormatCTB }

// EncodeLayer writes 7-bit run-length data. A byte holds value>>1; when its
// top bit is set a run length of one to four bytes follows, its leading
// bits 0, 10, 110 or 1110 giving the byte count.
func (CTBEncoder) EncodeLayer(l raster.Layer) ([]byte, error) {
	if err := l.Validate(); err != nil {
		return nil, fmt.Errorf("ctb: %w", err)
	}
	out := make([]byte, 0, len(l.Runs)*3)
	for _, r := range l.Runs {
		for rem := r.Length; rem > 0; {
			n := rem
			if n > ctbMaxRun {
				n = ctbMaxRun
			}
			out = appendCTBRun(out, n, r.Value)
			rem -= n
		}
	}
	return out, nil
}

func appendCTBRun(out []byte, length uint64, value uint8) []byte {
	code := value >> 1
	if length == 1 {
		return append(out, code)
	}
	out = append(out, code|0x80)
	switch {
	case length <= 0x7F:
		return append(out, byte(length))
	case length <= 0x3FFF:
		return append(out, byte(length>>8)|0x80, byte(length))
	case length <= 0x1FFFFF:
		return append(out, byte(length>>16)|0xC0, byte(length>>8), byte(length))
	default:
		return append(out, byte(length>>24)|0xE0, byte(length>>16), byte(length>>8), byte(length))
	}
}

// Assemble lays out header, previews, print parameters, slicer info, the
// layer table and layer data in that order.
func (CTBEncoder) Assemble(s PrintSettings, previews Previews, layers [][]byte, stats Stats) ([]byte, error) {
	large, err := previewOrBlank(previews.Large, LargePreviewSize, LargePreviewSize)
	if err != nil {
		return nil, fmt.Errorf("ctb large preview: %w", err)
	}
	small, err := previewOrBlank(previews.Small, SmallPreviewSize, SmallPreviewSize)
	if err != nil {
		return nil, fmt.Errorf("ctb small preview: %w", err)
	}
	machine, err := encoding.UTF8ToLatin1(s.MachineName)
	if err != nil {
		return nil, fmt.Errorf("ctb machine name: %w", err)
	}

	largeData := encodeCTBPreview(large)
	smallData := encodeCTBPreview(small)

	headerSize := binary.Size(ctbHeader{})
	previewSize := binary.Size(ctbPreviewHeader{})
	paramsSize := binary.Size(ctbPrintParams{})
	infoSize := binary.Size(ctbSlicerInfo{})
	layerSize := binary.Size(ctbLayerHeader{})

	largeOffset := headerSize
	smallOffset := largeOffset + previewSize + len(largeData)
	paramsOffset := smallOffset + previewSize + len(smallData)
	infoOffset := paramsOffset + paramsSize
	nameOffset := infoOffset + infoSize
	tableOffset := nameOffset + len(machine)
	dataOffset := tableOffset + layerSize*len(layers)

	total := dataOffset
	for _, l := range layers {
		total += len(l)
	}
	if int64(total) > math.MaxUint32 {
		return nil, fmt.Errorf("%w: file of %d bytes exceeds 32-bit offsets", ErrFieldOverflow, total)
	}

	projector := uint32(0)
	if s.MirrorX {
		projector = 1
	}
	h := ctbHeader{
		Magic:              ctbMagic,
		Version:            ctbVersion,
		BedSizeX:           float32(s.SizeX),
		BedSizeY:           float32(s.SizeY),
		BedSizeZ:           float32(s.SizeZ),
		TotalHeight:        float32(s.LayerZ(len(layers) - 1)),
		LayerHeight:        float32(s.LayerHeight),
		ExposureTime:       float32(s.ExposureTime),
		BottomExposureTime: float32(s.BottomExposureTime),
		LightOffDelay:      float32(s.LightOffDelay),
		BottomLayers:       s.BottomLayers,
		ResolutionX:        s.ResolutionX,
		ResolutionY:        s.ResolutionY,
		LargePreviewOffset: uint32(largeOffset),
		LayerTableOffset:   uint32(tableOffset),
		LayerCount:         uint32(len(layers)),
		SmallPreviewOffset: uint32(smallOffset),
		PrintTime:          uint32(stats.PrintTime / time.Second),
		ProjectorType:      projector,
		PrintParamsOffset:  uint32(paramsOffset),
		PrintParamsSize:    uint32(paramsSize),
		AntiAliasLevel:     uint32(max(s.AntiAliasLevel, 1)),
		LightPWM:           uint16(s.LightPWM),
		BottomLightPWM:     uint16(s.BottomLightPWM),
		SlicerInfoOffset:   uint32(infoOffset),
		SlicerInfoSize:     uint32(infoSize),
	}
	params := ctbPrintParams{
		BottomLiftDistance:  float32(s.BottomLiftDistance),
		BottomLiftSpeed:     float32(s.BottomLiftSpeed),
		LiftDistance:        float32(s.LiftDistance),
		LiftSpeed:           float32(s.LiftSpeed),
		RetractSpeed:        float32(s.RetractSpeed),
		VolumeML:            float32(stats.VolumeML),
		WeightG:             float32(stats.WeightG),
		Cost:                float32(stats.Price),
		BottomLightOffDelay: float32(s.BottomLightOffDelay),
		LightOffDelay:       float32(s.LightOffDelay),
		BottomLayers:        s.BottomLayers,
	}
	info := ctbSlicerInfo{
		MachineNameOffset: uint32(nameOffset),
		MachineNameSize:   uint32(len(machine)),
		AntiAliasFlag:     ctbAntiAliasFlag,
		AntiAliasLevel:    uint32(max(s.AntiAliasLevel, 1)),
		SoftwareVersion:   ctbSoftwareVersion,
		TransitionLayers:  s.TransitionLayers,
	}
	if !s.Created.IsZero() {
		info.ModifiedMinutes = uint32(s.Created.Unix() / 60)
	}

	out := bytes.NewBuffer(make([]byte, 0, total))
	binary.Write(out, binary.LittleEndian, &h)
	binary.Write(out, binary.LittleEndian, &ctbPreviewHeader{
		ResolutionX: uint32(large.Width),
		ResolutionY: uint32(large.Height),
		DataOffset:  uint32(largeOffset + previewSize),
		DataSize:    uint32(len(largeData)),
	})
	out.Write(largeData)
	binary.Write(out, binary.LittleEndian, &ctbPreviewHeader{
		ResolutionX: uint32(small.Width),
		ResolutionY: uint32(small.Height),
		DataOffset:  uint32(smallOffset + previewSize),
		DataSize:    uint32(len(smallData)),
	})
	out.Write(smallData)
	binary.Write(out, binary.LittleEndian, &params)
	binary.Write(out, binary.LittleEndian, &info)
	out.Write(machine)

	offset := dataOffset
	for i, l := range layers {
		lh := ctbLayerHeader{
			PositionZ:     float32(s.LayerZ(i)),
			ExposureTime:  float32(s.LayerExposure(i)),
			LightOffDelay: float32(s.LightOffDelay),
			DataOffset:    uint32(offset),
			DataSize:      uint32(len(l)),
		}
		if s.IsBottom(i) {
			lh.LightOffDelay = float32(s.BottomLightOffDelay)
		}
		binary.Write(out, binary.LittleEndian, &lh)
		offset += len(l)
	}
	for _, l := range layers {
		out.Write(l)
	}
	return out.Bytes(), nil
}

// encodeCTBPreview run-length encodes a preview as 15-bit colours. Bit 5 of
// a colour word flags a repeat; the next word holds count-1 in its low 12
// bits.
func encodeCTBPreview(p *Preview) []byte {
	var out []byte
	put := func(v uint16) { out = binary.LittleEndian.AppendUint16(out, v) }

	for i := 0; i < len(p.Pixels); {
		c := p.Pixels[i]
		n := 1
		for i+n < len(p.Pixels) && p.Pixels[i+n] == c && n < ctbPreviewMaxRun+1 {
			n++
		}
		i += n

		c15 := to15(c)
		switch n {
		case 1:
			put(c15)
		case 2:
			put(c15)
			put(c15)
		default:
			put(c15 | ctbPreviewRunFlag)
			put(uint16(n-1) | ctbPreviewRunMark)
		}
	}
	return out
}

func to15(c uint16) uint16 {
	r5, g6, b5 := c>>11, c>>5&0x3F, c&0x1F
	return r5<<11 | (g6>>1)<<6 | b5
}

func from15(c uint16) uint16 {
	r5, g5, b5 := c>>11, c>>6&0x1F, c&0x1F
	return r5<<11 | (g5<<1)<<5 | b5
}

func decodeCTBPreview(data []byte, w, h uint32) (*Preview, error) {
	// A two-byte word expands to at most ctbPreviewMaxRun+1 pixels.
	total := uint64(w) * uint64(h)
	if total == 0 || total > uint64(len(data)/2)*(ctbPreviewMaxRun+1) {
		return nil, fmt.Errorf("%w: %dx%d from %d bytes", ErrPreviewSize, w, h, len(data))
	}
	pixels := make([]uint16, 0, total)
	for pos := 0; pos+1 < len(data); pos += 2 {
		c := binary.LittleEndian.Uint16(data[pos:])
		n := 1
		if c&ctbPreviewRunFlag != 0 {
			if pos+3 >= len(data) {
				return nil, fmt.Errorf("%w: preview run without count", ErrTruncated)
			}
			pos += 2
			n = int(binary.LittleEndian.Uint16(data[pos:])&0xFFF) + 1
		}
		if uint64(len(pixels)+n) > total {
			return nil, fmt.Errorf("%w: more than %dx%d pixels", ErrPreviewSize, w, h)
		}
		for k := 0; k < n; k++ {
			pixels = append(pixels, from15(c&^ctbPreviewRunFlag))
		}
	}
	return NewPreview(int(w), int(h), pixels)
}

// DecodeCTB parses an unencrypted CTB file.
func DecodeCTB(data []byte) (*Document, error) {
	r := bytes.NewReader(data)

	var h ctbHeader
	if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
		return nil, fmt.Errorf("%w: reading ctb header", ErrTruncated)
	}
	if h.Magic != ctbMagic {
		return nil, fmt.Errorf("%w: ctb header %#08x", ErrInvalidMagic, h.Magic)
	}
	if h.EncryptionKey != 0 {
		return nil, ErrEncrypted
	}

	doc := &Document{Format: FormatCTB}
	if h.Version != ctbVersion {
		doc.Warnings = append(doc.Warnings, Warning{Layer: -1, Message: fmt.Sprintf("unexpected version %d", h.Version)})
	}

	at := func(offset uint32, v any) error {
		if int64(offset) >= int64(len(data)) {
			return fmt.Errorf("%w: %d beyond %d bytes", ErrInvalidOffset, offset, len(data))
		}
		if _, err := r.Seek(int64(offset), io.SeekStart); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidOffset, err)
		}
		if err := binary.Read(r, binary.LittleEndian, v); err != nil {
			return fmt.Errorf("%w: section at %d", ErrTruncated, offset)
		}
		return nil
	}
	slice := func(offset, size uint32) ([]byte, error) {
		end := int64(offset) + int64(size)
		if end > int64(len(data)) {
			return nil, fmt.Errorf("%w: %d+%d beyond %d bytes", ErrInvalidOffset, offset, size, len(data))
		}
		return data[offset:end], nil
	}

	var params ctbPrintParams
	if err := at(h.PrintParamsOffset, &params); err != nil {
		return nil, fmt.Errorf("ctb print parameters: %w", err)
	}
	var info ctbSlicerInfo
	if err := at(h.SlicerInfoOffset, &info); err != nil {
		return nil, fmt.Errorf("ctb slicer info: %w", err)
	}
	machine, err := slice(info.MachineNameOffset, info.MachineNameSize)
	if err != nil {
		return nil, fmt.Errorf("ctb machine name: %w", err)
	}

	for _, pv := range []struct {
		offset uint32
		dst    **Preview
	}{
		{h.LargePreviewOffset, &doc.Previews.Large},
		{h.SmallPreviewOffset, &doc.Previews.Small},
	} {
		var ph ctbPreviewHeader
		if err := at(pv.offset, &ph); err != nil {
			return nil, fmt.Errorf("ctb preview: %w", err)
		}
		raw, err := slice(ph.DataOffset, ph.DataSize)
		if err != nil {
			return nil, fmt.Errorf("ctb preview: %w", err)
		}
		p, err := decodeCTBPreview(raw, ph.ResolutionX, ph.ResolutionY)
		if err != nil {
			doc.Warnings = append(doc.Warnings, Warning{Layer: -1, Message: fmt.Sprintf("preview: %v", err)})
			continue
		}
		*pv.dst = p
	}

	doc.Settings = PrintSettings{
		ResolutionX:         h.ResolutionX,
		ResolutionY:         h.ResolutionY,
		SizeX:               float64(h.BedSizeX),
		SizeY:               float64(h.BedSizeY),
		SizeZ:               float64(h.BedSizeZ),
		MirrorX:             h.ProjectorType == 1,
		LayerHeight:         float64(h.LayerHeight),
		ExposureTime:        float64(h.ExposureTime),
		BottomExposureTime:  float64(h.BottomExposureTime),
		BottomLayers:        h.BottomLayers,
		TransitionLayers:    info.TransitionLayers,
		LiftDistance:        float64(params.LiftDistance),
		LiftSpeed:           float64(params.LiftSpeed),
		BottomLiftDistance:  float64(params.BottomLiftDistance),
		BottomLiftSpeed:     float64(params.BottomLiftSpeed),
		RetractSpeed:        float64(params.RetractSpeed),
		LightOffDelay:       float64(params.LightOffDelay),
		BottomLightOffDelay: float64(params.BottomLightOffDelay),
		LightPWM:            uint8(h.LightPWM),
		BottomLightPWM:      uint8(h.BottomLightPWM),
		AntiAliasLevel:      uint8(h.AntiAliasLevel),
		MachineName:         encoding.Latin1ToUTF8(machine),
	}
	if info.ModifiedMinutes != 0 {
		doc.Settings.Created = time.Unix(int64(info.ModifiedMinutes)*60, 0).UTC()
	}
	doc.Stats = Stats{
		LayerCount: int(h.LayerCount),
		VolumeML:   float64(params.VolumeML),
		WeightG:    float64(params.WeightG),
		Price:      float64(params.Cost),
		PrintTime:  time.Duration(h.PrintTime) * time.Second,
	}

	tableSize := uint64(h.LayerCount) * uint64(binary.Size(ctbLayerHeader{}))
	if uint64(h.LayerTableOffset)+tableSize > uint64(len(data)) {
		return nil, fmt.Errorf("ctb layer table: %w: %d layers at %d beyond %d bytes",
			ErrInvalidOffset, h.LayerCount, h.LayerTableOffset, len(data))
	}
	headers := make([]ctbLayerHeader, h.LayerCount)
	if h.LayerCount > 0 {
		if err := at(h.LayerTableOffset, headers); err != nil {
			return nil, fmt.Errorf("ctb layer table: %w", err)
		}
	}
	pixels := uint64(h.ResolutionX) * uint64(h.ResolutionY)
	for i, lh := range headers {
		raw, err := slice(lh.DataOffset, lh.DataSize)
		if err != nil {
			return nil, fmt.Errorf("ctb layer %d: %w", i, err)
		}
		runs, err := decodeCTBLayer(raw)
		if err != nil {
			return nil, fmt.Errorf("ctb layer %d: %w", i, err)
		}
		if got := raster.TotalLength(runs); got != pixels {
			doc.Warnings = append(doc.Warnings, Warning{Layer: i,
				Message: fmt.Sprintf("runs cover %d pixels, want %d", got, pixels)})
		}
		doc.Layers = append(doc.Layers, raster.Layer{
			Width:  int(h.ResolutionX),
			Height: int(h.ResolutionY),
			Runs:   runs,
		})
	}
	return doc, nil
}

func decodeCTBLayer(data []byte) ([]raster.Run, error) {
	var runs []raster.Run
	for pos := 0; pos < len(data); {
		code := data[pos]
		pos++
		length := uint64(1)
		if code&0x80 != 0 {
			code &= 0x7F
			if pos >= len(data) {
				return nil, fmt.Errorf("%w: run without length", ErrCorruptLayer)
			}
			first := data[pos]
			pos++
			var extra int
			switch {
			case first&0x80 == 0:
				length = uint64(first)
			case first&0xC0 == 0x80:
				length, extra = uint64(first&0x3F), 1
			case first&0xE0 == 0xC0:
				length, extra = uint64(first&0x1F), 2
			case first&0xF0 == 0xE0:
				length, extra = uint64(first&0x0F), 3
			default:
				return nil, fmt.Errorf("%w: bad length prefix %#02x", ErrCorruptLayer, first)
			}
			if pos+extra > len(data) {
				return nil, fmt.Errorf("%w: run length truncated", ErrCorruptLayer)
			}
			for k := 0; k < extra; k++ {
				length = length<<8 | uint64(data[pos])
				pos++
			}
		}
		value := code
		if value != 0 {
			value = value<<1 | 1
		}
		runs = raster.AppendRun(runs, length, value)
	}
	return runs, nil
}
