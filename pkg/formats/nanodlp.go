package formats

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	stdpng "image/png"
	"io"
	"math"
	"strconv"
	"time"

	"github.com/Faultbox/resin-slicer/pkg/codec/png"
	"github.com/Faultbox/resin-slicer/pkg/raster"
)

// NanoDLP plates are zip archives holding JSON descriptors and one PNG per
// layer, numbered from 1.

const (
	nanoPlateFile   = "plate.json"
	nanoMetaFile    = "meta.json"
	nanoProfileFile = "profile.json"
	nanoPreviewFile = "3d.png"
	nanoFormatVer   = 1
)

type nanoPlate struct {
	LayersCount    int
	TotalSolidArea float64
	Volume         float64
	Weight         float64
	Price          float64
	PrintTime      float64
	CreatedDate    int64
	Updated        int64
}

type nanoMeta struct {
	FormatVersion int
	Software      string
	Version       string
	Machine       string
	ResolutionX   uint32
	ResolutionY   uint32
	SizeX         float64
	SizeY         float64
	SizeZ         float64
	MirrorX       bool
	MirrorY       bool
}

type nanoProfile struct {
	Title               string
	Depth               float64 // layer height in microns
	CureTime            float64
	SupportCureTime     float64
	SupportLayerNumber  uint32
	TransitionalLayer   uint32
	LiftDistance        float64
	LiftSpeed           float64
	SupportLiftDistance float64
	SupportLiftSpeed    float64
	RetractDistance     float64
	RetractSpeed        float64
	TopWait             float64
	SupportTopWait      float64
	LightPWM            uint8
	SupportLightPWM     uint8
	AntiAlias           uint8
	ResinDensity        float64
	ResinPrice          float64
	PriceUnit           string
}

// NanoDLPEncoder writes NanoDLP plate archives.
type NanoDLPEncoder struct{}

func (NanoDLPEncoder) Format() Format { return FormatNanoDLP }

// EncodeLayer encodes the layer as a grayscale PNG.
func (NanoDLPEncoder) EncodeLayer(l raster.Layer) ([]byte, error) {
	return png.EncodeLayer(l)
}

// Assemble zips the descriptors, an optional preview and the layer PNGs.
// PNG entries are stored uncompressed.
func (NanoDLPEncoder) Assemble(s PrintSettings, previews Previews, layers [][]byte, stats Stats) ([]byte, error) {
	plate := nanoPlate{
		LayersCount: len(layers),
		Volume:      stats.VolumeML,
		Weight:      stats.WeightG,
		Price:       stats.Price,
		PrintTime:   stats.PrintTime.Seconds(),
	}
	if !s.Created.IsZero() {
		plate.CreatedDate = s.Created.Unix()
		plate.Updated = plate.CreatedDate
	}
	if s.LayerHeight > 0 {
		// Solid area in mm² summed over layers.
		plate.TotalSolidArea = stats.VolumeML * 1000 / s.LayerHeight
	}
	meta := nanoMeta{
		FormatVersion: nanoFormatVer,
		Software:      s.SoftwareName,
		Version:       s.SoftwareVersion,
		Machine:       s.MachineName,
		ResolutionX:   s.ResolutionX,
		ResolutionY:   s.ResolutionY,
		SizeX:         s.SizeX,
		SizeY:         s.SizeY,
		SizeZ:         s.SizeZ,
		MirrorX:       s.MirrorX,
		MirrorY:       s.MirrorY,
	}
	profile := nanoProfile{
		Title:               s.ProfileName,
		Depth:               math.Round(s.LayerHeight * 1000),
		CureTime:            s.ExposureTime,
		SupportCureTime:     s.BottomExposureTime,
		SupportLayerNumber:  s.BottomLayers,
		TransitionalLayer:   s.TransitionLayers,
		LiftDistance:        s.LiftDistance,
		LiftSpeed:           s.LiftSpeed,
		SupportLiftDistance: s.BottomLiftDistance,
		SupportLiftSpeed:    s.BottomLiftSpeed,
		RetractDistance:     s.RetractDistance,
		RetractSpeed:        s.RetractSpeed,
		TopWait:             s.LightOffDelay,
		SupportTopWait:      s.BottomLightOffDelay,
		LightPWM:            s.LightPWM,
		SupportLightPWM:     s.BottomLightPWM,
		AntiAlias:           s.AntiAliasLevel,
		ResinDensity:        s.ResinDensity,
		ResinPrice:          s.ResinPrice,
		PriceUnit:           s.PriceUnit,
	}

	var out bytes.Buffer
	zw := zip.NewWriter(&out)
	put := func(name string, method uint16, data []byte) error {
		w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: method, Modified: s.Created})
		if err != nil {
			return fmt.Errorf("nanodlp %s: %w", name, err)
		}
		if _, err := w.Write(data); err != nil {
			return fmt.Errorf("nanodlp %s: %w", name, err)
		}
		return nil
	}
	putJSON := func(name string, v any) error {
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("nanodlp %s: %w", name, err)
		}
		return put(name, zip.Deflate, data)
	}

	if err := putJSON(nanoPlateFile, plate); err != nil {
		return nil, err
	}
	if err := putJSON(nanoMetaFile, meta); err != nil {
		return nil, err
	}
	if err := putJSON(nanoProfileFile, profile); err != nil {
		return nil, err
	}
	if previews.Large != nil {
		var buf bytes.Buffer
		if err := stdpng.Encode(&buf, previews.Large.Image()); err != nil {
			return nil, fmt.Errorf("nanodlp preview: %w", err)
		}
		if err := put(nanoPreviewFile, zip.Store, buf.Bytes()); err != nil {
			return nil, err
		}
	}
	for i, l := range layers {
		if err := put(nanoLayerName(i), zip.Store, l); err != nil {
			return nil, err
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("nanodlp: %w", err)
	}
	return out.Bytes(), nil
}

func nanoLayerName(i int) string {
	return strconv.Itoa(i+1) + ".png"
}

// DecodeNanoDLP reads a plate archive. Missing descriptors are warnings;
// a missing or unreadable layer image is an error.
func DecodeNanoDLP(data []byte) (*Document, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: nanodlp archive: %v", ErrInvalidMagic, err)
	}
	files := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		files[f.Name] = f
	}

	doc := &Document{Format: FormatNanoDLP}
	readJSON := func(name string, v any) bool {
		f, ok := files[name]
		if !ok {
			doc.Warnings = append(doc.Warnings, Warning{Layer: -1, Message: "missing " + name})
			return false
		}
		raw, err := readZipFile(f)
		if err == nil {
			err = json.Unmarshal(raw, v)
		}
		if err != nil {
			doc.Warnings = append(doc.Warnings, Warning{Layer: -1, Message: fmt.Sprintf("%s: %v", name, err)})
			return false
		}
		return true
	}

	var (
		plate   nanoPlate
		meta    nanoMeta
		profile nanoProfile
	)
	hasPlate := readJSON(nanoPlateFile, &plate)
	readJSON(nanoMetaFile, &meta)
	readJSON(nanoProfileFile, &profile)

	doc.Settings = PrintSettings{
		ResolutionX:         meta.ResolutionX,
		ResolutionY:         meta.ResolutionY,
		SizeX:               meta.SizeX,
		SizeY:               meta.SizeY,
		SizeZ:               meta.SizeZ,
		MirrorX:             meta.MirrorX,
		MirrorY:             meta.MirrorY,
		LayerHeight:         profile.Depth / 1000,
		ExposureTime:        profile.CureTime,
		BottomExposureTime:  profile.SupportCureTime,
		BottomLayers:        profile.SupportLayerNumber,
		TransitionLayers:    profile.TransitionalLayer,
		LiftDistance:        profile.LiftDistance,
		LiftSpeed:           profile.LiftSpeed,
		BottomLiftDistance:  profile.SupportLiftDistance,
		BottomLiftSpeed:     profile.SupportLiftSpeed,
		RetractDistance:     profile.RetractDistance,
		RetractSpeed:        profile.RetractSpeed,
		LightOffDelay:       profile.TopWait,
		BottomLightOffDelay: profile.SupportTopWait,
		LightPWM:            profile.LightPWM,
		BottomLightPWM:      profile.SupportLightPWM,
		AntiAliasLevel:      profile.AntiAlias,
		MachineName:         meta.Machine,
		ProfileName:         profile.Title,
		SoftwareName:        meta.Software,
		SoftwareVersion:     meta.Version,
		ResinDensity:        profile.ResinDensity,
		ResinPrice:          profile.ResinPrice,
		PriceUnit:           profile.PriceUnit,
	}
	if plate.CreatedDate != 0 {
		doc.Settings.Created = time.Unix(plate.CreatedDate, 0).UTC()
	}
	doc.Stats = Stats{
		LayerCount: plate.LayersCount,
		VolumeML:   plate.Volume,
		WeightG:    plate.Weight,
		Price:      plate.Price,
		PrintTime:  time.Duration(plate.PrintTime * float64(time.Second)),
	}

	if f, ok := files[nanoPreviewFile]; ok {
		if img, err := decodeZipPNG(f); err == nil {
			doc.Previews.Large = FromImage(img)
		} else {
			doc.Warnings = append(doc.Warnings, Warning{Layer: -1, Message: fmt.Sprintf("preview: %v", err)})
		}
	}

	count := plate.LayersCount
	if !hasPlate {
		for count = 0; files[nanoLayerName(count)] != nil; count++ {
		}
		doc.Stats.LayerCount = count
	}
	for i := 0; i < count; i++ {
		f, ok := files[nanoLayerName(i)]
		if !ok {
			return nil, fmt.Errorf("%w: nanodlp layer %s missing", ErrLayerCount, nanoLayerName(i))
		}
		img, err := decodeZipPNG(f)
		if err != nil {
			return nil, fmt.Errorf("%w: nanodlp layer %d: %v", ErrCorruptLayer, i, err)
		}
		gray := toRaster(img)
		if meta.ResolutionX != 0 && (gray.Width != int(meta.ResolutionX) || gray.Height != int(meta.ResolutionY)) {
			doc.Warnings = append(doc.Warnings, Warning{Layer: i,
				Message: fmt.Sprintf("image is %dx%d, want %dx%d", gray.Width, gray.Height, meta.ResolutionX, meta.ResolutionY)})
		}
		doc.Layers = append(doc.Layers, raster.FromImage(gray))
	}
	return doc, nil
}

func readZipFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func decodeZipPNG(f *zip.File) (image.Image, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return stdpng.Decode(rc)
}

func toRaster(img image.Image) *raster.Image {
	b := img.Bounds()
	out := raster.NewImage(b.Dx(), b.Dy())
	if g, ok := img.(*image.Gray); ok {
		for y := 0; y < out.Height; y++ {
			copy(out.Pix[y*out.Width:(y+1)*out.Width], g.Pix[y*g.Stride:y*g.Stride+out.Width])
		}
		return out
	}
	for y := 0; y < out.Height; y++ {
		for x := 0; x < out.Width; x++ {
			out.Set(x, y, color.GrayModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.Gray).Y)
		}
	}
	return out
}
