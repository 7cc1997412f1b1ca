package formats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Faultbox/resin-slicer/pkg/raster"
)

// testSettings uses values that survive a float32 round trip exactly.
func testSettings() PrintSettings {
	return PrintSettings{
		ResolutionX:           16,
		ResolutionY:           8,
		SizeX:                 32,
		SizeY:                 16,
		SizeZ:                 100,
		LayerHeight:           0.25,
		ExposureTime:          2.5,
		BottomExposureTime:    30,
		BottomLayers:          2,
		TransitionLayers:      1,
		LiftDistance:          5,
		LiftSpeed:             60,
		BottomLiftDistance:    6,
		BottomLiftSpeed:       45,
		RetractDistance:       5,
		RetractSpeed:          150,
		BottomRetractDistance: 6,
		BottomRetractSpeed:    90,
		LightOffDelay:         0.5,
		BottomLightOffDelay:   1,
		LightPWM:              255,
		BottomLightPWM:        200,
		AntiAliasLevel:        4,
		MachineName:           "Mars",
		ProfileName:           "standard",
		SoftwareName:          "resintool",
		SoftwareVersion:       "1.0",
		ResinDensity:          1.1,
		ResinPrice:            40,
		PriceUnit:             "EUR",
		Created:               time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC),
	}
}

func testStats() Stats {
	return Stats{
		LayerCount: 4,
		VolumeML:   1.5,
		WeightG:    1.75,
		Price:      0.25,
		PrintTime:  90 * time.Second,
	}
}

// testLayers builds n 16x8 layers: a growing foreground square with a gray
// rim pixel on its left.
func testLayers(n int) []raster.Layer {
	layers := make([]raster.Layer, n)
	for i := range layers {
		img := raster.NewImage(16, 8)
		for y := 2; y < 6; y++ {
			img.Set(3, y, 0x81)
			for x := 4; x < 8+i; x++ {
				img.Set(x, y, raster.Foreground)
			}
		}
		layers[i] = raster.FromImage(img)
	}
	return layers
}

func encodeLayers(t *testing.T, enc Encoder, layers []raster.Layer) [][]byte {
	t.Helper()
	out := make([][]byte, len(layers))
	for i, l := range layers {
		data, err := enc.EncodeLayer(l)
		require.NoError(t, err)
		out[i] = data
	}
	return out
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in   string
		want Format
	}{
		{"goo", FormatGOO},
		{".CTB", FormatCTB},
		{" nanodlp ", FormatNanoDLP},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := ParseFormat("stl")
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

func TestFormatFromPath(t *testing.T) {
	f, err := FormatFromPath("/tmp/out/part.goo")
	require.NoError(t, err)
	assert.Equal(t, FormatGOO, f)
	assert.Equal(t, ".goo", f.Extension())

	_, err = FormatFromPath("noext")
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

func TestNewEncoder(t *testing.T) {
	for _, f := range Formats {
		enc, err := NewEncoder(f)
		require.NoError(t, err)
		assert.Equal(t, f, enc.Format())
	}
	_, err := NewEncoder(Format(42))
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

func TestDetectUnknown(t *testing.T) {
	_, err := Detect([]byte("solid cube"))
	assert.ErrorIs(t, err, ErrUnknownFormat)
	_, err = Decode(nil)
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

func TestLayerExposure(t *testing.T) {
	s := PrintSettings{ExposureTime: 2, BottomExposureTime: 20, BottomLayers: 2, TransitionLayers: 2}

	assert.Equal(t, 20.0, s.LayerExposure(0))
	assert.Equal(t, 20.0, s.LayerExposure(1))
	assert.InDelta(t, 14.0, s.LayerExposure(2), 1e-9)
	assert.InDelta(t, 8.0, s.LayerExposure(3), 1e-9)
	assert.Equal(t, 2.0, s.LayerExposure(4))
	assert.True(t, s.IsBottom(1))
	assert.False(t, s.IsBottom(2))
	assert.Equal(t, 1.5, PrintSettings{LayerHeight: 0.5}.LayerZ(2))
}

func TestWarningString(t *testing.T) {
	assert.Equal(t, "missing ending string", Warning{Layer: -1, Message: "missing ending string"}.String())
	assert.Equal(t, "layer 3: bad", Warning{Layer: 3, Message: "bad"}.String())
}

func TestNewPreviewSize(t *testing.T) {
	_, err := NewPreview(2, 2, make([]uint16, 3))
	assert.ErrorIs(t, err, ErrPreviewSize)

	p, err := NewPreview(2, 2, make([]uint16, 4))
	require.NoError(t, err)
	assert.Equal(t, 2, p.Width)
}

func TestRGB565(t *testing.T) {
	assert.Equal(t, uint16(0xF800), RGB565(255, 0, 0))
	assert.Equal(t, uint16(0x07E0), RGB565(0, 255, 0))
	assert.Equal(t, uint16(0xFFFF), RGB565(255, 255, 255))

	r, g, b := Unpack565(0xFFFF)
	assert.Equal(t, [3]uint8{255, 255, 255}, [3]uint8{r, g, b})
}

func TestRenderPreview(t *testing.T) {
	full := raster.Layer{Width: 10, Height: 10, Runs: []raster.Run{{Length: 100, Value: raster.Foreground}}}

	p, err := RenderPreview([]raster.Layer{full}, 20, 10)
	require.NoError(t, err)
	require.Equal(t, 20, p.Width)
	require.Equal(t, 10, p.Height)

	// The square source is centred in columns 5..14.
	assert.Equal(t, uint16(0), p.Pixels[0])
	assert.Equal(t, uint16(0), p.Pixels[5*20+19])
	assert.Equal(t, uint16(0xFFFF), p.Pixels[5*20+10])
}

func TestRenderPreviewErrors(t *testing.T) {
	_, err := RenderPreview(nil, 0, 10)
	assert.ErrorIs(t, err, ErrPreviewSize)

	p, err := RenderPreview(nil, 4, 4)
	require.NoError(t, err)
	assert.Equal(t, make([]uint16, 16), p.Pixels)

	layers := []raster.Layer{raster.EmptyLayer(4, 4), raster.EmptyLayer(4, 5)}
	_, err = RenderPreview(layers, 4, 4)
	assert.ErrorIs(t, err, raster.ErrLayerSize)
}

func TestPreviewImageRoundTrip(t *testing.T) {
	p, err := NewPreview(2, 1, []uint16{RGB565(255, 0, 0), RGB565(0, 0, 255)})
	require.NoError(t, err)

	back := FromImage(p.Image())
	assert.Equal(t, p.Pixels, back.Pixels)
}
