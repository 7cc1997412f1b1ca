package postprocess

import "github.com/Faultbox/resin-slicer/pkg/raster"

// ElephantFoot dims the outer rim of the bottom layers so over-cured first
// layers do not flare out.
type ElephantFoot struct {
	// BottomLayers is the number of layers, from index 0, that are treated.
	BottomLayers int
	// Inset is the rim width in pixels.
	Inset int
	// Intensity scales rim pixels: value = value * Intensity / 255.
	Intensity uint8
}

func (e *ElephantFoot) Name() string { return "elephant-foot" }

// Apply dims every foreground pixel within Inset steps (4-neighbourhood) of
// the background.
func (e *ElephantFoot) Apply(index int, img *raster.Image) error {
	if index >= e.BottomLayers || e.Inset <= 0 {
		return nil
	}

	w, h := img.Width, img.Height
	solid := make([]bool, len(img.Pix))
	for i, v := range img.Pix {
		solid[i] = v != raster.Background
	}
	next := make([]bool, len(solid))

	for step := 0; step < e.Inset; step++ {
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				i := y*w + x
				next[i] = solid[i] &&
					x > 0 && solid[i-1] &&
					x < w-1 && solid[i+1] &&
					y > 0 && solid[i-w] &&
					y < h-1 && solid[i+w]
			}
		}
		solid, next = next, solid
	}

	for i, v := range img.Pix {
		if v != raster.Background && !solid[i] {
			img.Pix[i] = uint8(uint16(v) * uint16(e.Intensity) / 255)
		}
	}
	return nil
}
