package slicer

import (
	gomath "math"
	"sort"

	"github.com/Faultbox/resin-slicer/pkg/math"
	"github.com/Faultbox/resin-slicer/pkg/raster"
)

// rasterize fills the contours with the even-odd rule, sampling each pixel
// at its centre. Row 0 is the +y edge of the platform and the platform
// centre maps to the image centre.
func rasterize(contours [][]math.Vec2, settings Settings) raster.Layer {
	w := int(settings.PlatformResolution[0])
	h := int(settings.PlatformResolution[1])
	px := settings.PixelSize()

	rowY := func(r int) float64 {
		return (float64(h)/2 - float64(r) - 0.5) * px.Y
	}

	crossings := make([][]float64, h)
	for _, c := range contours {
		n := len(c)
		if n < 2 {
			continue
		}
		for i := 0; i < n; i++ {
			p, q := c[i], c[(i+1)%n]
			if p.Y == q.Y {
				continue
			}
			lo, hi := gomath.Min(p.Y, q.Y), gomath.Max(p.Y, q.Y)
			first := int(gomath.Floor(float64(h)/2-0.5-hi/px.Y)) - 1
			last := int(gomath.Floor(float64(h)/2-0.5-lo/px.Y)) + 1
			if first < 0 {
				first = 0
			}
			if last > h-1 {
				last = h - 1
			}
			for r := first; r <= last; r++ {
				y := rowY(r)
				if (p.Y <= y) == (q.Y <= y) {
					continue
				}
				x := p.X + (y-p.Y)*(q.X-p.X)/(q.Y-p.Y)
				crossings[r] = append(crossings[r], x/px.X+float64(w)/2)
			}
		}
	}

	layer := raster.Layer{Width: w, Height: h}
	for r := 0; r < h; r++ {
		xs := crossings[r]
		sort.Float64s(xs)
		col := 0
		for k := 0; k+1 < len(xs); k += 2 {
			start := clampCol(gomath.Ceil(xs[k]-0.5), w)
			end := clampCol(gomath.Ceil(xs[k+1]-0.5), w)
			if start < col {
				start = col
			}
			if end <= start {
				continue
			}
			layer.Runs = raster.AppendRun(layer.Runs, uint64(start-col), raster.Background)
			layer.Runs = raster.AppendRun(layer.Runs, uint64(end-start), raster.Foreground)
			col = end
		}
		layer.Runs = raster.AppendRun(layer.Runs, uint64(w-col), raster.Background)
	}
	return layer
}

func clampCol(v float64, w int) int {
	if v < 0 {
		return 0
	}
	if v > float64(w) {
		return w
	}
	return int(v)
}
