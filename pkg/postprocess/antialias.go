package postprocess

import "github.com/Faultbox/resin-slicer/pkg/raster"

// AntiAlias softens edges with a box blur of the given radius. Pixels whose
// window is entirely solid or entirely empty keep their value.
type AntiAlias struct {
	Radius int
}

func (a *AntiAlias) Name() string { return "anti-alias" }

func (a *AntiAlias) Apply(_ int, img *raster.Image) error {
	r := a.Radius
	if r <= 0 {
		return nil
	}
	w, h := img.Width, img.Height

	// Summed-area tables of values and of non-background counts.
	stride := w + 1
	sum := make([]uint64, stride*(h+1))
	count := make([]uint32, stride*(h+1))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := img.Pix[y*w+x]
			var c uint32
			if v != raster.Background {
				c = 1
			}
			i := (y+1)*stride + x + 1
			sum[i] = uint64(v) + sum[i-1] + sum[i-stride] - sum[i-stride-1]
			count[i] = c + count[i-1] + count[i-stride] - count[i-stride-1]
		}
	}

	for y := 0; y < h; y++ {
		y0, y1 := max(y-r, 0), min(y+r+1, h)
		for x := 0; x < w; x++ {
			x0, x1 := max(x-r, 0), min(x+r+1, w)
			area := uint32((x1 - x0) * (y1 - y0))
			tl, tr, bl, br := y0*stride+x0, y0*stride+x1, y1*stride+x0, y1*stride+x1
			n := count[br] - count[tr] - count[bl] + count[tl]
			if n == 0 || n == area {
				continue
			}
			s := sum[br] - sum[tr] - sum[bl] + sum[tl]
			img.Pix[y*w+x] = uint8((s + uint64(area)/2) / uint64(area))
		}
	}
	return nil
}
