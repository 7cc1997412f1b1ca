package pipeline

import (
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/Faultbox/resin-slicer/pkg/formats"
	"github.com/Faultbox/resin-slicer/pkg/raster"
)

// AreaStats summarises the cured area of each layer in mm².
type AreaStats struct {
	Total    float64
	Mean     float64
	StdDev   float64
	Max      float64
	MaxLayer int
}

// coverage returns the lit area of l in pixels, counting gray pixels by
// their intensity.
func coverage(l raster.Layer) float64 {
	var lit uint64
	for _, r := range l.Runs {
		lit += r.Length * uint64(r.Value)
	}
	return float64(lit) / 0xFF
}

// LayerAreas returns the cured area of every layer in mm².
func LayerAreas(layers []raster.Layer, settings formats.PrintSettings) []float64 {
	areas := make([]float64, len(layers))
	if settings.ResolutionX == 0 || settings.ResolutionY == 0 {
		return areas
	}
	pixel := settings.SizeX / float64(settings.ResolutionX) * settings.SizeY / float64(settings.ResolutionY)
	for i, l := range layers {
		areas[i] = coverage(l) * pixel
	}
	return areas
}

// SummarizeAreas computes totals and spread over per-layer areas.
func SummarizeAreas(areas []float64) AreaStats {
	if len(areas) == 0 {
		return AreaStats{MaxLayer: -1}
	}
	s := AreaStats{Total: floats.Sum(areas)}
	s.MaxLayer = floats.MaxIdx(areas)
	s.Max = areas[s.MaxLayer]
	if len(areas) == 1 {
		s.Mean = areas[0]
		return s
	}
	s.Mean, s.StdDev = stat.MeanStdDev(areas, nil)
	return s
}

// Estimate derives resin use, cost, and print time from the per-layer
// areas.
func Estimate(settings formats.PrintSettings, areas []float64) formats.Stats {
	volume := floats.Sum(areas) * settings.LayerHeight / 1000
	st := formats.Stats{
		LayerCount: len(areas),
		VolumeML:   volume,
		WeightG:    volume * settings.ResinDensity,
		Price:      volume / 1000 * settings.ResinPrice,
	}

	seconds := make([]float64, len(areas))
	for i := range areas {
		seconds[i] = layerSeconds(settings, i)
	}
	st.PrintTime = time.Duration(floats.Sum(seconds) * float64(time.Second)).Round(time.Second)
	return st
}

// layerSeconds is the exposure, light-off delay, and peel move of layer i.
func layerSeconds(s formats.PrintSettings, i int) float64 {
	t := s.LayerExposure(i)
	if s.IsBottom(i) {
		return t + s.BottomLightOffDelay +
			moveSeconds(s.BottomLiftDistance, s.BottomLiftSpeed) +
			moveSeconds(s.BottomRetractDistance, s.BottomRetractSpeed)
	}
	return t + s.LightOffDelay +
		moveSeconds(s.LiftDistance, s.LiftSpeed) +
		moveSeconds(s.RetractDistance, s.RetractSpeed)
}

// moveSeconds converts a distance in mm at a speed in mm/min to seconds.
func moveSeconds(distance, speed float64) float64 {
	if distance <= 0 || speed <= 0 {
		return 0
	}
	return distance / speed * 60
}
