package postprocess

import (
	"fmt"

	"github.com/Faultbox/resin-slicer/pkg/cluster"
	"github.com/Faultbox/resin-slicer/pkg/raster"
)

// IslandDetection feeds each layer to a cluster.Detector and reports the
// islands it finds. It never modifies the image.
type IslandDetection struct {
	detector *cluster.Detector
	report   IslandReport
	found    int
}

// NewIslandDetection returns a pass reporting to report, which may be nil.
func NewIslandDetection(report IslandReport) *IslandDetection {
	return &IslandDetection{detector: cluster.NewDetector(), report: report}
}

func (d *IslandDetection) Name() string { return "island-detection" }

func (d *IslandDetection) sequential() {}

// Found returns the number of islands reported so far, summed over layers.
func (d *IslandDetection) Found() int { return d.found }

func (d *IslandDetection) Apply(index int, img *raster.Image) error {
	if want := d.detector.Layers(); index != want {
		return fmt.Errorf("%w: got layer %d, want %d", ErrOutOfOrder, index, want)
	}
	if _, err := d.detector.AddLayer(raster.FromImage(img)); err != nil {
		return err
	}
	islands := d.detector.Islands(index)
	d.found += len(islands)
	if d.report != nil && len(islands) > 0 {
		d.report(index, islands)
	}
	return nil
}
