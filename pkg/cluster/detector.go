package cluster

import (
	"errors"
	"fmt"
	"sort"

	"github.com/Faultbox/resin-slicer/pkg/raster"
)

// ErrLayerMismatch is returned when a layer's size differs from the previous one.
var ErrLayerMismatch = errors.New("layer size differs from previous layer")

// Island is a cluster with more than one member that touches a layer.
type Island struct {
	Cluster int
	// Members counts runs across all layers.
	Members int
	// Runs counts the cluster's runs on the queried layer.
	Runs int
	// Pixels is the cluster's area on the queried layer.
	Pixels uint64
}

// Detector clusters foreground runs within and across consecutive layers.
// Layers must be added in order; it is not safe for concurrent use. Only the
// newest layer's rows are kept, but the registry holds one entry per
// foreground run of every layer added.
type Detector struct {
	reg    *Registry[RunKey]
	last   []Row
	layers int
	width  int
	height int
}

// NewDetector returns an empty detector.
func NewDetector() *Detector {
	return &Detector{reg: NewRegistry[RunKey]()}
}

// Layers returns the number of layers added.
func (d *Detector) Layers() int { return d.layers }

// AddLayer links the layer's runs row to row and to the previous layer, and
// returns the new layer's index.
func (d *Detector) AddLayer(l raster.Layer) (int, error) {
	index := d.layers
	if index > 0 && (l.Width != d.width || l.Height != d.height) {
		return 0, fmt.Errorf("%w: layer %d is %dx%d, want %dx%d",
			ErrLayerMismatch, index, l.Width, l.Height, d.width, d.height)
	}
	d.width, d.height = l.Width, l.Height

	spans := l.Rows()
	rows := make([]Row, len(spans))
	for r, s := range spans {
		row := ForegroundRow(index, r, s)
		for i := range row.Spans {
			d.reg.Cluster(row.Key(i))
		}
		rowTouching(d.reg, row)
		if r > 0 {
			RowAdjacency(d.reg, rows[r-1], row)
		}
		if index > 0 {
			RowAdjacency(d.reg, d.last[r], row)
		}
		rows[r] = row
	}
	d.last = rows
	d.layers++
	return index, nil
}

// Islands returns the clusters touching layer that have more than one
// member, ordered by cluster id. Singleton clusters are ignored. Whether an
// island is adequately supported is not decided here. Only the newest layer
// can be queried; any other index returns nil.
func (d *Detector) Islands(layer int) []Island {
	if d.layers == 0 || layer != d.layers-1 {
		return nil
	}

	byID := make(map[int]*Island)
	for _, row := range d.last {
		for i, s := range row.Spans {
			id, ok := d.reg.Lookup(row.Key(i))
			if !ok {
				continue
			}
			isl, ok := byID[id]
			if !ok {
				isl = &Island{Cluster: id, Members: d.reg.Size(id)}
				byID[id] = isl
			}
			isl.Runs++
			isl.Pixels += uint64(s.End - s.Start)
		}
	}

	var out []Island
	for _, isl := range byID {
		if isl.Members > 1 {
			out = append(out, *isl)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Cluster < out[j].Cluster })
	return out
}
