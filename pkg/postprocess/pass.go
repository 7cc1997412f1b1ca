// Package postprocess applies an ordered set of image passes to sliced layers.
package postprocess

import (
	"errors"
	"fmt"

	"github.com/Faultbox/resin-slicer/pkg/cluster"
	"github.com/Faultbox/resin-slicer/pkg/raster"
)

// ErrOutOfOrder is returned when an in-order pass sees layers out of sequence.
var ErrOutOfOrder = errors.New("layer applied out of order")

// Pass transforms or inspects one layer image.
type Pass interface {
	Name() string
	Apply(index int, img *raster.Image) error
}

// sequential marks passes that must see layers one at a time in index order.
type sequential interface {
	sequential()
}

// Options selects and configures the passes. Passes always run in the
// order elephant foot, anti-alias, island detection.
type Options struct {
	ElephantFootLayers    int
	ElephantFootInset     int
	ElephantFootIntensity uint8
	AntiAliasRadius       int
	DetectIslands         bool
}

// IslandReport receives the islands found on a layer.
type IslandReport func(layer int, islands []cluster.Island)

// Executor runs task for indices [0, n), possibly concurrently, and returns
// the first error.
type Executor func(n int, task func(i int) error) error

// Serial runs tasks one after another on the calling goroutine.
func Serial(n int, task func(i int) error) error {
	for i := 0; i < n; i++ {
		if err := task(i); err != nil {
			return err
		}
	}
	return nil
}

// Pipeline is a fixed, ordered list of passes.
type Pipeline struct {
	passes []Pass
}

// New builds a pipeline from explicit passes.
func New(passes ...Pass) *Pipeline {
	return &Pipeline{passes: passes}
}

// FromOptions builds the pipeline selected by opts. report may be nil.
func FromOptions(opts Options, report IslandReport) *Pipeline {
	var passes []Pass
	if opts.ElephantFootLayers > 0 && opts.ElephantFootInset > 0 {
		passes = append(passes, &ElephantFoot{
			BottomLayers: opts.ElephantFootLayers,
			Inset:        opts.ElephantFootInset,
			Intensity:    opts.ElephantFootIntensity,
		})
	}
	if opts.AntiAliasRadius > 0 {
		passes = append(passes, &AntiAlias{Radius: opts.AntiAliasRadius})
	}
	if opts.DetectIslands {
		passes = append(passes, NewIslandDetection(report))
	}
	return New(passes...)
}

// Passes returns the passes in application order.
func (p *Pipeline) Passes() []Pass { return p.passes }

// Empty reports whether the pipeline has no passes.
func (p *Pipeline) Empty() bool { return len(p.passes) == 0 }

// Run applies every pass to every layer of store. Consecutive independent
// passes are handed to exec as one task per layer; sequential passes run in
// layer order on the calling goroutine. A nil exec runs serially.
func (p *Pipeline) Run(store *raster.Store, exec Executor) error {
	if exec == nil {
		exec = Serial
	}
	for start := 0; start < len(p.passes); {
		end := start + 1
		_, ordered := p.passes[start].(sequential)
		for end < len(p.passes) {
			if _, o := p.passes[end].(sequential); o != ordered {
				break
			}
			end++
		}
		stage := p.passes[start:end]
		task := func(i int) error {
			return store.With(i, func(img *raster.Image) error {
				for _, pass := range stage {
					if err := pass.Apply(i, img); err != nil {
						return fmt.Errorf("%s on layer %d: %w", pass.Name(), i, err)
					}
				}
				return nil
			})
		}
		var err error
		if ordered {
			err = Serial(store.Len(), task)
		} else {
			err = exec(store.Len(), task)
		}
		if err != nil {
			return err
		}
		start = end
	}
	return nil
}
