package pipeline

import (
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Faultbox/resin-slicer/internal/config"
	"github.com/Faultbox/resin-slicer/internal/logger"
	"github.com/Faultbox/resin-slicer/internal/parallel"
	"github.com/Faultbox/resin-slicer/pkg/cluster"
	"github.com/Faultbox/resin-slicer/pkg/formats"
	"github.com/Faultbox/resin-slicer/pkg/math"
	"github.com/Faultbox/resin-slicer/pkg/postprocess"
	"github.com/Faultbox/resin-slicer/pkg/raster"
	"github.com/Faultbox/resin-slicer/pkg/slicer"
)

// ErrNoSnapshot is returned when a job is created before any mesh was
// indexed.
var ErrNoSnapshot = errors.New("no indexed mesh")

// Options configure one slicing job.
type Options struct {
	Format      formats.Format
	Settings    formats.PrintSettings
	PostProcess postprocess.Options
	Previews    bool
	// Workers sizes the slicing pool; EncodeWorkers limits concurrent
	// layer encodes. Zero means one per CPU.
	Workers       int
	EncodeWorkers int
}

// OptionsFromConfig builds job options from a validated config.
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	f, err := formats.ParseFormat(cfg.Output.Format)
	if err != nil {
		return Options{}, err
	}
	return Options{
		Format:        f,
		Settings:      cfg.PrintSettings(),
		PostProcess:   cfg.PostProcessOptions(),
		Previews:      cfg.Output.Previews,
		Workers:       cfg.Slicing.Workers,
		EncodeWorkers: cfg.Slicing.EncodeWorkers,
	}, nil
}

// LayerIslands lists the islands found on one layer.
type LayerIslands struct {
	Layer   int
	Islands []cluster.Island
}

// Result is the output of a finished job.
type Result struct {
	JobID     string
	Format    formats.Format
	Data      []byte
	Layers    []raster.Layer
	Stats     formats.Stats
	Area      AreaStats
	Islands   []LayerIslands
	Overhangs int
	Manifold  bool
	// MeshVolumeML is the enclosed volume of the model itself, for
	// comparison with the sliced estimate.
	MeshVolumeML float64
	Elapsed      time.Duration
}

// Progress is a point-in-time view of a running job.
type Progress struct {
	Total   int
	Sliced  int
	Encoded int
}

// Fraction returns overall completion in [0, 1]; slicing and encoding
// weigh the same.
func (p Progress) Fraction() float64 {
	if p.Total == 0 {
		return 0
	}
	return float64(p.Sliced+p.Encoded) / float64(2*p.Total)
}

// Job slices one snapshot into one container. Progress may be read from
// any goroutine while Run executes.
type Job struct {
	id   string
	snap *Snapshot
	opts Options
	log  *zap.Logger

	total   atomic.Int64
	sliced  atomic.Uint64
	encoded atomic.Uint64
}

// NewJob prepares a job over snap.
func NewJob(snap *Snapshot, opts Options) (*Job, error) {
	if snap == nil {
		return nil, ErrNoSnapshot
	}
	if _, err := formats.NewEncoder(opts.Format); err != nil {
		return nil, err
	}
	id := uuid.NewString()
	return &Job{
		id:   id,
		snap: snap,
		opts: opts,
		log:  logger.Named("job", zap.String("job", id)),
	}, nil
}

// ID returns the job's unique id.
func (j *Job) ID() string { return j.id }

// Progress returns the number of layers sliced and encoded so far.
func (j *Job) Progress() Progress {
	return Progress{
		Total:   int(j.total.Load()),
		Sliced:  int(j.sliced.Load()),
		Encoded: int(j.encoded.Load()),
	}
}

func (j *Job) slicerSettings() slicer.Settings {
	s := j.opts.Settings
	return slicer.Settings{
		PlatformResolution: [2]uint32{s.ResolutionX, s.ResolutionY},
		PlatformSize:       math.Vec3{X: s.SizeX, Y: s.SizeY, Z: s.SizeZ},
		LayerHeight:        s.LayerHeight,
	}
}

// Run slices, post-processes, and encodes every layer, then assembles the
// container. Once started, all layer tasks run to completion.
func (j *Job) Run() (*Result, error) {
	start := time.Now()

	sl, err := slicer.New(j.slicerSettings(), j.snap.Mesh, j.snap.BVH)
	if err != nil {
		return nil, err
	}
	n := sl.LayerCount()
	j.total.Store(int64(n))

	if h := sl.Bounds().Max.Z; h > j.opts.Settings.SizeZ {
		j.log.Warn("model is taller than the build volume",
			zap.Float64("height", h), zap.Float64("size_z", j.opts.Settings.SizeZ))
	}
	j.log.Info("slicing",
		zap.Int("layers", n),
		zap.Int("faces", j.snap.Mesh.FaceCount()),
		zap.Uint64("version", j.snap.Version))

	pool := parallel.NewWorkerPool(j.opts.Workers)
	defer pool.Close()

	layers := make([]raster.Layer, n)
	if err := pool.Run(n, func(i int) error {
		layers[i] = sl.SliceLayer(i)
		j.sliced.Add(1)
		return nil
	}); err != nil {
		return nil, fmt.Errorf("slice: %w", err)
	}

	islands, err := j.postProcess(layers, pool)
	if err != nil {
		return nil, err
	}

	areas := LayerAreas(layers, j.opts.Settings)
	stats := Estimate(j.opts.Settings, areas)

	var previews formats.Previews
	if j.opts.Previews {
		if previews, err = renderPreviews(layers); err != nil {
			return nil, err
		}
	}

	data, err := j.encode(layers, previews, stats)
	if err != nil {
		return nil, err
	}

	res := &Result{
		JobID:     j.id,
		Format:    j.opts.Format,
		Data:      data,
		Layers:    layers,
		Stats:     stats,
		Area:      SummarizeAreas(areas),
		Islands:   islands,
		Overhangs: len(j.snap.Overhangs),
		Manifold:  j.snap.Manifold(),

		MeshVolumeML: j.snap.Mesh.Volume() / 1000,
		Elapsed:      time.Since(start),
	}
	j.log.Info("job finished",
		zap.Stringer("format", res.Format),
		zap.Int("bytes", len(data)),
		zap.Float64("volume_ml", stats.VolumeML),
		zap.Duration("print_time", stats.PrintTime),
		zap.Int("island_layers", len(islands)),
		zap.Duration("elapsed", res.Elapsed))
	return res, nil
}

// postProcess applies the configured passes in place and collects the
// islands reported along the way.
func (j *Job) postProcess(layers []raster.Layer, pool *parallel.WorkerPool) ([]LayerIslands, error) {
	var islands []LayerIslands
	report := func(layer int, found []cluster.Island) {
		if len(found) == 0 {
			return
		}
		j.log.Debug("islands", zap.Int("layer", layer), zap.Int("count", len(found)))
		islands = append(islands, LayerIslands{Layer: layer, Islands: found})
	}

	p := postprocess.FromOptions(j.opts.PostProcess, report)
	if p.Empty() {
		return nil, nil
	}
	store := raster.NewStore(layers)
	if err := p.Run(store, pool.Run); err != nil {
		return nil, fmt.Errorf("postprocess: %w", err)
	}
	copy(layers, store.Layers())
	return islands, nil
}

func (j *Job) encode(layers []raster.Layer, previews formats.Previews, stats formats.Stats) ([]byte, error) {
	enc, err := formats.NewEncoder(j.opts.Format)
	if err != nil {
		return nil, err
	}

	limit := j.opts.EncodeWorkers
	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0)
	}
	blocks := make([][]byte, len(layers))
	var g errgroup.Group
	g.SetLimit(limit)
	for i := range layers {
		i := i
		g.Go(func() error {
			b, err := enc.EncodeLayer(layers[i])
			if err != nil {
				return fmt.Errorf("encode layer %d: %w", i, err)
			}
			blocks[i] = b
			j.encoded.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	settings := j.opts.Settings
	if settings.Created.IsZero() {
		settings.Created = time.Now().UTC()
	}
	return enc.Assemble(settings, previews, blocks, stats)
}

func renderPreviews(layers []raster.Layer) (formats.Previews, error) {
	small, err := formats.RenderPreview(layers, formats.SmallPreviewSize, formats.SmallPreviewSize)
	if err != nil {
		return formats.Previews{}, err
	}
	large, err := formats.RenderPreview(layers, formats.LargePreviewSize, formats.LargePreviewSize)
	if err != nil {
		return formats.Previews{}, err
	}
	return formats.Previews{Small: small, Large: large}, nil
}
