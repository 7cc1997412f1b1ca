package pipeline

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Faultbox/resin-slicer/pkg/formats"
	"github.com/Faultbox/resin-slicer/pkg/math"
	"github.com/Faultbox/resin-slicer/pkg/mesh"
	"github.com/Faultbox/resin-slicer/pkg/postprocess"
	"github.com/Faultbox/resin-slicer/pkg/raster"
)

// testBox is 4x4x1 mm centred on the platform.
func testBox() *mesh.Mesh {
	return mesh.NewBox(math.Vec3{X: -2, Y: -2}, math.Vec3{X: 2, Y: 2, Z: 1})
}

// testOptions describe a 10x10 px, 10x10 mm platform so one pixel is 1 mm².
func testOptions(f formats.Format) Options {
	return Options{
		Format: f,
		Settings: formats.PrintSettings{
			ResolutionX:        10,
			ResolutionY:        10,
			SizeX:              10,
			SizeY:              10,
			SizeZ:              20,
			LayerHeight:        0.25,
			ExposureTime:       2,
			BottomExposureTime: 10,
			BottomLayers:       1,
			MachineName:        "Test",
			ResinDensity:       1.25,
			ResinPrice:         40,
			Created:            time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC),
		},
		Workers:       2,
		EncodeWorkers: 2,
	}
}

func indexed(t *testing.T, m *mesh.Mesh) *Snapshot {
	t.Helper()
	ix := NewIndexer(nil)
	ix.Rebuild(m)
	snap := ix.Wait()
	require.NotNil(t, snap)
	return snap
}

func TestIndexer_Rebuild(t *testing.T) {
	ix := NewIndexer(nil)
	assert.Nil(t, ix.Current())

	v := ix.Rebuild(testBox())
	snap := ix.Wait()
	require.NotNil(t, snap)
	assert.Equal(t, uint64(1), v)
	assert.Equal(t, v, snap.Version)
	assert.Same(t, snap, ix.Current())
	assert.True(t, snap.Manifold())
	assert.False(t, snap.BVH.Empty())
	assert.Equal(t, 12, snap.Mesh.FaceCount())
}

func TestIndexer_NewestWins(t *testing.T) {
	ix := NewIndexer(nil)
	for i := 0; i < 8; i++ {
		ix.Rebuild(testBox())
	}
	snap := ix.Wait()
	require.NotNil(t, snap)
	assert.Equal(t, uint64(8), ix.Requested())
	assert.Equal(t, uint64(8), snap.Version)
}

func TestIndexer_SnapshotIsFrozen(t *testing.T) {
	m := testBox()
	ix := NewIndexer(nil)
	ix.Rebuild(m)
	m.SetPosition(math.Vec3{Z: 10})

	snap := ix.Wait()
	assert.Equal(t, 0.0, snap.Mesh.Bounds().Min.Z)
	assert.Equal(t, 0.0, snap.BVH.Bounds().Min.Z)
}

func TestLayerAreas(t *testing.T) {
	full := raster.Layer{Width: 10, Height: 10, Runs: raster.AppendRun(nil, 100, 0xFF)}
	half := raster.Layer{Width: 10, Height: 10}
	half.Runs = raster.AppendRun(half.Runs, 50, 0xFF)
	half.Runs = raster.AppendRun(half.Runs, 50, raster.Background)
	gray := raster.Layer{Width: 10, Height: 10, Runs: raster.AppendRun(nil, 100, 0x33)}

	settings := formats.PrintSettings{ResolutionX: 10, ResolutionY: 10, SizeX: 20, SizeY: 10}
	areas := LayerAreas([]raster.Layer{full, half, gray}, settings)
	require.Len(t, areas, 3)
	assert.InDelta(t, 200, areas[0], 1e-9)
	assert.InDelta(t, 100, areas[1], 1e-9)
	assert.InDelta(t, 40, areas[2], 1e-9)

	assert.Equal(t, []float64{0}, LayerAreas([]raster.Layer{full}, formats.PrintSettings{}))
}

func TestSummarizeAreas(t *testing.T) {
	s := SummarizeAreas([]float64{1, 3, 2})
	assert.InDelta(t, 6, s.Total, 1e-12)
	assert.InDelta(t, 2, s.Mean, 1e-12)
	assert.InDelta(t, 1, s.StdDev, 1e-12)
	assert.Equal(t, 3.0, s.Max)
	assert.Equal(t, 1, s.MaxLayer)

	assert.Equal(t, AreaStats{Total: 5, Mean: 5, Max: 5}, SummarizeAreas([]float64{5}))
	assert.Equal(t, AreaStats{MaxLayer: -1}, SummarizeAreas(nil))
}

func TestEstimate(t *testing.T) {
	settings := formats.PrintSettings{
		LayerHeight:           0.05,
		ExposureTime:          2,
		BottomExposureTime:    10,
		BottomLayers:          1,
		LightOffDelay:         1,
		BottomLightOffDelay:   1,
		LiftDistance:          6,
		LiftSpeed:             60,
		RetractDistance:       6,
		RetractSpeed:          120,
		BottomLiftDistance:    6,
		BottomLiftSpeed:       60,
		BottomRetractDistance: 6,
		BottomRetractSpeed:    120,
		ResinDensity:          1.2,
		ResinPrice:            50,
	}
	st := Estimate(settings, []float64{100, 100})

	assert.Equal(t, 2, st.LayerCount)
	assert.InDelta(t, 0.01, st.VolumeML, 1e-12)
	assert.InDelta(t, 0.012, st.WeightG, 1e-12)
	assert.InDelta(t, 0.0005, st.Price, 1e-12)
	// bottom: 10 + 1 + 6 + 3, normal: 2 + 1 + 6 + 3
	assert.Equal(t, 32*time.Second, st.PrintTime)
}

func TestMoveSeconds(t *testing.T) {
	assert.Equal(t, 6.0, moveSeconds(6, 60))
	assert.Equal(t, 0.0, moveSeconds(6, 0))
	assert.Equal(t, 0.0, moveSeconds(0, 60))
}

func TestNewJob_Errors(t *testing.T) {
	_, err := NewJob(nil, testOptions(formats.FormatGOO))
	assert.ErrorIs(t, err, ErrNoSnapshot)

	_, err = NewJob(indexed(t, testBox()), testOptions(formats.Format(42)))
	assert.ErrorIs(t, err, formats.ErrUnknownFormat)
}

func TestJob_Run(t *testing.T) {
	for _, f := range formats.Formats {
		t.Run(f.String(), func(t *testing.T) {
			job, err := NewJob(indexed(t, testBox()), testOptions(f))
			require.NoError(t, err)
			_, err = uuid.Parse(job.ID())
			require.NoError(t, err)
			assert.Equal(t, Progress{}, job.Progress())

			res, err := job.Run()
			require.NoError(t, err)
			assert.Equal(t, job.ID(), res.JobID)
			assert.Equal(t, f, res.Format)
			assert.True(t, res.Manifold)

			require.Len(t, res.Layers, 4)
			for i, l := range res.Layers {
				assert.Equal(t, uint64(16), l.ForegroundPixels(), "layer %d", i)
			}
			assert.Equal(t, Progress{Total: 4, Sliced: 4, Encoded: 4}, job.Progress())
			assert.Equal(t, 1.0, job.Progress().Fraction())

			assert.Equal(t, 4, res.Stats.LayerCount)
			assert.InDelta(t, 0.016, res.Stats.VolumeML, 1e-9)
			assert.InDelta(t, 0.02, res.Stats.WeightG, 1e-9)
			assert.InDelta(t, 64, res.Area.Total, 1e-9)
			assert.InDelta(t, 0.016, res.MeshVolumeML, 1e-9)

			doc, err := formats.Decode(res.Data)
			require.NoError(t, err)
			assert.Equal(t, f, doc.Format)
			assert.Equal(t, res.Layers, doc.Layers)
		})
	}
}

func TestJob_PostProcess(t *testing.T) {
	opts := testOptions(formats.FormatGOO)
	opts.PostProcess = postprocess.Options{DetectIslands: true}
	opts.Previews = true

	job, err := NewJob(indexed(t, testBox()), opts)
	require.NoError(t, err)
	res, err := job.Run()
	require.NoError(t, err)

	require.Len(t, res.Islands, 4)
	for i, li := range res.Islands {
		assert.Equal(t, i, li.Layer)
		require.Len(t, li.Islands, 1)
		assert.Equal(t, uint64(16), li.Islands[0].Pixels)
	}

	doc, err := formats.Decode(res.Data)
	require.NoError(t, err)
	require.NotNil(t, doc.Previews.Large)
	assert.NotEqual(t, formats.BlankPreview(formats.LargePreviewSize, formats.LargePreviewSize).Pixels, doc.Previews.Large.Pixels)
}

func TestJob_EmptyMesh(t *testing.T) {
	m, err := mesh.New(nil, nil)
	require.NoError(t, err)

	job, err := NewJob(indexed(t, m), testOptions(formats.FormatCTB))
	require.NoError(t, err)
	res, err := job.Run()
	require.NoError(t, err)
	assert.Empty(t, res.Layers)
	assert.Equal(t, 0.0, job.Progress().Fraction())
}

func TestProgress_Fraction(t *testing.T) {
	assert.Equal(t, 0.0, Progress{}.Fraction())
	assert.Equal(t, 0.75, Progress{Total: 4, Sliced: 4, Encoded: 2}.Fraction())
}
