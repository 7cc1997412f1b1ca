// Package pipeline runs slicing jobs: it keeps the spatial and topology
// indices of the current mesh up to date in the background, then slices,
// post-processes, and encodes the layers into a container.
package pipeline

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/Faultbox/resin-slicer/internal/logger"
	"github.com/Faultbox/resin-slicer/pkg/bvh"
	"github.com/Faultbox/resin-slicer/pkg/mesh"
)

// Snapshot is an immutable view of one mesh revision together with its
// indices. Readers may share it freely across goroutines.
type Snapshot struct {
	Version   uint64
	Mesh      *mesh.Mesh
	BVH       *bvh.BVH
	HalfEdges *mesh.HalfEdgeMesh
	// Overhangs lists the vertices that start an unsupported overhang.
	Overhangs []uint32
}

// Manifold reports whether no directed edge of the snapshot's mesh appears
// twice.
func (s *Snapshot) Manifold() bool {
	return s.HalfEdges.IsManifold()
}

// Indexer rebuilds indices after every geometry change and publishes the
// newest result.
type Indexer struct {
	current   atomic.Pointer[Snapshot]
	requested atomic.Uint64
	pending   sync.WaitGroup
	log       *zap.Logger
}

// NewIndexer creates an indexer with no snapshot. A nil log uses the
// global logger.
func NewIndexer(log *zap.Logger) *Indexer {
	if log == nil {
		log = logger.Named("indexer")
	}
	return &Indexer{log: log}
}

// Rebuild starts indexing a copy of m on a background goroutine and
// returns the version the result will carry. Later edits to m do not
// affect the snapshot. A build that finishes after a newer one has been
// published is dropped.
func (ix *Indexer) Rebuild(m *mesh.Mesh) uint64 {
	version := ix.requested.Add(1)
	frozen := m.Clone()

	ix.pending.Add(1)
	go func() {
		defer ix.pending.Done()
		start := time.Now()
		snap := buildSnapshot(frozen, version)
		if !ix.publish(snap) {
			ix.log.Debug("discarded stale index", zap.Uint64("version", version))
			return
		}
		ix.log.Debug("index published",
			zap.Uint64("version", version),
			zap.Int("faces", frozen.FaceCount()),
			zap.Int("nodes", snap.BVH.NodeCount()),
			zap.Int("overhangs", len(snap.Overhangs)),
			zap.Duration("elapsed", time.Since(start)))
	}()
	return version
}

func (ix *Indexer) publish(snap *Snapshot) bool {
	for {
		cur := ix.current.Load()
		if cur != nil && cur.Version >= snap.Version {
			return false
		}
		if ix.current.CompareAndSwap(cur, snap) {
			return true
		}
	}
}

// Current returns the newest published snapshot, or nil before the first
// build completes.
func (ix *Indexer) Current() *Snapshot {
	return ix.current.Load()
}

// Wait blocks until every rebuild started before the call has finished
// and returns the newest snapshot.
func (ix *Indexer) Wait() *Snapshot {
	ix.pending.Wait()
	return ix.current.Load()
}

// Requested returns the version of the most recent Rebuild call.
func (ix *Indexer) Requested() uint64 {
	return ix.requested.Load()
}

func buildSnapshot(m *mesh.Mesh, version uint64) *Snapshot {
	he := mesh.BuildHalfEdges(m)
	return &Snapshot{
		Version:   version,
		Mesh:      m,
		BVH:       bvh.Build(m),
		HalfEdges: he,
		Overhangs: mesh.Overhangs(m, he),
	}
}
