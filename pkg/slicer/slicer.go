// Package slicer cuts a mesh into horizontal layers and rasterizes each
// cross-section into runs.
package slicer

import (
	"errors"
	"fmt"
	gomath "math"

	"github.com/Faultbox/resin-slicer/pkg/bvh"
	"github.com/Faultbox/resin-slicer/pkg/math"
	"github.com/Faultbox/resin-slicer/pkg/mesh"
	"github.com/Faultbox/resin-slicer/pkg/raster"
)

// ErrInvalidSettings is returned by New for unusable platform or layer settings.
var ErrInvalidSettings = errors.New("invalid slicer settings")

// Settings describes the printer platform and layer thickness.
type Settings struct {
	// PlatformResolution is the LCD size in pixels (x, y).
	PlatformResolution [2]uint32
	// PlatformSize is the build volume in millimetres.
	PlatformSize math.Vec3
	// LayerHeight is the layer thickness in millimetres.
	LayerHeight float64
}

// Validate checks that every dimension is positive.
func (s Settings) Validate() error {
	switch {
	case s.PlatformResolution[0] == 0 || s.PlatformResolution[1] == 0:
		return fmt.Errorf("%w: platform resolution %dx%d", ErrInvalidSettings,
			s.PlatformResolution[0], s.PlatformResolution[1])
	case s.PlatformSize.X <= 0 || s.PlatformSize.Y <= 0:
		return fmt.Errorf("%w: platform size %.3fx%.3f", ErrInvalidSettings, s.PlatformSize.X, s.PlatformSize.Y)
	case s.LayerHeight <= 0 || gomath.IsNaN(s.LayerHeight) || gomath.IsInf(s.LayerHeight, 0):
		return fmt.Errorf("%w: layer height %v", ErrInvalidSettings, s.LayerHeight)
	}
	return nil
}

// PixelSize returns the size of one pixel in millimetres along x and y.
func (s Settings) PixelSize() math.Vec2 {
	return math.Vec2{
		X: s.PlatformSize.X / float64(s.PlatformResolution[0]),
		Y: s.PlatformSize.Y / float64(s.PlatformResolution[1]),
	}
}

// Slicer slices one mesh snapshot. It only reads the mesh and index, so
// SliceLayer may be called from several goroutines at once.
type Slicer struct {
	settings Settings
	mesh     *mesh.Mesh
	index    *bvh.BVH
	bounds   math.Box
}

// New creates a slicer over m. When index is nil it is built from m.
func New(settings Settings, m *mesh.Mesh, index *bvh.BVH) (*Slicer, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	if index == nil {
		index = bvh.Build(m)
	}
	return &Slicer{
		settings: settings,
		mesh:     m,
		index:    index,
		bounds:   m.Bounds(),
	}, nil
}

// Settings returns the slicer settings.
func (s *Slicer) Settings() Settings { return s.settings }

// Bounds returns the world-space bounds of the mesh.
func (s *Slicer) Bounds() math.Box { return s.bounds }

// LayerCount returns ceil(z extent / layer height); 0 for an empty mesh.
func (s *Slicer) LayerCount() int {
	if s.mesh.FaceCount() == 0 {
		return 0
	}
	extent := s.bounds.Max.Z - s.bounds.Min.Z
	if extent <= 0 {
		return 0
	}
	return int(gomath.Ceil(extent / s.settings.LayerHeight))
}

// LayerZ returns the world z of the cutting plane for layer i, taken at the
// middle of the layer.
func (s *Slicer) LayerZ(i int) float64 {
	return s.bounds.Min.Z + (float64(i)+0.5)*s.settings.LayerHeight
}

// Contours returns the cross-section outlines of layer i in world millimetres.
func (s *Slicer) Contours(i int) [][]math.Vec2 {
	segs := s.index.IntersectPlane(s.mesh, math.Vec3{Z: s.LayerZ(i)}, math.Vec3{Z: 1})
	return buildContours(segs)
}

// SliceLayer rasterizes layer i.
func (s *Slicer) SliceLayer(i int) raster.Layer {
	w := int(s.settings.PlatformResolution[0])
	h := int(s.settings.PlatformResolution[1])
	if i < 0 || i >= s.LayerCount() {
		return raster.EmptyLayer(w, h)
	}
	return rasterize(s.Contours(i), s.settings)
}
