// Package modelio loads triangle meshes from STL and glTF binary files.
package modelio

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/Faultbox/resin-slicer/pkg/math"
	"github.com/Faultbox/resin-slicer/pkg/mesh"
)

// Loader errors.
var (
	ErrUnsupported = errors.New("unsupported model format")
	ErrMalformed   = errors.New("malformed model")
)

// Load reads a mesh, choosing the reader from the file extension.
func Load(path string) (*mesh.Mesh, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".stl":
		return LoadSTL(path)
	case ".glb", ".gltf":
		return LoadGLTF(path)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupported, ext)
	}
}

// welder merges bit-identical vertices so triangle soups become indexed
// meshes with shared edges.
type welder struct {
	index    map[[3]float32]uint32
	vertices []math.Vec3
	faces    [][3]uint32
}

func newWelder(triangles int) *welder {
	return &welder{
		index:    make(map[[3]float32]uint32, triangles/2+3),
		vertices: make([]math.Vec3, 0, triangles/2+3),
		faces:    make([][3]uint32, 0, triangles),
	}
}

func (w *welder) vertex(p [3]float32) uint32 {
	if i, ok := w.index[p]; ok {
		return i
	}
	i := uint32(len(w.vertices))
	w.index[p] = i
	w.vertices = append(w.vertices, math.Vec3{X: float64(p[0]), Y: float64(p[1]), Z: float64(p[2])})
	return i
}

// triangle adds a face unless two of its corners weld to the same vertex.
func (w *welder) triangle(a, b, c [3]float32) {
	ia, ib, ic := w.vertex(a), w.vertex(b), w.vertex(c)
	if ia == ib || ib == ic || ia == ic {
		return
	}
	w.faces = append(w.faces, [3]uint32{ia, ib, ic})
}

func (w *welder) mesh() (*mesh.Mesh, error) {
	return mesh.New(w.vertices, w.faces)
}
