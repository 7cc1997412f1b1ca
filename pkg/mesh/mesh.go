// Package mesh provides triangle mesh storage with an affine transform and
// the half-edge topology built over it.
package mesh

import (
	"errors"
	"fmt"

	"github.com/Faultbox/resin-slicer/pkg/math"
)

// Mesh errors.
var (
	ErrFaceIndexOutOfRange = errors.New("face references a vertex out of range")
)

// Mesh is an indexed triangle mesh with a position, rotation and scale.
// Vertices are stored in model space; world-space positions are produced by
// Transform.
type Mesh struct {
	vertices []math.Vec3
	faces    [][3]uint32

	position math.Vec3
	rotation math.Vec3 // Euler angles in radians, applied X, Y, Z
	scale    math.Vec3

	matrix       math.Mat4
	normalMatrix math.Mat4
}

// New creates a mesh from raw vertex and face arrays.
// Every face index must be less than the vertex count.
func New(vertices []math.Vec3, faces [][3]uint32) (*Mesh, error) {
	for i, f := range faces {
		for _, idx := range f {
			if int(idx) >= len(vertices) {
				return nil, fmt.Errorf("%w: face %d index %d, %d vertices",
					ErrFaceIndexOutOfRange, i, idx, len(vertices))
			}
		}
	}

	m := &Mesh{
		vertices: vertices,
		faces:    faces,
		scale:    math.Vec3{X: 1, Y: 1, Z: 1},
	}
	m.updateMatrix()
	return m, nil
}

// Clone returns a copy that shares the (read-only) vertex and face arrays
// but owns its transform.
func (m *Mesh) Clone() *Mesh {
	c := *m
	return &c
}

// Vertices returns the model-space vertex positions.
func (m *Mesh) Vertices() []math.Vec3 { return m.vertices }

// Faces returns the triangle index triples.
func (m *Mesh) Faces() [][3]uint32 { return m.faces }

// Vertex returns model-space vertex i.
func (m *Mesh) Vertex(i uint32) math.Vec3 { return m.vertices[i] }

// Face returns face i.
func (m *Mesh) Face(i int) [3]uint32 { return m.faces[i] }

// VertexCount returns the number of vertices.
func (m *Mesh) VertexCount() int { return len(m.vertices) }

// FaceCount returns the number of triangles.
func (m *Mesh) FaceCount() int { return len(m.faces) }

// Position returns the translation component of the transform.
func (m *Mesh) Position() math.Vec3 { return m.position }

// Rotation returns the Euler rotation in radians.
func (m *Mesh) Rotation() math.Vec3 { return m.rotation }

// Scale returns the per-axis scale.
func (m *Mesh) Scale() math.Vec3 { return m.scale }

// SetPosition sets the translation and recomputes the transform.
func (m *Mesh) SetPosition(p math.Vec3) {
	m.position = p
	m.updateMatrix()
}

// SetRotation sets the Euler rotation in radians and recomputes the transform.
func (m *Mesh) SetRotation(r math.Vec3) {
	m.rotation = r
	m.updateMatrix()
}

// SetScale sets the per-axis scale and recomputes the transform.
func (m *Mesh) SetScale(s math.Vec3) {
	m.scale = s
	m.updateMatrix()
}

// Matrix returns the model-to-world matrix.
func (m *Mesh) Matrix() math.Mat4 { return m.matrix }

// NormalMatrix returns the inverse-transpose of the model matrix.
func (m *Mesh) NormalMatrix() math.Mat4 { return m.normalMatrix }

func (m *Mesh) updateMatrix() {
	rot := math.QuatFromEuler(m.rotation).ToMat4()
	m.matrix = math.Translate(m.position).Mul(rot).Mul(math.Scale(m.scale))
	m.normalMatrix = m.matrix.Inverse().Transpose()
}

// Transform maps a model-space point to world space.
func (m *Mesh) Transform(p math.Vec3) math.Vec3 {
	return m.matrix.TransformPoint(p)
}

// TransformNormal maps a model-space normal to a world-space unit normal.
func (m *Mesh) TransformNormal(n math.Vec3) math.Vec3 {
	return m.normalMatrix.TransformDirection(n).Normalize()
}

// WorldVertex returns vertex i in world space.
func (m *Mesh) WorldVertex(i uint32) math.Vec3 {
	return m.matrix.TransformPoint(m.vertices[i])
}

// WorldTriangle returns the three world-space corners of face i.
func (m *Mesh) WorldTriangle(i int) [3]math.Vec3 {
	f := m.faces[i]
	return [3]math.Vec3{
		m.WorldVertex(f[0]),
		m.WorldVertex(f[1]),
		m.WorldVertex(f[2]),
	}
}

// FaceNormal returns the world-space unit normal of face i, following the
// counter-clockwise winding of its vertices. Degenerate faces return zero.
func (m *Mesh) FaceNormal(i int) math.Vec3 {
	t := m.WorldTriangle(i)
	return t[1].Sub(t[0]).Cross(t[2].Sub(t[0])).Normalize()
}

// Bounds returns the world-space axis-aligned box over all vertices.
// An empty mesh returns the zero box.
func (m *Mesh) Bounds() math.Box {
	if len(m.vertices) == 0 {
		return math.Box{}
	}
	b := math.EmptyBox()
	for _, v := range m.vertices {
		b = b.Extend(m.matrix.TransformPoint(v))
	}
	return b
}

// Volume returns the enclosed world-space volume, assuming a closed mesh with
// outward-facing winding.
func (m *Mesh) Volume() float64 {
	var sum float64
	for i := range m.faces {
		t := m.WorldTriangle(i)
		sum += t[0].Dot(t[1].Cross(t[2]))
	}
	if sum < 0 {
		sum = -sum
	}
	return sum / 6
}

// IsManifold reports whether every directed edge appears at most once, so
// that each half-edge without a twin is a genuine boundary edge.
func (m *Mesh) IsManifold() bool {
	return BuildHalfEdges(m).IsManifold()
}
