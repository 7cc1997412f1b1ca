package modelio

import (
	"bytes"
	"encoding/binary"
	gomath "math"
	"os"
	"path/filepath"
	"testing"

	"github.com/qmuntal/gltf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Faultbox/resin-slicer/pkg/math"
	"github.com/Faultbox/resin-slicer/pkg/mesh"
)

func f32(v math.Vec3) [3]float32 {
	return [3]float32{float32(v.X), float32(v.Y), float32(v.Z)}
}

// binarySTL writes m as an unindexed binary STL.
func binarySTL(m *mesh.Mesh) []byte {
	buf := new(bytes.Buffer)
	buf.Write(make([]byte, stlHeaderSize))
	binary.Write(buf, binary.LittleEndian, uint32(m.FaceCount()))
	for i := 0; i < m.FaceCount(); i++ {
		tri := m.WorldTriangle(i)
		binary.Write(buf, binary.LittleEndian, stlTriangle{
			Normal:   f32(m.FaceNormal(i)),
			Vertices: [3][3]float32{f32(tri[0]), f32(tri[1]), f32(tri[2])},
		})
	}
	return buf.Bytes()
}

func TestReadBinarySTL(t *testing.T) {
	box := mesh.NewBox(math.Vec3{X: -5, Y: -5, Z: 0}, math.Vec3{X: 5, Y: 5, Z: 10})

	m, err := ReadSTL(binarySTL(box))
	require.NoError(t, err)
	assert.Equal(t, 8, m.VertexCount())
	assert.Equal(t, 12, m.FaceCount())
	assert.True(t, m.IsManifold())
	assert.InDelta(t, 1000, m.Volume(), 1e-9)
}

func TestReadBinarySTLStartingWithSolid(t *testing.T) {
	data := binarySTL(mesh.NewBox(math.Vec3{}, math.Vec3{X: 1, Y: 1, Z: 1}))
	copy(data, "solid exported by a CAD tool")

	m, err := ReadSTL(data)
	require.NoError(t, err)
	assert.Equal(t, 12, m.FaceCount())
}

func TestReadASCIISTL(t *testing.T) {
	src := `solid tetra
facet normal 0 0 -1
  outer loop
    vertex 0 0 0
    vertex 0 1 0
    vertex 1 0 0
  endloop
endfacet
facet normal 0 -1 0
  outer loop
    vertex 0 0 0
    vertex 1 0 0
    vertex 0 0 1
  endloop
endfacet
facet normal -1 0 0
  outer loop
    vertex 0 0 0
    vertex 0 0 1
    vertex 0 1 0
  endloop
endfacet
facet normal 1 1 1
  outer loop
    vertex 1 0 0
    vertex 0 1 0
    vertex 0 0 1
  endloop
endfacet
endsolid tetra
`
	m, err := ReadSTL([]byte(src))
	require.NoError(t, err)
	assert.Equal(t, 4, m.VertexCount())
	assert.Equal(t, 4, m.FaceCount())
	assert.True(t, m.IsManifold())
	assert.InDelta(t, 1.0/6, m.Volume(), 1e-9)
}

func TestReadASCIISTLMalformed(t *testing.T) {
	_, err := ReadSTL([]byte("solid x\nouter loop\nvertex 0 0\nendloop\n"))
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = ReadSTL([]byte("solid x\nouter loop\nvertex 0 0 0\nendloop\n"))
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = ReadSTL([]byte("solid x\nvertex a b c\n"))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestReadSTLGarbage(t *testing.T) {
	_, err := ReadSTL([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestWelderDropsDegenerate(t *testing.T) {
	w := newWelder(2)
	w.triangle([3]float32{0, 0, 0}, [3]float32{1, 0, 0}, [3]float32{0, 0, 0})
	w.triangle([3]float32{0, 0, 0}, [3]float32{1, 0, 0}, [3]float32{0, 1, 0})

	m, err := w.mesh()
	require.NoError(t, err)
	assert.Equal(t, 1, m.FaceCount())
	assert.Equal(t, 3, m.VertexCount())
}

// boxDocument stores a box as indexed glTF with uint16 indices.
func boxDocument(min, max math.Vec3) *gltf.Document {
	box := mesh.NewBox(min, max)

	data := new(bytes.Buffer)
	for _, v := range box.Vertices() {
		for _, c := range f32(v) {
			binary.Write(data, binary.LittleEndian, gomath.Float32bits(c))
		}
	}
	posLen := data.Len()
	for _, f := range box.Faces() {
		for _, idx := range f {
			binary.Write(data, binary.LittleEndian, uint16(idx))
		}
	}

	return &gltf.Document{
		Buffers: []*gltf.Buffer{{ByteLength: data.Len(), Data: data.Bytes()}},
		BufferViews: []*gltf.BufferView{
			{Buffer: 0, ByteOffset: 0, ByteLength: posLen},
			{Buffer: 0, ByteOffset: posLen, ByteLength: data.Len() - posLen},
		},
		Accessors: []*gltf.Accessor{
			{BufferView: gltf.Index(0), ComponentType: gltf.ComponentFloat, Count: box.VertexCount(), Type: gltf.AccessorVec3},
			{BufferView: gltf.Index(1), ComponentType: gltf.ComponentUshort, Count: 3 * box.FaceCount(), Type: gltf.AccessorScalar},
		},
		Meshes: []*gltf.Mesh{{
			Name: "box",
			Primitives: []*gltf.Primitive{{
				Attributes: map[string]int{gltf.POSITION: 0},
				Indices:    gltf.Index(1),
				Mode:       gltf.PrimitiveTriangles,
			}},
		}},
	}
}

func TestFromDocumentYUp(t *testing.T) {
	doc := boxDocument(math.Vec3{}, math.Vec3{X: 1, Y: 2, Z: 3})

	m, err := fromDocument(doc)
	require.NoError(t, err)
	assert.Equal(t, 8, m.VertexCount())
	assert.Equal(t, 12, m.FaceCount())
	assert.True(t, m.IsManifold())
	assert.InDelta(t, 6, m.Volume(), 1e-9)

	// glTF +Y is the build direction.
	b := m.Bounds()
	assert.InDelta(t, 0, b.Min.Z, 1e-9)
	assert.InDelta(t, 2, b.Max.Z, 1e-9)
	assert.InDelta(t, -3, b.Min.Y, 1e-9)
	assert.InDelta(t, 0, b.Max.Y, 1e-9)
}

func TestFromDocumentBadIndex(t *testing.T) {
	doc := boxDocument(math.Vec3{}, math.Vec3{X: 1, Y: 1, Z: 1})
	// Point the last index past the vertex array.
	data := doc.Buffers[0].Data
	binary.LittleEndian.PutUint16(data[len(data)-2:], 99)

	_, err := fromDocument(doc)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestFromDocumentOverrun(t *testing.T) {
	doc := boxDocument(math.Vec3{}, math.Vec3{X: 1, Y: 1, Z: 1})
	doc.Accessors[0].Count = 100

	_, err := fromDocument(doc)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestLoadGLB(t *testing.T) {
	path := filepath.Join(t.TempDir(), "box.glb")
	require.NoError(t, gltf.SaveBinary(boxDocument(math.Vec3{}, math.Vec3{X: 4, Y: 4, Z: 4}), path))

	m, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 12, m.FaceCount())
	assert.InDelta(t, 64, m.Volume(), 1e-9)
}

func TestLoadSTLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "box.STL")
	require.NoError(t, os.WriteFile(path, binarySTL(mesh.NewBox(math.Vec3{}, math.Vec3{X: 2, Y: 2, Z: 2})), 0644))

	m, err := Load(path)
	require.NoError(t, err)
	assert.InDelta(t, 8, m.Volume(), 1e-9)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load("model.obj")
	assert.ErrorIs(t, err, ErrUnsupported)

	_, err = Load("/nonexistent/path.glb")
	assert.Error(t, err)

	_, err = Load("/nonexistent/path.stl")
	assert.Error(t, err)
}
