package modelio

import (
	"encoding/binary"
	"fmt"
	gomath "math"

	"github.com/qmuntal/gltf"

	"github.com/Faultbox/resin-slicer/pkg/mesh"
)

// LoadGLTF loads every triangle primitive of a glTF or GLB file into one
// mesh. glTF is Y-up; vertices are rotated so +Y becomes +Z, the build
// direction. Node transforms are ignored.
func LoadGLTF(path string) (*mesh.Mesh, error) {
	doc, err := gltf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open gltf: %w", err)
	}
	return fromDocument(doc)
}

func fromDocument(doc *gltf.Document) (*mesh.Mesh, error) {
	w := newWelder(0)
	for _, m := range doc.Meshes {
		if err := addMesh(doc, m, w); err != nil {
			return nil, fmt.Errorf("mesh %q: %w", m.Name, err)
		}
	}
	return w.mesh()
}

func addMesh(doc *gltf.Document, m *gltf.Mesh, w *welder) error {
	for _, prim := range m.Primitives {
		if prim.Mode != gltf.PrimitiveTriangles && prim.Mode != 0 {
			continue
		}
		posIdx, ok := prim.Attributes[gltf.POSITION]
		if !ok {
			continue
		}

		positions, err := readPositions(doc, posIdx)
		if err != nil {
			return fmt.Errorf("read positions: %w", err)
		}
		for i, p := range positions {
			positions[i] = [3]float32{p[0], -p[2], p[1]}
		}

		var indices []uint32
		if prim.Indices != nil {
			if indices, err = readIndices(doc, *prim.Indices); err != nil {
				return fmt.Errorf("read indices: %w", err)
			}
		} else {
			indices = make([]uint32, len(positions))
			for i := range indices {
				indices[i] = uint32(i)
			}
		}

		for i := 0; i+2 < len(indices); i += 3 {
			a, b, c := indices[i], indices[i+1], indices[i+2]
			if int(max(a, b, c)) >= len(positions) {
				return fmt.Errorf("%w: index %d of %d positions", ErrMalformed, max(a, b, c), len(positions))
			}
			w.triangle(positions[a], positions[b], positions[c])
		}
	}
	return nil
}

// accessorBytes returns the buffer data behind an accessor together with
// the element stride.
func accessorBytes(doc *gltf.Document, idx int, elemSize int) ([]byte, int, error) {
	if idx < 0 || idx >= len(doc.Accessors) {
		return nil, 0, fmt.Errorf("%w: accessor %d", ErrMalformed, idx)
	}
	acc := doc.Accessors[idx]
	if acc.BufferView == nil {
		return nil, 0, fmt.Errorf("%w: accessor %d has no buffer view", ErrMalformed, idx)
	}
	view := doc.BufferViews[*acc.BufferView]
	buf := doc.Buffers[view.Buffer]
	if buf.Data == nil {
		return nil, 0, fmt.Errorf("%w: buffer %d has no data", ErrUnsupported, view.Buffer)
	}

	stride := view.ByteStride
	if stride == 0 {
		stride = elemSize
	}
	start := view.ByteOffset + acc.ByteOffset
	end := start
	if acc.Count > 0 {
		end = start + (acc.Count-1)*stride + elemSize
	}
	if end > len(buf.Data) || end > view.ByteOffset+view.ByteLength {
		return nil, 0, fmt.Errorf("%w: accessor %d overruns its buffer", ErrMalformed, idx)
	}
	return buf.Data[start:end], stride, nil
}

func readPositions(doc *gltf.Document, idx int) ([][3]float32, error) {
	if idx < 0 || idx >= len(doc.Accessors) {
		return nil, fmt.Errorf("%w: accessor %d", ErrMalformed, idx)
	}
	acc := doc.Accessors[idx]
	if acc.Type != gltf.AccessorVec3 || acc.ComponentType != gltf.ComponentFloat {
		return nil, fmt.Errorf("%w: positions are %v/%v", ErrUnsupported, acc.Type, acc.ComponentType)
	}
	data, stride, err := accessorBytes(doc, idx, 12)
	if err != nil {
		return nil, err
	}

	out := make([][3]float32, acc.Count)
	for i := range out {
		for j := 0; j < 3; j++ {
			bits := binary.LittleEndian.Uint32(data[i*stride+j*4:])
			out[i][j] = gomath.Float32frombits(bits)
		}
	}
	return out, nil
}

func readIndices(doc *gltf.Document, idx int) ([]uint32, error) {
	if idx < 0 || idx >= len(doc.Accessors) {
		return nil, fmt.Errorf("%w: accessor %d", ErrMalformed, idx)
	}
	acc := doc.Accessors[idx]
	if acc.Type != gltf.AccessorScalar {
		return nil, fmt.Errorf("%w: indices are %v", ErrUnsupported, acc.Type)
	}

	var size int
	switch acc.ComponentType {
	case gltf.ComponentUbyte:
		size = 1
	case gltf.ComponentUshort:
		size = 2
	case gltf.ComponentUint:
		size = 4
	default:
		return nil, fmt.Errorf("%w: index component %v", ErrUnsupported, acc.ComponentType)
	}
	data, stride, err := accessorBytes(doc, idx, size)
	if err != nil {
		return nil, err
	}

	out := make([]uint32, acc.Count)
	for i := range out {
		b := data[i*stride:]
		switch size {
		case 1:
			out[i] = uint32(b[0])
		case 2:
			out[i] = uint32(binary.LittleEndian.Uint16(b))
		default:
			out[i] = binary.LittleEndian.Uint32(b)
		}
	}
	return out, nil
}
