package modelio

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/Faultbox/resin-slicer/pkg/mesh"
)

const (
	stlHeaderSize   = 80
	stlTriangleSize = 50
)

// stlTriangle is one binary STL record.
type stlTriangle struct {
	Normal    [3]float32
	Vertices  [3][3]float32
	Attribute uint16
}

// LoadSTL reads a binary or ASCII STL file.
func LoadSTL(path string) (*mesh.Mesh, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ReadSTL(data)
}

// ReadSTL decodes STL data. A file is binary when its size matches the
// triangle count in its header; binary files may also start with "solid".
func ReadSTL(data []byte) (*mesh.Mesh, error) {
	if len(data) >= stlHeaderSize+4 {
		n := binary.LittleEndian.Uint32(data[stlHeaderSize:])
		if uint64(len(data)) == stlHeaderSize+4+uint64(n)*stlTriangleSize {
			return readBinarySTL(data[stlHeaderSize+4:], int(n))
		}
	}
	if bytes.HasPrefix(bytes.TrimSpace(data), []byte("solid")) {
		return readASCIISTL(data)
	}
	return nil, fmt.Errorf("%w: stl of %d bytes is neither binary nor ascii", ErrMalformed, len(data))
}

func readBinarySTL(body []byte, n int) (*mesh.Mesh, error) {
	tris := make([]stlTriangle, n)
	if err := binary.Read(bytes.NewReader(body), binary.LittleEndian, tris); err != nil {
		return nil, fmt.Errorf("%w: stl triangles: %v", ErrMalformed, err)
	}

	w := newWelder(n)
	for _, t := range tris {
		w.triangle(t.Vertices[0], t.Vertices[1], t.Vertices[2])
	}
	return w.mesh()
}

func readASCIISTL(data []byte) (*mesh.Mesh, error) {
	w := newWelder(0)
	var corners [][3]float32

	sc := bufio.NewScanner(bytes.NewReader(data))
	line := 0
	for sc.Scan() {
		line++
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "vertex":
			if len(fields) != 4 {
				return nil, fmt.Errorf("%w: line %d: vertex needs 3 coordinates", ErrMalformed, line)
			}
			var p [3]float32
			for k := range p {
				v, err := strconv.ParseFloat(fields[k+1], 32)
				if err != nil {
					return nil, fmt.Errorf("%w: line %d: %v", ErrMalformed, line, err)
				}
				p[k] = float32(v)
			}
			corners = append(corners, p)
		case "endloop":
			if len(corners) != 3 {
				return nil, fmt.Errorf("%w: line %d: facet with %d vertices", ErrMalformed, line, len(corners))
			}
			w.triangle(corners[0], corners[1], corners[2])
			corners = corners[:0]
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return w.mesh()
}
