package mesh

// NoEdge marks a missing half-edge reference (an edge without a twin).
const NoEdge = -1

// HalfEdge is one directed edge of a triangle.
type HalfEdge struct {
	Origin      uint32
	Destination uint32
	Face        int
	Next        int
	Prev        int
	Twin        int // NoEdge on a boundary
}

type edgeKey struct {
	from, to uint32
}

// HalfEdgeMesh is the adjacency structure over a mesh snapshot. It is built
// once and is read-only afterwards.
type HalfEdgeMesh struct {
	edges      []HalfEdge
	index      map[edgeKey]int
	duplicates int
}

// BuildHalfEdges emits three half-edges per face, indexes them by their
// (origin, destination) pair and pairs each edge with its reversed twin.
func BuildHalfEdges(m *Mesh) *HalfEdgeMesh {
	faces := m.Faces()
	h := &HalfEdgeMesh{
		edges: make([]HalfEdge, 0, len(faces)*3),
		index: make(map[edgeKey]int, len(faces)*3),
	}

	for fi, f := range faces {
		base := len(h.edges)
		for k := 0; k < 3; k++ {
			e := HalfEdge{
				Origin:      f[k],
				Destination: f[(k+1)%3],
				Face:        fi,
				Next:        base + (k+1)%3,
				Prev:        base + (k+2)%3,
				Twin:        NoEdge,
			}
			key := edgeKey{e.Origin, e.Destination}
			if _, exists := h.index[key]; exists {
				h.duplicates++
			} else {
				h.index[key] = len(h.edges)
			}
			h.edges = append(h.edges, e)
		}
	}

	for i := range h.edges {
		e := &h.edges[i]
		if twin, ok := h.index[edgeKey{e.Destination, e.Origin}]; ok {
			e.Twin = twin
		}
	}

	return h
}

// EdgeCount returns the number of half-edges (three per face).
func (h *HalfEdgeMesh) EdgeCount() int { return len(h.edges) }

// Edge returns half-edge i.
func (h *HalfEdgeMesh) Edge(i int) HalfEdge { return h.edges[i] }

// FaceEdge returns the first half-edge of a face.
func (h *HalfEdgeMesh) FaceEdge(face int) int { return face * 3 }

// Find returns the half-edge running from one vertex to another.
func (h *HalfEdgeMesh) Find(from, to uint32) (int, bool) {
	i, ok := h.index[edgeKey{from, to}]
	return i, ok
}

// DuplicateEdges returns how many directed edges repeat an already indexed
// (origin, destination) pair.
func (h *HalfEdgeMesh) DuplicateEdges() int { return h.duplicates }

// BoundaryEdges returns the number of half-edges without a twin.
func (h *HalfEdgeMesh) BoundaryEdges() int {
	n := 0
	for _, e := range h.edges {
		if e.Twin == NoEdge {
			n++
		}
	}
	return n
}

// IsManifold reports whether no directed edge appears twice. Twin-less edges
// are then true boundaries of an open surface.
func (h *HalfEdgeMesh) IsManifold() bool {
	return h.duplicates == 0
}

// ConnectedVertices walks the fan around the origin vertex of start and
// returns the destination of every outgoing edge met, starting with start's
// own destination. The walk alternates crossing to the twin and following
// next, and stops at a boundary or when it returns to start.
func (h *HalfEdgeMesh) ConnectedVertices(start int) []uint32 {
	seen := make(map[int]struct{})
	var out []uint32

	e := start
	for {
		if _, ok := seen[e]; ok {
			break
		}
		seen[e] = struct{}{}
		out = append(out, h.edges[e].Destination)

		twin := h.edges[e].Twin
		if twin == NoEdge {
			break
		}
		e = h.edges[twin].Next
		if e == start {
			break
		}
	}
	return out
}
