package mesh

import "sort"

// Overhangs returns the vertices that start an overhang: the vertex belongs
// to a downward-facing face and every vertex connected to it sits strictly
// higher in world space. The result is sorted by vertex index.
func Overhangs(m *Mesh, h *HalfEdgeMesh) []uint32 {
	flagged := make(map[uint32]struct{})

	for fi := range m.Faces() {
		if m.FaceNormal(fi).Z >= 0 {
			continue
		}
		for k := 0; k < 3; k++ {
			ei := h.FaceEdge(fi) + k
			origin := h.Edge(ei).Origin
			if _, done := flagged[origin]; done {
				continue
			}
			if isLocalMinimum(m, origin, h.ConnectedVertices(ei)) {
				flagged[origin] = struct{}{}
			}
		}
	}

	out := make([]uint32, 0, len(flagged))
	for v := range flagged {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func isLocalMinimum(m *Mesh, origin uint32, neighbors []uint32) bool {
	if len(neighbors) == 0 {
		return false
	}
	z := m.WorldVertex(origin).Z
	for _, n := range neighbors {
		if m.WorldVertex(n).Z <= z {
			return false
		}
	}
	return true
}
