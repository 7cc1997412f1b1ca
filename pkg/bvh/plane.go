package bvh

import (
	"github.com/Faultbox/resin-slicer/pkg/math"
	"github.com/Faultbox/resin-slicer/pkg/mesh"
)

// Segment is the intersection of one triangle with a plane.
type Segment struct {
	Face int
	A, B math.Vec3
}

// IntersectPlane returns one segment for every triangle crossing the plane
// through point with the given normal. A vertex exactly on the plane counts
// as being on the positive side, so each triangle yields zero or two points.
func (b *BVH) IntersectPlane(m *mesh.Mesh, point, normal math.Vec3) []Segment {
	if len(b.nodes) == 0 {
		return nil
	}

	var out []Segment
	stack := []int{0}
	for len(stack) > 0 {
		idx := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		node := &b.nodes[idx]

		if !straddles(node.Bounds, point, normal) {
			continue
		}
		if node.Kind == Internal {
			stack = append(stack, node.Right, node.Left)
			continue
		}
		if seg, ok := intersectTriangle(m, node.Face, point, normal); ok {
			out = append(out, seg)
		}
	}
	return out
}

// IntersectPlanePoints flattens IntersectPlane into a list of points, two per
// crossing triangle.
func (b *BVH) IntersectPlanePoints(m *mesh.Mesh, point, normal math.Vec3) []math.Vec3 {
	segs := b.IntersectPlane(m, point, normal)
	out := make([]math.Vec3, 0, len(segs)*2)
	for _, s := range segs {
		out = append(out, s.A, s.B)
	}
	return out
}

// straddles tests the box corners nearest and farthest along the normal.
func straddles(box math.Box, point, normal math.Vec3) bool {
	lo, hi := box.Min, box.Max
	if normal.X < 0 {
		lo.X, hi.X = hi.X, lo.X
	}
	if normal.Y < 0 {
		lo.Y, hi.Y = hi.Y, lo.Y
	}
	if normal.Z < 0 {
		lo.Z, hi.Z = hi.Z, lo.Z
	}
	return lo.Sub(point).Dot(normal) <= 0 && hi.Sub(point).Dot(normal) >= 0
}

func intersectTriangle(m *mesh.Mesh, face int, point, normal math.Vec3) (Segment, bool) {
	f := m.Face(face)
	var v [3]math.Vec3
	var d [3]float64
	for k := 0; k < 3; k++ {
		v[k] = m.WorldVertex(f[k])
		d[k] = v[k].Sub(point).Dot(normal)
	}

	var pts [2]math.Vec3
	n := 0
	for k := 0; k < 3; k++ {
		j := (k + 1) % 3
		if (d[k] >= 0) == (d[j] >= 0) {
			continue
		}
		// Interpolate from the lower vertex index so both triangles sharing
		// this edge produce the bit-identical point.
		a, bb := k, j
		if f[bb] < f[a] {
			a, bb = bb, a
		}
		pts[n] = edgePoint(v[a], v[bb], d[a], d[bb])
		n++
	}
	if n != 2 {
		return Segment{}, false
	}
	return Segment{Face: face, A: pts[0], B: pts[1]}, true
}

func edgePoint(va, vb math.Vec3, da, db float64) math.Vec3 {
	if da == 0 {
		return va
	}
	if db == 0 {
		return vb
	}
	t := da / (da - db)
	return va.Add(vb.Sub(va).Scale(t))
}
