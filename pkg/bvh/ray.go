package bvh

import (
	gomath "math"

	"github.com/Faultbox/resin-slicer/pkg/math"
	"github.com/Faultbox/resin-slicer/pkg/mesh"
)

const rayEpsilon = 1e-9

// Hit is the nearest intersection of a ray with the mesh.
type Hit struct {
	Face     int
	Distance float64 // ray parameter; world distance for a unit direction
	Point    math.Vec3
}

// IntersectRay returns the hit with the smallest positive distance along the
// ray, pruning subtrees whose bounds fail the slab test.
func (b *BVH) IntersectRay(m *mesh.Mesh, origin, dir math.Vec3) (Hit, bool) {
	if len(b.nodes) == 0 {
		return Hit{}, false
	}

	best := Hit{Distance: gomath.Inf(1)}
	found := false

	stack := []int{0}
	for len(stack) > 0 {
		idx := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		node := &b.nodes[idx]

		if !slab(node.Bounds, origin, dir, best.Distance) {
			continue
		}
		if node.Kind == Internal {
			stack = append(stack, node.Right, node.Left)
			continue
		}

		tri := m.WorldTriangle(node.Face)
		if t, ok := rayTriangle(origin, dir, tri); ok && t < best.Distance {
			best = Hit{Face: node.Face, Distance: t, Point: origin.Add(dir.Scale(t))}
			found = true
		}
	}
	return best, found
}

// slab intersects the ray with the box one axis at a time, giving up as soon
// as the running [tMin, tMax] interval is empty.
func slab(box math.Box, origin, dir math.Vec3, limit float64) bool {
	tMin, tMax := 0.0, limit
	for axis := 0; axis < 3; axis++ {
		o, d := origin.Axis(axis), dir.Axis(axis)
		lo, hi := box.Min.Axis(axis), box.Max.Axis(axis)
		if d == 0 {
			if o < lo || o > hi {
				return false
			}
			continue
		}
		t1, t2 := (lo-o)/d, (hi-o)/d
		if t1 > t2 {
			t1, t2 = t2, t1
		}
		tMin = gomath.Max(tMin, t1)
		tMax = gomath.Min(tMax, t2)
		if tMax < tMin {
			return false
		}
	}
	return true
}

// rayTriangle is the Möller-Trumbore test.
func rayTriangle(origin, dir math.Vec3, tri [3]math.Vec3) (float64, bool) {
	e1 := tri[1].Sub(tri[0])
	e2 := tri[2].Sub(tri[0])
	p := dir.Cross(e2)
	det := e1.Dot(p)
	if gomath.Abs(det) < rayEpsilon {
		return 0, false
	}
	inv := 1 / det

	s := origin.Sub(tri[0])
	u := s.Dot(p) * inv
	if u < 0 || u > 1 {
		return 0, false
	}
	q := s.Cross(e1)
	v := dir.Dot(q) * inv
	if v < 0 || u+v > 1 {
		return 0, false
	}
	t := e2.Dot(q) * inv
	if t <= rayEpsilon {
		return 0, false
	}
	return t, true
}
