package slicer

import (
	gomath "math"

	"github.com/Faultbox/resin-slicer/pkg/bvh"
	"github.com/Faultbox/resin-slicer/pkg/math"
)

// Points closer than this (in mm) are treated as the same point.
const quantum = 1e-7

type pointKey struct{ x, y int64 }

func keyOf(p math.Vec2) pointKey {
	return pointKey{x: int64(gomath.Round(p.X / quantum)), y: int64(gomath.Round(p.Y / quantum))}
}

type segment struct{ a, b pointKey }

// buildContours deduplicates the plane-section points, drops degenerate and
// repeated segments, and chains the rest into polygons. A contour never
// repeats its first point; chains left open by a non-manifold section are
// closed implicitly when rasterized.
func buildContours(segs []bvh.Segment) [][]math.Vec2 {
	points := make(map[pointKey]math.Vec2)
	canonical := func(p math.Vec3) pointKey {
		k := keyOf(p.XY())
		if _, ok := points[k]; !ok {
			points[k] = p.XY()
		}
		return k
	}

	seen := make(map[segment]bool)
	var edges []segment
	for _, sg := range segs {
		a, b := canonical(sg.A), canonical(sg.B)
		if a == b {
			continue
		}
		key := segment{a, b}
		if keyLess(b, a) {
			key = segment{b, a}
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		edges = append(edges, segment{a, b})
	}

	adjacent := make(map[pointKey][]int)
	for i, e := range edges {
		adjacent[e.a] = append(adjacent[e.a], i)
		adjacent[e.b] = append(adjacent[e.b], i)
	}

	used := make([]bool, len(edges))
	var contours [][]math.Vec2
	for i, e := range edges {
		if used[i] {
			continue
		}
		used[i] = true
		chain := []pointKey{e.a, e.b}
		cur := e.b
		for cur != e.a {
			next := -1
			for _, j := range adjacent[cur] {
				if !used[j] {
					next = j
					break
				}
			}
			if next < 0 {
				break
			}
			used[next] = true
			if edges[next].a == cur {
				cur = edges[next].b
			} else {
				cur = edges[next].a
			}
			if cur != e.a {
				chain = append(chain, cur)
			}
		}

		contour := make([]math.Vec2, len(chain))
		for k, key := range chain {
			contour[k] = points[key]
		}
		contours = append(contours, contour)
	}
	return contours
}

func keyLess(a, b pointKey) bool {
	if a.x != b.x {
		return a.x < b.x
	}
	return a.y < b.y
}
