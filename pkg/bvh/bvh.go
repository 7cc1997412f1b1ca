// Package bvh provides a bounding volume hierarchy over mesh faces for plane
// sectioning and ray casting.
package bvh

import (
	"sort"

	"github.com/Faultbox/resin-slicer/pkg/math"
	"github.com/Faultbox/resin-slicer/pkg/mesh"
)

// NodeKind tags a node as a leaf or an internal node.
type NodeKind uint8

// Node kinds.
const (
	Leaf NodeKind = iota
	Internal
)

// Node is one entry of the BVH arena. Leaves use Face; internal nodes use
// Left and Right, which are arena indices.
type Node struct {
	Kind   NodeKind
	Bounds math.Box
	Face   int
	Left   int
	Right  int
}

// BVH is a read-only hierarchy stored in a flat arena. Node 0 is the root.
// Bounds are captured in world space at build time, so the tree matches the
// mesh transform it was built with.
type BVH struct {
	nodes []Node
}

// Build partitions the faces of m by recursive median splits along the
// longest axis of each subset. N faces produce exactly 2N-1 nodes.
func Build(m *mesh.Mesh) *BVH {
	n := m.FaceCount()
	b := &BVH{}
	if n == 0 {
		return b
	}

	boxes := make([]math.Box, n)
	centroids := make([]math.Vec3, n)
	faces := make([]int, n)
	for i := range faces {
		tri := m.WorldTriangle(i)
		boxes[i] = math.EmptyBox().Extend(tri[0]).Extend(tri[1]).Extend(tri[2])
		centroids[i] = boxes[i].Center()
		faces[i] = i
	}

	b.nodes = make([]Node, 0, 2*n-1)
	b.build(faces, boxes, centroids)
	return b
}

func (b *BVH) build(faces []int, boxes []math.Box, centroids []math.Vec3) int {
	bounds := math.EmptyBox()
	for _, f := range faces {
		bounds = bounds.Union(boxes[f])
	}

	idx := len(b.nodes)
	if len(faces) == 1 {
		b.nodes = append(b.nodes, Node{Kind: Leaf, Bounds: bounds, Face: faces[0]})
		return idx
	}
	b.nodes = append(b.nodes, Node{Kind: Internal, Bounds: bounds})

	axis := bounds.LongestAxis()
	sort.SliceStable(faces, func(i, j int) bool {
		return centroids[faces[i]].Axis(axis) < centroids[faces[j]].Axis(axis)
	})

	mid := len(faces) / 2
	left := b.build(faces[:mid], boxes, centroids)
	right := b.build(faces[mid:], boxes, centroids)
	b.nodes[idx].Left = left
	b.nodes[idx].Right = right
	return idx
}

// NodeCount returns the number of nodes in the arena.
func (b *BVH) NodeCount() int { return len(b.nodes) }

// Nodes returns the node arena. Callers must not modify it.
func (b *BVH) Nodes() []Node { return b.nodes }

// Empty reports whether the hierarchy has no nodes.
func (b *BVH) Empty() bool { return len(b.nodes) == 0 }

// Bounds returns the root bounds, or the zero box for an empty hierarchy.
func (b *BVH) Bounds() math.Box {
	if len(b.nodes) == 0 {
		return math.Box{}
	}
	return b.nodes[0].Bounds
}
