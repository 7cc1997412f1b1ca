// Package cluster groups adjacent foreground runs into connected clusters.
package cluster

import "sort"

// Registry maps keys to cluster ids and each id back to its members.
// Merging relabels members explicitly; there is no union-find forest.
type Registry[K comparable] struct {
	ids     map[K]int
	members map[int][]K
	next    int
}

// NewRegistry returns an empty registry.
func NewRegistry[K comparable]() *Registry[K] {
	return &Registry[K]{
		ids:     make(map[K]int),
		members: make(map[int][]K),
	}
}

// Cluster returns the cluster id of key, allocating a new id when the key
// has not been seen. Ids increase monotonically and are never reused.
func (r *Registry[K]) Cluster(key K) int {
	if id, ok := r.ids[key]; ok {
		return id
	}
	id := r.next
	r.next++
	r.ids[key] = id
	r.members[id] = []K{key}
	return id
}

// Lookup returns the cluster id of key without allocating.
func (r *Registry[K]) Lookup(key K) (int, bool) {
	id, ok := r.ids[key]
	return id, ok
}

// MarkAdjacency puts a and b in the same cluster. Every member of b's
// cluster is relabelled into a's cluster.
func (r *Registry[K]) MarkAdjacency(a, b K) {
	ida, idb := r.Cluster(a), r.Cluster(b)
	if ida == idb {
		return
	}
	moved := r.members[idb]
	for _, k := range moved {
		r.ids[k] = ida
	}
	r.members[ida] = append(r.members[ida], moved...)
	delete(r.members, idb)
}

// Members returns the keys of cluster id.
func (r *Registry[K]) Members(id int) []K {
	return r.members[id]
}

// Size returns the member count of cluster id.
func (r *Registry[K]) Size(id int) int {
	return len(r.members[id])
}

// Clusters returns the live cluster ids in ascending order.
func (r *Registry[K]) Clusters() []int {
	ids := make([]int, 0, len(r.members))
	for id := range r.members {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Len returns the number of live clusters.
func (r *Registry[K]) Len() int { return len(r.members) }
