// Package graph turns raw call-name references into static dependency
// edges. Names are not unique across a corpus, so resolution follows a
// documented deterministic policy: a unit defined in the same original
// source wins; otherwise the unit with the lowest id takes the reference.
package graph

import (
	"unitmap/internal/unit"
	"unitmap/util"
)

// Index resolves call names to unit ids.
type Index struct {
	bySourceName map[string]string
	byName       map[string]string
}

// NewIndex builds a resolution index over the given corpus.
func NewIndex(units []unit.Unit) *Index {
	ix := &Index{
		bySourceName: make(map[string]string, len(units)),
		byName:       make(map[string]string, len(units)),
	}
	for _, u := range units {
		sk := u.OriginalSource + "\x00" + u.Name
		if prev, ok := ix.bySourceName[sk]; !ok || u.ID < prev {
			ix.bySourceName[sk] = u.ID
		}
		if prev, ok := ix.byName[u.Name]; !ok || u.ID < prev {
			ix.byName[u.Name] = u.ID
		}
	}
	return ix
}

// Resolve maps a raw call name to a unit id, preferring a definition from
// the same source.
func (ix *Index) Resolve(source, name string) (string, bool) {
	if id, ok := ix.bySourceName[source+"\x00"+name]; ok {
		return id, true
	}
	id, ok := ix.byName[name]
	return id, ok
}

// BuildEdges emits one static edge per resolvable reference. Unresolved
// names are dropped; edge ids are deterministic so repeated ingestion
// upserts the same records.
func BuildEdges(units []unit.Unit, ix *Index) []unit.Edge {
	var edges []unit.Edge
	seen := make(map[string]bool)
	for _, u := range units {
		for _, ref := range u.StaticDependencies {
			targetID, ok := ix.Resolve(u.OriginalSource, ref)
			if !ok {
				continue
			}
			id := util.EdgeID(u.ID, targetID, string(unit.EdgeStatic))
			if seen[id] {
				continue
			}
			seen[id] = true
			edges = append(edges, unit.Edge{
				ID:       id,
				SourceID: u.ID,
				TargetID: targetID,
				Type:     unit.EdgeStatic,
			})
		}
	}
	return edges
}

// Adjacency is an undirected neighbor map over edges, used by the cluster
// partitioner for degree and breadth-first growth.
type Adjacency map[string][]string

// NewAdjacency builds a neighbor map covering both edge directions.
// Neighbor lists are deduplicated but unordered; callers needing
// determinism sort them.
func NewAdjacency(edges []unit.Edge) Adjacency {
	adj := make(Adjacency)
	seen := make(map[string]bool)
	add := func(a, b string) {
		if a == b {
			return
		}
		k := a + "\x00" + b
		if seen[k] {
			return
		}
		seen[k] = true
		adj[a] = append(adj[a], b)
	}
	for _, e := range edges {
		add(e.SourceID, e.TargetID)
		add(e.TargetID, e.SourceID)
	}
	return adj
}
