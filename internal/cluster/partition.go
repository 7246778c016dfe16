// Package cluster assigns every unit to a size-bounded,
// connectivity-favoring cluster. The algorithm is deterministic: buckets
// are processed in name order and every tie-break uses ascending unit id,
// so re-partitioning an unchanged graph reproduces the same assignment.
package cluster

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"unitmap/internal/graph"
	"unitmap/internal/store"
	"unitmap/internal/unit"
)

// DefaultSizeBound is the default maximum aggregate code size per cluster.
const DefaultSizeBound = 4096

// defaultBucket collects units whose names carry no dot-separated prefix.
const defaultBucket = "default"

// Report summarizes one partitioning run.
type Report struct {
	Clusters     int `json:"clusters"`
	UpdatedUnits int `json:"updated_units"`
}

// Partitioner groups stored units into clusters and persists the
// assignment.
type Partitioner struct {
	store  store.Store
	bound  int
	logger *zap.Logger
}

func New(s store.Store, sizeBound int, logger *zap.Logger) *Partitioner {
	if sizeBound <= 0 {
		sizeBound = DefaultSizeBound
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Partitioner{store: s, bound: sizeBound, logger: logger}
}

// Partition covers the whole stored corpus with clusters and writes every
// unit's cluster id back to the store.
func (p *Partitioner) Partition(ctx context.Context) ([]unit.Cluster, Report, error) {
	units, err := p.store.GetAllUnits(ctx)
	if err != nil {
		return nil, Report{}, fmt.Errorf("load units: %w", err)
	}
	edges, err := p.store.GetAllEdges(ctx)
	if err != nil {
		return nil, Report{}, fmt.Errorf("load edges: %w", err)
	}

	clusters := p.partition(units, edges)

	assignment := make(map[string]string)
	for _, c := range clusters {
		for _, id := range c.UnitIDs {
			assignment[id] = c.ID
		}
	}
	var updated []unit.Unit
	for _, u := range units {
		if want := assignment[u.ID]; want != u.ClusterID {
			u.ClusterID = want
			updated = append(updated, u)
		}
	}
	if len(updated) > 0 {
		if err := p.store.PutUnits(ctx, updated); err != nil {
			return nil, Report{}, fmt.Errorf("persist assignment: %w", err)
		}
	}

	rep := Report{Clusters: len(clusters), UpdatedUnits: len(updated)}
	p.logger.Info("partitioned corpus",
		zap.Int("clusters", rep.Clusters),
		zap.Int("updated_units", rep.UpdatedUnits))
	return clusters, rep, nil
}

func (p *Partitioner) partition(units []unit.Unit, edges []unit.Edge) []unit.Cluster {
	byID := make(map[string]*unit.Unit, len(units))
	for i := range units {
		byID[units[i].ID] = &units[i]
	}
	adj := graph.NewAdjacency(edges)
	for _, ns := range adj {
		sort.Strings(ns)
	}

	// initial grouping by syntactic name prefix
	buckets := make(map[string][]string)
	for _, u := range units {
		name := defaultBucket
		if i := strings.IndexByte(u.Name, '.'); i > 0 {
			name = u.Name[:i]
		}
		buckets[name] = append(buckets[name], u.ID)
	}
	bucketNames := make([]string, 0, len(buckets))
	for name := range buckets {
		bucketNames = append(bucketNames, name)
	}
	sort.Strings(bucketNames)

	var clusters []unit.Cluster
	for _, name := range bucketNames {
		ids := buckets[name]
		sort.Strings(ids)
		total := 0
		for _, id := range ids {
			total += byID[id].Size()
		}
		if total <= p.bound {
			clusters = append(clusters, unit.Cluster{
				ID:        name,
				Name:      name,
				UnitIDs:   ids,
				TotalSize: total,
				SizeBound: p.bound,
			})
			continue
		}
		clusters = append(clusters, p.split(name, ids, byID, adj)...)
	}
	return clusters
}

// split breaks an oversized bucket greedily: seed each cluster with the
// highest-degree remaining unit (degree restricted to the unassigned pool,
// ties by lowest id), then grow breadth-first along graph neighbors in both
// directions while the aggregate stays within bound. A unit bigger than the
// bound on its own still gets a singleton cluster; the bound is soft.
func (p *Partitioner) split(bucket string, ids []string, byID map[string]*unit.Unit, adj graph.Adjacency) []unit.Cluster {
	pool := make(map[string]bool, len(ids))
	for _, id := range ids {
		pool[id] = true
	}

	var clusters []unit.Cluster
	for len(pool) > 0 {
		seed := pickSeed(pool, adj)
		members := []string{seed}
		total := byID[seed].Size()
		delete(pool, seed)

		queue := poolNeighbors(seed, pool, adj)
		queued := make(map[string]bool)
		for _, n := range queue {
			queued[n] = true
		}
		for len(queue) > 0 && total < p.bound {
			n := queue[0]
			queue = queue[1:]
			if !pool[n] {
				continue
			}
			if total+byID[n].Size() > p.bound {
				continue
			}
			members = append(members, n)
			total += byID[n].Size()
			delete(pool, n)
			for _, nn := range poolNeighbors(n, pool, adj) {
				if !queued[nn] {
					queued[nn] = true
					queue = append(queue, nn)
				}
			}
		}

		sort.Strings(members)
		id := fmt.Sprintf("%s-%d", bucket, len(clusters)+1)
		clusters = append(clusters, unit.Cluster{
			ID:        id,
			Name:      id,
			UnitIDs:   members,
			TotalSize: total,
			SizeBound: p.bound,
		})
	}
	return clusters
}

// pickSeed returns the pool unit with the highest pool-restricted degree,
// lowest id on ties.
func pickSeed(pool map[string]bool, adj graph.Adjacency) string {
	best := ""
	bestDegree := -1
	for id := range pool {
		degree := 0
		for _, n := range adj[id] {
			if pool[n] {
				degree++
			}
		}
		if degree > bestDegree || (degree == bestDegree && id < best) {
			best = id
			bestDegree = degree
		}
	}
	return best
}

func poolNeighbors(id string, pool map[string]bool, adj graph.Adjacency) []string {
	var out []string
	for _, n := range adj[id] {
		if pool[n] {
			out = append(out, n)
		}
	}
	return out
}
