package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"unitmap/internal/unit"
)

// Memory is an in-memory Store used by tests and short-lived pipelines.
type Memory struct {
	mu    sync.RWMutex
	units map[string]unit.Unit
	edges map[string]unit.Edge // keyed by source|target|type

	// FailPuts and FailGets make the corresponding calls fail; tests use
	// them to exercise the trace-log retention paths of the relationship
	// updater.
	FailPuts bool
	FailGets bool
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		units: make(map[string]unit.Unit),
		edges: make(map[string]unit.Edge),
	}
}

func edgeKey(e unit.Edge) string {
	return e.SourceID + "|" + e.TargetID + "|" + string(e.Type)
}

func (m *Memory) GetUnit(ctx context.Context, id string) (*unit.Unit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.FailGets {
		return nil, fmt.Errorf("get rejected")
	}
	u, ok := m.units[id]
	if !ok {
		return nil, unit.NotFoundf("unit %q", id)
	}
	return &u, nil
}

func (m *Memory) PutUnits(ctx context.Context, units []unit.Unit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailPuts {
		return fmt.Errorf("put rejected")
	}
	for _, u := range units {
		if u.ID == "" {
			return &unit.ValidationError{Field: "id", Reason: "empty"}
		}
	}
	for _, u := range units {
		m.units[u.ID] = u
	}
	return nil
}

func (m *Memory) GetAllUnits(ctx context.Context) ([]unit.Unit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]unit.Unit, 0, len(m.units))
	for _, u := range m.units {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) GetUnitsByCluster(ctx context.Context, clusterID string) ([]unit.Unit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []unit.Unit
	for _, u := range m.units {
		if u.ClusterID == clusterID {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) PutEdges(ctx context.Context, edges []unit.Edge) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range edges {
		m.edges[edgeKey(e)] = e
	}
	return nil
}

func (m *Memory) GetEdges(ctx context.Context, unitID string, dir unit.Direction) ([]unit.Edge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []unit.Edge
	for _, e := range m.edges {
		switch dir {
		case unit.DirectionOut:
			if e.SourceID == unitID {
				out = append(out, e)
			}
		case unit.DirectionIn:
			if e.TargetID == unitID {
				out = append(out, e)
			}
		default:
			if e.SourceID == unitID || e.TargetID == unitID {
				out = append(out, e)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) GetAllEdges(ctx context.Context) ([]unit.Edge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]unit.Edge, 0, len(m.edges))
	for _, e := range m.edges {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) FindUnitIDsByName(ctx context.Context, name string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var ids []string
	for _, u := range m.units {
		if u.Name == name {
			ids = append(ids, u.ID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *Memory) Close() error { return nil }
