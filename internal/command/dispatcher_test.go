package command

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"unitmap/internal/cluster"
	"unitmap/internal/extract"
	"unitmap/internal/ingest"
	"unitmap/internal/relation"
	"unitmap/internal/resolve"
	"unitmap/internal/store"
	"unitmap/internal/trace"
	"unitmap/internal/unit"
	"unitmap/internal/vm"
)

func newDispatcher(t *testing.T) (*Dispatcher, *store.Memory) {
	t.Helper()
	s := store.NewMemory()
	tr := trace.New()
	pool := extract.NewPool(1, 0, nil)
	core := Core{
		Store:        s,
		Resolver:     resolve.New(s, 3, nil),
		Executor:     vm.New(tr, nil),
		Partitioner:  cluster.New(s, 100, nil),
		Ingester:     ingest.New(s, pool, 2000, nil),
		Updater:      relation.New(tr, s, nil),
		ClusterBound: 100,
	}
	return NewDispatcher(core), s
}

func seedCorpus(t *testing.T, s store.Store) {
	t.Helper()
	ctx := context.Background()
	units := []unit.Unit{
		{
			ID: "u1", Name: "main", Kind: unit.KindFunction,
			Code:               "function main() { return helper() + 1; }",
			StaticDependencies: []string{"helper"},
			ClusterID:          "core",
			OriginalSource:     "app.js",
		},
		{
			ID: "u2", Name: "helper", Kind: unit.KindFunction,
			Code:           "function helper() { return 41; }",
			ClusterID:      "core",
			OriginalSource: "app.js",
		},
		{
			ID: "u3", Name: "onClick", Kind: unit.KindArrow,
			Code:           "const onClick = () => { main(); }",
			ClusterID:      "ui",
			OriginalSource: "ui.js",
		},
	}
	require.NoError(t, s.PutUnits(ctx, units))
	require.NoError(t, s.PutEdges(ctx, []unit.Edge{
		{ID: "e1", SourceID: "u1", TargetID: "u2", Type: unit.EdgeStatic},
	}))
}

func dispatch(t *testing.T, d *Dispatcher, cmd string, params map[string]any) Response {
	t.Helper()
	return d.Dispatch(context.Background(), Request{Command: cmd, Params: params})
}

func TestDispatchUnknownCommand(t *testing.T) {
	d, _ := newDispatcher(t)
	resp := dispatch(t, d, "bogus", nil)
	require.False(t, resp.Success)
	require.Contains(t, resp.Error, "unknown command")
}

func TestGetUnit(t *testing.T) {
	d, s := newDispatcher(t)
	seedCorpus(t, s)

	resp := dispatch(t, d, "get_unit", map[string]any{"id": "u1"})
	require.True(t, resp.Success)
	got, ok := resp.Payload.(*unit.Unit)
	require.True(t, ok)
	require.Equal(t, "main", got.Name)

	resp = dispatch(t, d, "get_unit", map[string]any{"id": "missing"})
	require.False(t, resp.Success)

	resp = dispatch(t, d, "get_unit", nil)
	require.False(t, resp.Success)
	require.Contains(t, resp.Error, "id")
}

func TestGetCluster(t *testing.T) {
	d, s := newDispatcher(t)
	seedCorpus(t, s)

	resp := dispatch(t, d, "get_cluster", map[string]any{"id": "core"})
	require.True(t, resp.Success)
	c, ok := resp.Payload.(unit.Cluster)
	require.True(t, ok)
	require.Equal(t, []string{"u1", "u2"}, c.UnitIDs)
	require.Equal(t, 100, c.SizeBound)
	require.Positive(t, c.TotalSize)

	resp = dispatch(t, d, "get_cluster", map[string]any{"id": "absent"})
	require.False(t, resp.Success)
}

func TestGetDependencies(t *testing.T) {
	d, s := newDispatcher(t)
	seedCorpus(t, s)

	resp := dispatch(t, d, "get_dependencies", map[string]any{"id": "u1", "direction": "out"})
	require.True(t, resp.Success)
	edges, ok := resp.Payload.([]unit.Edge)
	require.True(t, ok)
	require.Len(t, edges, 1)
	require.Equal(t, "u2", edges[0].TargetID)

	resp = dispatch(t, d, "get_dependencies", map[string]any{"id": "u1", "direction": "sideways"})
	require.False(t, resp.Success)

	resp = dispatch(t, d, "get_dependencies", map[string]any{"id": "missing"})
	require.False(t, resp.Success)
}

func TestFindUnitsByQuery(t *testing.T) {
	d, s := newDispatcher(t)
	seedCorpus(t, s)

	resp := dispatch(t, d, "find_units", map[string]any{"query": "HELPER"})
	require.True(t, resp.Success)
	units, ok := resp.Payload.([]unit.Unit)
	require.True(t, ok)
	// matches helper by name and main by code reference
	require.Len(t, units, 2)
}

func TestFindUnitsByFilter(t *testing.T) {
	d, s := newDispatcher(t)
	seedCorpus(t, s)

	tests := []struct {
		name   string
		filter map[string]any
		want   []string
	}{
		{"by id", map[string]any{"id": "u2"}, []string{"u2"}},
		{"by name", map[string]any{"nameContains": "click"}, []string{"u3"}},
		{"by code", map[string]any{"codeContains": "return 41"}, []string{"u2"}},
		{"by kind", map[string]any{"ofType": "arrow"}, []string{"u3"}},
		{"by cluster", map[string]any{"memberOfCluster": "core"}, []string{"u1", "u2"}},
		{"by source", map[string]any{"originalSource": "ui.js"}, []string{"u3"}},
		{"depends on", map[string]any{"dependsOn": "u2"}, []string{"u1"}},
		{"dependency of", map[string]any{"dependencyOf": "u1"}, []string{"u2"}},
		{"and semantics", map[string]any{"memberOfCluster": "core", "nameContains": "main"}, []string{"u1"}},
		{"no match", map[string]any{"nameContains": "zzz"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := dispatch(t, d, "find_units", map[string]any{"filter": tt.filter})
			require.True(t, resp.Success, resp.Error)
			units := resp.Payload.([]unit.Unit)
			var ids []string
			for _, u := range units {
				ids = append(ids, u.ID)
			}
			require.Equal(t, tt.want, ids)
		})
	}
}

func TestFindUnitsRejectsBadFilter(t *testing.T) {
	d, s := newDispatcher(t)
	seedCorpus(t, s)

	resp := dispatch(t, d, "find_units", map[string]any{"filter": map[string]any{"shoeSize": "42"}})
	require.False(t, resp.Success)
	require.Contains(t, resp.Error, "unrecognized key")

	resp = dispatch(t, d, "find_units", map[string]any{"filter": map[string]any{"hasTests": "yes"}})
	require.False(t, resp.Success)

	resp = dispatch(t, d, "find_units", nil)
	require.False(t, resp.Success)
}

func TestPreviewExecution(t *testing.T) {
	d, s := newDispatcher(t)
	seedCorpus(t, s)

	resp := dispatch(t, d, "preview_execution", map[string]any{"entry_point_id": "u1"})
	require.True(t, resp.Success)
	res, ok := resp.Payload.(PreviewResult)
	require.True(t, ok)
	require.Nil(t, res.ExecutionError)
	require.EqualValues(t, 42, res.Result)
	require.Equal(t, []string{"u2", "u1"}, res.Order)
}

func TestPreviewExecutionSharedNameAttribution(t *testing.T) {
	s := store.NewMemory()
	tr := trace.New()
	core := Core{
		Store:        s,
		Resolver:     resolve.New(s, 3, nil),
		Executor:     vm.New(tr, nil),
		Partitioner:  cluster.New(s, 100, nil),
		Ingester:     ingest.New(s, extract.NewPool(1, 0, nil), 2000, nil),
		Updater:      relation.New(tr, s, nil),
		ClusterBound: 100,
	}
	d := NewDispatcher(core)

	ctx := context.Background()
	require.NoError(t, s.PutUnits(ctx, []unit.Unit{
		{
			ID: "m1", Name: "main", Kind: unit.KindFunction,
			Code:               "function main() { return dup(); }",
			StaticDependencies: []string{"dup"},
			DynamicRelationships: []unit.Relationship{
				{TargetID: "b9", Frequency: 5, Context: "observed-call"},
			},
			OriginalSource: "app.js",
		},
		{
			ID: "a2", Name: "dup", Kind: unit.KindFunction,
			Code:           "function dup() { return 42; }",
			OriginalSource: "app.js",
		},
		{
			ID: "b9", Name: "dup", Kind: unit.KindFunction,
			Code:           "function dup() { return 42; }",
			OriginalSource: "app.js",
		},
	}))

	resp := dispatch(t, d, "preview_execution", map[string]any{"entry_point_id": "m1"})
	require.True(t, resp.Success)
	res := resp.Payload.(PreviewResult)
	require.EqualValues(t, 42, res.Result)

	var dupIDs []string
	for _, ev := range tr.Events() {
		if ev.Kind == unit.EventCallStart && ev.Name == "dup" {
			dupIDs = append(dupIDs, ev.UnitID)
		}
	}
	require.Equal(t, []string{"a2"}, dupIDs, "shared names attribute to the lowest unit id")
}

func TestPreviewExecutionCapturesRuntimeError(t *testing.T) {
	d, s := newDispatcher(t)
	require.NoError(t, s.PutUnits(context.Background(), []unit.Unit{{
		ID: "boom", Name: "boom", Kind: unit.KindFunction,
		Code:           `function boom() { throw new Error("nope"); }`,
		OriginalSource: "bad.js",
	}}))

	resp := dispatch(t, d, "preview_execution", map[string]any{"entry_point_id": "boom"})
	require.True(t, resp.Success, "runtime failures are part of the payload")
	res := resp.Payload.(PreviewResult)
	require.NotNil(t, res.ExecutionError)
	require.Contains(t, res.ExecutionError.Message, "nope")

	resp = dispatch(t, d, "preview_execution", map[string]any{"entry_point_id": "missing"})
	require.False(t, resp.Success)
}

func TestPartitionClusters(t *testing.T) {
	d, s := newDispatcher(t)
	seedCorpus(t, s)

	resp := dispatch(t, d, "partition_clusters", nil)
	require.True(t, resp.Success)
	payload := resp.Payload.(map[string]any)
	require.Contains(t, payload, "report")
	require.Contains(t, payload, "clusters")
}

func TestUpdateLifecycle(t *testing.T) {
	d, _ := newDispatcher(t)

	resp := dispatch(t, d, "start_update", map[string]any{"interval_ms": float64(3600000)})
	require.True(t, resp.Success)
	require.Equal(t, "started", resp.Payload)

	resp = dispatch(t, d, "stop_update", nil)
	require.True(t, resp.Success)
	require.Equal(t, "stopped", resp.Payload)
}
