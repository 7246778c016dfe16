package graph

import (
	"testing"

	"github.com/stretchr/testify/require"

	"unitmap/internal/unit"
)

func mkUnit(id, name, source string, deps ...string) unit.Unit {
	return unit.Unit{ID: id, Name: name, OriginalSource: source, StaticDependencies: deps}
}

func TestIndexResolvePrefersSameSource(t *testing.T) {
	ix := NewIndex([]unit.Unit{
		mkUnit("u1", "save", "a.js"),
		mkUnit("u2", "save", "b.js"),
	})

	id, ok := ix.Resolve("b.js", "save")
	require.True(t, ok)
	require.Equal(t, "u2", id)

	// a foreign source falls back to the lowest id
	id, ok = ix.Resolve("c.js", "save")
	require.True(t, ok)
	require.Equal(t, "u1", id)

	_, ok = ix.Resolve("a.js", "missing")
	require.False(t, ok)
}

func TestIndexLowestIDWinsWithinSource(t *testing.T) {
	ix := NewIndex([]unit.Unit{
		mkUnit("u9", "dup", "a.js"),
		mkUnit("u1", "dup", "a.js"),
	})
	id, ok := ix.Resolve("a.js", "dup")
	require.True(t, ok)
	require.Equal(t, "u1", id)
}

func TestBuildEdges(t *testing.T) {
	units := []unit.Unit{
		mkUnit("u1", "main", "a.js", "helper", "unknown"),
		mkUnit("u2", "helper", "a.js"),
	}
	ix := NewIndex(units)

	edges := BuildEdges(units, ix)
	require.Len(t, edges, 1)
	require.Equal(t, "u1", edges[0].SourceID)
	require.Equal(t, "u2", edges[0].TargetID)
	require.Equal(t, unit.EdgeStatic, edges[0].Type)

	// deterministic ids so re-ingestion upserts instead of duplicating
	again := BuildEdges(units, ix)
	require.Equal(t, edges[0].ID, again[0].ID)
}

func TestBuildEdgesDeduplicates(t *testing.T) {
	units := []unit.Unit{
		mkUnit("u1", "main", "a.js", "helper", "helper"),
		mkUnit("u2", "helper", "a.js"),
	}
	edges := BuildEdges(units, NewIndex(units))
	require.Len(t, edges, 1)
}

func TestNewAdjacency(t *testing.T) {
	edges := []unit.Edge{
		{ID: "e1", SourceID: "u1", TargetID: "u2", Type: unit.EdgeStatic},
		{ID: "e2", SourceID: "u2", TargetID: "u1", Type: unit.EdgeStatic},
		{ID: "e3", SourceID: "u1", TargetID: "u1", Type: unit.EdgeStatic},
	}
	adj := NewAdjacency(edges)

	require.Equal(t, []string{"u2"}, adj["u1"])
	require.Equal(t, []string{"u1"}, adj["u2"])
}
