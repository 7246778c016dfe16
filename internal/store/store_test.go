package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"unitmap/internal/unit"
)

func openStores(t *testing.T) map[string]Store {
	t.Helper()
	sq, err := OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sq.Close() })
	return map[string]Store{
		"memory": NewMemory(),
		"sqlite": sq,
	}
}

func sampleUnit(id, name, clusterID string) unit.Unit {
	return unit.Unit{
		ID:                 id,
		Name:               name,
		Kind:               unit.KindFunction,
		Code:               "function " + name + "() {}",
		LineStart:          1,
		LineEnd:            1,
		StaticDependencies: []string{"dep"},
		ClusterID:          clusterID,
		OriginalSource:     "sample.js",
	}
}

func TestStoreUnitRoundTrip(t *testing.T) {
	for impl, s := range openStores(t) {
		t.Run(impl, func(t *testing.T) {
			ctx := context.Background()
			in := sampleUnit("u1", "alpha", "core-0")
			in.DynamicRelationships = []unit.Relationship{{
				TargetID:    "u2",
				Frequency:   4,
				Context:     "observed-call",
				LastUpdated: time.Now().UTC().Truncate(time.Second),
			}}
			in.Metadata.Description = "entry point"

			require.NoError(t, s.PutUnits(ctx, []unit.Unit{in}))

			got, err := s.GetUnit(ctx, "u1")
			require.NoError(t, err)
			require.Equal(t, in.Name, got.Name)
			require.Equal(t, in.Code, got.Code)
			require.Equal(t, in.StaticDependencies, got.StaticDependencies)
			require.Len(t, got.DynamicRelationships, 1)
			require.Equal(t, 4, got.DynamicRelationships[0].Frequency)
			require.Equal(t, "entry point", got.Metadata.Description)
		})
	}
}

func TestStoreGetUnitNotFound(t *testing.T) {
	for impl, s := range openStores(t) {
		t.Run(impl, func(t *testing.T) {
			_, err := s.GetUnit(context.Background(), "nope")
			require.ErrorIs(t, err, unit.ErrNotFound)
		})
	}
}

func TestStorePutUnitsUpserts(t *testing.T) {
	for impl, s := range openStores(t) {
		t.Run(impl, func(t *testing.T) {
			ctx := context.Background()
			u := sampleUnit("u1", "alpha", "")
			require.NoError(t, s.PutUnits(ctx, []unit.Unit{u}))

			u.Code = "function alpha() { changed(); }"
			require.NoError(t, s.PutUnits(ctx, []unit.Unit{u}))

			all, err := s.GetAllUnits(ctx)
			require.NoError(t, err)
			require.Len(t, all, 1)
			require.Equal(t, u.Code, all[0].Code)
		})
	}
}

func TestStorePutUnitsRejectsEmptyID(t *testing.T) {
	for impl, s := range openStores(t) {
		t.Run(impl, func(t *testing.T) {
			err := s.PutUnits(context.Background(), []unit.Unit{{Name: "anon"}})
			require.Error(t, err)
		})
	}
}

func TestStorePutUnitsBatchAtomic(t *testing.T) {
	for impl, s := range openStores(t) {
		t.Run(impl, func(t *testing.T) {
			ctx := context.Background()
			err := s.PutUnits(ctx, []unit.Unit{
				sampleUnit("u1", "valid", ""),
				{Name: "anon"}, // empty id rejects the whole batch
			})
			require.Error(t, err)

			_, err = s.GetUnit(ctx, "u1")
			require.ErrorIs(t, err, unit.ErrNotFound, "valid unit must not survive a rejected batch")

			all, err := s.GetAllUnits(ctx)
			require.NoError(t, err)
			require.Empty(t, all)
		})
	}
}

func TestStoreClusterLookup(t *testing.T) {
	for impl, s := range openStores(t) {
		t.Run(impl, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.PutUnits(ctx, []unit.Unit{
				sampleUnit("u1", "alpha", "core-0"),
				sampleUnit("u2", "beta", "core-0"),
				sampleUnit("u3", "gamma", "io-0"),
			}))

			got, err := s.GetUnitsByCluster(ctx, "core-0")
			require.NoError(t, err)
			require.Len(t, got, 2)
			require.Equal(t, "u1", got[0].ID)
			require.Equal(t, "u2", got[1].ID)

			empty, err := s.GetUnitsByCluster(ctx, "absent")
			require.NoError(t, err)
			require.Empty(t, empty)
		})
	}
}

func TestStoreEdgesIdempotent(t *testing.T) {
	for impl, s := range openStores(t) {
		t.Run(impl, func(t *testing.T) {
			ctx := context.Background()
			e := unit.Edge{ID: "e1", SourceID: "u1", TargetID: "u2", Type: unit.EdgeStatic}

			require.NoError(t, s.PutEdges(ctx, []unit.Edge{e}))
			require.NoError(t, s.PutEdges(ctx, []unit.Edge{e}))

			all, err := s.GetAllEdges(ctx)
			require.NoError(t, err)
			require.Len(t, all, 1)
		})
	}
}

func TestStoreEdgeDirections(t *testing.T) {
	for impl, s := range openStores(t) {
		t.Run(impl, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.PutEdges(ctx, []unit.Edge{
				{ID: "e1", SourceID: "u1", TargetID: "u2", Type: unit.EdgeStatic},
				{ID: "e2", SourceID: "u3", TargetID: "u1", Type: unit.EdgeDynamic},
			}))

			out, err := s.GetEdges(ctx, "u1", unit.DirectionOut)
			require.NoError(t, err)
			require.Len(t, out, 1)
			require.Equal(t, "u2", out[0].TargetID)

			in, err := s.GetEdges(ctx, "u1", unit.DirectionIn)
			require.NoError(t, err)
			require.Len(t, in, 1)
			require.Equal(t, "u3", in[0].SourceID)

			both, err := s.GetEdges(ctx, "u1", unit.DirectionBoth)
			require.NoError(t, err)
			require.Len(t, both, 2)
		})
	}
}

func TestStoreFindUnitIDsByName(t *testing.T) {
	for impl, s := range openStores(t) {
		t.Run(impl, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.PutUnits(ctx, []unit.Unit{
				sampleUnit("u2", "dup", ""),
				sampleUnit("u1", "dup", ""),
				sampleUnit("u3", "other", ""),
			}))

			ids, err := s.FindUnitIDsByName(ctx, "dup")
			require.NoError(t, err)
			require.Equal(t, []string{"u1", "u2"}, ids)
		})
	}
}
