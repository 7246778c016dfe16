// Package store persists units and dependency edges. The core treats the
// store as an external collaborator: a document store keyed by unit id with
// a secondary index by cluster id, plus a dependency-edge collection.
//
// Batch writes are chunk-atomic: each PutUnits/PutEdges call either fully
// commits or the caller observes a rejection. There is no rollback across
// calls; when a multi-chunk operation fails partway, earlier committed
// chunks persist. A single-writer deployment is assumed; concurrent writers
// risk read-modify-write races on cluster and relationship fields.
package store

import (
	"context"

	"unitmap/internal/unit"
)

// Store is the persistence contract consumed by the core components.
type Store interface {
	// GetUnit returns the unit with the given id, or an error wrapping
	// unit.ErrNotFound when absent.
	GetUnit(ctx context.Context, id string) (*unit.Unit, error)
	// PutUnits upserts one batch of units atomically.
	PutUnits(ctx context.Context, units []unit.Unit) error
	// GetAllUnits returns every stored unit.
	GetAllUnits(ctx context.Context) ([]unit.Unit, error)
	// GetUnitsByCluster returns the units assigned to a cluster.
	GetUnitsByCluster(ctx context.Context, clusterID string) ([]unit.Unit, error)

	// PutEdges upserts edges; re-ingesting an identical edge set is a no-op
	// (keyed by source, target, type).
	PutEdges(ctx context.Context, edges []unit.Edge) error
	// GetEdges returns the edges touching a unit in the given direction.
	GetEdges(ctx context.Context, unitID string, dir unit.Direction) ([]unit.Edge, error)
	// GetAllEdges returns every stored edge.
	GetAllEdges(ctx context.Context) ([]unit.Edge, error)

	// FindUnitIDsByName returns the ids of units with the exact name, in
	// ascending id order.
	FindUnitIDsByName(ctx context.Context, name string) ([]string, error)

	Close() error
}
