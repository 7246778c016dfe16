package unit

import "time"

// Kind classifies how a unit was declared in the source text.
type Kind string

const (
	KindFunction Kind = "function" // declared with a function keyword
	KindArrow    Kind = "arrow"    // arrow construct assigned to a target
	KindMethod   Kind = "method"   // method-style definition
)

// Unit represents an addressable function-like fragment of source text.
type Unit struct {
	ID                   string         `json:"id"`
	Name                 string         `json:"name"`
	Kind                 Kind           `json:"kind"`
	Code                 string         `json:"code"`
	LineStart            int            `json:"line_start"`
	LineEnd              int            `json:"line_end"`
	StaticDependencies   []string       `json:"static_dependencies"`
	DynamicRelationships []Relationship `json:"dynamic_relationships,omitempty"`
	ClusterID            string         `json:"cluster_id,omitempty"`
	OriginalSource       string         `json:"original_source"`
	Metadata             Metadata       `json:"metadata"`
}

// Size returns the unit's code size used for cluster accounting.
func (u *Unit) Size() int {
	return len(u.Code)
}

// Relationship is a runtime-observed call edge with an accumulated frequency.
type Relationship struct {
	TargetID    string    `json:"target_id"`
	Frequency   int       `json:"frequency"`
	Context     string    `json:"context"`
	LastUpdated time.Time `json:"last_updated"`
}

// Metadata carries free-form descriptive fields attached to a unit.
type Metadata struct {
	Description string    `json:"description,omitempty"`
	Tests       []string  `json:"tests,omitempty"`
	LastUpdated time.Time `json:"last_updated,omitempty"`
}

// EdgeType distinguishes statically inferred from runtime-observed edges.
type EdgeType string

const (
	EdgeStatic  EdgeType = "static"
	EdgeDynamic EdgeType = "dynamic"
)

// Edge represents a dependency between two units.
// (SourceID, TargetID, Type) is unique after merge; re-ingestion of the
// same corpus must not duplicate edges.
type Edge struct {
	ID       string   `json:"id"`
	SourceID string   `json:"source_id"`
	TargetID string   `json:"target_id"`
	Type     EdgeType `json:"type"`
}

// Cluster is a size-bounded, connectivity-favoring grouping of units.
// Aggregate size stays within the bound except for a singleton holding one
// oversized unit.
type Cluster struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	UnitIDs   []string `json:"unit_ids"`
	TotalSize int      `json:"total_size"`
	SizeBound int      `json:"size_bound"`
}

// Direction selects which dependency edges a query follows.
type Direction string

const (
	DirectionOut  Direction = "out"  // edges where the unit is the source
	DirectionIn   Direction = "in"   // edges where the unit is the target
	DirectionBoth Direction = "both"
)
