// Package resolve computes the executable closure of an entry set, orders
// it topologically, and assembles the dependency-ordered bundle text.
package resolve

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

// DefaultHotThreshold is the dynamic-edge frequency above which an observed
// relationship is treated as a load-time requirement. Cold dynamic edges
// stay out of the closure to keep bundles small.
const DefaultHotThreshold = 3

// Bundle is the assembled, dependency-ordered result for an entry set.
type Bundle struct {
	Order         []string             `json:"order"`
	Units         map[string]unit.Unit `json:"-"`
	Code          string               `json:"code"`
	CycleWarnings []string             `json:"cycle_warnings,omitempty"`
}

// Resolver expands entry sets to their required closure over the full
// stored corpus.
type Resolver struct {
	store        store.Store
	hotThreshold int
	logger       *zap.Logger
}

func New(s store.Store, hotThreshold int, logger *zap.Logger) *Resolver {
	if hotThreshold <= 0 {
		hotThreshold = DefaultHotThreshold
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{store: s, hotThreshold: hotThreshold, logger: logger}
}

// Resolve computes the minimal closure for the entry ids and returns the
// assembled bundle. Static references are resolved against the whole known
// corpus, not just the units fetched so far; resolving within the current
// batch alone would drop legitimate edges.
func (r *Resolver) Resolve(ctx context.Context, entryIDs []string) (*Bundle, error) {
	if len(entryIDs) == 0 {
		return nil, &unit.ValidationError{Field: "entry_points", Reason: "empty"}
	}

	corpus, err := r.store.GetAllUnits(ctx)
	if err != nil {
		return nil, fmt.Errorf("load corpus: %w", err)
	}
	byID := make(map[string]unit.Unit, len(corpus))
	for _, u := range corpus {
		byID[u.ID] = u
	}
	ix := graph.NewIndex(corpus)

	required := make(map[string]bool)
	for _, id := range entryIDs {
		if _, ok := byID[id]; !ok {
			return nil, unit.NotFoundf("entry point %q", id)
		}
		required[id] = true
	}

	// fixed point: the candidate universe is finite and required only
	// grows, so this terminates
	processed := make(map[string]bool)
	for {
		var batch []string
		for id := range required {
			if !processed[id] {
				batch = append(batch, id)
			}
		}
		if len(batch) == 0 {
			break
		}
		sort.Strings(batch)
		for _, id := range batch {
			u := byID[id]
			for _, ref := range u.StaticDependencies {
				if tid, ok := ix.Resolve(u.OriginalSource, ref); ok {
					required[tid] = true
				}
			}
			for _, rel := range u.DynamicRelationships {
				if rel.Frequency > r.hotThreshold {
					if _, ok := byID[rel.TargetID]; ok {
						required[rel.TargetID] = true
					}
				}
			}
			processed[id] = true
		}
	}

	bundle := &Bundle{Units: make(map[string]unit.Unit, len(required))}
	for id := range required {
		bundle.Units[id] = byID[id]
	}
	bundle.Order, bundle.CycleWarnings = order(bundle.Units, ix)
	bundle.Code = assemble(bundle.Order, bundle.Units)

	for _, w := range bundle.CycleWarnings {
		r.logger.Warn("dependency cycle", zap.String("detail", w))
	}
	r.logger.Debug("resolved closure",
		zap.Int("entries", len(entryIDs)),
		zap.Int("required", len(bundle.Order)))
	return bundle, nil
}

// order produces a topological order over static edges restricted to the
// required set. A three-state depth-first visit detects cycles; revisiting
// an in-progress node records a warning and inserts the node without
// waiting for its remaining dependencies, so cycles never deadlock the
// walk. Roots and dependency fan-out are visited in ascending unit id for
// reproducible output.
func order(units map[string]unit.Unit, ix *graph.Index) ([]string, []string) {
	const (
		unvisited  = 0
		inProgress = 1
		done       = 2
	)
	state := make(map[string]int, len(units))
	var ordered []string
	var warnings []string

	deps := func(id string) []string {
		u := units[id]
		var out []string
		for _, ref := range u.StaticDependencies {
			if tid, ok := ix.Resolve(u.OriginalSource, ref); ok && tid != id {
				if _, in := units[tid]; in {
					out = append(out, tid)
				}
			}
		}
		sort.Strings(out)
		return out
	}

	var visit func(id string)
	visit = func(id string) {
		switch state[id] {
		case done:
			return
		case inProgress:
			// cycle: break at the lowest-id revisit and keep going
			warnings = append(warnings, fmt.Sprintf("cycle through unit %s", id))
			return
		}
		state[id] = inProgress
		for _, dep := range deps(id) {
			visit(dep)
		}
		state[id] = done
		ordered = append(ordered, id)
	}

	roots := make([]string, 0, len(units))
	for id := range units {
		roots = append(roots, id)
	}
	sort.Strings(roots)
	for _, id := range roots {
		visit(id)
	}
	return ordered, warnings
}

// assemble concatenates unit code in resolved order, each preceded by a
// provenance marker for traceability.
func assemble(order []string, units map[string]unit.Unit) string {
	var b strings.Builder
	for _, id := range order {
		u := units[id]
		fmt.Fprintf(&b, "// unit: %s (%s) from %s\n", u.Name, u.ID, u.OriginalSource)
		b.WriteString(u.Code)
		b.WriteString("\n\n")
	}
	return b.String()
}
