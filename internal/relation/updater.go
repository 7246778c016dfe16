// Package relation aggregates trace events into dynamic dependency edges
// on a timer, closing the feedback loop from observed execution back into
// the stored graph.
package relation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"unitmap/internal/store"
	"unitmap/internal/trace"
	"unitmap/internal/unit"
	"unitmap/util"
)

// DefaultInterval is the default aggregation period.
const DefaultInterval = 30 * time.Second

// observedContext tags relationships appended from trace aggregation.
const observedContext = "observed-call"

// Updater consumes the trace log in one batch per cycle and merges call
// frequencies into each caller's dynamic relationships.
type Updater struct {
	tracer   *trace.Tracer
	store    store.Store
	logger   *zap.Logger
	inFlight atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func New(t *trace.Tracer, s store.Store, logger *zap.Logger) *Updater {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Updater{tracer: t, store: s, logger: logger}
}

// Start runs one eager cycle and then a cycle per interval until Stop. A
// new cycle never overlaps one still in flight; overlapping would risk
// double-counting trace entries before they are cleared.
func (u *Updater) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.cancel != nil {
		return // already running
	}
	ctx, cancel := context.WithCancel(ctx)
	u.cancel = cancel
	u.done = make(chan struct{})
	done := u.done

	go func() {
		defer close(done)
		if _, err := u.RunCycle(ctx); err != nil {
			u.logger.Warn("update cycle failed", zap.Error(err))
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := u.RunCycle(ctx); err != nil {
					u.logger.Warn("update cycle failed", zap.Error(err))
				}
			}
		}
	}()
}

// Stop halts the periodic loop and waits for an in-flight cycle to finish.
func (u *Updater) Stop() {
	u.mu.Lock()
	cancel, done := u.cancel, u.done
	u.cancel, u.done = nil, nil
	u.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
}

// RunCycle performs one aggregation batch: count (caller, callee) pairs
// from CallStart parentage, merge them into the callers' relationships,
// persist, then clear exactly the consumed events. When persistence fails
// the log is retained so the observations survive into the next cycle.
// Concurrent calls are single-flight; a skipped cycle returns (0, nil).
func (u *Updater) RunCycle(ctx context.Context) (int, error) {
	if !u.inFlight.CompareAndSwap(false, true) {
		u.logger.Debug("update cycle skipped, previous still in flight")
		return 0, nil
	}
	defer u.inFlight.Store(false)

	events := u.tracer.Events()
	if len(events) == 0 {
		return 0, nil
	}

	counts := aggregate(events)
	if len(counts) == 0 {
		u.tracer.ClearFirst(len(events))
		return 0, nil
	}

	callers := make([]string, 0, len(counts))
	for id := range counts {
		callers = append(callers, id)
	}
	sort.Strings(callers)

	now := time.Now().UTC()
	var updated []unit.Unit
	var edges []unit.Edge
	for _, callerID := range callers {
		cu, err := u.store.GetUnit(ctx, callerID)
		if errors.Is(err, unit.ErrNotFound) {
			u.logger.Debug("skipping unknown caller", zap.String("unit", callerID))
			continue
		}
		if err != nil {
			// Transient store failure: bail before ClearFirst so the
			// observations are retried next cycle.
			return 0, fmt.Errorf("load caller %s: %w", callerID, err)
		}
		merge(cu, counts[callerID], now)
		updated = append(updated, *cu)
		for calleeID := range counts[callerID] {
			edges = append(edges, unit.Edge{
				ID:       util.EdgeID(callerID, calleeID, string(unit.EdgeDynamic)),
				SourceID: callerID,
				TargetID: calleeID,
				Type:     unit.EdgeDynamic,
			})
		}
	}

	if len(updated) > 0 {
		if err := u.store.PutUnits(ctx, updated); err != nil {
			return 0, fmt.Errorf("persist relationships: %w", err)
		}
		if err := u.store.PutEdges(ctx, edges); err != nil {
			return 0, fmt.Errorf("persist dynamic edges: %w", err)
		}
	}

	u.tracer.ClearFirst(len(events))
	u.logger.Debug("update cycle complete",
		zap.Int("events", len(events)),
		zap.Int("updated_units", len(updated)))
	return len(updated), nil
}

// aggregate counts observed calls keyed by (caller unit, callee unit). A
// CallStart contributes when its own unit and its parent call's unit are
// both known.
func aggregate(events []unit.TraceEvent) map[string]map[string]int {
	unitByCall := make(map[string]string)
	for _, ev := range events {
		if ev.Kind == unit.EventCallStart && ev.UnitID != "" {
			unitByCall[ev.CallID] = ev.UnitID
		}
	}
	counts := make(map[string]map[string]int)
	for _, ev := range events {
		if ev.Kind != unit.EventCallStart || ev.ParentCallID == "" || ev.UnitID == "" {
			continue
		}
		caller, ok := unitByCall[ev.ParentCallID]
		if !ok {
			continue
		}
		if counts[caller] == nil {
			counts[caller] = make(map[string]int)
		}
		counts[caller][ev.UnitID]++
	}
	return counts
}

// merge accumulates frequencies into existing relationship entries and
// appends new targets.
func merge(u *unit.Unit, callees map[string]int, now time.Time) {
	existing := make(map[string]int, len(u.DynamicRelationships))
	for i := range u.DynamicRelationships {
		existing[u.DynamicRelationships[i].TargetID] = i
	}
	targets := make([]string, 0, len(callees))
	for t := range callees {
		targets = append(targets, t)
	}
	sort.Strings(targets)
	for _, target := range targets {
		if i, ok := existing[target]; ok {
			u.DynamicRelationships[i].Frequency += callees[target]
			u.DynamicRelationships[i].LastUpdated = now
			continue
		}
		u.DynamicRelationships = append(u.DynamicRelationships, unit.Relationship{
			TargetID:    target,
			Frequency:   callees[target],
			Context:     observedContext,
			LastUpdated: now,
		})
	}
	u.Metadata.LastUpdated = now
}
