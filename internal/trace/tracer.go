// Package trace records call lifecycle events for dynamic relationship
// inference. A Tracer owns its stack and log explicitly; there is no
// package-global state, and Reset gives callers a defined lifecycle.
//
// Attribution caveat: the single shared call stack attributes parentage
// correctly only for one strictly-nested synchronous thread of execution.
// Interleaved deferred completions can misattribute parent-child edges; a
// concurrency-aware caller must propagate a per-task call context instead
// of sharing one Tracer stack across tasks.
package trace

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"unitmap/internal/unit"
)

// Tracer accumulates trace events and maintains the active call stack.
// One mutex guards both; every exported method takes and releases it
// internally, so callers never hold the lock.
type Tracer struct {
	mu    sync.Mutex
	stack []unit.Frame
	log   []unit.TraceEvent
}

func New() *Tracer {
	return &Tracer{}
}

// Call is one in-flight traced invocation. Exit pops the stack exactly
// once; exactly one of Complete or Fail records the completion event, even
// when completion arrives after the synchronous return (deferred results).
type Call struct {
	tracer    *Tracer
	ID        string
	UnitID    string
	Name      string
	start     time.Time
	popped    bool
	completed bool
}

// Begin pushes a frame, records the CallStart event with sampled arguments,
// and attributes the parent from the current stack top.
func (t *Tracer) Begin(unitID, name string, args []any) *Call {
	samples := make([]string, len(args))
	for i, a := range args {
		samples[i] = Sample(a)
	}
	id := uuid.NewString()

	t.mu.Lock()
	defer t.mu.Unlock()
	parentID := ""
	if n := len(t.stack); n > 0 {
		parentID = t.stack[n-1].CallID
	}
	t.stack = append(t.stack, unit.Frame{CallID: id, Name: name, UnitID: unitID})
	t.log = append(t.log, unit.TraceEvent{
		Kind:         unit.EventCallStart,
		CallID:       id,
		ParentCallID: parentID,
		UnitID:       unitID,
		Name:         name,
		Timestamp:    time.Now().UTC(),
		ArgSamples:   samples,
	})
	return &Call{tracer: t, ID: id, UnitID: unitID, Name: name, start: time.Now()}
}

// Exit pops this call's frame. Safe to call from a defer on every exit
// path; only the first call pops.
func (c *Call) Exit() {
	t := c.tracer
	t.mu.Lock()
	defer t.mu.Unlock()
	if c.popped {
		return
	}
	c.popped = true
	for i := len(t.stack) - 1; i >= 0; i-- {
		if t.stack[i].CallID == c.ID {
			t.stack = append(t.stack[:i], t.stack[i+1:]...)
			break
		}
	}
}

// Complete records the CallEnd event. async marks completions delivered
// after the synchronous return.
func (c *Call) Complete(result any, async bool) {
	c.finish(unit.TraceEvent{
		Kind:         unit.EventCallEnd,
		ResultSample: Sample(result),
		IsAsync:      async,
	})
}

// Fail records the CallError event.
func (c *Call) Fail(err error, async bool) {
	summary := "unknown error"
	if err != nil {
		summary = err.Error()
	}
	if len(summary) > 500 {
		summary = summary[:500]
	}
	c.finish(unit.TraceEvent{
		Kind:         unit.EventCallError,
		ErrorSummary: summary,
		IsAsync:      async,
	})
}

func (c *Call) finish(ev unit.TraceEvent) {
	t := c.tracer
	t.mu.Lock()
	defer t.mu.Unlock()
	if c.completed {
		return
	}
	c.completed = true
	ev.CallID = c.ID
	ev.Timestamp = time.Now().UTC()
	ev.Duration = time.Since(c.start)
	t.log = append(t.log, ev)
}

// Depth returns the current stack depth.
func (t *Tracer) Depth() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.stack)
}

// Events returns a snapshot of the accumulated log.
func (t *Tracer) Events() []unit.TraceEvent {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]unit.TraceEvent, len(t.log))
	copy(out, t.log)
	return out
}

// ClearFirst drops the first n events, keeping anything recorded after the
// caller's snapshot. The relationship updater clears exactly what it
// consumed, and only after the derived updates are durably persisted.
func (t *Tracer) ClearFirst(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if n >= len(t.log) {
		t.log = nil
		return
	}
	t.log = append([]unit.TraceEvent(nil), t.log[n:]...)
}

// Reset discards the log and the stack.
func (t *Tracer) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stack = nil
	t.log = nil
}
