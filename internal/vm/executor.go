// Package vm evaluates assembled bundles. Every evaluation runs in a
// freshly constructed runtime whose only ambient state is the context the
// caller injects; nothing persists between executions. This is scope
// isolation for assembled bundles, not a security sandbox.
package vm

import (
	"errors"
	"fmt"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"unitmap/internal/trace"
)

// ExecutionError captures an uncaught error raised while evaluating a
// bundle, carrying the message and a truncated stack for the result
// payload instead of escaping past the API boundary.
type ExecutionError struct {
	Message string `json:"message"`
	Stack   string `json:"stack,omitempty"`
}

func (e *ExecutionError) Error() string { return e.Message }

// Executor evaluates bundle code. A non-nil tracer enables call
// instrumentation of the bundle's unit globals.
type Executor struct {
	tracer *trace.Tracer
	logger *zap.Logger
}

func New(tracer *trace.Tracer, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{tracer: tracer, logger: logger}
}

// Execute evaluates code with the injected globals and returns the final
// expression value.
func (ex *Executor) Execute(code string, injected map[string]any) (any, error) {
	rt, err := ex.newRuntime(injected)
	if err != nil {
		return nil, err
	}
	res, err := rt.RunString(code)
	if err != nil {
		return nil, wrapError(err)
	}
	if res == nil {
		return nil, nil
	}
	return res.Export(), nil
}

// Run evaluates code, instruments the listed unit globals when tracing is
// enabled, then invokes the named entry with args. unitsByName maps a
// global function name to its unit id.
func (ex *Executor) Run(code string, unitsByName map[string]string, entry string, args []any, injected map[string]any) (any, error) {
	rt, err := ex.newRuntime(injected)
	if err != nil {
		return nil, err
	}
	if _, err := rt.RunString(code); err != nil {
		return nil, wrapError(err)
	}
	if ex.tracer != nil {
		ex.instrument(rt, unitsByName)
	}

	entryVal := rt.Get(entry)
	if entryVal == nil {
		return nil, &ExecutionError{Message: fmt.Sprintf("entry %q is not defined", entry)}
	}
	fn, ok := goja.AssertFunction(entryVal)
	if !ok {
		return nil, &ExecutionError{Message: fmt.Sprintf("entry %q is not callable", entry)}
	}

	gargs := make([]goja.Value, len(args))
	for i, a := range args {
		gargs[i] = rt.ToValue(a)
	}
	res, err := fn(goja.Undefined(), gargs...)
	if err != nil {
		return nil, wrapError(err)
	}
	if res == nil {
		return nil, nil
	}
	return res.Export(), nil
}

func (ex *Executor) newRuntime(injected map[string]any) (*goja.Runtime, error) {
	rt := goja.New()
	for k, v := range injected {
		if err := rt.Set(k, v); err != nil {
			return nil, fmt.Errorf("inject %q: %w", k, err)
		}
	}
	return rt, nil
}

func wrapError(err error) error {
	var gex *goja.Exception
	if errors.As(err, &gex) {
		return &ExecutionError{
			Message: gex.Error(),
			Stack:   truncate(gex.String(), 2000),
		}
	}
	return &ExecutionError{Message: err.Error()}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
