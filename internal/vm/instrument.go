package vm

import (
	"errors"
	"fmt"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"unitmap/internal/trace"
)

// tracedFlag marks wrapped function objects so re-wrapping is a no-op.
const tracedFlag = "__unitmapTraced"

// instrument replaces each listed global function with a traced wrapper.
func (ex *Executor) instrument(rt *goja.Runtime, unitsByName map[string]string) {
	for name, unitID := range unitsByName {
		v := rt.Get(name)
		if v == nil {
			continue
		}
		obj, ok := v.(*goja.Object)
		if !ok {
			continue
		}
		if flag := obj.Get(tracedFlag); flag != nil && flag.ToBoolean() {
			continue
		}
		fn, ok := goja.AssertFunction(v)
		if !ok {
			continue
		}
		if err := rt.Set(name, ex.wrap(rt, fn, unitID, name)); err != nil {
			ex.logger.Warn("failed to instrument unit", zap.String("name", name), zap.Error(err))
		}
	}
}

// wrap builds the traced wrapper. The stack pops exactly once on every
// synchronous exit path; the completion event is recorded either
// immediately or, for thenable results, when the deferred value settles.
func (ex *Executor) wrap(rt *goja.Runtime, fn goja.Callable, unitID, name string) goja.Value {
	wrapper := func(call goja.FunctionCall) goja.Value {
		args := make([]any, len(call.Arguments))
		for i, a := range call.Arguments {
			args[i] = a.Export()
		}
		c := ex.tracer.Begin(unitID, name, args)
		defer c.Exit()

		res, err := fn(goja.Undefined(), call.Arguments...)
		if err != nil {
			c.Fail(err, false)
			var gex *goja.Exception
			if errors.As(err, &gex) {
				panic(gex)
			}
			panic(rt.ToValue(err.Error()))
		}
		if res != nil && ex.observeDeferred(rt, res, c) {
			return res
		}
		var exported any
		if res != nil {
			exported = res.Export()
		}
		c.Complete(exported, false)
		if res == nil {
			return goja.Undefined()
		}
		return res
	}
	v := rt.ToValue(wrapper)
	if obj, ok := v.(*goja.Object); ok {
		_ = obj.Set(tracedFlag, true)
	}
	return v
}

// observeDeferred attaches completion observers to a thenable result.
// Returns false when the value is not a deferred, leaving synchronous
// completion to the caller.
func (ex *Executor) observeDeferred(rt *goja.Runtime, res goja.Value, c *trace.Call) bool {
	obj, ok := res.(*goja.Object)
	if !ok {
		return false
	}
	thenVal := obj.Get("then")
	if thenVal == nil {
		return false
	}
	then, ok := goja.AssertFunction(thenVal)
	if !ok {
		return false
	}

	onFulfilled := rt.ToValue(func(call goja.FunctionCall) goja.Value {
		var v any
		if len(call.Arguments) > 0 {
			v = call.Arguments[0].Export()
		}
		c.Complete(v, true)
		return goja.Undefined()
	})
	onRejected := rt.ToValue(func(call goja.FunctionCall) goja.Value {
		summary := "rejected"
		if len(call.Arguments) > 0 {
			summary = fmt.Sprintf("%v", call.Arguments[0].Export())
		}
		c.Fail(errors.New(summary), true)
		return goja.Undefined()
	})

	if _, err := then(obj, onFulfilled, onRejected); err != nil {
		return false
	}
	return true
}
