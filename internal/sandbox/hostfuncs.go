package sandbox

import (
	"strings"
	"time"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/eventloop"

	"github.com/yousuf/loopviz/internal/trace"
)

var consoleMethods = []string{"log", "info", "warn", "error", "debug"}

// Timer entry points the event loop installs that bypass the trace.
var untracedGlobals = []string{"setInterval", "clearInterval", "setImmediate", "clearImmediate"}

// installConsole exposes console methods that record a push, the output line
// and a pop, all synchronously.
func (r *run) installConsole() error {
	console := r.vm.NewObject()
	for _, method := range consoleMethods {
		if err := console.Set(method, r.consoleMethod(method)); err != nil {
			return err
		}
	}
	return r.vm.Set("console", console)
}

func (r *run) consoleMethod(method string) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			parts[i] = r.format(arg)
		}
		msg := strings.Join(parts, " ")
		line := r.lines.callerLine()
		label := trace.CallLabel(method, msg)

		r.emit(trace.Step{Kind: trace.PushStack, Label: label, SourceLine: line})
		r.emit(trace.Step{Kind: trace.LogOutput, Label: msg, SourceLine: line})
		r.emit(trace.Step{Kind: trace.PopStack, Label: label, SourceLine: line})
		return goja.Undefined()
	}
}

// format renders one console argument: strings verbatim, plain objects and
// arrays as compact JSON, everything else through the engine's conversion.
func (r *run) format(v goja.Value) string {
	if v == nil {
		return "undefined"
	}
	if obj, ok := v.(*goja.Object); ok {
		if _, isFunc := goja.AssertFunction(obj); !isFunc {
			switch obj.ClassName() {
			case "Object", "Array":
				if s, ok := r.json(obj, false); ok {
					return s
				}
			}
		}
	}
	return v.String()
}

// json serializes v with the engine's JSON.stringify.
func (r *run) json(v goja.Value, indent bool) (string, bool) {
	args := []goja.Value{v}
	if indent {
		args = append(args, goja.Null(), r.vm.ToValue(2))
	}
	res, err := r.stringify(goja.Undefined(), args...)
	if err != nil || res == nil || goja.IsUndefined(res) {
		return "", false
	}
	return res.String(), true
}

// timer is a setTimeout registration that has not fired yet.
type timer struct {
	id     int64
	label  string
	line   int
	fn     goja.Callable
	args   []goja.Value
	handle *eventloop.Timer
}

// installTimers exposes setTimeout, clearTimeout and queueMicrotask.
func (r *run) installTimers() error {
	global := r.vm.GlobalObject()
	for _, name := range untracedGlobals {
		if err := global.Delete(name); err != nil {
			return err
		}
	}

	if err := r.vm.Set("setTimeout", r.setTimeout); err != nil {
		return err
	}
	if err := r.vm.Set("clearTimeout", r.clearTimeout); err != nil {
		return err
	}
	return r.vm.Set("queueMicrotask", r.queueMicrotask)
}

func (r *run) setTimeout(call goja.FunctionCall) goja.Value {
	fn, ok := goja.AssertFunction(call.Argument(0))
	if !ok {
		panic(r.vm.NewTypeError("setTimeout: callback is not a function"))
	}
	delay := max(call.Argument(1).ToInteger(), 0)

	t := &timer{
		label: trace.TimerLabel(delay),
		line:  r.lines.callerLine(),
		fn:    fn,
	}
	if len(call.Arguments) > 2 {
		t.args = append([]goja.Value{}, call.Arguments[2:]...)
	}

	wait := time.Duration(delay) * time.Millisecond
	if r.opts.MaxTimerDelay > 0 && wait > r.opts.MaxTimerDelay {
		wait = r.opts.MaxTimerDelay
	}

	r.emit(trace.Step{Kind: trace.RegisterPendingTimer, Label: t.label, SourceLine: t.line})

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.timers == nil {
		return r.vm.ToValue(0)
	}
	r.nextTimer++
	t.id = r.nextTimer
	t.handle = r.loop.SetTimeout(func(*goja.Runtime) { r.fireTimer(t) }, wait)
	r.timers[t.id] = t

	return r.vm.ToValue(t.id)
}

// fireTimer runs a timer callback as one macrotask. The callback's own
// microtasks drain before the call returns, so they land inside the bracket.
func (r *run) fireTimer(t *timer) {
	r.mu.Lock()
	_, live := r.timers[t.id]
	delete(r.timers, t.id)
	r.mu.Unlock()
	if !live || r.stopped.Load() {
		return
	}

	r.emit(trace.Step{Kind: trace.ResolvePendingTimer, Label: t.label, SourceLine: t.line})
	r.emit(trace.Step{Kind: trace.EnqueueMacrotask, Label: trace.LabelTimerCallback, SourceLine: t.line})
	r.emit(trace.Step{Kind: trace.AnimateTick, SourceLine: t.line})
	if r.stopped.Load() {
		return
	}

	if _, err := r.call(t.fn, goja.Undefined(), t.args...); err != nil {
		r.uncaught(err)
		return
	}
	r.reportUnhandled()
	if r.stopped.Load() {
		return
	}
	r.emit(trace.Step{Kind: trace.DequeueMacrotask, Label: trace.LabelTimerCallback, SourceLine: t.line})
}

func (r *run) clearTimeout(call goja.FunctionCall) goja.Value {
	id := call.Argument(0).ToInteger()

	r.mu.Lock()
	t, ok := r.timers[id]
	delete(r.timers, id)
	r.mu.Unlock()
	if !ok {
		return goja.Undefined()
	}

	r.loop.ClearTimeout(t.handle)
	r.emit(trace.Step{Kind: trace.ResolvePendingTimer, Label: t.label, SourceLine: r.lines.callerLine()})
	return goja.Undefined()
}

func (r *run) queueMicrotask(call goja.FunctionCall) goja.Value {
	fn, ok := goja.AssertFunction(call.Argument(0))
	if !ok {
		panic(r.vm.NewTypeError("queueMicrotask: argument is not a function"))
	}
	r.microtask(trace.LabelMicrotaskCallback, func() {
		if _, err := r.call(fn, goja.Undefined()); err != nil {
			r.uncaught(err)
		}
	})
	return goja.Undefined()
}

// microtask records an enqueue now and runs job from the engine's job queue,
// bracketed by AnimateTick and the matching dequeue.
func (r *run) microtask(label string, job func()) {
	if r.stopped.Load() {
		return
	}
	line := r.lines.callerLine()
	r.emit(trace.Step{Kind: trace.EnqueueMicrotask, Label: label, SourceLine: line})

	fire := r.vm.ToValue(func(goja.FunctionCall) goja.Value {
		if r.stopped.Load() {
			return goja.Undefined()
		}
		r.emit(trace.Step{Kind: trace.AnimateTick, SourceLine: line})
		job()
		if !r.stopped.Load() {
			r.emit(trace.Step{Kind: trace.DequeueMicrotask, Label: label, SourceLine: line})
		}
		return goja.Undefined()
	})

	if _, err := r.call(r.enqueueJob, goja.Undefined(), fire); err != nil {
		r.uncaught(err)
	}
}
