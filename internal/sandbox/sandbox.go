// Package sandbox records the scheduling trace of a JavaScript or TypeScript
// snippet. The snippet runs on a goja runtime driven by an event loop; the
// timer, promise, console and object primitives it can reach append steps to
// a trace buffer as the engine fires them.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/eventloop"

	"github.com/yousuf/loopviz/internal/heap"
	"github.com/yousuf/loopviz/internal/trace"
)

// Options configures a Loader. Zero durations disable the corresponding
// limit.
type Options struct {
	// Timeout bounds the wall-clock duration of one recording.
	Timeout time.Duration
	// MaxTimerDelay clamps the real delay of setTimeout. Labels keep the
	// requested delay.
	MaxTimerDelay time.Duration
	// Logger receives one line per recording. Defaults to discarding.
	Logger *log.Logger
}

// Loader builds an isolated runtime per recording.
type Loader struct {
	opts Options
}

// NewLoader creates a loader with the given options.
func NewLoader(opts Options) *Loader {
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard, "", 0)
	}
	return &Loader{opts: opts}
}

// Recording is a snippet being recorded in the background.
type Recording struct {
	done   chan struct{}
	cancel context.CancelFunc
	err    error
}

// Done is closed once the trace buffer is sealed and the runtime is gone.
func (rec *Recording) Done() <-chan struct{} {
	return rec.done
}

// Wait blocks until recording ends. It returns nil when the snippet ran to
// completion, a *SnippetError or *SetupError when it failed, ErrTimedOut or
// ErrStepLimit when a limit stopped it, and the context error when cancelled.
// In every case the failure is also the last step of the trace.
func (rec *Recording) Wait() error {
	<-rec.done
	return rec.err
}

// Cancel stops the recording. Pending timers never fire and nothing more is
// appended to the buffer. Cancel does not wait; use Wait or Done for that.
func (rec *Recording) Cancel() {
	rec.cancel()
}

// Record starts executing src in a fresh runtime. Steps are appended to buf,
// which is sealed when recording ends.
func (l *Loader) Record(ctx context.Context, src Source, buf *trace.Buffer) *Recording {
	ctx, cancel := context.WithCancel(ctx)
	rec := &Recording{done: make(chan struct{}), cancel: cancel}

	go func() {
		defer close(rec.done)
		defer cancel()
		rec.err = l.record(ctx, src, buf)
	}()

	return rec
}

// RecordSteps records src to completion and returns the sealed trace.
func (l *Loader) RecordSteps(ctx context.Context, src Source, maxSteps int) ([]trace.Step, error) {
	buf := trace.NewBuffer(maxSteps)
	err := l.Record(ctx, src, buf).Wait()
	return buf.Steps(), err
}

func (l *Loader) record(ctx context.Context, src Source, buf *trace.Buffer) error {
	start := time.Now()

	b, err := bundleSource(src)
	if err != nil {
		buf.Seal(logStep(err))
		l.opts.Logger.Printf("[RUN] snippet rejected before execution: %v", err)
		return err
	}

	r := newRun(l.opts, b, buf)
	err = r.execute(ctx)

	var snippetErr *SnippetError
	switch {
	case err == nil:
		l.opts.Logger.Printf("[RUN] recorded %d steps in %s", buf.Len(), time.Since(start).Round(time.Millisecond))
	case errors.As(err, &snippetErr):
		l.opts.Logger.Printf("[RUN] snippet threw after %d steps: %v", buf.Len(), err)
		if snippetErr.Stack != "" {
			l.opts.Logger.Printf("[RUN] stack trace:\n%s", snippetErr.Stack)
		}
	default:
		l.opts.Logger.Printf("[RUN] recording stopped after %d steps: %v", buf.Len(), err)
	}
	return err
}

// run is the state of one recording. Everything except the stop path is
// touched only from the event loop goroutine.
type run struct {
	opts    Options
	bundle  *bundle
	buf     *trace.Buffer
	loop    *eventloop.EventLoop
	vm      *goja.Runtime
	lines   *attributor
	tracker *heap.Tracker

	enqueueJob   goja.Callable
	stringify    goja.Callable
	promiseProto *goja.Object
	promises     map[*goja.Object]*promise
	unhandled    []rejection

	stopped atomic.Bool

	mu        sync.Mutex
	err       error
	timers    map[int64]*timer
	nextTimer int64
}

func newRun(opts Options, b *bundle, buf *trace.Buffer) *run {
	r := &run{
		opts:     opts,
		bundle:   b,
		buf:      buf,
		loop:     eventloop.NewEventLoop(eventloop.EnableConsole(false)),
		promises: make(map[*goja.Object]*promise),
		timers:   make(map[int64]*timer),
	}
	r.tracker = heap.NewTracker(r.emit)
	return r
}

// execute runs the snippet and every callback it schedules, then seals the
// buffer.
func (r *run) execute(ctx context.Context) error {
	stopCancel := context.AfterFunc(ctx, func() {
		r.abort(context.Cause(ctx))
	})
	defer stopCancel()

	if r.opts.Timeout > 0 {
		timeout := time.AfterFunc(r.opts.Timeout, func() {
			msg := fmt.Sprintf("Error: recording timed out after %dms", r.opts.Timeout.Milliseconds())
			r.abort(fmt.Errorf("%w after %s", ErrTimedOut, r.opts.Timeout), trace.Step{Kind: trace.LogOutput, Label: msg})
		})
		defer timeout.Stop()
	}

	var entry *goja.Promise
	r.loop.Run(func(vm *goja.Runtime) {
		r.mu.Lock()
		r.vm = vm
		r.mu.Unlock()
		r.lines = &attributor{vm: vm, mapper: r.bundle.mapper}

		fn, err := r.install()
		if err != nil {
			r.abort(err, logStep(err))
			return
		}
		if r.stopped.Load() {
			return
		}

		res, err := fn(goja.Undefined())
		if err != nil {
			r.uncaught(err)
			return
		}
		entry, _ = res.Export().(*goja.Promise)
		r.reportUnhandled()
	})

	// Only a failure inside the error reporter itself can leave the entry
	// promise rejected.
	if entry != nil && entry.State() == goja.PromiseStateRejected && !r.stopped.Load() {
		r.fail(entry.Result())
	}

	if r.stopped.CompareAndSwap(false, true) {
		r.buf.Seal()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// install populates the global scope and evaluates the program, returning
// the entry function.
func (r *run) install() (goja.Callable, error) {
	vm := r.vm

	// Jobs queued through the native promise run on goja's own job queue,
	// which drains whenever the outermost call into the runtime returns.
	// The extra function frame keeps nested calls from draining it early.
	enqueue, err := vm.RunString(`(function (P) {
	var done = P.resolve(), then = P.prototype.then;
	return function (job) { then.call(done, function () { job(); }); };
})(Promise)`)
	if err != nil {
		return nil, &SetupError{Op: "job queue", Err: err}
	}
	var ok bool
	if r.enqueueJob, ok = goja.AssertFunction(enqueue); !ok {
		return nil, &SetupError{Op: "job queue", Err: errors.New("enqueue helper is not callable")}
	}

	vm.SetPromiseRejectionTracker(r.trackNative)

	json := vm.Get("JSON").ToObject(vm)
	if r.stringify, ok = goja.AssertFunction(json.Get("stringify")); !ok {
		return nil, &SetupError{Op: "globals", Err: errors.New("JSON.stringify is not callable")}
	}

	for _, install := range []func() error{
		r.installConsole,
		r.installTimers,
		r.installPromise,
		r.installHeap,
	} {
		if err := install(); err != nil {
			return nil, &SetupError{Op: "globals", Err: err}
		}
	}

	// Only the entry function's own catch may end the recording this way.
	if err := r.defineHidden(failHelper, func(call goja.FunctionCall) goja.Value {
		if r.lines.programLine() == r.bundle.failLine {
			r.fail(call.Argument(0))
		}
		return goja.Undefined()
	}); err != nil {
		return nil, &SetupError{Op: "globals", Err: err}
	}

	if _, err := vm.RunProgram(r.bundle.program); err != nil {
		return nil, r.snippetErrorFrom(err)
	}

	fn, ok := goja.AssertFunction(vm.Get(entryName))
	if !ok {
		return nil, &SetupError{Op: "entry", Err: errors.New("entry point is not a function")}
	}
	return fn, nil
}

// defineHidden installs a global the snippet can neither overwrite nor
// enumerate.
func (r *run) defineHidden(name string, fn func(goja.FunctionCall) goja.Value) error {
	return r.vm.GlobalObject().DefineDataProperty(name, r.vm.ToValue(fn), goja.FLAG_FALSE, goja.FLAG_FALSE, goja.FLAG_FALSE)
}

// emit appends a step. A full buffer ends the recording.
func (r *run) emit(step trace.Step) error {
	err := r.buf.Append(step)
	if errors.Is(err, trace.ErrFull) {
		msg := fmt.Sprintf("Error: trace limit of %d steps reached", r.buf.Limit())
		r.abort(ErrStepLimit, trace.Step{Kind: trace.LogOutput, Label: msg})
	}
	return err
}

// call invokes a snippet function. Once the recording is stopped the runtime
// is interrupted again so enclosing frames unwind as well.
func (r *run) call(fn goja.Callable, this goja.Value, args ...goja.Value) (goja.Value, error) {
	v, err := fn(this, args...)
	if err != nil && r.stopped.Load() {
		var interrupted *goja.InterruptedError
		if errors.As(err, &interrupted) {
			r.vm.Interrupt(interrupted.Value())
		}
	}
	return v, err
}

// thrown extracts the value a snippet threw.
func thrown(err error) (goja.Value, bool) {
	var ex *goja.Exception
	if errors.As(err, &ex) {
		return ex.Value(), true
	}
	return nil, false
}

// uncaught handles an error that escaped a snippet callback.
func (r *run) uncaught(err error) {
	if r.stopped.Load() {
		return
	}
	if v, ok := thrown(err); ok {
		r.fail(v)
		return
	}
	r.abort(err, logStep(err))
}

// fail reports a value thrown by the snippet as the final step.
func (r *run) fail(v goja.Value) {
	if r.stopped.Load() {
		return
	}
	err := r.snippetError(v)
	r.abort(err, trace.Step{Kind: trace.LogOutput, Label: err.Message, SourceLine: err.Line})
}

func (r *run) snippetErrorFrom(err error) error {
	if v, ok := thrown(err); ok {
		return r.snippetError(v)
	}
	return &SetupError{Op: "evaluate", Err: err}
}

func (r *run) snippetError(v goja.Value) *SnippetError {
	msg, stack := r.describe(v)
	return &SnippetError{
		Message: msg,
		Line:    r.lines.errorLine(stack),
		Stack:   r.bundle.mapper.MapStack(stack),
	}
}

// describe renders a thrown value the way a browser console reports it.
func (r *run) describe(v goja.Value) (msg, stack string) {
	obj, ok := v.(*goja.Object)
	if !ok || obj.ClassName() != "Error" {
		return "Uncaught " + r.format(v), ""
	}

	name := "Error"
	if n := obj.Get("name"); n != nil && !goja.IsUndefined(n) {
		name = n.String()
	}
	msg = name
	if m := obj.Get("message"); m != nil && !goja.IsUndefined(m) && m.String() != "" {
		msg = name + ": " + m.String()
	}
	if s := obj.Get("stack"); s != nil && !goja.IsUndefined(s) {
		stack = s.String()
	}
	return msg, stack
}

// abort stops the recording: the buffer is sealed with final, the runtime is
// interrupted and pending timers are cleared. Only the first call has any
// effect. It is safe to call from any goroutine.
func (r *run) abort(err error, final ...trace.Step) {
	if !r.stopped.CompareAndSwap(false, true) {
		return
	}

	r.mu.Lock()
	r.err = err
	vm := r.vm
	handles := make([]*eventloop.Timer, 0, len(r.timers))
	for _, t := range r.timers {
		handles = append(handles, t.handle)
	}
	r.timers = nil
	r.mu.Unlock()

	r.buf.Seal(final...)
	if vm != nil {
		vm.Interrupt(err)
	}
	for _, h := range handles {
		r.loop.ClearTimeout(h)
	}
}
