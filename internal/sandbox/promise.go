package sandbox

import (
	"slices"
	"strconv"
	"strings"

	"github.com/dop251/goja"

	"github.com/yousuf/loopviz/internal/trace"
)

type promiseState int

const (
	pending promiseState = iota
	fulfilled
	rejected
)

// promise is the snippet-visible Promise. Settlement happens at most once and
// reactions always run from a microtask, never synchronously.
type promise struct {
	run   *run
	obj   *goja.Object
	state promiseState
	value goja.Value

	// handled is set once any reaction is registered.
	handled bool

	onFulfilled []func(goja.Value)
	onRejected  []func(goja.Value)
}

// installPromise replaces the global Promise. The engine's own promise stays
// reachable to async functions, which adopt instances of this one through
// their then method.
func (r *run) installPromise() error {
	ctor := r.vm.ToValue(func(call goja.ConstructorCall) *goja.Object {
		executor, ok := goja.AssertFunction(call.Argument(0))
		if !ok {
			panic(r.vm.NewTypeError("Promise resolver " + r.format(call.Argument(0)) + " is not a function"))
		}

		p := r.newPromise(call.This)
		resolve, reject := p.resolvers()
		if _, err := r.call(executor, goja.Undefined(), r.callback(resolve), r.callback(reject)); err != nil {
			if v, ok := thrown(err); ok {
				reject(v)
			}
		}
		return nil
	}).(*goja.Object)

	proto, ok := ctor.Get("prototype").(*goja.Object)
	if !ok {
		proto = r.vm.NewObject()
		if err := ctor.Set("prototype", proto); err != nil {
			return err
		}
	}
	r.promiseProto = proto

	methods := map[string]func(goja.FunctionCall) goja.Value{
		"then":    r.promiseThen,
		"catch":   r.promiseCatch,
		"finally": r.promiseFinally,
	}
	for name, fn := range methods {
		if err := proto.Set(name, fn); err != nil {
			return err
		}
	}

	statics := map[string]func(goja.FunctionCall) goja.Value{
		"resolve": r.promiseResolveStatic,
		"reject":  r.promiseRejectStatic,
		"all":     r.promiseAll,
	}
	for name, fn := range statics {
		if err := ctor.Set(name, fn); err != nil {
			return err
		}
	}

	return r.vm.Set("Promise", ctor)
}

// newPromise registers a pending promise backed by obj, or by a new object
// when obj is nil.
func (r *run) newPromise(obj *goja.Object) *promise {
	if obj == nil {
		obj = r.vm.CreateObject(r.promiseProto)
	}
	p := &promise{run: r, obj: obj}
	r.promises[obj] = p
	return p
}

// rejection is a rejected promise with no handler yet. key is the snippet
// promise object or the engine's *goja.Promise.
type rejection struct {
	key   any
	value goja.Value
}

// trackNative follows rejections of the engine's own promises, such as those
// returned by async functions.
func (r *run) trackNative(p *goja.Promise, op goja.PromiseRejectionOperation) {
	switch op {
	case goja.PromiseRejectionReject:
		r.trackRejection(p, p.Result())
	case goja.PromiseRejectionHandle:
		r.untrackRejection(p)
	}
}

func (r *run) trackRejection(key any, v goja.Value) {
	r.unhandled = append(r.unhandled, rejection{key: key, value: v})
}

func (r *run) untrackRejection(key any) {
	r.unhandled = slices.DeleteFunc(r.unhandled, func(rj rejection) bool { return rj.key == key })
}

// reportUnhandled ends the recording with the oldest rejection that was still
// unhandled once the current task and its microtasks finished.
func (r *run) reportUnhandled() {
	if len(r.unhandled) == 0 || r.stopped.Load() {
		return
	}
	v := r.unhandled[0].value
	r.unhandled = nil

	err := r.snippetError(v)
	err.Message = "Uncaught (in promise) " + strings.TrimPrefix(err.Message, "Uncaught ")
	r.abort(err, trace.Step{Kind: trace.LogOutput, Label: err.Message, SourceLine: err.Line})
}

func (r *run) promiseOf(v goja.Value) (*promise, bool) {
	obj, ok := v.(*goja.Object)
	if !ok {
		return nil, false
	}
	p, ok := r.promises[obj]
	return p, ok
}

// callback exposes a Go continuation to the snippet as a function.
func (r *run) callback(fn func(goja.Value)) goja.Value {
	return r.vm.ToValue(func(call goja.FunctionCall) goja.Value {
		fn(call.Argument(0))
		return goja.Undefined()
	})
}

// resolvers returns a resolve/reject pair of which only the first call has
// any effect.
func (p *promise) resolvers() (resolve, reject func(goja.Value)) {
	done := false
	resolve = func(v goja.Value) {
		if done {
			return
		}
		done = true
		p.resolve(v)
	}
	reject = func(v goja.Value) {
		if done {
			return
		}
		done = true
		p.settle(rejected, v)
	}
	return resolve, reject
}

// resolve fulfils p with v, or adopts the eventual state of v when it is a
// thenable.
func (p *promise) resolve(v goja.Value) {
	r := p.run
	obj, ok := v.(*goja.Object)
	if !ok {
		p.settle(fulfilled, v)
		return
	}
	if obj == p.obj {
		p.settle(rejected, r.vm.NewTypeError("Chaining cycle detected for promise"))
		return
	}

	then, ok := goja.AssertFunction(obj.Get("then"))
	if !ok {
		p.settle(fulfilled, v)
		return
	}

	resolve, reject := p.resolvers()
	if _, err := r.call(then, obj, r.callback(resolve), r.callback(reject)); err != nil {
		if tv, ok := thrown(err); ok {
			reject(tv)
		}
	}
}

// settle moves p out of pending and schedules the reactions registered so
// far as one microtask.
func (p *promise) settle(state promiseState, v goja.Value) {
	if p.state != pending {
		return
	}
	p.state, p.value = state, v
	if state == rejected && !p.handled {
		p.run.trackRejection(p.obj, v)
	}

	reactions := p.onFulfilled
	if state == rejected {
		reactions = p.onRejected
	}
	p.onFulfilled, p.onRejected = nil, nil

	p.run.microtask(trace.LabelPromiseSettled, func() {
		for _, fn := range reactions {
			fn(v)
		}
	})
}

// subscribe registers a pair of reactions. On an already settled promise the
// matching reaction gets a microtask of its own.
func (p *promise) subscribe(onFulfilled, onRejected func(goja.Value)) {
	if !p.handled {
		p.handled = true
		p.run.untrackRejection(p.obj)
	}
	switch p.state {
	case pending:
		p.onFulfilled = append(p.onFulfilled, onFulfilled)
		p.onRejected = append(p.onRejected, onRejected)
	case fulfilled:
		v := p.value
		p.run.microtask(trace.LabelPromiseSettled, func() { onFulfilled(v) })
	case rejected:
		v := p.value
		p.run.microtask(trace.LabelPromiseSettled, func() { onRejected(v) })
	}
}

// then chains handlers onto p. A missing handler passes the outcome through.
func (p *promise) then(onFulfilled, onRejected goja.Value) *promise {
	r := p.run
	next := r.newPromise(nil)
	resolve, reject := next.resolvers()

	handler := func(cb goja.Value, passthrough func(goja.Value)) func(goja.Value) {
		fn, ok := goja.AssertFunction(cb)
		if !ok {
			return passthrough
		}
		return func(v goja.Value) {
			res, err := r.call(fn, goja.Undefined(), v)
			if err != nil {
				if tv, ok := thrown(err); ok {
					reject(tv)
				}
				return
			}
			resolve(res)
		}
	}

	p.subscribe(handler(onFulfilled, resolve), handler(onRejected, reject))
	return next
}

func (r *run) thisPromise(call goja.FunctionCall, method string) *promise {
	p, ok := r.promiseOf(call.This)
	if !ok {
		panic(r.vm.NewTypeError("Promise.prototype." + method + " called on incompatible receiver"))
	}
	return p
}

func (r *run) promiseThen(call goja.FunctionCall) goja.Value {
	p := r.thisPromise(call, "then")
	return p.then(call.Argument(0), call.Argument(1)).obj
}

func (r *run) promiseCatch(call goja.FunctionCall) goja.Value {
	p := r.thisPromise(call, "catch")
	return p.then(goja.Undefined(), call.Argument(0)).obj
}

// promiseFinally runs the callback on either outcome and passes the original
// outcome on, unless the callback itself throws.
func (r *run) promiseFinally(call goja.FunctionCall) goja.Value {
	p := r.thisPromise(call, "finally")
	fn, ok := goja.AssertFunction(call.Argument(0))
	if !ok {
		return p.then(goja.Undefined(), goja.Undefined()).obj
	}

	next := r.newPromise(nil)
	resolve, reject := next.resolvers()
	after := func(settle func(goja.Value)) func(goja.Value) {
		return func(v goja.Value) {
			if _, err := r.call(fn, goja.Undefined()); err != nil {
				if tv, ok := thrown(err); ok {
					reject(tv)
				}
				return
			}
			settle(v)
		}
	}
	p.subscribe(after(resolve), after(reject))
	return next.obj
}

// toPromise returns v itself when it is already a snippet promise, otherwise
// a new promise resolved with v.
func (r *run) toPromise(v goja.Value) *promise {
	if p, ok := r.promiseOf(v); ok {
		return p
	}
	p := r.newPromise(nil)
	resolve, _ := p.resolvers()
	resolve(v)
	return p
}

func (r *run) promiseResolveStatic(call goja.FunctionCall) goja.Value {
	return r.toPromise(call.Argument(0)).obj
}

func (r *run) promiseRejectStatic(call goja.FunctionCall) goja.Value {
	p := r.newPromise(nil)
	p.settle(rejected, call.Argument(0))
	return p.obj
}

// promiseAll fulfils with the values of every entry in order, or rejects
// with the first rejection.
func (r *run) promiseAll(call goja.FunctionCall) goja.Value {
	arg := call.Argument(0)
	if goja.IsUndefined(arg) || goja.IsNull(arg) {
		panic(r.vm.NewTypeError("Promise.all requires an array"))
	}
	list := arg.ToObject(r.vm)
	n := int(list.Get("length").ToInteger())

	next := r.newPromise(nil)
	resolve, reject := next.resolvers()
	if n <= 0 {
		resolve(r.vm.NewArray())
		return next.obj
	}

	values := make([]interface{}, n)
	remaining := n
	for i := 0; i < n; i++ {
		r.toPromise(list.Get(strconv.Itoa(i))).subscribe(func(v goja.Value) {
			values[i] = v
			remaining--
			if remaining == 0 {
				resolve(r.vm.NewArray(values...))
			}
		}, reject)
	}
	return next.obj
}
