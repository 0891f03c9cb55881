package sandbox

import (
	"slices"

	"github.com/dop251/goja"

	"github.com/yousuf/loopviz/internal/heap"
)

const circularSnapshot = "[Circular]"

// Integrity levels set by Object.preventExtensions, seal and freeze.
const (
	extensible = iota
	nonExtensible
	sealed
	frozen
)

// trackedObject is the explicit wrapper every tracked allocation goes
// through. The snippet reads and writes it like a plain object; each write
// or delete refreshes its heap record. The object carries its own address so
// the tracker never has to hold a reference to it.
type trackedObject struct {
	run   *run
	obj   *goja.Object
	addr  string
	keys  []string
	props map[string]goja.Value
	level int
}

func (o *trackedObject) Get(key string) goja.Value {
	return o.props[key]
}

func (o *trackedObject) Set(key string, val goja.Value) bool {
	if _, ok := o.props[key]; !ok {
		if o.level >= nonExtensible {
			return false
		}
		o.keys = append(o.keys, key)
	} else if o.level == frozen {
		return false
	}
	o.props[key] = val
	o.run.heapChanged(o)
	return true
}

func (o *trackedObject) Has(key string) bool {
	_, ok := o.props[key]
	return ok
}

func (o *trackedObject) Delete(key string) bool {
	if _, ok := o.props[key]; !ok {
		return true
	}
	if o.level >= sealed {
		return false
	}
	delete(o.props, key)
	o.keys = slices.DeleteFunc(o.keys, func(k string) bool { return k == key })
	o.run.heapChanged(o)
	return true
}

func (o *trackedObject) Keys() []string {
	return slices.Clone(o.keys)
}

// installHeap exposes the hidden helpers instrumented bindings call, and
// teaches the Object integrity functions about tracked objects.
func (r *run) installHeap() error {
	if err := r.defineHidden(allocHelper, r.heapAlloc); err != nil {
		return err
	}
	if err := r.defineHidden(bindHelper, r.heapBind); err != nil {
		return err
	}

	ctor := r.vm.Get("Object").ToObject(r.vm)
	for name, level := range map[string]int{"preventExtensions": nonExtensible, "seal": sealed, "freeze": frozen} {
		if err := r.patchObject(ctor, name, func(t *trackedObject) goja.Value {
			t.level = max(t.level, level)
			return t.obj
		}); err != nil {
			return err
		}
	}
	checks := map[string]func(*trackedObject) bool{
		"isExtensible": func(t *trackedObject) bool { return t.level == extensible },
		"isSealed":     func(t *trackedObject) bool { return t.level >= sealed || t.level > extensible && len(t.keys) == 0 },
		"isFrozen":     func(t *trackedObject) bool { return t.level == frozen || t.level > extensible && len(t.keys) == 0 },
	}
	for name, check := range checks {
		if err := r.patchObject(ctor, name, func(t *trackedObject) goja.Value {
			return r.vm.ToValue(check(t))
		}); err != nil {
			return err
		}
	}
	return nil
}

// patchObject replaces Object[name] with a function that applies tracked to
// tracked objects and defers to the original for everything else.
func (r *run) patchObject(ctor *goja.Object, name string, tracked func(*trackedObject) goja.Value) error {
	orig, ok := goja.AssertFunction(ctor.Get(name))
	if !ok {
		return nil
	}
	return ctor.Set(name, func(call goja.FunctionCall) goja.Value {
		if t := r.trackedOf(call.Argument(0)); t != nil {
			return tracked(t)
		}
		v, err := orig(goja.Undefined(), call.Arguments...)
		if err != nil {
			panic(err)
		}
		return v
	})
}

func (r *run) trackedOf(v goja.Value) *trackedObject {
	obj, ok := v.(*goja.Object)
	if !ok {
		return nil
	}
	t, _ := obj.Export().(*trackedObject)
	return t
}

// heapAlloc turns a plain object into a tracked one with a fresh address.
// Anything else is returned unchanged.
func (r *run) heapAlloc(call goja.FunctionCall) goja.Value {
	v := call.Argument(0)
	obj, ok := v.(*goja.Object)
	if !ok || obj.ClassName() != "Object" || r.trackedOf(v) != nil {
		return v
	}
	if _, isFunc := goja.AssertFunction(obj); isFunc {
		return v
	}

	t := &trackedObject{run: r, props: make(map[string]goja.Value)}
	for _, key := range obj.Keys() {
		t.keys = append(t.keys, key)
		t.props[key] = obj.Get(key)
	}
	t.obj = r.vm.NewDynamicObject(t)

	addr, err := r.tracker.Allocate(r.snapshot(t.obj), r.lines.callerLine())
	if err != nil {
		return v
	}
	t.addr = addr
	return t.obj
}

// heapBind records that the binding name declared in scope now holds v, and
// returns v.
func (r *run) heapBind(call goja.FunctionCall) goja.Value {
	owner := heap.Owner{Name: call.Argument(0).String(), Scope: int(call.Argument(1).ToInteger())}
	v := call.Argument(2)
	line := r.lines.callerLine()

	if t := r.trackedOf(v); t != nil && t.addr != "" {
		r.tracker.RecordOwnership(t.addr, owner, r.snapshot(t.obj), line)
	} else {
		r.tracker.Release(owner, line)
	}
	return v
}

func (r *run) heapChanged(o *trackedObject) {
	if o.addr == "" || r.stopped.Load() {
		return
	}
	r.tracker.Update(o.addr, r.snapshot(o.obj), r.lines.callerLine())
}

// snapshot serializes a tracked object's current contents.
func (r *run) snapshot(obj *goja.Object) string {
	if s, ok := r.json(obj, true); ok {
		return s
	}
	return circularSnapshot
}
