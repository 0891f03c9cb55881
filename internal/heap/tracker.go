// Package heap assigns synthetic addresses to tracked objects and records
// which binding names alias them.
package heap

import (
	"fmt"
	"slices"

	"github.com/yousuf/loopviz/internal/trace"
)

// Emit receives every heap step the tracker produces.
type Emit func(trace.Step) error

// Owner identifies a binding: its name and the scope that declares it. Two
// bindings with the same name in different scopes are different owners.
type Owner struct {
	Scope int
	Name  string
}

// Tracker holds addresses, owner names and value snapshots only. It never
// references the tracked objects themselves: identity lives on the object,
// which carries its own address.
//
// A Tracker is not safe for concurrent use; it is driven from the event loop
// goroutine of a single recording.
type Tracker struct {
	emit    Emit
	next    int
	records map[string]*trace.HeapRecord
	order   []string
	owners  map[Owner]string   // binding -> address
	held    map[string][]Owner // address -> bindings, in binding order
}

// NewTracker creates a tracker that reports heap steps to emit.
func NewTracker(emit Emit) *Tracker {
	return &Tracker{
		emit:    emit,
		records: make(map[string]*trace.HeapRecord),
		owners:  make(map[Owner]string),
		held:    make(map[string][]Owner),
	}
}

// Allocate assigns a fresh address to a newly constructed object and emits a
// HeapUpdate with an empty owner list.
func (t *Tracker) Allocate(snapshot string, line int) (string, error) {
	t.next++
	addr := fmt.Sprintf("0x%04x", t.next)
	t.records[addr] = &trace.HeapRecord{Address: addr, OwnerNames: []string{}, Value: snapshot}
	t.order = append(t.order, addr)
	return addr, t.emitUpdate(addr, line)
}

// RecordOwnership notes that binding owner now refers to the object at addr.
// A binding owns at most one record: if it previously referred to another
// object, that record loses it first.
func (t *Tracker) RecordOwnership(addr string, owner Owner, snapshot string, line int) error {
	if prev, ok := t.owners[owner]; ok && prev != addr {
		if err := t.Release(owner, line); err != nil {
			return err
		}
	}

	rec := t.record(addr)
	rec.Value = snapshot
	if !slices.Contains(t.held[addr], owner) {
		t.held[addr] = append(t.held[addr], owner)
	}
	rec.OwnerNames = names(t.held[addr])
	t.owners[owner] = addr
	return t.emitUpdate(addr, line)
}

// Release drops owner from whatever record it refers to. A record left
// without owners is removed from the heap.
func (t *Tracker) Release(owner Owner, line int) error {
	addr, ok := t.owners[owner]
	if !ok {
		return nil
	}
	delete(t.owners, owner)
	t.held[addr] = slices.DeleteFunc(t.held[addr], func(o Owner) bool { return o == owner })

	rec, ok := t.records[addr]
	if !ok {
		return nil
	}
	rec.OwnerNames = names(t.held[addr])
	if len(rec.OwnerNames) > 0 {
		return t.emitUpdate(addr, line)
	}

	delete(t.records, addr)
	delete(t.held, addr)
	t.order = slices.DeleteFunc(t.order, func(a string) bool { return a == addr })
	return t.emit(trace.Step{
		Kind:       trace.HeapRemove,
		SourceLine: line,
		Heap:       &trace.HeapRecord{Address: addr, OwnerNames: []string{}, Value: rec.Value},
	})
}

// Update refreshes the snapshot of the object at addr after a mutation.
func (t *Tracker) Update(addr, snapshot string, line int) error {
	t.record(addr).Value = snapshot
	return t.emitUpdate(addr, line)
}

// Records returns the live records in allocation order.
func (t *Tracker) Records() []trace.HeapRecord {
	out := make([]trace.HeapRecord, 0, len(t.order))
	for _, addr := range t.order {
		out = append(out, t.records[addr].Clone())
	}
	return out
}

// record returns the record for addr, reviving it if it was removed while the
// object stayed reachable through an unnamed reference.
func (t *Tracker) record(addr string) *trace.HeapRecord {
	rec, ok := t.records[addr]
	if !ok {
		rec = &trace.HeapRecord{Address: addr, OwnerNames: []string{}}
		t.records[addr] = rec
		t.order = append(t.order, addr)
	}
	return rec
}

func (t *Tracker) emitUpdate(addr string, line int) error {
	rec := t.records[addr].Clone()
	return t.emit(trace.Step{Kind: trace.HeapUpdate, SourceLine: line, Heap: &rec})
}

// names lists the distinct binding names of owners in order.
func names(owners []Owner) []string {
	out := []string{}
	for _, o := range owners {
		if !slices.Contains(out, o.Name) {
			out = append(out, o.Name)
		}
	}
	return out
}
