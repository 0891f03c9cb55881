package heap

import (
	"slices"
	"testing"

	"github.com/yousuf/loopviz/internal/trace"
)

func newTestTracker() (*Tracker, *[]trace.Step) {
	var steps []trace.Step
	return NewTracker(func(s trace.Step) error {
		steps = append(steps, s)
		return nil
	}), &steps
}

func TestAllocateAssignsUniqueAddresses(t *testing.T) {
	tr, steps := newTestTracker()
	a, err := tr.Allocate("{}", 1)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	b, _ := tr.Allocate("{}", 2)
	if a == b {
		t.Fatalf("addresses collide: %s", a)
	}
	if len(*steps) != 2 || (*steps)[0].Kind != trace.HeapUpdate || len((*steps)[0].Heap.OwnerNames) != 0 {
		t.Fatalf("unexpected steps: %v", *steps)
	}
}

func TestAliasingAddsOwnerToSameRecord(t *testing.T) {
	tr, steps := newTestTracker()
	addr, _ := tr.Allocate("{}", 1)
	_ = tr.RecordOwnership(addr, Owner{Name: "a"}, "{}", 1)
	_ = tr.RecordOwnership(addr, Owner{Name: "b"}, "{}", 2)
	_ = tr.RecordOwnership(addr, Owner{Name: "b"}, "{}", 3)

	recs := tr.Records()
	if len(recs) != 1 {
		t.Fatalf("got %d records, want 1", len(recs))
	}
	if !slices.Equal(recs[0].OwnerNames, []string{"a", "b"}) {
		t.Fatalf("owners = %v, want [a b]", recs[0].OwnerNames)
	}

	last := (*steps)[len(*steps)-1]
	if last.Kind != trace.HeapUpdate || last.Heap.Address != addr {
		t.Fatalf("last step = %v", last)
	}
}

func TestRebindingReleasesPreviousRecord(t *testing.T) {
	tr, steps := newTestTracker()
	first, _ := tr.Allocate(`{"n":1}`, 1)
	second, _ := tr.Allocate(`{"n":2}`, 2)
	_ = tr.RecordOwnership(first, Owner{Name: "a"}, `{"n":1}`, 1)
	_ = tr.RecordOwnership(second, Owner{Name: "a"}, `{"n":2}`, 3)

	var removed bool
	for _, s := range *steps {
		if s.Kind == trace.HeapRemove && s.Heap.Address == first {
			removed = true
		}
	}
	if !removed {
		t.Fatalf("expected HeapRemove for %s, steps: %v", first, *steps)
	}
	recs := tr.Records()
	if len(recs) != 1 || recs[0].Address != second {
		t.Fatalf("unexpected records: %v", recs)
	}
}

func TestReleaseKeepsRecordWithRemainingOwner(t *testing.T) {
	tr, steps := newTestTracker()
	addr, _ := tr.Allocate("{}", 1)
	_ = tr.RecordOwnership(addr, Owner{Name: "a"}, "{}", 1)
	_ = tr.RecordOwnership(addr, Owner{Name: "b"}, "{}", 2)
	_ = tr.Release(Owner{Name: "a"}, 3)

	last := (*steps)[len(*steps)-1]
	if last.Kind != trace.HeapUpdate || !slices.Equal(last.Heap.OwnerNames, []string{"b"}) {
		t.Fatalf("last step = %v", last)
	}
	if err := tr.Release(Owner{Name: "unknown"}, 4); err != nil {
		t.Fatalf("release unknown name: %v", err)
	}
}

func TestUpdateSnapshotsValue(t *testing.T) {
	tr, steps := newTestTracker()
	addr, _ := tr.Allocate(`{}`, 1)
	_ = tr.Update(addr, `{"x":1}`, 2)
	_ = tr.Update(addr, `{"x":2}`, 3)

	if got := (*steps)[1].Heap.Value; got != `{"x":1}` {
		t.Fatalf("earlier snapshot changed: %s", got)
	}
	if got := tr.Records()[0].Value; got != `{"x":2}` {
		t.Fatalf("current value = %s", got)
	}
}

func TestOwnersAreScoped(t *testing.T) {
	tr, steps := newTestTracker()
	outer, _ := tr.Allocate(`{"a":1}`, 1)
	inner, _ := tr.Allocate(`{"b":2}`, 2)
	_ = tr.RecordOwnership(outer, Owner{Scope: 0, Name: "o"}, `{"a":1}`, 1)
	_ = tr.RecordOwnership(inner, Owner{Scope: 2, Name: "o"}, `{"b":2}`, 2)

	for _, s := range *steps {
		if s.Kind == trace.HeapRemove {
			t.Fatalf("shadowing binding removed a record: %v", s)
		}
	}
	recs := tr.Records()
	if len(recs) != 2 {
		t.Fatalf("got %d records, want 2", len(recs))
	}
	for _, r := range recs {
		if !slices.Equal(r.OwnerNames, []string{"o"}) {
			t.Fatalf("owners of %s = %v, want [o]", r.Address, r.OwnerNames)
		}
	}

	_ = tr.Release(Owner{Scope: 2, Name: "o"}, 3)
	recs = tr.Records()
	if len(recs) != 1 || recs[0].Address != outer {
		t.Fatalf("records after inner release = %v", recs)
	}
}

func TestSameNameInTwoScopesListedOnce(t *testing.T) {
	tr, _ := newTestTracker()
	addr, _ := tr.Allocate("{}", 1)
	_ = tr.RecordOwnership(addr, Owner{Scope: 0, Name: "o"}, "{}", 1)
	_ = tr.RecordOwnership(addr, Owner{Scope: 3, Name: "o"}, "{}", 2)
	_ = tr.Release(Owner{Scope: 3, Name: "o"}, 3)

	recs := tr.Records()
	if len(recs) != 1 || !slices.Equal(recs[0].OwnerNames, []string{"o"}) {
		t.Fatalf("records = %v", recs)
	}
}
