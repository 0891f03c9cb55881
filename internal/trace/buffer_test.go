package trace

import (
	"errors"
	"sync"
	"testing"
)

func TestBufferAppendAndSeal(t *testing.T) {
	b := NewBuffer(0)
	if err := b.Append(Step{Kind: PushStack, Label: "a"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if b.Sealed() {
		t.Fatal("buffer sealed before Seal")
	}

	b.Seal(Step{Kind: LogOutput, Label: "done"})
	select {
	case <-b.Done():
	default:
		t.Fatal("Done not closed after Seal")
	}

	if err := b.Append(Step{Kind: PopStack, Label: "a"}); !errors.Is(err, ErrSealed) {
		t.Fatalf("append after seal: got %v, want ErrSealed", err)
	}
	b.Seal(Step{Kind: LogOutput, Label: "ignored"})

	steps := b.Steps()
	if len(steps) != 2 || steps[1].Label != "done" {
		t.Fatalf("unexpected steps: %v", steps)
	}
}

func TestBufferLimit(t *testing.T) {
	b := NewBuffer(2)
	for i := 0; i < 2; i++ {
		if err := b.Append(Step{Kind: AnimateTick}); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	if err := b.Append(Step{Kind: AnimateTick}); !errors.Is(err, ErrFull) {
		t.Fatalf("got %v, want ErrFull", err)
	}
	// the final log line bypasses the limit
	b.Seal(Step{Kind: LogOutput, Label: "limit"})
	if b.Len() != 3 {
		t.Fatalf("len = %d, want 3", b.Len())
	}
}

func TestBufferHeapRecordsAreCopied(t *testing.T) {
	b := NewBuffer(0)
	rec := &HeapRecord{Address: "0x0001", OwnerNames: []string{"a"}}
	_ = b.Append(Step{Kind: HeapUpdate, Heap: rec})
	rec.OwnerNames[0] = "mutated"

	if got := b.At(0).Heap.OwnerNames[0]; got != "a" {
		t.Fatalf("stored record changed with caller's slice: %q", got)
	}
	out := b.At(0)
	out.Heap.OwnerNames[0] = "again"
	if got := b.At(0).Heap.OwnerNames[0]; got != "a" {
		t.Fatalf("stored record changed through At: %q", got)
	}
}

func TestBufferConcurrentReadWhileGrowing(t *testing.T) {
	b := NewBuffer(0)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			_ = b.Append(Step{Kind: AnimateTick})
		}
		b.Seal()
	}()

	last := 0
	for !b.Sealed() {
		n := b.Len()
		if n < last {
			t.Fatalf("length shrank from %d to %d", last, n)
		}
		last = n
	}
	wg.Wait()
	if b.Len() != 500 {
		t.Fatalf("len = %d, want 500", b.Len())
	}
}
