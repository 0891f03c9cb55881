package trace

import "fmt"

// opener maps each closing kind to the kind that must precede it.
var opener = map[Kind]Kind{
	PopStack:            PushStack,
	DequeueMacrotask:    EnqueueMacrotask,
	DequeueMicrotask:    EnqueueMicrotask,
	ResolvePendingTimer: RegisterPendingTimer,
}

// Validate checks that every pop, dequeue and timer resolution is preceded by
// a matching push, enqueue or registration that has not been consumed yet.
func Validate(steps []Step) error {
	open := make(map[Kind]map[string]int)
	for i, s := range steps {
		if want, closing := opener[s.Kind]; closing {
			if open[want][s.Label] == 0 {
				return fmt.Errorf("trace: step %d (%s) has no preceding %s", i, s, want)
			}
			open[want][s.Label]--
			continue
		}
		switch s.Kind {
		case PushStack, EnqueueMacrotask, EnqueueMicrotask, RegisterPendingTimer:
			if open[s.Kind] == nil {
				open[s.Kind] = make(map[string]int)
			}
			open[s.Kind][s.Label]++
		case HeapUpdate, HeapRemove:
			if s.Heap == nil {
				return fmt.Errorf("trace: step %d (%s) has no heap record", i, s.Kind)
			}
		}
	}
	return nil
}
