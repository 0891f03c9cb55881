package trace

import "fmt"

// Kind identifies what a Step does to the observed machine state.
type Kind string

const (
	PushStack            Kind = "push_stack"
	PopStack             Kind = "pop_stack"
	EnqueueMacrotask     Kind = "enqueue_macrotask"
	DequeueMacrotask     Kind = "dequeue_macrotask"
	EnqueueMicrotask     Kind = "enqueue_microtask"
	DequeueMicrotask     Kind = "dequeue_microtask"
	RegisterPendingTimer Kind = "register_pending_timer"
	ResolvePendingTimer  Kind = "resolve_pending_timer"
	LogOutput            Kind = "log_output"
	HeapUpdate           Kind = "heap_update"
	HeapRemove           Kind = "heap_remove"
	AnimateTick          Kind = "animate_tick"
)

// Kinds returns every step kind in declaration order.
func Kinds() []Kind {
	return []Kind{
		PushStack, PopStack,
		EnqueueMacrotask, DequeueMacrotask,
		EnqueueMicrotask, DequeueMicrotask,
		RegisterPendingTimer, ResolvePendingTimer,
		LogOutput, HeapUpdate, HeapRemove, AnimateTick,
	}
}

// Labels shared by the recorder and anything that inspects a trace.
const (
	LabelTimerCallback     = "timer callback"
	LabelPromiseSettled    = "promise settled"
	LabelMicrotaskCallback = "queueMicrotask callback"
)

// TimerLabel is the pending-timer label for a timer registered with delayMs.
func TimerLabel(delayMs int64) string {
	return fmt.Sprintf("timer(%dms)", delayMs)
}

// CallLabel is the call-stack label for a console-style call.
func CallLabel(method, message string) string {
	return method + "(" + message + ")"
}

// HeapRecord is a snapshot of one tracked object.
type HeapRecord struct {
	Address    string   `json:"address"`
	OwnerNames []string `json:"ownerNames"`
	Value      string   `json:"serializedValue"`
}

// Clone returns a deep copy so callers never share the owner slice.
func (r HeapRecord) Clone() HeapRecord {
	out := r
	out.OwnerNames = append([]string{}, r.OwnerNames...)
	return out
}

// Step is one immutable scheduling event.
type Step struct {
	Kind Kind `json:"kind"`

	// Label is the display string for stack/queue/timer entries, or the
	// message for LogOutput.
	Label string `json:"label,omitempty"`

	// SourceLine is 1-based; zero means it could not be determined.
	SourceLine int         `json:"sourceLine,omitempty"`
	Heap       *HeapRecord `json:"heapRecord,omitempty"`
}

func (s Step) clone() Step {
	if s.Heap != nil {
		h := s.Heap.Clone()
		s.Heap = &h
	}
	return s
}

func (s Step) String() string {
	switch {
	case s.Heap != nil:
		return fmt.Sprintf("%s %s %v", s.Kind, s.Heap.Address, s.Heap.OwnerNames)
	case s.Label != "":
		return fmt.Sprintf("%s %q", s.Kind, s.Label)
	default:
		return string(s.Kind)
	}
}
