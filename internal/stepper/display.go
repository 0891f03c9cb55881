// Package stepper replays a recorded trace one step at a time and derives the
// observable machine state at every cursor position.
package stepper

import (
	"slices"

	"github.com/yousuf/loopviz/internal/trace"
)

// DisplayState is what the rendering layer shows. It is a pure function of
// the trace prefix trace[0:Cursor].
type DisplayState struct {
	CallStack      []string           `json:"callStack"`
	MacrotaskQueue []string           `json:"macrotaskQueue"`
	MicrotaskQueue []string           `json:"microtaskQueue"`
	PendingTimers  []string           `json:"pendingTimers"`
	ConsoleLog     []string           `json:"consoleLog"`
	Heap           []trace.HeapRecord `json:"heap"`
	CurrentLine    int                `json:"currentLine"`
	Cursor         int                `json:"cursor"`
}

// Apply advances the state by one step.
func (d *DisplayState) Apply(s trace.Step) {
	switch s.Kind {
	case trace.PushStack:
		d.CallStack = append(d.CallStack, s.Label)
	case trace.PopStack:
		d.CallStack = removeLast(d.CallStack, s.Label)
	case trace.EnqueueMacrotask:
		d.MacrotaskQueue = append(d.MacrotaskQueue, s.Label)
	case trace.DequeueMacrotask:
		d.MacrotaskQueue = removeFirst(d.MacrotaskQueue, s.Label)
	case trace.EnqueueMicrotask:
		d.MicrotaskQueue = append(d.MicrotaskQueue, s.Label)
	case trace.DequeueMicrotask:
		d.MicrotaskQueue = removeFirst(d.MicrotaskQueue, s.Label)
	case trace.RegisterPendingTimer:
		d.PendingTimers = append(d.PendingTimers, s.Label)
	case trace.ResolvePendingTimer:
		d.PendingTimers = removeFirst(d.PendingTimers, s.Label)
	case trace.LogOutput:
		d.ConsoleLog = append(d.ConsoleLog, s.Label)
	case trace.HeapUpdate:
		if s.Heap != nil {
			d.upsertHeap(s.Heap.Clone())
		}
	case trace.HeapRemove:
		if s.Heap != nil {
			d.Heap = slices.DeleteFunc(d.Heap, func(r trace.HeapRecord) bool { return r.Address == s.Heap.Address })
		}
	case trace.AnimateTick:
		// transient, tracked by the Stepper
	}

	if s.SourceLine > 0 {
		d.CurrentLine = s.SourceLine
	}
	d.Cursor++
}

func (d *DisplayState) upsertHeap(rec trace.HeapRecord) {
	for i := range d.Heap {
		if d.Heap[i].Address == rec.Address {
			d.Heap[i] = rec
			return
		}
	}
	d.Heap = append(d.Heap, rec)
}

// Clone returns a deep copy.
func (d DisplayState) Clone() DisplayState {
	out := d
	out.CallStack = slices.Clone(d.CallStack)
	out.MacrotaskQueue = slices.Clone(d.MacrotaskQueue)
	out.MicrotaskQueue = slices.Clone(d.MicrotaskQueue)
	out.PendingTimers = slices.Clone(d.PendingTimers)
	out.ConsoleLog = slices.Clone(d.ConsoleLog)
	if d.Heap != nil {
		out.Heap = make([]trace.HeapRecord, len(d.Heap))
		for i, rec := range d.Heap {
			out.Heap[i] = rec.Clone()
		}
	}
	return out
}

// Replay builds the state after the first k steps from an empty baseline.
func Replay(steps []trace.Step, k int) DisplayState {
	var d DisplayState
	for _, s := range steps[:min(k, len(steps))] {
		d.Apply(s)
	}
	return d
}

func removeLast(list []string, label string) []string {
	for i := len(list) - 1; i >= 0; i-- {
		if list[i] == label {
			return slices.Delete(list, i, i+1)
		}
	}
	return list
}

func removeFirst(list []string, label string) []string {
	if i := slices.Index(list, label); i >= 0 {
		return slices.Delete(list, i, i+1)
	}
	return list
}
