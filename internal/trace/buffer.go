package trace

import (
	"errors"
	"sync"
)

var (
	// ErrSealed is returned when appending to a buffer whose recording has ended.
	ErrSealed = errors.New("trace: buffer is sealed")
	// ErrFull is returned once the buffer holds its maximum number of steps.
	ErrFull = errors.New("trace: buffer is full")
)

// Buffer is the append-only step sequence of one recording.
//
// A single recorder appends while any number of readers may observe the
// growing prefix. Once Seal is called the buffer is read-only for good.
type Buffer struct {
	mu       sync.RWMutex
	steps    []Step
	maxSteps int
	sealed   bool
	done     chan struct{}
}

// NewBuffer creates an empty buffer. maxSteps <= 0 means unbounded.
func NewBuffer(maxSteps int) *Buffer {
	return &Buffer{
		maxSteps: maxSteps,
		done:     make(chan struct{}),
	}
}

// Append adds a step to the end of the buffer.
func (b *Buffer) Append(step Step) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.sealed {
		return ErrSealed
	}
	if b.maxSteps > 0 && len(b.steps) >= b.maxSteps {
		return ErrFull
	}
	b.steps = append(b.steps, step.clone())
	return nil
}

// Seal appends the final steps, ignoring the size limit, and freezes the
// buffer. Sealing twice is a no-op and the second set of steps is dropped.
func (b *Buffer) Seal(final ...Step) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.sealed {
		return
	}
	for _, s := range final {
		b.steps = append(b.steps, s.clone())
	}
	b.sealed = true
	close(b.done)
}

// Limit returns the maximum number of steps Append accepts, or 0.
func (b *Buffer) Limit() int {
	return b.maxSteps
}

// Sealed reports whether recording has completed.
func (b *Buffer) Sealed() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.sealed
}

// Done is closed when the buffer is sealed.
func (b *Buffer) Done() <-chan struct{} {
	return b.done
}

// Len returns the number of steps recorded so far.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.steps)
}

// At returns the step at index i.
func (b *Buffer) At(i int) Step {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.steps[i].clone()
}

// Steps returns a copy of the steps recorded so far.
func (b *Buffer) Steps() []Step {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]Step, len(b.steps))
	for i, s := range b.steps {
		out[i] = s.clone()
	}
	return out
}
