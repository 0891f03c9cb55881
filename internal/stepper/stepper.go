package stepper

import (
	"fmt"
	"sync"
	"time"

	"github.com/yousuf/loopviz/internal/trace"
)

// State is the Stepper lifecycle state.
type State int

const (
	Idle State = iota
	Recording
	Playing
	Paused
	Complete
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Recording:
		return "recording"
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	case Complete:
		return "complete"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Mode decides when playback may start relative to recording.
type Mode string

const (
	// Live plays while the trace is still growing.
	Live Mode = "live"
	// Settled waits until the trace is sealed.
	Settled Mode = "settled"
)

// Source is the read side of a trace buffer.
type Source interface {
	Len() int
	At(i int) trace.Step
	Sealed() bool
	Done() <-chan struct{}
}

// View is a consistent copy of everything the rendering layer shows.
type View struct {
	DisplayState
	State     State  `json:"-"`
	StateName string `json:"state"`
	Animating bool   `json:"animating"`
	Complete  bool   `json:"complete"`
	Length    int    `json:"length"`
	Sealed    bool   `json:"sealed"`
}

// Options configures a Stepper. A zero Interval disables the automatic
// cadence; only manual Advance moves the cursor then.
type Options struct {
	Interval time.Duration
	Spin     time.Duration
	Mode     Mode
	OnChange func(View)
}

// Stepper owns the read cursor into one trace at a time.
type Stepper struct {
	opts Options

	mu        sync.Mutex
	gen       int
	src       Source
	state     State
	display   DisplayState
	animating bool
	spin      *time.Timer
	quit      chan struct{}
}

// New returns an idle Stepper.
func New(opts Options) *Stepper {
	if opts.Mode == "" {
		opts.Mode = Live
	}
	return &Stepper{opts: opts}
}

// Start discards any current trace and begins playing src.
func (s *Stepper) Start(src Source) {
	s.mu.Lock()
	s.resetLocked()
	s.gen++
	gen := s.gen
	s.src = src
	s.quit = make(chan struct{})
	quit := s.quit

	if s.opts.Mode == Settled && !src.Sealed() {
		s.state = Recording
		go s.awaitSealed(gen, src, quit)
	} else {
		s.state = Playing
		s.startCadence(gen, quit)
	}
	v := s.viewLocked()
	s.mu.Unlock()

	s.notify(v)
}

func (s *Stepper) awaitSealed(gen int, src Source, quit chan struct{}) {
	select {
	case <-src.Done():
	case <-quit:
		return
	}

	s.mu.Lock()
	if s.gen != gen || s.state != Recording {
		s.mu.Unlock()
		return
	}
	s.state = Playing
	s.startCadence(gen, quit)
	v := s.viewLocked()
	s.mu.Unlock()

	s.notify(v)
}

// startCadence must be called with mu held.
func (s *Stepper) startCadence(gen int, quit chan struct{}) {
	if s.opts.Interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(s.opts.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-quit:
				return
			case <-ticker.C:
				if done := s.tick(gen); done {
					return
				}
			}
		}
	}()
}

// tick advances once if the Stepper is playing. It reports whether the
// cadence for gen should end.
func (s *Stepper) tick(gen int) bool {
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return true
	}
	if s.state != Playing {
		s.mu.Unlock()
		return false
	}
	changed := s.advanceLocked()
	done := s.state == Complete
	v := s.viewLocked()
	s.mu.Unlock()

	if changed {
		s.notify(v)
	}
	return done
}

// Advance applies the next step. It reports whether the cursor moved.
func (s *Stepper) Advance() bool {
	s.mu.Lock()
	if s.state != Playing && s.state != Paused {
		s.mu.Unlock()
		return false
	}
	changed := s.advanceLocked()
	v := s.viewLocked()
	s.mu.Unlock()

	if changed {
		s.notify(v)
	}
	return changed
}

// advanceLocked applies trace[cursor] when it exists and reports whether the
// view changed. The sealed flag is read before the length so a final step
// appended by Seal is never skipped.
func (s *Stepper) advanceLocked() bool {
	sealed := s.src.Sealed()
	n := s.src.Len()

	changed := false
	if s.display.Cursor < n {
		step := s.src.At(s.display.Cursor)
		s.display.Apply(step)
		if step.Kind == trace.AnimateTick {
			s.startSpinLocked()
		}
		changed = true
	}

	if sealed && s.display.Cursor >= n {
		if s.state != Complete {
			changed = true
		}
		s.state = Complete
	}
	return changed
}

func (s *Stepper) startSpinLocked() {
	s.animating = true
	if s.spin != nil {
		s.spin.Stop()
	}
	gen := s.gen
	var t *time.Timer
	t = time.AfterFunc(s.opts.Spin, func() {
		s.mu.Lock()
		if s.gen != gen || s.spin != t {
			s.mu.Unlock()
			return
		}
		s.animating = false
		s.spin = nil
		v := s.viewLocked()
		s.mu.Unlock()

		s.notify(v)
	})
	s.spin = t
}

// Retreat moves the cursor back by one by replaying the shorter prefix from
// an empty state. Retreating pauses the cadence.
func (s *Stepper) Retreat() bool {
	s.mu.Lock()
	switch s.state {
	case Playing, Paused, Complete:
	default:
		s.mu.Unlock()
		return false
	}
	if s.display.Cursor == 0 {
		s.mu.Unlock()
		return false
	}

	target := s.display.Cursor - 1
	var d DisplayState
	for i := 0; i < target; i++ {
		d.Apply(s.src.At(i))
	}
	s.display = d
	s.stopSpinLocked()
	s.state = Paused
	v := s.viewLocked()
	s.mu.Unlock()

	s.notify(v)
	return true
}

// Pause suspends the cadence.
func (s *Stepper) Pause() bool {
	return s.transition(Playing, Paused)
}

// Resume restarts a paused cadence.
func (s *Stepper) Resume() bool {
	return s.transition(Paused, Playing)
}

func (s *Stepper) transition(from, to State) bool {
	s.mu.Lock()
	if s.state != from {
		s.mu.Unlock()
		return false
	}
	s.state = to
	v := s.viewLocked()
	s.mu.Unlock()

	s.notify(v)
	return true
}

// Stop returns to Idle and forgets the trace.
func (s *Stepper) Stop() {
	s.mu.Lock()
	s.resetLocked()
	s.gen++
	v := s.viewLocked()
	s.mu.Unlock()

	s.notify(v)
}

func (s *Stepper) resetLocked() {
	if s.quit != nil {
		close(s.quit)
		s.quit = nil
	}
	s.stopSpinLocked()
	s.src = nil
	s.display = DisplayState{}
	s.state = Idle
}

func (s *Stepper) stopSpinLocked() {
	if s.spin != nil {
		s.spin.Stop()
		s.spin = nil
	}
	s.animating = false
}

// State returns the current lifecycle state.
func (s *Stepper) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// View returns a snapshot of the display.
func (s *Stepper) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

func (s *Stepper) viewLocked() View {
	v := View{
		DisplayState: s.display.Clone(),
		State:        s.state,
		StateName:    s.state.String(),
		Animating:    s.animating,
		Complete:     s.state == Complete,
	}
	if s.src != nil {
		v.Sealed = s.src.Sealed()
		v.Length = s.src.Len()
	}
	return v
}

func (s *Stepper) notify(v View) {
	if s.opts.OnChange != nil {
		s.opts.OnChange(v)
	}
}
