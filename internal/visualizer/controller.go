// Package visualizer ties one recording to one stepper and exposes the user
// commands of the visualizer: run, step forward, step backward, pause,
// resume and stop.
package visualizer

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yousuf/loopviz/internal/sandbox"
	"github.com/yousuf/loopviz/internal/stepper"
	"github.com/yousuf/loopviz/internal/trace"
)

// ErrEmptySnippet is returned by Run for blank code.
var ErrEmptySnippet = errors.New("visualizer: empty snippet")

// ErrNoRun is returned when a command needs a run and none exists.
var ErrNoRun = errors.New("visualizer: no run")

// Options configures a Controller.
type Options struct {
	Sandbox  sandbox.Options
	MaxSteps int
	Playback stepper.Options
}

// Snapshot is the state of the current run as the rendering layer sees it.
type Snapshot struct {
	RunID string `json:"runId,omitempty"`
	stepper.View
	// Outcome is empty while recording, "ok" after a clean finish, and the
	// failure message otherwise.
	Outcome string `json:"outcome,omitempty"`
}

// Controller owns at most one run at a time. Starting a run cancels the
// previous one and gives the new one its own buffer.
type Controller struct {
	loader  *sandbox.Loader
	stepper *stepper.Stepper
	opts    Options

	mu      sync.Mutex
	current *runState
}

type runState struct {
	id      string
	src     sandbox.Source
	buf     *trace.Buffer
	rec     *sandbox.Recording
	started time.Time
	ended   time.Time
}

// New creates an idle controller.
func New(opts Options) *Controller {
	return &Controller{
		loader:  sandbox.NewLoader(opts.Sandbox),
		stepper: stepper.New(opts.Playback),
		opts:    opts,
	}
}

// Run clears the display, records src into a fresh buffer and starts
// playback. It returns the new run ID.
func (c *Controller) Run(src sandbox.Source) (string, error) {
	if strings.TrimSpace(src.Code) == "" {
		return "", ErrEmptySnippet
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current != nil {
		c.current.rec.Cancel()
	}

	rs := &runState{
		id:      uuid.NewString(),
		src:     src,
		buf:     trace.NewBuffer(c.opts.MaxSteps),
		started: time.Now(),
	}
	rs.rec = c.loader.Record(context.Background(), src, rs.buf)
	c.current = rs
	c.stepper.Start(rs.buf)

	go func() {
		<-rs.rec.Done()
		c.mu.Lock()
		rs.ended = time.Now()
		c.mu.Unlock()
	}()
	return rs.id, nil
}

// Advance steps forward once.
func (c *Controller) Advance() bool { return c.stepper.Advance() }

// Retreat steps backward once.
func (c *Controller) Retreat() bool { return c.stepper.Retreat() }

// Pause suspends the cadence.
func (c *Controller) Pause() bool { return c.stepper.Pause() }

// Resume restarts the cadence.
func (c *Controller) Resume() bool { return c.stepper.Resume() }

// Stop cancels the current recording and discards its trace.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current != nil {
		c.current.rec.Cancel()
		c.current = nil
	}
	c.stepper.Stop()
}

// Wait blocks until the current recording has ended and returns its result.
func (c *Controller) Wait(ctx context.Context) error {
	c.mu.Lock()
	rs := c.current
	c.mu.Unlock()
	if rs == nil {
		return ErrNoRun
	}

	select {
	case <-rs.rec.Done():
		return rs.rec.Wait()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot returns the current display together with the run ID.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	rs := c.current
	c.mu.Unlock()

	s := Snapshot{View: c.stepper.View()}
	if rs != nil {
		s.RunID = rs.id
		s.Outcome = outcome(rs.rec)
	}
	return s
}

// Trace exports everything recorded so far for the current run.
func (c *Controller) Trace() (trace.Export, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rs := c.current
	if rs == nil {
		return trace.Export{}, ErrNoRun
	}

	return trace.Export{
		RunID:     rs.id,
		Language:  string(rs.src.Language),
		Snippet:   rs.src.Code,
		StartTime: rs.started,
		EndTime:   rs.ended,
		Steps:     rs.buf.Steps(),
	}, nil
}

func outcome(rec *sandbox.Recording) string {
	select {
	case <-rec.Done():
	default:
		return ""
	}
	if err := rec.Wait(); err != nil {
		return err.Error()
	}
	return "ok"
}
