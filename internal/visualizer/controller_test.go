package visualizer

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/yousuf/loopviz/internal/sandbox"
	"github.com/yousuf/loopviz/internal/stepper"
	"github.com/yousuf/loopviz/internal/trace"
)

func newController() *Controller {
	return New(Options{
		Sandbox:  sandbox.Options{Timeout: 5 * time.Second, MaxTimerDelay: time.Second},
		MaxSteps: 1000,
		Playback: stepper.Options{Mode: stepper.Settled, Spin: time.Hour},
	})
}

func js(code string) sandbox.Source {
	return sandbox.Source{Code: code, Language: sandbox.JavaScript}
}

// waitPlaying waits for the recording to end and for playback to start, and
// returns the recording result.
func waitPlaying(t *testing.T, c *Controller) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := c.Wait(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		t.Fatal("recording did not finish")
	}
	deadline := time.Now().Add(time.Second)
	for c.Snapshot().State != stepper.Playing {
		if time.Now().After(deadline) {
			t.Fatalf("state = %v, want playing", c.Snapshot().State)
		}
		time.Sleep(time.Millisecond)
	}
	return err
}

func TestRunAndStepThrough(t *testing.T) {
	c := newController()
	id, err := c.Run(js(`console.log("begins");
setTimeout(() => console.log("timeout"), 0);
Promise.resolve().then(() => console.log("promise"));`))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if err := waitPlaying(t, c); err != nil {
		t.Fatalf("recording failed: %v", err)
	}

	for c.Advance() {
	}
	snap := c.Snapshot()
	if snap.RunID != id {
		t.Errorf("run id = %q, want %q", snap.RunID, id)
	}
	if !snap.Complete || snap.Outcome != "ok" {
		t.Errorf("complete=%v outcome=%q", snap.Complete, snap.Outcome)
	}
	if want := []string{"begins", "promise", "timeout"}; !reflect.DeepEqual(snap.ConsoleLog, want) {
		t.Errorf("console = %v, want %v", snap.ConsoleLog, want)
	}
	if len(snap.CallStack) != 0 || len(snap.PendingTimers) != 0 {
		t.Errorf("unfinished state: %+v", snap.View)
	}

	ex, err := c.Trace()
	if err != nil {
		t.Fatalf("trace: %v", err)
	}
	if ex.RunID != id || len(ex.Steps) != snap.Length {
		t.Errorf("export id=%q steps=%d, want %q and %d", ex.RunID, len(ex.Steps), id, snap.Length)
	}
	if err := trace.Validate(ex.Steps); err != nil {
		t.Errorf("validate: %v", err)
	}
}

func TestSnippetErrorBecomesLogLine(t *testing.T) {
	c := newController()
	if _, err := c.Run(js("throw new Error(\"boom\");\nconsole.log(\"after\");")); err != nil {
		t.Fatalf("run: %v", err)
	}

	var se *sandbox.SnippetError
	if err := waitPlaying(t, c); !errors.As(err, &se) {
		t.Fatalf("wait: got %v, want a snippet error", err)
	}
	for c.Advance() {
	}

	snap := c.Snapshot()
	if len(snap.ConsoleLog) != 1 || !strings.Contains(snap.ConsoleLog[0], "boom") {
		t.Errorf("console = %v", snap.ConsoleLog)
	}
	if !strings.Contains(snap.Outcome, "boom") {
		t.Errorf("outcome = %q", snap.Outcome)
	}
}

func TestRunReplacesPreviousRun(t *testing.T) {
	c := newController()
	first, err := c.Run(js(`setTimeout(() => console.log("old"), 1000);`))
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	second, err := c.Run(js(`console.log("new");`))
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if first == second {
		t.Fatal("run ids are not unique")
	}
	if err := waitPlaying(t, c); err != nil {
		t.Fatalf("recording failed: %v", err)
	}
	for c.Advance() {
	}

	if got := c.Snapshot().ConsoleLog; !reflect.DeepEqual(got, []string{"new"}) {
		t.Errorf("console = %v, want [new]", got)
	}
}

func TestStop(t *testing.T) {
	c := newController()
	if _, err := c.Run(js(`setTimeout(() => console.log("late"), 1000);`)); err != nil {
		t.Fatalf("run: %v", err)
	}
	c.Stop()

	snap := c.Snapshot()
	if snap.State != stepper.Idle || snap.RunID != "" {
		t.Errorf("snapshot after stop: %+v", snap)
	}
	if _, err := c.Trace(); !errors.Is(err, ErrNoRun) {
		t.Errorf("trace after stop: got %v, want ErrNoRun", err)
	}
	if err := c.Wait(context.Background()); !errors.Is(err, ErrNoRun) {
		t.Errorf("wait after stop: got %v, want ErrNoRun", err)
	}
}

func TestEmptySnippet(t *testing.T) {
	c := newController()
	if _, err := c.Run(js("  \n")); !errors.Is(err, ErrEmptySnippet) {
		t.Errorf("got %v, want ErrEmptySnippet", err)
	}
}
