package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yousuf/loopviz/internal/sandbox"
	"github.com/yousuf/loopviz/internal/trace"
)

func (c *RecordCmd) Run(g *globals) error {
	src, err := readSnippet(c.File, c.Language)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	ex, err := recordExport(ctx, g, src)
	if err != nil {
		return err
	}

	out := c.Output
	if out == "" {
		out = strings.TrimSuffix(c.File, filepath.Ext(c.File)) + ".trace.json"
	}
	if err := trace.SaveToFile(out, ex); err != nil {
		return err
	}

	fmt.Println(successStyle.Render(fmt.Sprintf("✓ Recorded %d steps", len(ex.Steps))) +
		dimStyle.Render(fmt.Sprintf(" (%s) → %s", ex.EndTime.Sub(ex.StartTime).Round(time.Millisecond), out)))
	return nil
}

// recordExport runs src to completion. Snippet failures end up in the trace
// as a log line and are reported on stderr; only an invalid trace or an
// interrupted recording is an error.
func recordExport(ctx context.Context, g *globals, src sandbox.Source) (trace.Export, error) {
	loader := sandbox.NewLoader(sandbox.Options{
		Timeout:       g.cfg.Recording.Timeout(),
		MaxTimerDelay: g.cfg.Recording.MaxTimerDelay(),
		Logger:        g.logger,
	})

	start := time.Now()
	steps, err := loader.RecordSteps(ctx, src, g.cfg.Recording.MaxSteps)
	end := time.Now()

	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		return trace.Export{}, fmt.Errorf("recording interrupted")
	default:
		fmt.Fprintln(os.Stderr, warnStyle.Render("! "+err.Error()))
	}

	if verr := trace.Validate(steps); verr != nil {
		return trace.Export{}, fmt.Errorf("recorded trace is invalid: %w", verr)
	}

	return trace.Export{
		RunID:     uuid.NewString(),
		Language:  string(src.Language),
		Snippet:   src.Code,
		StartTime: start,
		EndTime:   end,
		Steps:     steps,
	}, nil
}
