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

	"github.com/yousuf/loopviz/internal/stepper"
	"github.com/yousuf/loopviz/internal/trace"
)

func (c *PlayCmd) Run(g *globals) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	isTrace := strings.EqualFold(filepath.Ext(c.File), ".json")
	if c.Watch && isTrace {
		return fmt.Errorf("--watch needs a snippet file, not a trace")
	}

	if err := c.playOnce(ctx, g); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}
	if !c.Watch {
		return nil
	}

	fmt.Println(dimStyle.Render("watching " + c.File + " for changes (Ctrl+C to quit)"))
	return watchFile(ctx, c.File, func() error {
		fmt.Println(titleStyle.Render("── " + c.File + " changed ──"))
		if err := c.playOnce(ctx, g); err != nil && ctx.Err() == nil {
			fmt.Fprintln(os.Stderr, warnStyle.Render("! "+err.Error()))
		}
		return nil
	})
}

func (c *PlayCmd) playOnce(ctx context.Context, g *globals) error {
	ex, err := c.load(ctx, g)
	if err != nil {
		return err
	}
	snippet := strings.Split(ex.Snippet, "\n")

	if c.At >= 0 {
		if c.At > len(ex.Steps) {
			return fmt.Errorf("--at %d is past the end of a %d-step trace", c.At, len(ex.Steps))
		}
		v := stepper.View{DisplayState: stepper.Replay(ex.Steps, c.At), Length: len(ex.Steps), Sealed: true}
		fmt.Print(renderView(v, snippet))
		return nil
	}

	interval := g.cfg.Playback.Interval()
	if c.Interval >= 0 {
		interval = time.Duration(c.Interval) * time.Millisecond
	}
	return play(ctx, ex.Steps, interval, g.cfg.Playback.Spin(), func(v stepper.View) {
		fmt.Print(renderView(v, snippet))
	})
}

// load reads a trace file, or records the snippet when the file is not JSON.
func (c *PlayCmd) load(ctx context.Context, g *globals) (trace.Export, error) {
	if strings.EqualFold(filepath.Ext(c.File), ".json") {
		ex, err := trace.LoadFromFile(c.File)
		if err != nil {
			return trace.Export{}, err
		}
		if err := trace.Validate(ex.Steps); err != nil {
			return trace.Export{}, fmt.Errorf("%s: %w", c.File, err)
		}
		return ex, nil
	}

	src, err := readSnippet(c.File, c.Language)
	if err != nil {
		return trace.Export{}, err
	}
	return recordExport(ctx, g, src)
}

// play feeds a finished trace through a Stepper and hands every frame to
// render until playback completes. A zero interval renders all frames
// without waiting.
func play(ctx context.Context, steps []trace.Step, interval, spin time.Duration, render func(stepper.View)) error {
	buf := trace.NewBuffer(0)
	for _, step := range steps {
		if err := buf.Append(step); err != nil {
			return err
		}
	}
	buf.Seal()

	frames := make(chan stepper.View)
	done := make(chan struct{})

	st := stepper.New(stepper.Options{
		Interval: interval,
		Spin:     spin,
		Mode:     stepper.Settled,
		OnChange: func(v stepper.View) {
			select {
			case frames <- v:
			case <-done:
			}
		},
	})

	if interval <= 0 {
		go func() {
			st.Start(buf)
			for st.Advance() {
			}
		}()
	} else {
		go st.Start(buf)
	}
	defer func() {
		close(done)
		st.Stop()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case v := <-frames:
			render(v)
			if v.Complete {
				return nil
			}
		}
	}
}
