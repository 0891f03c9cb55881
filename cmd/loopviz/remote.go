package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/yousuf/loopviz/internal/client"
	"github.com/yousuf/loopviz/internal/trace"
)

func (c *RemoteCmd) Run(g *globals) error {
	src, err := readSnippet(c.File, c.Language)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	target := client.Target{URL: c.URL, Headers: c.Header}
	if c.Spawn != "" {
		target = client.Target{Command: c.Spawn}
		if g.configPath != "" {
			target.Env = map[string]string{"CONFIG_PATH": g.configPath}
		}
	}

	cl, err := client.Dial(ctx, target)
	if err != nil {
		return err
	}
	defer cl.Close()

	snap, err := cl.RunSnippet(ctx, src.Code, string(src.Language))
	if err != nil {
		return err
	}
	if snap.Outcome != "ok" {
		fmt.Fprintln(os.Stderr, warnStyle.Render("! "+snap.Outcome))
	}
	// The server plays on its own cadence; take over stepping from here.
	if snap, err = cl.Pause(ctx); err != nil {
		return err
	}

	interval := g.cfg.Playback.Interval()
	if c.Interval >= 0 {
		interval = time.Duration(c.Interval) * time.Millisecond
	}

	lines := strings.Split(src.Code, "\n")
	fmt.Print(renderView(snap.View, lines))
	for !snap.Complete {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
		if snap, err = cl.StepForward(ctx, 1); err != nil {
			return err
		}
		fmt.Print(renderView(snap.View, lines))
	}

	if c.Save != "" {
		ex, err := cl.Trace(ctx)
		if err != nil {
			return err
		}
		if err := trace.SaveToFile(c.Save, ex); err != nil {
			return err
		}
		fmt.Println(dimStyle.Render("trace saved to " + c.Save))
	}
	return nil
}
