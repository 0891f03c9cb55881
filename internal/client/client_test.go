package client

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/yousuf/loopviz/internal/config"
	"github.com/yousuf/loopviz/internal/server"
	"github.com/yousuf/loopviz/internal/session"
)

func connect(t *testing.T) *Client {
	t.Helper()
	ctx := context.Background()

	cfg := config.Default()
	cfg.Playback.IntervalMs = int(time.Hour / time.Millisecond)
	mgr := session.NewManager(cfg)
	t.Cleanup(func() { mgr.CloseAll() })

	clientTransport, serverTransport := mcp.NewInMemoryTransports()
	if _, err := server.NewMcpServer(mgr).Connect(ctx, serverTransport, nil); err != nil {
		t.Fatalf("server connect: %v", err)
	}

	c, err := Connect(ctx, clientTransport)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestRoundTrip(t *testing.T) {
	c := connect(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if len(c.Tools()) == 0 {
		t.Fatal("no tools listed")
	}

	snap, err := c.RunSnippet(ctx, `const a = { n: 1 };
queueMicrotask(() => console.log("micro"));
console.log("sync");`, "")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if snap.Outcome != "ok" {
		t.Fatalf("outcome = %q", snap.Outcome)
	}

	if snap, err = c.Pause(ctx); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if snap, err = c.StepForward(ctx, 1000); err != nil {
		t.Fatalf("step: %v", err)
	}
	if !snap.Complete || strings.Join(snap.ConsoleLog, ",") != "sync,micro" {
		t.Fatalf("after stepping: complete=%v console=%v", snap.Complete, snap.ConsoleLog)
	}
	if len(snap.Heap) != 1 || snap.Heap[0].OwnerNames[0] != "a" {
		t.Errorf("heap = %+v", snap.Heap)
	}

	back, err := c.StepBackward(ctx, 1)
	if err != nil || back.Cursor != snap.Cursor-1 {
		t.Errorf("step backward: cursor=%d err=%v", back.Cursor, err)
	}

	ex, err := c.Trace(ctx)
	if err != nil {
		t.Fatalf("trace: %v", err)
	}
	if ex.RunID != snap.RunID || len(ex.Steps) != snap.Length {
		t.Errorf("trace id=%q len=%d, want %q and %d", ex.RunID, len(ex.Steps), snap.RunID, snap.Length)
	}

	if _, err := c.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	_, err = c.Trace(ctx)
	var toolErr *ToolError
	if !errors.As(err, &toolErr) || toolErr.Tool != "get_trace" {
		t.Errorf("trace after stop: %v", err)
	}
}

func TestDialRejectsAmbiguousTarget(t *testing.T) {
	ctx := context.Background()
	if _, err := Dial(ctx, Target{}); err == nil {
		t.Error("empty target accepted")
	}
	if _, err := Dial(ctx, Target{URL: "http://localhost:1", Command: "loopviz-mcp"}); err == nil {
		t.Error("target with URL and command accepted")
	}
}
