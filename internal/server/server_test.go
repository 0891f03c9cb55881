package server

import (
	"context"
	"encoding/json"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/yousuf/loopviz/internal/config"
	"github.com/yousuf/loopviz/internal/session"
	"github.com/yousuf/loopviz/internal/trace"
	"github.com/yousuf/loopviz/internal/visualizer"
)

func connect(t *testing.T) *mcp.ClientSession {
	t.Helper()
	ctx := context.Background()

	cfg := config.Default()
	cfg.Playback.IntervalMs = int(time.Hour / time.Millisecond)
	mgr := session.NewManager(cfg)
	t.Cleanup(func() { mgr.CloseAll() })

	clientTransport, serverTransport := mcp.NewInMemoryTransports()
	if _, err := NewMcpServer(mgr).Connect(ctx, serverTransport, nil); err != nil {
		t.Fatalf("server connect: %v", err)
	}

	client := mcp.NewClient(&mcp.Implementation{Name: "loopviz-test-client", Version: "1.0.0"}, nil)
	cs, err := client.Connect(ctx, clientTransport, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { cs.Close() })
	return cs
}

func call(t *testing.T, cs *mcp.ClientSession, name string, args map[string]any) (string, bool) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	res, err := cs.CallTool(ctx, &mcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		return err.Error(), true
	}
	if len(res.Content) == 0 {
		t.Fatalf("%s: empty result", name)
	}
	text, ok := res.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("%s: unexpected content %T", name, res.Content[0])
	}
	return text.Text, res.IsError
}

func snapshot(t *testing.T, cs *mcp.ClientSession, name string, args map[string]any) visualizer.Snapshot {
	t.Helper()
	text, isErr := call(t, cs, name, args)
	if isErr {
		t.Fatalf("%s failed: %s", name, text)
	}
	var snap visualizer.Snapshot
	if err := json.Unmarshal([]byte(text), &snap); err != nil {
		t.Fatalf("%s: decode %q: %v", name, text, err)
	}
	return snap
}

func TestListTools(t *testing.T) {
	cs := connect(t)
	res, err := cs.ListTools(context.Background(), &mcp.ListToolsParams{})
	if err != nil {
		t.Fatalf("list tools: %v", err)
	}

	var names []string
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	for _, want := range []string{"run_snippet", "step_forward", "step_backward", "pause", "resume", "stop", "get_state", "get_trace", "sandbox_typings"} {
		if !strings.Contains(strings.Join(names, ","), want) {
			t.Errorf("tool %q not registered (have %v)", want, names)
		}
	}
}

func TestRunAndStep(t *testing.T) {
	cs := connect(t)

	snap := snapshot(t, cs, "run_snippet", map[string]any{
		"code": `console.log("begins");
setTimeout(() => console.log("timeout"), 0);
Promise.resolve().then(() => console.log("promise"));`,
		"wait": true,
	})
	if snap.RunID == "" || snap.Outcome != "ok" {
		t.Fatalf("run: id=%q outcome=%q", snap.RunID, snap.Outcome)
	}

	snap = snapshot(t, cs, "step_forward", map[string]any{"count": 1000})
	if !snap.Complete {
		t.Fatalf("not complete after stepping through: %+v", snap)
	}
	if want := []string{"begins", "promise", "timeout"}; !reflect.DeepEqual(snap.ConsoleLog, want) {
		t.Errorf("console = %v, want %v", snap.ConsoleLog, want)
	}

	back := snapshot(t, cs, "step_backward", map[string]any{"count": 2})
	if back.Cursor != snap.Cursor-2 || back.StateName != "paused" {
		t.Errorf("after step_backward: cursor=%d state=%s", back.Cursor, back.StateName)
	}

	text, isErr := call(t, cs, "get_trace", nil)
	if isErr {
		t.Fatalf("get_trace: %s", text)
	}
	var ex trace.Export
	if err := json.Unmarshal([]byte(text), &ex); err != nil {
		t.Fatalf("decode trace: %v", err)
	}
	if ex.RunID != snap.RunID || len(ex.Steps) != snap.Length {
		t.Errorf("trace id=%q steps=%d, want %q and %d", ex.RunID, len(ex.Steps), snap.RunID, snap.Length)
	}

	stopped := snapshot(t, cs, "stop", nil)
	if stopped.StateName != "idle" || stopped.RunID != "" {
		t.Errorf("after stop: %+v", stopped)
	}
	if _, isErr := call(t, cs, "get_trace", nil); !isErr {
		t.Error("get_trace succeeded without a run")
	}
}

func TestRunSnippetRejectsBadInput(t *testing.T) {
	cs := connect(t)
	if _, isErr := call(t, cs, "run_snippet", map[string]any{"code": "   "}); !isErr {
		t.Error("empty snippet accepted")
	}
	if _, isErr := call(t, cs, "run_snippet", map[string]any{"code": "1", "language": "python"}); !isErr {
		t.Error("unknown language accepted")
	}
}

func TestSandboxTypings(t *testing.T) {
	cs := connect(t)

	text, isErr := call(t, cs, "sandbox_typings", nil)
	if isErr || !strings.Contains(text, "declare function setTimeout") {
		t.Errorf("sandbox typings: %s", text)
	}

	text, isErr = call(t, cs, "sandbox_typings", map[string]any{"kind": "trace"})
	if isErr || !strings.Contains(text, "export interface Step {") {
		t.Errorf("trace typings: %s", text)
	}

	if _, isErr := call(t, cs, "sandbox_typings", map[string]any{"kind": "wasm"}); !isErr {
		t.Error("unknown typings kind accepted")
	}
}
