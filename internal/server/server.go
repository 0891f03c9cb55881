package server

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/yousuf/loopviz/internal/codegen"
	"github.com/yousuf/loopviz/internal/sandbox"
	"github.com/yousuf/loopviz/internal/session"
	"github.com/yousuf/loopviz/internal/visualizer"
)

// RunSnippetArgs represents the arguments for the run_snippet tool
type RunSnippetArgs struct {
	Code     string `json:"code" jsonschema:"JavaScript or TypeScript snippet to record"`
	Language string `json:"language,omitempty" jsonschema:"javascript (default) or typescript"`
	Wait     bool   `json:"wait,omitempty" jsonschema:"Return only after recording has finished"`
}

// StepArgs represents the arguments for the step tools
type StepArgs struct {
	Count int `json:"count,omitempty" jsonschema:"Number of steps to move (default 1)"`
}

// TypingsArgs represents the arguments for the sandbox_typings tool
type TypingsArgs struct {
	Kind string `json:"kind,omitempty" jsonschema:"sandbox (default) for snippet globals or trace for trace and display types"`
}

// NoArgs is the input of tools without parameters
type NoArgs struct{}

// NewMcpServer creates and configures the MCP server
func NewMcpServer(sessionMgr *session.Manager) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "loopviz-mcp",
		Version: "1.0.0",
	}, &mcp.ServerOptions{
		Instructions: `
Event Loop Visualizer

loopviz records how a JavaScript or TypeScript snippet moves through the call
stack, the macrotask queue, the microtask queue and the pending timers, then
replays that recording one step at a time.

Workflow:
1. Call run_snippet with your code. Recording starts at once; playback advances
   on its own cadence.
2. Call get_state to see the call stack, queues, pending timers, heap, console
   output and current line.
3. Use pause, step_forward, step_backward and resume to move through the trace.
4. Call get_trace for the full recorded step list, or stop to discard the run.

Snippet environment:
- console.log/info/warn/error/debug, setTimeout, clearTimeout, queueMicrotask
  and Promise (then/catch/finally, resolve, reject, all).
- Top-level await works; the snippet runs inside an async function.
- Object literals bound to variables appear on the heap with every alias.
- Call sandbox_typings for a declaration file of these globals.
`,
	})

	server.AddReceivingMiddleware(createSessionInjectionMiddleware(sessionMgr))
	server.AddReceivingMiddleware(createLoggingMiddleware())

	mcp.AddTool(server, &mcp.Tool{
		Name:        "run_snippet",
		Description: "Record a snippet and start playing it back. Replaces the current run of this session.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args RunSnippetArgs) (*mcp.CallToolResult, any, error) {
		controller, err := controllerFrom(ctx)
		if err != nil {
			return nil, nil, err
		}

		lang := sandbox.JavaScript
		if args.Language != "" {
			if lang, err = sandbox.ParseLanguage(args.Language); err != nil {
				return nil, nil, err
			}
		}

		if _, err := controller.Run(sandbox.Source{Code: args.Code, Language: lang}); err != nil {
			return nil, nil, fmt.Errorf("run failed: %w", err)
		}
		if args.Wait {
			// Snippet failures are part of the trace; only the context matters here.
			if err := controller.Wait(ctx); err != nil && ctx.Err() != nil {
				return nil, nil, ctx.Err()
			}
		}

		return jsonResult(controller.Snapshot())
	})

	stepTool := func(name, description string, step func(*visualizer.Controller) bool) {
		mcp.AddTool(server, &mcp.Tool{
			Name:        name,
			Description: description,
		}, func(ctx context.Context, req *mcp.CallToolRequest, args StepArgs) (*mcp.CallToolResult, any, error) {
			controller, err := controllerFrom(ctx)
			if err != nil {
				return nil, nil, err
			}
			count := max(args.Count, 1)
			for i := 0; i < count && step(controller); i++ {
			}
			return jsonResult(controller.Snapshot())
		})
	}
	stepTool("step_forward", "Apply the next recorded step(s).", (*visualizer.Controller).Advance)
	stepTool("step_backward", "Move back by replaying the trace up to an earlier step. Pauses playback.", (*visualizer.Controller).Retreat)

	commandTool := func(name, description string, command func(*visualizer.Controller)) {
		mcp.AddTool(server, &mcp.Tool{
			Name:        name,
			Description: description,
		}, func(ctx context.Context, req *mcp.CallToolRequest, args NoArgs) (*mcp.CallToolResult, any, error) {
			controller, err := controllerFrom(ctx)
			if err != nil {
				return nil, nil, err
			}
			command(controller)
			return jsonResult(controller.Snapshot())
		})
	}
	commandTool("pause", "Suspend automatic playback.", func(c *visualizer.Controller) { c.Pause() })
	commandTool("resume", "Resume automatic playback.", func(c *visualizer.Controller) { c.Resume() })
	commandTool("stop", "Cancel the current run and discard its trace.", (*visualizer.Controller).Stop)
	commandTool("get_state", "Show the current display state of the run.", func(*visualizer.Controller) {})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_trace",
		Description: "Return every step recorded so far for the current run.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args NoArgs) (*mcp.CallToolResult, any, error) {
		controller, err := controllerFrom(ctx)
		if err != nil {
			return nil, nil, err
		}
		ex, err := controller.Trace()
		if err != nil {
			return nil, nil, err
		}
		return jsonResult(ex)
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "sandbox_typings",
		Description: "TypeScript declarations of the snippet globals, or of the trace and display types.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args TypingsArgs) (*mcp.CallToolResult, any, error) {
		generator := codegen.NewTypeScriptGenerator()

		var text string
		switch args.Kind {
		case "", "sandbox":
			text = generator.GenerateSandboxFile()
		case "trace":
			defs, err := codegen.TraceTypes()
			if err != nil {
				return nil, nil, err
			}
			if text, err = generator.GenerateTypesFile("loopviz trace types", defs); err != nil {
				return nil, nil, err
			}
		default:
			return nil, nil, fmt.Errorf("unknown typings kind %q (must be sandbox or trace)", args.Kind)
		}

		return &mcp.CallToolResult{
			Content: []mcp.Content{
				&mcp.TextContent{Text: text},
			},
		}, nil, nil
	})

	return server
}

func controllerFrom(ctx context.Context) (*visualizer.Controller, error) {
	sessionCtx, err := getSessionFromContext(ctx)
	if err != nil {
		return nil, err
	}
	return sessionCtx.Controller, nil
}

func jsonResult(v any) (*mcp.CallToolResult, any, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode result: %w", err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(b)},
		},
	}, nil, nil
}
