// Package client talks to a running loopviz MCP server.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/yousuf/loopviz/internal/trace"
	"github.com/yousuf/loopviz/internal/visualizer"
)

// Target names the server to connect to. Exactly one of URL and Command
// must be set.
type Target struct {
	// URL of a streamable HTTP server.
	URL     string
	Headers map[string]string

	// Command starts a server speaking MCP on stdio.
	Command string
	Args    []string
	Env     map[string]string
}

// ToolError is a tool result flagged as an error by the server.
type ToolError struct {
	Tool    string
	Message string
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("%s: %s", e.Tool, e.Message)
}

// Client wraps an MCP client session to a loopviz server
type Client struct {
	session *mcp.ClientSession
	tools   []*mcp.Tool
}

// Dial connects to target.
func Dial(ctx context.Context, target Target) (*Client, error) {
	var transport mcp.Transport
	switch {
	case target.URL != "" && target.Command != "":
		return nil, errors.New("client: target has both a URL and a command")
	case target.URL != "":
		transport = createHttpTransport(target)
	case target.Command != "":
		transport = createStdioTransport(target)
	default:
		return nil, errors.New("client: target has neither a URL nor a command")
	}
	return Connect(ctx, transport)
}

// Connect runs the MCP handshake over transport and lists the server's tools.
func Connect(ctx context.Context, transport mcp.Transport) (*Client, error) {
	client := mcp.NewClient(&mcp.Implementation{
		Name:    "loopviz-client",
		Version: "1.0.0",
	}, &mcp.ClientOptions{})

	session, err := client.Connect(ctx, transport, &mcp.ClientSessionOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	toolsResult, err := session.ListTools(ctx, &mcp.ListToolsParams{})
	if err != nil {
		session.Close()
		return nil, fmt.Errorf("failed to list tools: %w", err)
	}

	return &Client{session: session, tools: toolsResult.Tools}, nil
}

// createStdioTransport starts the server with TRANSPORT=stdio
func createStdioTransport(target Target) mcp.Transport {
	cmd := exec.Command(target.Command, target.Args...)
	cmd.Env = append(os.Environ(), "TRANSPORT=stdio")
	for k, v := range target.Env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
	}
	cmd.Stderr = os.Stderr
	return &mcp.CommandTransport{Command: cmd}
}

// headerRoundTripper adds fixed headers to every request
type headerRoundTripper struct {
	headers map[string]string
	next    http.RoundTripper
}

func (h *headerRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	for k, v := range h.headers {
		req.Header.Set(k, v)
	}
	return h.next.RoundTrip(req)
}

func createHttpTransport(target Target) mcp.Transport {
	c := &http.Client{
		Transport: &headerRoundTripper{headers: target.Headers, next: http.DefaultTransport},
	}
	return &mcp.StreamableClientTransport{
		Endpoint:   target.URL,
		HTTPClient: c,
		MaxRetries: 0,
	}
}

// Tools returns the tools the server advertised at connect time.
func (c *Client) Tools() []*mcp.Tool {
	return c.tools
}

// CallTool calls a tool and returns the text of its first content item.
// Error results come back as *ToolError.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	res, err := c.session.CallTool(ctx, &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		return "", fmt.Errorf("%s: %w", name, err)
	}

	var text string
	if len(res.Content) > 0 {
		if tc, ok := res.Content[0].(*mcp.TextContent); ok {
			text = tc.Text
		}
	}
	if res.IsError {
		return "", &ToolError{Tool: name, Message: text}
	}
	return text, nil
}

// RunSnippet records code on the server and waits for recording to finish.
func (c *Client) RunSnippet(ctx context.Context, code, language string) (visualizer.Snapshot, error) {
	return c.snapshot(ctx, "run_snippet", map[string]any{
		"code":     code,
		"language": language,
		"wait":     true,
	})
}

// Pause suspends the server-side cadence.
func (c *Client) Pause(ctx context.Context) (visualizer.Snapshot, error) {
	return c.snapshot(ctx, "pause", nil)
}

// StepForward applies the next count steps.
func (c *Client) StepForward(ctx context.Context, count int) (visualizer.Snapshot, error) {
	return c.snapshot(ctx, "step_forward", map[string]any{"count": count})
}

// StepBackward moves back count steps.
func (c *Client) StepBackward(ctx context.Context, count int) (visualizer.Snapshot, error) {
	return c.snapshot(ctx, "step_backward", map[string]any{"count": count})
}

// State returns the current snapshot without changing it.
func (c *Client) State(ctx context.Context) (visualizer.Snapshot, error) {
	return c.snapshot(ctx, "get_state", nil)
}

// Stop discards the current run.
func (c *Client) Stop(ctx context.Context) (visualizer.Snapshot, error) {
	return c.snapshot(ctx, "stop", nil)
}

// Trace fetches every step recorded for the current run.
func (c *Client) Trace(ctx context.Context) (trace.Export, error) {
	text, err := c.CallTool(ctx, "get_trace", nil)
	if err != nil {
		return trace.Export{}, err
	}
	var ex trace.Export
	if err := json.Unmarshal([]byte(text), &ex); err != nil {
		return trace.Export{}, fmt.Errorf("get_trace: decode: %w", err)
	}
	return ex, nil
}

func (c *Client) snapshot(ctx context.Context, tool string, args map[string]any) (visualizer.Snapshot, error) {
	text, err := c.CallTool(ctx, tool, args)
	if err != nil {
		return visualizer.Snapshot{}, err
	}
	var snap visualizer.Snapshot
	if err := json.Unmarshal([]byte(text), &snap); err != nil {
		return visualizer.Snapshot{}, fmt.Errorf("%s: decode: %w", tool, err)
	}
	return snap, nil
}

// Close closes the client connection
func (c *Client) Close() error {
	if c.session != nil {
		return c.session.Close()
	}
	return nil
}
