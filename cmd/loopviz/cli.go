// Package main is the loopviz command line. It records snippets to trace
// files, plays traces back in the terminal, compares two traces and drives a
// remote loopviz-mcp server.
package main

import "github.com/alecthomas/kong"

// CLI defines the command-line interface.
type CLI struct {
	Config string `short:"c" env:"CONFIG_PATH" help:"Config file path (JSON or YAML)"`

	Record  RecordCmd  `cmd:"" help:"Record a snippet into a trace file"`
	Play    PlayCmd    `cmd:"" help:"Play a trace or snippet step by step"`
	Diff    DiffCmd    `cmd:"" help:"Report the first divergence between two traces"`
	Remote  RemoteCmd  `cmd:"" help:"Record and step through a snippet on a loopviz MCP server"`
	Version VersionCmd `cmd:"" help:"Show version information"`
}

// RecordCmd records a snippet.
type RecordCmd struct {
	File     string `arg:"" type:"existingfile" help:"Snippet file (.js or .ts)"`
	Output   string `short:"o" help:"Trace output path (default: <file>.trace.json)"`
	Language string `short:"l" help:"Snippet language; inferred from the extension when empty"`
}

// PlayCmd renders the display state after every step.
type PlayCmd struct {
	File     string `arg:"" type:"existingfile" help:"Trace file (.json) or snippet file"`
	Language string `short:"l" help:"Snippet language; inferred from the extension when empty"`
	Interval int    `short:"i" default:"-1" help:"Milliseconds between frames; -1 uses the configured cadence, 0 prints without pausing"`
	At       int    `default:"-1" help:"Print only the state after this many steps"`
	Watch    bool   `short:"w" help:"Record and play again whenever the snippet file changes"`
}

// DiffCmd compares two recorded traces.
type DiffCmd struct {
	Expected string `arg:"" type:"existingfile" help:"Expected trace file"`
	Actual   string `arg:"" type:"existingfile" help:"Actual trace file"`
}

// RemoteCmd drives a loopviz-mcp server instead of recording locally.
type RemoteCmd struct {
	File     string            `arg:"" type:"existingfile" help:"Snippet file"`
	Language string            `short:"l" help:"Snippet language; inferred from the extension when empty"`
	URL      string            `short:"u" default:"http://localhost:8080" help:"Streamable HTTP endpoint of the server"`
	Spawn    string            `help:"Start this loopviz-mcp binary on stdio instead of using --url"`
	Header   map[string]string `short:"H" help:"Extra HTTP headers (key=value)"`
	Interval int               `short:"i" default:"-1" help:"Milliseconds between frames; -1 uses the configured cadence"`
	Save     string            `short:"o" help:"Also write the server's trace to this file"`
}

// VersionCmd shows version information.
type VersionCmd struct{}

// kongVars returns variables for kong (version info).
func kongVars() kong.Vars {
	return kong.Vars{
		"version": version,
	}
}
