package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"

	"github.com/yousuf/loopviz/internal/config"
	"github.com/yousuf/loopviz/internal/sandbox"
)

// Build-time variables (set via ldflags)
var (
	version = "dev"
	commit  = "unknown"
)

// globals is passed to every command's Run method.
type globals struct {
	cfg        *config.Config
	configPath string
	logger     *log.Logger
}

func init() {
	// Load .env for CONFIG_PATH
	_ = godotenv.Load()
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("loopviz"),
		kong.Description("Record and replay the event loop of JavaScript and TypeScript snippets."),
		kong.UsageOnError(),
		kongVars(),
	)

	cfg, err := config.Load(cli.Config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	g := &globals{cfg: cfg, configPath: cli.Config, logger: log.New(os.Stderr, "", log.LstdFlags)}
	ctx.FatalIfErrorf(ctx.Run(g))
}

func (c *VersionCmd) Run(g *globals) error {
	fmt.Printf("loopviz %s (%s)\n", version, commit)
	return nil
}

// readSnippet loads a snippet file, taking the language from the flag or
// the file extension.
func readSnippet(path, language string) (sandbox.Source, error) {
	code, err := os.ReadFile(path)
	if err != nil {
		return sandbox.Source{}, fmt.Errorf("read snippet: %w", err)
	}

	if language == "" {
		switch strings.ToLower(filepath.Ext(path)) {
		case ".ts", ".mts", ".cts":
			language = "typescript"
		default:
			language = "javascript"
		}
	}
	lang, err := sandbox.ParseLanguage(language)
	if err != nil {
		return sandbox.Source{}, err
	}
	return sandbox.Source{Code: string(code), Language: lang}, nil
}
