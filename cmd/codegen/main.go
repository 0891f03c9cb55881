package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/yousuf/loopviz/internal/codegen"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	outputDir := flag.String("output-dir", "./generated", "Directory to write declaration files")
	only := flag.String("only", "", "Generate only the given file(s), comma-separated: sandbox, trace")
	verbose := flag.Bool("verbose", false, "Enable verbose output")
	flag.Parse()

	wanted := map[string]bool{"sandbox": true, "trace": true}
	if *only != "" {
		wanted = make(map[string]bool)
		for _, name := range strings.Split(*only, ",") {
			name = strings.TrimSpace(name)
			if name != "sandbox" && name != "trace" {
				return fmt.Errorf("unknown file %q (must be sandbox or trace)", name)
			}
			wanted[name] = true
		}
	}

	if err := os.MkdirAll(*outputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	generator := codegen.NewTypeScriptGenerator()
	var written []string

	if wanted["sandbox"] {
		if *verbose {
			fmt.Printf("Generating sandbox.d.ts with %d functions...\n", len(codegen.SandboxFunctions()))
		}
		path := filepath.Join(*outputDir, "sandbox.d.ts")
		if err := os.WriteFile(path, []byte(generator.GenerateSandboxFile()), 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
		written = append(written, path)
	}

	if wanted["trace"] {
		defs, err := codegen.TraceTypes()
		if err != nil {
			return fmt.Errorf("failed to infer trace types: %w", err)
		}
		if *verbose {
			for _, def := range defs {
				fmt.Printf("  - %s: %s\n", def.Name, def.Description)
			}
		}

		content, err := generator.GenerateTypesFile("loopviz trace types", defs)
		if err != nil {
			return fmt.Errorf("failed to generate trace types: %w", err)
		}
		path := filepath.Join(*outputDir, "trace.d.ts")
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
		written = append(written, path)
	}

	fmt.Printf("\n✓ Successfully generated TypeScript declarations\n")
	for _, path := range written {
		fmt.Printf("  %s\n", path)
	}
	return nil
}
