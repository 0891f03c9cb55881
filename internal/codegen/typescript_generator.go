package codegen

import (
	"fmt"
	"strings"
)

// TypeScriptGenerator renders declaration files for snippet authors and
// trace consumers
type TypeScriptGenerator struct {
	converter *SchemaConverter
}

// NewTypeScriptGenerator creates a new TypeScript generator
func NewTypeScriptGenerator() *TypeScriptGenerator {
	return &TypeScriptGenerator{
		converter: NewSchemaConverter(),
	}
}

// GenerateTypesFile renders one exported interface per definition, plus
// every named type they depend on
func (g *TypeScriptGenerator) GenerateTypesFile(title string, defs []TypeDefinition) (string, error) {
	if len(defs) == 0 {
		return "", fmt.Errorf("no type definitions provided for %q", title)
	}

	// Fresh converter per file so names never leak between files
	g.converter = NewSchemaConverter()

	for _, def := range defs {
		schema := def.Schema
		if schema != nil && schema.Title == "" {
			s := *schema
			s.Title = def.Name
			schema = &s
		}
		if _, err := g.converter.ConvertSchema(schema, def.Name); err != nil {
			return "", fmt.Errorf("failed to convert %s: %w", def.Name, err)
		}
	}

	file := &TSFile{
		Title:      title,
		Interfaces: g.converter.Types(),
	}
	return g.renderFile(file, "export "), nil
}

// GenerateSandboxFile renders the ambient declarations of every global the
// sandbox gives a snippet
func (g *TypeScriptGenerator) GenerateSandboxFile() string {
	g.converter = NewSchemaConverter()
	return g.renderFile(&TSFile{
		Title:     "Globals available to loopviz snippets",
		Preamble:  sandboxPreamble,
		Functions: SandboxFunctions(),
	}, "declare ")
}

// SandboxFunctions lists the global functions a snippet can call
func SandboxFunctions() []*TSFunction {
	return []*TSFunction{
		{
			Name:        "setTimeout",
			Description: "Registers a timer. The callback runs as its own macrotask once delayMs has elapsed.",
			Params: []TSParam{
				{Name: "callback", Type: "(...args: any[]) => void"},
				{Name: "delayMs", Type: "number", IsOptional: true},
				{Name: "...args", Type: "any[]"},
			},
			ReturnType: "number",
		},
		{
			Name:        "clearTimeout",
			Description: "Cancels a timer that has not fired yet.",
			Params:      []TSParam{{Name: "id", Type: "number", IsOptional: true}},
			ReturnType:  "void",
		},
		{
			Name:        "queueMicrotask",
			Description: "Runs callback as a microtask after the current task.",
			Params:      []TSParam{{Name: "callback", Type: "() => void"}},
			ReturnType:  "void",
		},
	}
}

const sandboxPreamble = `interface Console {
  log(...data: any[]): void;
  info(...data: any[]): void;
  warn(...data: any[]): void;
  error(...data: any[]): void;
  debug(...data: any[]): void;
}

/** Each call is recorded as a call stack entry and a console line. */
declare var console: Console;

interface PromiseLike<T> {
  then<R1 = T, R2 = never>(
    onfulfilled?: ((value: T) => R1 | PromiseLike<R1>) | null,
    onrejected?: ((reason: any) => R2 | PromiseLike<R2>) | null,
  ): PromiseLike<R1 | R2>;
}

/** Settlement is recorded as a microtask; reactions never run synchronously. */
declare class Promise<T> implements PromiseLike<T> {
  constructor(executor: (resolve: (value: T | PromiseLike<T>) => void, reject: (reason?: any) => void) => void);
  then<R1 = T, R2 = never>(
    onfulfilled?: ((value: T) => R1 | PromiseLike<R1>) | null,
    onrejected?: ((reason: any) => R2 | PromiseLike<R2>) | null,
  ): Promise<R1 | R2>;
  catch<R = never>(onrejected?: ((reason: any) => R | PromiseLike<R>) | null): Promise<T | R>;
  finally(onfinally?: (() => void) | null): Promise<T>;
  static resolve(): Promise<void>;
  static resolve<T>(value: T | PromiseLike<T>): Promise<T>;
  static reject<T = never>(reason?: any): Promise<T>;
  static all<T>(values: readonly (T | PromiseLike<T>)[]): Promise<T[]>;
}
`

// renderFile renders the complete declaration file
func (g *TypeScriptGenerator) renderFile(file *TSFile, prefix string) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("/**\n * %s\n", file.Title))
	sb.WriteString(" * This file is auto-generated. Do not edit manually.\n")
	sb.WriteString(" */\n\n")

	if file.Preamble != "" {
		sb.WriteString(file.Preamble)
		sb.WriteString("\n")
	}

	for _, iface := range file.Interfaces {
		sb.WriteString(g.renderType(iface, prefix))
		sb.WriteString("\n")
	}

	for _, fn := range file.Functions {
		sb.WriteString(g.renderFunction(fn, prefix))
		sb.WriteString("\n")
	}

	return strings.TrimRight(sb.String(), "\n") + "\n"
}

// renderType renders a TypeScript type/interface
func (g *TypeScriptGenerator) renderType(t *TSType, prefix string) string {
	var sb strings.Builder

	if t.Description != "" {
		sb.WriteString(fmt.Sprintf("/** %s */\n", sanitizeComment(t.Description)))
	}

	switch t.Kind {
	case "interface":
		sb.WriteString(fmt.Sprintf("%sinterface %s {\n", prefix, t.Name))
		for _, prop := range t.Properties {
			if prop.Description != "" {
				sb.WriteString(fmt.Sprintf("  /** %s */\n", sanitizeComment(prop.Description)))
			}
			optional := ""
			if prop.IsOptional {
				optional = "?"
			}
			sb.WriteString(fmt.Sprintf("  %s%s: %s;\n", prop.Name, optional, g.converter.typeToString(prop.Type)))
		}
		sb.WriteString("}\n")

	case "type":
		sb.WriteString(fmt.Sprintf("%stype %s = %s;\n", prefix, t.Name, t.RawType))

	case "union":
		parts := make([]string, len(t.UnionTypes))
		for i, ut := range t.UnionTypes {
			parts[i] = g.converter.typeToString(ut)
		}
		sb.WriteString(fmt.Sprintf("%stype %s =\n  | %s;\n", prefix, t.Name, strings.Join(parts, "\n  | ")))
	}

	return sb.String()
}

// renderFunction renders a function declaration
func (g *TypeScriptGenerator) renderFunction(fn *TSFunction, prefix string) string {
	var sb strings.Builder

	if fn.Description != "" {
		sb.WriteString(fmt.Sprintf("/** %s */\n", sanitizeComment(fn.Description)))
	}

	params := make([]string, len(fn.Params))
	for i, p := range fn.Params {
		optional := ""
		if p.IsOptional {
			optional = "?"
		}
		params[i] = fmt.Sprintf("%s%s: %s", p.Name, optional, p.Type)
	}

	sb.WriteString(fmt.Sprintf("%sfunction %s%s(%s): %s;\n",
		prefix, fn.Name, fn.TypeParams, strings.Join(params, ", "), fn.ReturnType))
	return sb.String()
}

// sanitizeComment escapes or removes problematic content from JSDoc comments
func sanitizeComment(comment string) string {
	comment = strings.ReplaceAll(comment, "*/", `*\/`)
	comment = strings.ReplaceAll(comment, "/*", `/\*`)
	return strings.ReplaceAll(comment, "\n", " ")
}

// toPascalCase converts camelCase, snake_case or kebab-case to PascalCase
func toPascalCase(s string) string {
	parts := strings.FieldsFunc(s, func(r rune) bool {
		return r == '_' || r == '-' || r == ' '
	})
	for i, part := range parts {
		parts[i] = strings.ToUpper(part[:1]) + part[1:]
	}
	return strings.Join(parts, "")
}
