package codegen

import (
	"strings"
	"testing"

	"github.com/google/jsonschema-go/jsonschema"
)

func TestConvertSchema(t *testing.T) {
	schema := &jsonschema.Schema{
		Type:     "object",
		Required: []string{"name"},
		Properties: map[string]*jsonschema.Schema{
			"name":  {Type: "string", Description: "binding name"},
			"count": {Type: "integer"},
			"tags":  {Type: "array", Items: &jsonschema.Schema{Type: "string"}},
			"mode":  {Type: "string", Enum: []any{"live", "settled"}},
			"next":  {Types: []string{"null", "object"}, Title: "Node", Properties: map[string]*jsonschema.Schema{"id": {Type: "string"}}},
		},
	}

	sc := NewSchemaConverter()
	got, err := sc.ConvertSchema(schema, "Entry")
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if got.Kind != "interface" || got.Name != "Entry" {
		t.Fatalf("got %s %q, want interface Entry", got.Kind, got.Name)
	}

	want := map[string]string{
		"count": "number",
		"mode":  `"live" | "settled"`,
		"name":  "string",
		"next":  "Node | null",
		"tags":  "string[]",
	}
	for _, p := range got.Properties {
		if s := sc.typeToString(p.Type); s != want[p.Name] {
			t.Errorf("%s: got %s, want %s", p.Name, s, want[p.Name])
		}
		if p.IsOptional == (p.Name == "name") {
			t.Errorf("%s: optional = %v", p.Name, p.IsOptional)
		}
	}

	names := []string{}
	for _, typ := range sc.Types() {
		names = append(names, typ.Name)
	}
	if strings.Join(names, ",") != "Node,Entry" {
		t.Errorf("named types = %v, want [Node Entry]", names)
	}
}

func TestGenerateTraceTypes(t *testing.T) {
	defs, err := TraceTypes()
	if err != nil {
		t.Fatalf("trace types: %v", err)
	}

	out, err := NewTypeScriptGenerator().GenerateTypesFile("loopviz trace types", defs)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	for _, want := range []string{
		"export type StepKind =",
		`| "push_stack"`,
		`| "animate_tick";`,
		"export interface HeapRecord {",
		"  ownerNames: string[];",
		"export interface Step {",
		"  kind: StepKind;",
		"  heapRecord?: HeapRecord;",
		"export interface TraceExport {",
		"  steps: Step[];",
		"export interface DisplayState {",
		"  heap: HeapRecord[];",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output lacks %q:\n%s", want, out)
		}
	}
	if strings.Count(out, "interface HeapRecord") != 1 {
		t.Errorf("HeapRecord emitted more than once:\n%s", out)
	}
}

func TestGenerateSandboxFile(t *testing.T) {
	out := NewTypeScriptGenerator().GenerateSandboxFile()

	for _, want := range []string{
		"declare var console: Console;",
		"declare class Promise<T>",
		"declare function setTimeout(callback: (...args: any[]) => void, delayMs?: number, ...args: any[]): number;",
		"declare function clearTimeout(id?: number): void;",
		"declare function queueMicrotask(callback: () => void): void;",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output lacks %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "setInterval") {
		t.Error("setInterval is not available in the sandbox")
	}
}

func TestSanitizeComment(t *testing.T) {
	if got := sanitizeComment("a */ b /* c\nd"); got != `a *\/ b /\* c d` {
		t.Errorf("got %q", got)
	}
}
