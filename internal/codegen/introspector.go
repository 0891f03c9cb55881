package codegen

import (
	"fmt"
	"reflect"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/yousuf/loopviz/internal/stepper"
	"github.com/yousuf/loopviz/internal/trace"
)

// TraceTypes infers the schemas of the types a trace consumer reads: the
// steps of an exported trace and the display state derived from them.
func TraceTypes() ([]TypeDefinition, error) {
	kinds := make([]any, 0, len(trace.Kinds()))
	for _, k := range trace.Kinds() {
		kinds = append(kinds, string(k))
	}

	heapSchema, err := jsonschema.For[trace.HeapRecord](nil)
	if err != nil {
		return nil, fmt.Errorf("heap record schema: %w", err)
	}
	heapSchema.Title = "HeapRecord"
	heapSchema.Description = "Snapshot of one tracked object"

	opts := &jsonschema.ForOptions{
		TypeSchemas: map[reflect.Type]*jsonschema.Schema{
			reflect.TypeFor[trace.Kind](): {
				Title:       "StepKind",
				Description: "What a step does to the observed machine state",
				Type:        "string",
				Enum:        kinds,
			},
			reflect.TypeFor[trace.HeapRecord](): heapSchema,
		},
	}

	defs := []struct {
		name, desc string
		typ        reflect.Type
	}{
		{"Step", "One scheduling event of a recorded trace", reflect.TypeFor[trace.Step]()},
		{"TraceExport", "A recorded trace as written by loopviz record", reflect.TypeFor[trace.Export]()},
		{"DisplayState", "State derived by replaying a trace prefix", reflect.TypeFor[stepper.DisplayState]()},
	}

	out := make([]TypeDefinition, 0, len(defs))
	for _, d := range defs {
		schema, err := jsonschema.ForType(d.typ, opts)
		if err != nil {
			return nil, fmt.Errorf("%s schema: %w", d.name, err)
		}
		schema.Title = d.name
		schema.Description = d.desc
		// later types refer to this one by name
		opts.TypeSchemas[d.typ] = schema
		out = append(out, TypeDefinition{Name: d.name, Description: d.desc, Schema: schema})
	}
	return out, nil
}
