package codegen

import (
	"fmt"
	"slices"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
)

// SchemaConverter converts JSON Schema to TypeScript types
type SchemaConverter struct {
	generatedTypes map[string]*TSType
	order          []string
}

// NewSchemaConverter creates a new schema converter
func NewSchemaConverter() *SchemaConverter {
	return &SchemaConverter{
		generatedTypes: make(map[string]*TSType),
	}
}

var anyType = &TSType{Kind: "primitive", RawType: "any"}

// ConvertSchema converts a JSON Schema to a TypeScript type. A schema with
// a title is emitted once under that title and referenced by name after.
func (sc *SchemaConverter) ConvertSchema(schema *jsonschema.Schema, typeName string) (*TSType, error) {
	if schema == nil {
		return anyType, nil
	}
	if schema.Title != "" {
		typeName = schema.Title
	}
	if existing, ok := sc.generatedTypes[typeName]; ok {
		return existing, nil
	}

	if len(schema.Types) > 0 {
		return sc.convertTypeList(schema, typeName)
	}
	if len(schema.Enum) > 0 {
		return sc.convertEnum(schema, typeName), nil
	}

	if schema.Type == "" {
		switch {
		case len(schema.OneOf) > 0:
			return sc.convertUnion(schema.OneOf, typeName)
		case len(schema.AnyOf) > 0:
			return sc.convertUnion(schema.AnyOf, typeName)
		case len(schema.AllOf) > 0:
			return sc.convertIntersection(schema.AllOf, typeName)
		}
		return anyType, nil
	}

	switch schema.Type {
	case "string":
		return &TSType{Kind: "primitive", RawType: "string"}, nil
	case "number", "integer":
		return &TSType{Kind: "primitive", RawType: "number"}, nil
	case "boolean":
		return &TSType{Kind: "primitive", RawType: "boolean"}, nil
	case "null":
		return &TSType{Kind: "primitive", RawType: "null"}, nil
	case "array":
		return sc.convertArray(schema, typeName)
	case "object":
		return sc.convertObject(schema, typeName)
	default:
		return nil, fmt.Errorf("unsupported schema type %q", schema.Type)
	}
}

// Types returns every named type in the order it was first converted
func (sc *SchemaConverter) Types() []*TSType {
	out := make([]*TSType, 0, len(sc.order))
	for _, name := range sc.order {
		out = append(out, sc.generatedTypes[name])
	}
	return out
}

func (sc *SchemaConverter) register(t *TSType) {
	if _, ok := sc.generatedTypes[t.Name]; ok {
		return
	}
	sc.generatedTypes[t.Name] = t
	sc.order = append(sc.order, t.Name)
}

// convertTypeList handles "type": [...]. A nullable type becomes "T | null".
func (sc *SchemaConverter) convertTypeList(schema *jsonschema.Schema, typeName string) (*TSType, error) {
	union := &TSType{Kind: "union"}
	for _, typ := range schema.Types {
		if typ == "null" {
			union.UnionTypes = append(union.UnionTypes, &TSType{Kind: "primitive", RawType: "null"})
			continue
		}
		single := *schema
		single.Types = nil
		single.Type = typ
		sub, err := sc.ConvertSchema(&single, typeName)
		if err != nil {
			return nil, err
		}
		union.UnionTypes = append(union.UnionTypes, sub)
	}
	// null last reads better: "T | null"
	slices.SortStableFunc(union.UnionTypes, func(a, b *TSType) int {
		return boolRank(a.RawType == "null") - boolRank(b.RawType == "null")
	})
	if len(union.UnionTypes) == 1 {
		return union.UnionTypes[0], nil
	}
	return union, nil
}

func boolRank(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (sc *SchemaConverter) convertObject(schema *jsonschema.Schema, typeName string) (*TSType, error) {
	if len(schema.Properties) == 0 {
		raw := "Record<string, any>"
		if ap := schema.AdditionalProperties; ap != nil && ap.Not == nil {
			value, err := sc.ConvertSchema(ap, typeName+"Value")
			if err != nil {
				return nil, err
			}
			raw = fmt.Sprintf("Record<string, %s>", sc.typeToString(value))
		}
		return &TSType{Kind: "primitive", RawType: raw}, nil
	}

	iface := &TSType{
		Kind:        "interface",
		Name:        typeName,
		Description: schema.Description,
	}

	names := make([]string, 0, len(schema.Properties))
	for name := range schema.Properties {
		names = append(names, name)
	}
	slices.Sort(names)

	for _, name := range names {
		propSchema := schema.Properties[name]
		propType, err := sc.ConvertSchema(propSchema, typeName+toPascalCase(name))
		if err != nil {
			return nil, fmt.Errorf("property %q of %s: %w", name, typeName, err)
		}
		iface.Properties = append(iface.Properties, TSProperty{
			Name:        name,
			Type:        propType,
			IsOptional:  !slices.Contains(schema.Required, name),
			Description: propSchema.Description,
		})
	}

	sc.register(iface)
	return iface, nil
}

func (sc *SchemaConverter) convertArray(schema *jsonschema.Schema, typeName string) (*TSType, error) {
	if schema.Items == nil {
		return &TSType{Kind: "array", ElementType: anyType}, nil
	}
	elem, err := sc.ConvertSchema(schema.Items, typeName+"Item")
	if err != nil {
		return nil, err
	}
	return &TSType{Kind: "array", ElementType: elem}, nil
}

// convertEnum turns an enum into a union of literals; titled enums become a
// named type alias.
func (sc *SchemaConverter) convertEnum(schema *jsonschema.Schema, typeName string) *TSType {
	union := &TSType{Kind: "union", Description: schema.Description}
	for _, v := range schema.Enum {
		raw := fmt.Sprintf("%v", v)
		if s, ok := v.(string); ok {
			raw = fmt.Sprintf("%q", s)
		}
		union.UnionTypes = append(union.UnionTypes, &TSType{Kind: "primitive", RawType: raw})
	}
	if schema.Title != "" {
		union.Name = typeName
		sc.register(union)
	}
	return union
}

func (sc *SchemaConverter) convertUnion(schemas []*jsonschema.Schema, typeName string) (*TSType, error) {
	union := &TSType{Kind: "union"}
	for i, s := range schemas {
		sub, err := sc.ConvertSchema(s, fmt.Sprintf("%s%d", typeName, i))
		if err != nil {
			return nil, err
		}
		union.UnionTypes = append(union.UnionTypes, sub)
	}
	if len(union.UnionTypes) == 1 {
		return union.UnionTypes[0], nil
	}
	return union, nil
}

// convertIntersection merges the properties of every allOf member
func (sc *SchemaConverter) convertIntersection(schemas []*jsonschema.Schema, typeName string) (*TSType, error) {
	merged := &TSType{Kind: "interface", Name: typeName}
	for i, s := range schemas {
		sub, err := sc.ConvertSchema(s, fmt.Sprintf("%s%d", typeName, i))
		if err != nil {
			return nil, err
		}
		if sub.Kind != "interface" {
			continue
		}
		merged.Properties = append(merged.Properties, sub.Properties...)
		if merged.Description == "" {
			merged.Description = sub.Description
		}
	}
	sc.register(merged)
	return merged, nil
}

// typeToString converts a TSType to its string representation
func (sc *SchemaConverter) typeToString(t *TSType) string {
	if t == nil {
		return "any"
	}
	if t.Name != "" && (t.Kind == "interface" || t.Kind == "type" || t.Kind == "union") {
		if _, named := sc.generatedTypes[t.Name]; named {
			return t.Name
		}
	}

	switch t.Kind {
	case "primitive":
		return t.RawType
	case "array":
		elem := sc.typeToString(t.ElementType)
		if t.ElementType != nil && t.ElementType.Kind == "union" && t.ElementType.Name == "" {
			elem = "(" + elem + ")"
		}
		return elem + "[]"
	case "union":
		parts := make([]string, len(t.UnionTypes))
		for i, ut := range t.UnionTypes {
			parts[i] = sc.typeToString(ut)
		}
		return strings.Join(parts, " | ")
	default:
		return "any"
	}
}
