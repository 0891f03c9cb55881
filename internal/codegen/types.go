package codegen

import "github.com/google/jsonschema-go/jsonschema"

// TypeDefinition is a named wire type to render as a TypeScript interface
type TypeDefinition struct {
	Name        string
	Description string
	Schema      *jsonschema.Schema
}

// TSType represents a TypeScript type definition
type TSType struct {
	Name        string       // Interface/type name (e.g., "HeapRecord")
	Kind        string       // "interface" | "type" | "primitive" | "array" | "union"
	Properties  []TSProperty // For objects/interfaces
	ElementType *TSType      // For arrays
	UnionTypes  []*TSType    // For unions
	Description string       // JSDoc comment
	RawType     string       // For primitives: "string", "number", "boolean", etc.
}

// TSProperty represents a property in a TypeScript interface
type TSProperty struct {
	Name        string
	Type        *TSType
	IsOptional  bool
	Description string
}

// TSParam is one parameter of a declared function
type TSParam struct {
	Name       string
	Type       string
	IsOptional bool
}

// TSFunction is an ambient function declaration
type TSFunction struct {
	Name        string
	Description string
	TypeParams  string // e.g. "<T>"
	Params      []TSParam
	ReturnType  string
}

// TSFile represents a complete declaration file to be generated
type TSFile struct {
	Title      string
	Interfaces []*TSType
	Functions  []*TSFunction
	Preamble   string // verbatim declarations emitted after the header
}
