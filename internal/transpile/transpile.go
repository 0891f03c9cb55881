// Package transpile turns TypeScript snippets into JavaScript the engine can
// run, together with a source map back to the TypeScript lines.
package transpile

import (
	"fmt"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
)

// Result is the output of a transform.
type Result struct {
	JS        string
	SourceMap []byte
}

// Error reports a TypeScript syntax error at a line of the input.
type Error struct {
	Line    int
	Column  int
	Message string
}

func (e *Error) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("SyntaxError: %s (line %d)", e.Message, e.Line)
	}
	return "SyntaxError: " + e.Message
}

// TypeScript strips type syntax from code. fileName is recorded as the source
// name in the generated map.
func TypeScript(code, fileName string) (*Result, error) {
	result := api.Transform(code, api.TransformOptions{
		Loader:     api.LoaderTS,
		Target:     api.ES2017,
		Sourcemap:  api.SourceMapExternal,
		Sourcefile: fileName,
	})

	if len(result.Errors) > 0 {
		msg := result.Errors[0]
		err := &Error{Message: msg.Text}
		if msg.Location != nil {
			err.Line = msg.Location.Line
			err.Column = msg.Location.Column
		}
		if n := len(result.Errors); n > 1 {
			err.Message = fmt.Sprintf("%s (and %d more)", err.Message, n-1)
		}
		return nil, err
	}

	js := string(result.Code)
	// goja tries to load a map named by a sourceMappingURL comment
	if i := strings.LastIndex(js, "//# sourceMappingURL="); i >= 0 {
		js = js[:i]
	}

	return &Result{
		JS:        js,
		SourceMap: result.Map,
	}, nil
}
