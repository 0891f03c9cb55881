package sandbox

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dop251/goja"
	"github.com/dop251/goja/parser"

	"github.com/yousuf/loopviz/internal/sourcemap"
	"github.com/yousuf/loopviz/internal/transpile"
)

// Language is the source language of a snippet.
type Language string

const (
	JavaScript Language = "javascript"
	TypeScript Language = "typescript"
)

// ParseLanguage accepts the common spellings of the supported languages.
func ParseLanguage(s string) (Language, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "js", "javascript":
		return JavaScript, nil
	case "ts", "typescript":
		return TypeScript, nil
	default:
		return "", fmt.Errorf("unsupported language %q", s)
	}
}

// Source is a snippet to record.
type Source struct {
	Code     string
	Language Language
}

const (
	programName = "snippet.js"

	// The snippet runs as the body of an async entry function. The catch
	// reports a throw before any later microtask can append to the trace.
	entryPrefix = "var " + entryName + " = async function () { try {\n"
	entrySuffix = "\n} catch (e) { " + failHelper + "(e); } };\n"
	entryLines  = 1
)

// bundle is a snippet ready to execute.
type bundle struct {
	program  *goja.Program
	mapper   *sourcemap.Mapper
	failLine int // generated line of the entry function's catch
}

// bundleSource wraps the snippet in its entry function, strips TypeScript
// syntax when needed and instruments bindings. Syntax errors are returned as
// *SnippetError.
func bundleSource(src Source) (*bundle, error) {
	js := entryPrefix + src.Code + entrySuffix
	var sourceMap []byte

	if src.Language == TypeScript {
		res, err := transpile.TypeScript(js, "snippet.ts")
		if err != nil {
			var tsErr *transpile.Error
			if errors.As(err, &tsErr) {
				return nil, &SnippetError{Message: tsErr.Error(), Line: max(tsErr.Line-entryLines, 0)}
			}
			return nil, &SetupError{Op: "transpile", Err: err}
		}
		js, sourceMap = res.JS, res.SourceMap
	}

	mapper, err := sourcemap.NewMapper(programName, sourceMap, entryLines)
	if err != nil {
		return nil, &SetupError{Op: "source map", Err: err}
	}

	instrumented, err := instrument(programName, js)
	if err != nil {
		return nil, syntaxError(err, mapper)
	}

	program, err := goja.Compile(programName, instrumented, false)
	if err != nil {
		return nil, &SnippetError{Message: "SyntaxError: " + err.Error()}
	}

	failLine := 0
	if i := strings.LastIndex(instrumented, failHelper+"("); i >= 0 {
		failLine = strings.Count(instrumented[:i], "\n") + 1
	}
	return &bundle{program: program, mapper: mapper, failLine: failLine}, nil
}

func syntaxError(err error, mapper *sourcemap.Mapper) error {
	var list parser.ErrorList
	if errors.As(err, &list) && len(list) > 0 {
		first := list[0]
		return &SnippetError{
			Message: "SyntaxError: " + first.Message,
			Line:    mapper.Line(first.Position.Line, first.Position.Column),
		}
	}
	return &SnippetError{Message: "SyntaxError: " + err.Error()}
}
