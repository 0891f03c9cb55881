// Package sourcemap translates engine positions in the executed (wrapped,
// possibly transpiled) program back to lines of the user's snippet.
package sourcemap

import (
	"fmt"
	"strings"

	gosourcemap "github.com/go-sourcemap/sourcemap"
)

// SnippetFile is the name reported for frames that map into the snippet.
const SnippetFile = "snippet"

// Mapper maps positions of the executed program to snippet lines.
//
// Without a source map the executed program is the snippet shifted down by
// lineOffset lines of wrapper code. With a source map (TypeScript input) the
// map yields a line of the wrapped source, which is then shifted the same way.
type Mapper struct {
	consumer   *gosourcemap.Consumer
	srcName    string
	lineOffset int
}

// NewMapper creates a mapper for the program compiled as srcName. sourceMap may
// be empty.
func NewMapper(srcName string, sourceMap []byte, lineOffset int) (*Mapper, error) {
	m := &Mapper{srcName: srcName, lineOffset: lineOffset}
	if len(sourceMap) == 0 {
		return m, nil
	}

	consumer, err := gosourcemap.Parse("", sourceMap)
	if err != nil {
		return nil, fmt.Errorf("failed to parse source map: %w", err)
	}
	m.consumer = consumer
	return m, nil
}

// SourceName is the file name the executed program was compiled under.
func (m *Mapper) SourceName() string {
	return m.srcName
}

// Position maps a 1-based line and column of the executed program to a 1-based
// snippet line and column. ok is false when the position lies in wrapper code
// or has no mapping.
func (m *Mapper) Position(line, column int) (origLine, origColumn int, ok bool) {
	if line <= 0 {
		return 0, 0, false
	}

	origLine, origColumn = line, column
	if m.consumer != nil {
		// go-sourcemap expects a 1-indexed line and 0-indexed column
		_, _, l, c, found := m.consumer.Source(line, max(column-1, 0))
		if !found || l <= 0 {
			return 0, 0, false
		}
		origLine, origColumn = l, c+1
	}

	origLine -= m.lineOffset
	if origLine <= 0 {
		return 0, 0, false
	}
	return origLine, origColumn, true
}

// Line is Position without the column.
func (m *Mapper) Line(line, column int) int {
	l, _, ok := m.Position(line, column)
	if !ok {
		return 0
	}
	return l
}

// StackLine returns the snippet line of the innermost frame of an engine stack
// trace that belongs to the executed program.
func (m *Mapper) StackLine(stack string) int {
	for _, raw := range strings.Split(stack, "\n") {
		if f, ok := parseFrame(raw); ok {
			if line, _, ok := m.frame(f); ok {
				return line
			}
		}
	}
	return 0
}

// MapStack rewrites an engine stack trace so that frames of the executed
// program point at snippet coordinates. Every other line is kept as is.
func (m *Mapper) MapStack(stack string) string {
	lines := strings.Split(stack, "\n")
	for i, raw := range lines {
		f, ok := parseFrame(raw)
		if !ok {
			continue
		}
		if line, col, ok := m.frame(f); ok {
			lines[i] = fmt.Sprintf("%sat %s (%s:%d:%d)", f.indent, f.fn, SnippetFile, line, col)
		}
	}
	return strings.Join(lines, "\n")
}

// frame maps a frame of the executed program to snippet coordinates.
func (m *Mapper) frame(f frame) (line, col int, ok bool) {
	if f.native || f.file != m.srcName {
		return 0, 0, false
	}
	return m.Position(f.line, f.col)
}
