package sourcemap

import (
	"regexp"
	"strconv"
	"strings"
)

// goja renders frames as "at fn (file:line:col(pc))", "at file:line:col(pc)"
// or "at fn (native)".
var (
	namedFrame  = regexp.MustCompile(`^at\s+(.+?)\s+\((.+?):(\d+):(\d+)(?:\(\d+\))?\)$`)
	anonFrame   = regexp.MustCompile(`^at\s+(.+?):(\d+):(\d+)(?:\(\d+\))?$`)
	nativeFrame = regexp.MustCompile(`^at\s+(.+?)\s+\(native\)$`)
)

// frame is one line of an engine stack trace. line and col are 1-based and
// zero for native frames.
type frame struct {
	indent string
	fn     string
	file   string
	line   int
	col    int
	native bool
}

// parseFrame parses one stack trace line. ok is false for lines that are not
// frames, such as the leading error message.
func parseFrame(raw string) (f frame, ok bool) {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "at ") {
		return frame{}, false
	}
	f.indent = raw[:len(raw)-len(strings.TrimLeft(raw, " \t"))]

	if m := nativeFrame.FindStringSubmatch(trimmed); m != nil {
		f.fn, f.file, f.native = m[1], "native", true
		return f, true
	}
	if m := namedFrame.FindStringSubmatch(trimmed); m != nil {
		f.fn, f.file = m[1], m[2]
		f.line, _ = strconv.Atoi(m[3])
		f.col, _ = strconv.Atoi(m[4])
		return f, true
	}
	if m := anonFrame.FindStringSubmatch(trimmed); m != nil {
		f.fn, f.file = "<anonymous>", m[1]
		f.line, _ = strconv.Atoi(m[2])
		f.col, _ = strconv.Atoi(m[3])
		return f, true
	}
	return frame{}, false
}
