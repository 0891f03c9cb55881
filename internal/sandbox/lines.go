package sandbox

import (
	"github.com/dop251/goja"

	"github.com/yousuf/loopviz/internal/sourcemap"
)

const stackDepth = 16

// attributor finds the snippet line a primitive was called from.
type attributor struct {
	vm     *goja.Runtime
	mapper *sourcemap.Mapper
}

// callerLine inspects the synchronous call stack and returns the line of the
// innermost frame that belongs to the snippet, or 0. Inside deferred callbacks
// this is a line of the callback body, not of the scheduling call.
func (a *attributor) callerLine() int {
	for _, frame := range a.vm.CaptureCallStack(stackDepth, nil) {
		if frame.SrcName() != a.mapper.SourceName() {
			continue
		}
		pos := frame.Position()
		if line := a.mapper.Line(pos.Line, pos.Column); line > 0 {
			return line
		}
	}
	return 0
}

// programLine returns the line of the innermost snippet frame in the
// generated program, before source mapping.
func (a *attributor) programLine() int {
	for _, frame := range a.vm.CaptureCallStack(stackDepth, nil) {
		if frame.SrcName() == a.mapper.SourceName() {
			return frame.Position().Line
		}
	}
	return 0
}

// errorLine returns the line a thrown value was raised at, using the stack
// the engine attached to it.
func (a *attributor) errorLine(stack string) int {
	if stack == "" {
		return 0
	}
	return a.mapper.StackLine(stack)
}
