package sandbox

import (
	"errors"
	"fmt"

	"github.com/yousuf/loopviz/internal/trace"
)

var (
	// ErrTimedOut is the cause of a recording stopped by its wall-clock limit.
	ErrTimedOut = errors.New("recording timed out")
	// ErrStepLimit is the cause of a recording stopped by a full trace buffer.
	ErrStepLimit = errors.New("trace limit reached")
)

// SnippetError reports that user code threw, either synchronously inside the
// entry point or later inside a timer or microtask callback.
type SnippetError struct {
	// Message is the formatted error, e.g. "TypeError: x is not a function".
	Message string
	// Line is the snippet line the error was raised at, or 0.
	Line int
	// Stack is the engine stack mapped to snippet coordinates.
	Stack string
}

func (e *SnippetError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s (line %d)", e.Message, e.Line)
	}
	return e.Message
}

// SetupError reports that the execution context could not be prepared.
type SetupError struct {
	Op  string
	Err error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("sandbox setup failed: %s: %v", e.Op, e.Err)
}

func (e *SetupError) Unwrap() error {
	return e.Err
}

// logStep is the single console line an error is rendered as in a trace.
func logStep(err error) trace.Step {
	var snippetErr *SnippetError
	if errors.As(err, &snippetErr) {
		return trace.Step{Kind: trace.LogOutput, Label: snippetErr.Message, SourceLine: snippetErr.Line}
	}
	return trace.Step{Kind: trace.LogOutput, Label: "Error: " + err.Error()}
}
