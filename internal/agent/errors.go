package agent

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced by the session runner (spec §4.3, §7).
var (
	ErrMaxIterations    = errors.New("agent: iteration cap reached")
	ErrNoProvider       = errors.New("agent: no model provider configured")
	ErrEmptyCompletion  = errors.New("agent: model returned no text or tool use")
	ErrToolTimeout      = errors.New("agent: tool execution timed out")
	ErrToolNotFound     = errors.New("agent: unknown tool")
	ErrStreamTerminated = errors.New("agent: provider stream ended in error")
)

// MaxIterationsError reports that the iteration cap was hit mid-turn. Text
// carries the assistant's partial turn, already appended to the session,
// so callers can surface it alongside the generic notice instead of losing
// it (spec §7, "a polite message plus the best assistant text so far").
type MaxIterationsError struct {
	Text string
}

func (e *MaxIterationsError) Error() string { return ErrMaxIterations.Error() }

func (e *MaxIterationsError) Unwrap() error { return ErrMaxIterations }

// ToolErrorType classifies a failed tool execution so the runner can decide
// whether to retry, fall back, or surface the failure to the model as a
// tool result.
type ToolErrorType string

const (
	ToolErrorInvalidInput ToolErrorType = "invalid_input"
	ToolErrorTimeout      ToolErrorType = "timeout"
	ToolErrorUpstream     ToolErrorType = "upstream"
	ToolErrorInternal     ToolErrorType = "internal"
)

// IsRetryable reports whether a tool error of this type is worth retrying
// once automatically. Invalid input is never retryable: retrying with the
// same arguments reproduces the same error.
func (t ToolErrorType) IsRetryable() bool {
	switch t {
	case ToolErrorTimeout, ToolErrorUpstream:
		return true
	default:
		return false
	}
}

// ToolError wraps a failed tool execution with enough detail for both
// logging and for building the tool_result content block sent back to the
// model.
type ToolError struct {
	ToolName string
	Type     ToolErrorType
	Err      error
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("tool %s failed (%s): %v", e.ToolName, e.Type, e.Err)
}

func (e *ToolError) Unwrap() error { return e.Err }

// NewToolError constructs a ToolError, defaulting to ToolErrorInternal when
// the caller has no more specific classification.
func NewToolError(toolName string, t ToolErrorType, err error) *ToolError {
	if t == "" {
		t = ToolErrorInternal
	}
	return &ToolError{ToolName: toolName, Type: t, Err: err}
}
