package agent

import (
	"context"

	"github.com/pasky/muaddib-sub002/pkg/models"
)

// CompletionRequest is what the runner sends to a ModelAdapter each turn.
type CompletionRequest struct {
	Model    string
	Messages []models.ContentBlock
	System   string
	Tools    []LLMTool
	MaxTokens int
	ReasoningEffort string
}

// StreamEventType discriminates the events a ModelAdapter emits while
// streaming a completion.
type StreamEventType string

const (
	EventStart          StreamEventType = "start"
	EventTextStart      StreamEventType = "text_start"
	EventTextDelta      StreamEventType = "text_delta"
	EventTextEnd        StreamEventType = "text_end"
	EventToolCallStart  StreamEventType = "toolcall_start"
	EventToolCallDelta  StreamEventType = "toolcall_delta"
	EventToolCallEnd    StreamEventType = "toolcall_end"
	EventDone           StreamEventType = "done"
	EventError          StreamEventType = "error"
)

// StreamEvent is a single incremental update from a ModelAdapter's
// streamed completion.
type StreamEvent struct {
	Type StreamEventType

	TextDelta string

	ToolCall *models.ToolCall

	Message *models.AssistantMessage // set on EventDone
	Err     error                    // set on EventError
}

// ModelAdapter is the boundary between the session runner and a specific
// LLM provider's SDK (spec §6 "external interfaces"). Implementations live
// under internal/agent/providers/*.
type ModelAdapter interface {
	Name() string
	SupportsVision() bool
	SupportsTools() bool

	// Stream issues a completion request and delivers incremental events
	// on the returned channel, which is closed after EventDone or
	// EventError. The channel is unbuffered from the adapter's point of
	// view; callers should drain it promptly.
	Stream(ctx context.Context, req CompletionRequest) (<-chan StreamEvent, error)
}

// Resolver looks up a ModelAdapter by the model name a RuntimeSettings or
// @model override names, so the runner never depends on a concrete
// provider package directly.
type Resolver interface {
	Resolve(modelName string) (ModelAdapter, error)
}
