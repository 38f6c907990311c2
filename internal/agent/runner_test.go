package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/pasky/muaddib-sub002/internal/steering"
	"github.com/pasky/muaddib-sub002/pkg/models"
)

// scriptedAdapter returns one canned AssistantMessage per call, in order.
type scriptedAdapter struct {
	name      string
	vision    bool
	responses []models.AssistantMessage
	calls     int
}

func (a *scriptedAdapter) Name() string          { return a.name }
func (a *scriptedAdapter) SupportsVision() bool   { return a.vision }
func (a *scriptedAdapter) SupportsTools() bool    { return true }

func (a *scriptedAdapter) Stream(ctx context.Context, req CompletionRequest) (<-chan StreamEvent, error) {
	ch := make(chan StreamEvent, 1)
	idx := a.calls
	if idx >= len(a.responses) {
		idx = len(a.responses) - 1
	}
	msg := a.responses[idx]
	a.calls++
	go func() {
		ch <- StreamEvent{Type: EventDone, Message: &msg}
		close(ch)
	}()
	return ch, nil
}

// erroringAdapter always yields a single EventError carrying err, never a
// done message.
type erroringAdapter struct {
	name string
	err  error
}

func (a *erroringAdapter) Name() string        { return a.name }
func (a *erroringAdapter) SupportsVision() bool { return false }
func (a *erroringAdapter) SupportsTools() bool  { return true }

func (a *erroringAdapter) Stream(ctx context.Context, req CompletionRequest) (<-chan StreamEvent, error) {
	ch := make(chan StreamEvent, 1)
	go func() {
		ch <- StreamEvent{Type: EventError, Err: a.err}
		close(ch)
	}()
	return ch, nil
}

type singleAdapterResolver struct {
	adapters map[string]ModelAdapter
}

func (r singleAdapterResolver) Resolve(model string) (ModelAdapter, error) {
	if a, ok := r.adapters[model]; ok {
		return a, nil
	}
	return nil, ErrNoProvider
}

func textMessage(text string, stop models.StopReason) models.AssistantMessage {
	return models.AssistantMessage{
		Role:       models.RoleAssistant,
		Content:    []models.ContentBlock{{Type: models.BlockText, Text: text}},
		StopReason: stop,
	}
}

func TestRunnerSimpleFinalAnswer(t *testing.T) {
	adapter := &scriptedAdapter{name: "m1", responses: []models.AssistantMessage{
		textMessage("hello there", models.StopEndTurn),
	}}
	runner := NewRunner(RunnerConfig{
		Resolver: singleAdapterResolver{adapters: map[string]ModelAdapter{"m1": adapter}},
		Tools:    NewRegistry(),
	})
	sess := &Session{Model: "m1"}

	result, err := runner.Run(context.Background(), sess)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Text != "hello there" {
		t.Fatalf("unexpected text: %q", result.Text)
	}
	if result.Iterations != 1 {
		t.Fatalf("expected 1 iteration, got %d", result.Iterations)
	}
}

func TestRunnerStreamErrorIsTerminal(t *testing.T) {
	adapter := &scriptedAdapter{name: "m1", responses: []models.AssistantMessage{
		textMessage("", models.StopError),
	}}
	runner := NewRunner(RunnerConfig{
		Resolver: singleAdapterResolver{adapters: map[string]ModelAdapter{"m1": adapter}},
		Tools:    NewRegistry(),
	})
	sess := &Session{Model: "m1"}

	_, err := runner.Run(context.Background(), sess)
	if err == nil {
		t.Fatal("expected error on StopError")
	}
}

func TestRunnerEmptyCompletionRetriesThenFails(t *testing.T) {
	empty := models.AssistantMessage{Role: models.RoleAssistant, StopReason: models.StopEndTurn}
	adapter := &scriptedAdapter{name: "m1", responses: []models.AssistantMessage{empty, empty, empty, empty, empty}}
	runner := NewRunner(RunnerConfig{
		Resolver:      singleAdapterResolver{adapters: map[string]ModelAdapter{"m1": adapter}},
		Tools:         NewRegistry(),
		MaxIterations: 50,
	})
	sess := &Session{Model: "m1"}

	_, err := runner.Run(context.Background(), sess)
	if err != ErrEmptyCompletion {
		t.Fatalf("expected ErrEmptyCompletion, got %v", err)
	}
	if adapter.calls != maxEmptyCompletionRetries+1 {
		t.Fatalf("expected %d calls, got %d", maxEmptyCompletionRetries+1, adapter.calls)
	}
}

func TestRunnerRefusalFallbackSwitchesModelOnce(t *testing.T) {
	refusal := textMessage("I can't assist with that request.", models.StopEndTurn)
	fallbackAnswer := textMessage("Here is the answer instead.", models.StopEndTurn)

	primary := &scriptedAdapter{name: "primary", responses: []models.AssistantMessage{refusal}}
	fallback := &scriptedAdapter{name: "fallback", responses: []models.AssistantMessage{fallbackAnswer}}

	runner := NewRunner(RunnerConfig{
		Resolver: singleAdapterResolver{adapters: map[string]ModelAdapter{
			"primary":  primary,
			"fallback": fallback,
		}},
		Tools:                 NewRegistry(),
		RefusalFallbackModel: "fallback",
	})
	sess := &Session{Model: "primary"}

	result, err := runner.Run(context.Background(), sess)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.RefusalFallbackActivated || result.RefusalFallbackModel != "fallback" {
		t.Fatalf("expected refusal fallback activated, got %+v", result)
	}
	if result.Text != "Here is the answer instead." {
		t.Fatalf("unexpected text: %q", result.Text)
	}
}

func TestRunnerRefusalFallbackActivatesOnStreamError(t *testing.T) {
	primary := &erroringAdapter{name: "primary", err: fmt.Errorf("anthropic: invalid_request_error: invalid_prompt")}
	fallbackAnswer := textMessage("Here is the answer instead.", models.StopEndTurn)
	fallback := &scriptedAdapter{name: "fallback", responses: []models.AssistantMessage{fallbackAnswer}}

	runner := NewRunner(RunnerConfig{
		Resolver: singleAdapterResolver{adapters: map[string]ModelAdapter{
			"primary":  primary,
			"fallback": fallback,
		}},
		Tools:                NewRegistry(),
		RefusalFallbackModel: "fallback",
	})
	sess := &Session{Model: "primary"}

	result, err := runner.Run(context.Background(), sess)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.RefusalFallbackActivated || result.RefusalFallbackModel != "fallback" {
		t.Fatalf("expected refusal fallback activated, got %+v", result)
	}
	if result.Text != "Here is the answer instead." {
		t.Fatalf("unexpected text: %q", result.Text)
	}
}

func TestRunnerNonRefusalStreamErrorReturnsUnchanged(t *testing.T) {
	primary := &erroringAdapter{name: "primary", err: fmt.Errorf("anthropic: overloaded_error: try again later")}
	fallback := &scriptedAdapter{name: "fallback", responses: []models.AssistantMessage{textMessage("unused", models.StopEndTurn)}}

	runner := NewRunner(RunnerConfig{
		Resolver: singleAdapterResolver{adapters: map[string]ModelAdapter{
			"primary":  primary,
			"fallback": fallback,
		}},
		Tools:                NewRegistry(),
		RefusalFallbackModel: "fallback",
	})
	sess := &Session{Model: "primary"}

	_, err := runner.Run(context.Background(), sess)
	if err == nil {
		t.Fatal("expected the non-refusal stream error to propagate")
	}
	if fallback.calls != 0 {
		t.Fatalf("expected no fallback attempt, got %d calls", fallback.calls)
	}
}

func TestRunnerMaxIterationsCarriesBestAssistantText(t *testing.T) {
	callMsg := models.AssistantMessage{
		Role: models.RoleAssistant,
		Content: []models.ContentBlock{
			{Type: models.BlockText, Text: "partial progress so far"},
			{Type: models.BlockToolCall, ToolCall: &models.ToolCall{ID: "t1", Name: "echo", Input: json.RawMessage(`{}`)}},
		},
		StopReason: models.StopToolUse,
	}

	responses := make([]models.AssistantMessage, 0, 3)
	for i := 0; i < 3; i++ {
		responses = append(responses, callMsg)
	}
	adapter := &scriptedAdapter{name: "m1", responses: responses}
	tools := NewRegistry()
	tools.Register(fakeTool{name: "echo"})

	runner := NewRunner(RunnerConfig{
		Resolver:      singleAdapterResolver{adapters: map[string]ModelAdapter{"m1": adapter}},
		Tools:         tools,
		MaxIterations: 2,
	})
	sess := &Session{Model: "m1"}

	_, err := runner.Run(context.Background(), sess)
	var maxIterErr *MaxIterationsError
	if !errors.As(err, &maxIterErr) {
		t.Fatalf("expected a *MaxIterationsError, got %v", err)
	}
	if maxIterErr.Text != "partial progress so far" {
		t.Fatalf("unexpected carried text: %q", maxIterErr.Text)
	}
}

func TestRunnerToolCallThenFinalAnswer(t *testing.T) {
	callMsg := models.AssistantMessage{
		Role: models.RoleAssistant,
		Content: []models.ContentBlock{{
			Type:     models.BlockToolCall,
			ToolCall: &models.ToolCall{ID: "t1", Name: "echo", Input: json.RawMessage(`{}`)},
		}},
		StopReason: models.StopToolUse,
	}
	finalMsg := textMessage("done", models.StopEndTurn)

	adapter := &scriptedAdapter{name: "m1", responses: []models.AssistantMessage{callMsg, finalMsg}}
	tools := NewRegistry()
	tools.Register(fakeTool{name: "echo"})

	runner := NewRunner(RunnerConfig{
		Resolver: singleAdapterResolver{adapters: map[string]ModelAdapter{"m1": adapter}},
		Tools:    tools,
	})
	sess := &Session{Model: "m1"}

	result, err := runner.Run(context.Background(), sess)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ToolCallsCount != 1 {
		t.Fatalf("expected 1 tool call, got %d", result.ToolCallsCount)
	}
	if result.Text != "done" {
		t.Fatalf("unexpected final text: %q", result.Text)
	}
}

func TestRunnerDrainsSteeringBetweenTurns(t *testing.T) {
	callMsg := models.AssistantMessage{
		Role: models.RoleAssistant,
		Content: []models.ContentBlock{{
			Type:     models.BlockToolCall,
			ToolCall: &models.ToolCall{ID: "t1", Name: "echo", Input: json.RawMessage(`{}`)},
		}},
		StopReason: models.StopToolUse,
	}
	finalMsg := textMessage("done", models.StopEndTurn)

	adapter := &scriptedAdapter{name: "m1", responses: []models.AssistantMessage{callMsg, finalMsg}}
	tools := NewRegistry()
	tools.Register(fakeTool{name: "echo"})

	mgr := steering.NewManager()
	key := steering.Key{Arc: "irc#chan", SubjectNick: "alice"}
	mgr.EnqueueCommand(&models.RoomMessage{ServerTag: "irc", ChannelName: "chan", Nick: "alice", Content: "hi"}, "c", func(string) error { return nil })
	mgr.TakeNextWorkCompacted(key) // simulate the runner taking the triggering item
	mgr.EnqueuePassive(&models.RoomMessage{ServerTag: "irc", ChannelName: "chan", Nick: "alice", Content: "fyi"}, func(string) error { return nil }, false)

	runner := NewRunner(RunnerConfig{
		Resolver:        singleAdapterResolver{adapters: map[string]ModelAdapter{"m1": adapter}},
		Tools:           tools,
		SteeringManager: mgr,
		SteeringKey:     key,
	})
	sess := &Session{Model: "m1"}

	_, err := runner.Run(context.Background(), sess)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	found := false
	for _, block := range sess.Messages {
		if block.Type == models.BlockText && block.Text == "<alice> fyi" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected drained passive message to be folded into context, messages: %+v", sess.Messages)
	}
}

func TestRunnerNoResolverFails(t *testing.T) {
	runner := NewRunner(RunnerConfig{Tools: NewRegistry()})
	_, err := runner.Run(context.Background(), &Session{Model: "m1"})
	if err != ErrNoProvider {
		t.Fatalf("expected ErrNoProvider, got %v", err)
	}
}
