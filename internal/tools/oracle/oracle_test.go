package oracle

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/pasky/muaddib-sub002/internal/agent"
	"github.com/pasky/muaddib-sub002/pkg/models"
)

type scriptedAdapter struct {
	msg models.AssistantMessage
}

func (a scriptedAdapter) Name() string        { return "oracle-model" }
func (a scriptedAdapter) SupportsVision() bool { return false }
func (a scriptedAdapter) SupportsTools() bool  { return true }
func (a scriptedAdapter) Stream(ctx context.Context, req agent.CompletionRequest) (<-chan agent.StreamEvent, error) {
	ch := make(chan agent.StreamEvent, 1)
	msg := a.msg
	ch <- agent.StreamEvent{Type: agent.EventDone, Message: &msg}
	close(ch)
	return ch, nil
}

type stubResolver struct{ adapter agent.ModelAdapter }

func (r stubResolver) Resolve(model string) (agent.ModelAdapter, error) { return r.adapter, nil }

func TestOracleReturnsNestedRunnerAnswer(t *testing.T) {
	adapter := scriptedAdapter{msg: models.AssistantMessage{
		Content:    []models.ContentBlock{{Type: models.BlockText, Text: "42"}},
		StopReason: models.StopEndTurn,
	}}

	tool := New(agent.NewRegistry(), nil, "be helpful", "oracle-model", func(tools *agent.Registry) *agent.Runner {
		return agent.NewRunner(agent.RunnerConfig{
			Resolver: stubResolver{adapter: adapter},
			Tools:    tools,
		})
	})

	res, err := tool.Execute(context.Background(), models.ToolCall{
		ID: "1", Input: json.RawMessage(`{"query":"what is the answer?"}`),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Content != "42" {
		t.Fatalf("unexpected content: %q", res.Content)
	}
}

func TestOracleExcludesRecursiveTools(t *testing.T) {
	parent := agent.NewRegistry()
	var seenNames []string

	adapter := scriptedAdapter{msg: models.AssistantMessage{
		Content:    []models.ContentBlock{{Type: models.BlockText, Text: "done"}},
		StopReason: models.StopEndTurn,
	}}

	tool := New(parent, nil, "sys", "oracle-model", func(tools *agent.Registry) *agent.Runner {
		seenNames = tools.Names()
		return agent.NewRunner(agent.RunnerConfig{Resolver: stubResolver{adapter: adapter}, Tools: tools})
	})

	_, err := tool.Execute(context.Background(), models.ToolCall{ID: "1", Input: json.RawMessage(`{"query":"q"}`)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, n := range seenNames {
		if n == "oracle" {
			t.Fatalf("expected 'oracle' to be excluded from the nested tool set")
		}
	}
}

func TestOracleInheritsParentConversationContext(t *testing.T) {
	var seenMessages []models.ContentBlock
	adapter := scriptedAdapter{msg: models.AssistantMessage{
		Content:    []models.ContentBlock{{Type: models.BlockText, Text: "ok"}},
		StopReason: models.StopEndTurn,
	}}

	capturingResolver := captureResolver{adapter: adapter, seen: &seenMessages}

	parentContext := []models.ContentBlock{
		{Type: models.BlockText, Text: "earlier user message"},
		{Type: models.BlockText, Text: "earlier assistant reply"},
	}

	tool := New(agent.NewRegistry(), parentContext, "sys", "oracle-model", func(tools *agent.Registry) *agent.Runner {
		return agent.NewRunner(agent.RunnerConfig{Resolver: capturingResolver, Tools: tools})
	})

	_, err := tool.Execute(context.Background(), models.ToolCall{
		ID: "1", Input: json.RawMessage(`{"query":"what happened earlier?"}`),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(seenMessages) != 3 {
		t.Fatalf("expected parent context plus the query, got %d messages: %+v", len(seenMessages), seenMessages)
	}
	if seenMessages[0].Text != "earlier user message" || seenMessages[1].Text != "earlier assistant reply" {
		t.Fatalf("expected parent context seeded first, got %+v", seenMessages)
	}
	if seenMessages[2].Text != "what happened earlier?" {
		t.Fatalf("expected the query appended last, got %+v", seenMessages)
	}
}

type captureResolver struct {
	adapter agent.ModelAdapter
	seen    *[]models.ContentBlock
}

func (r captureResolver) Resolve(model string) (agent.ModelAdapter, error) {
	return capturingAdapter{inner: r.adapter, seen: r.seen}, nil
}

type capturingAdapter struct {
	inner agent.ModelAdapter
	seen  *[]models.ContentBlock
}

func (a capturingAdapter) Name() string        { return a.inner.Name() }
func (a capturingAdapter) SupportsVision() bool { return a.inner.SupportsVision() }
func (a capturingAdapter) SupportsTools() bool  { return a.inner.SupportsTools() }
func (a capturingAdapter) Stream(ctx context.Context, req agent.CompletionRequest) (<-chan agent.StreamEvent, error) {
	*a.seen = req.Messages
	return a.inner.Stream(ctx, req)
}
