package handler

import (
	"context"
	"testing"
	"time"

	"github.com/pasky/muaddib-sub002/internal/agent"
	"github.com/pasky/muaddib-sub002/internal/commands"
	"github.com/pasky/muaddib-sub002/internal/history"
	"github.com/pasky/muaddib-sub002/internal/steering"
	"github.com/pasky/muaddib-sub002/pkg/models"
)

// memHistory is a minimal in-process history.Store fake for pipeline tests.
type memHistory struct {
	rows   []history.StoredMessage
	nextID int64
}

func (m *memHistory) AddMessage(ctx context.Context, msg history.StoredMessage) (int64, error) {
	m.nextID++
	msg.ID = m.nextID
	m.rows = append(m.rows, msg)
	return msg.ID, nil
}
func (m *memHistory) GetContext(ctx context.Context, arc string, limit int) ([]history.StoredMessage, error) {
	var out []history.StoredMessage
	for _, r := range m.rows {
		if r.Arc == arc {
			out = append(out, r)
		}
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}
func (m *memHistory) GetFullHistory(ctx context.Context, arc string) ([]history.StoredMessage, error) {
	return m.GetContext(ctx, arc, len(m.rows))
}
func (m *memHistory) GetRecentMessagesSince(ctx context.Context, arc string, since time.Time) ([]history.StoredMessage, error) {
	return nil, nil
}
func (m *memHistory) MarkChronicled(ctx context.Context, ids []int64) error { return nil }
func (m *memHistory) CountRecentUnchronicled(ctx context.Context, arc string) (int, error) {
	return 0, nil
}
func (m *memHistory) CountMessagesSince(ctx context.Context, arc string, since time.Time) (int, error) {
	return 0, nil
}
func (m *memHistory) GetArcCostToday(ctx context.Context, arc string) (float64, error) { return 0, nil }
func (m *memHistory) LogLLMCall(ctx context.Context, rec history.LLMCallRecord) (int64, error) {
	return 0, nil
}
func (m *memHistory) UpdateLLMCallResponse(ctx context.Context, id int64, usage models.Usage) error {
	return nil
}
func (m *memHistory) UpdateMessageByPlatformID(ctx context.Context, arc, platformID, newContent string) error {
	return nil
}
func (m *memHistory) GetMessageIDByPlatformID(ctx context.Context, arc, platformID string) (int64, bool, error) {
	return 0, false, nil
}

type scriptedAdapter struct {
	text string
}

func (a *scriptedAdapter) Name() string        { return "m1" }
func (a *scriptedAdapter) SupportsVision() bool { return false }
func (a *scriptedAdapter) SupportsTools() bool  { return true }
func (a *scriptedAdapter) Stream(ctx context.Context, req agent.CompletionRequest) (<-chan agent.StreamEvent, error) {
	ch := make(chan agent.StreamEvent, 1)
	msg := &models.AssistantMessage{
		Role:       models.RoleAssistant,
		Content:    []models.ContentBlock{{Type: models.BlockText, Text: a.text}},
		StopReason: models.StopEndTurn,
	}
	go func() {
		ch <- agent.StreamEvent{Type: agent.EventDone, Message: msg}
		close(ch)
	}()
	return ch, nil
}

type oneAdapterResolver struct{ adapter agent.ModelAdapter }

func (r oneAdapterResolver) Resolve(model string) (agent.ModelAdapter, error) { return r.adapter, nil }

func newTestResolver(steeringEnabled bool) *commands.Resolver {
	reg := commands.NewRegistry(models.RuntimeSettings{Model: "m1", Steering: steeringEnabled, HistorySize: 5})
	reg.RegisterMode(commands.Mode{Key: "chat", Runtime: models.RuntimeSettings{Model: "m1"}})
	_ = reg.RegisterTrigger(commands.Trigger{Name: "c", ModeKey: "chat"})
	return commands.NewResolver(reg, commands.Policy{Kind: "forced_trigger", ForcedTrigger: "c"}, nil)
}

func newTestHandler(h *memHistory, resolver *commands.Resolver, adapterText string) *Handler {
	return &Handler{
		Resolver: func(arc string) (*commands.Resolver, bool) { return resolver, true },
		History:  h,
		Models:   oneAdapterResolver{adapter: &scriptedAdapter{text: adapterText}},
	}
}

func TestHandleIncomingMessageIgnoresConfiguredUsers(t *testing.T) {
	h := &memHistory{}
	hdlr := newTestHandler(h, newTestResolver(false), "hello")
	hdlr.IgnoreUser = func(arc, nick string) bool { return nick == "spammer" }

	replied := false
	_, err := hdlr.HandleIncomingMessage(context.Background(), &models.RoomMessage{
		ServerTag: "irc", ChannelName: "chan", Nick: "spammer", Content: "!c hi",
	}, true, func(string) error { replied = true; return nil })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if replied || len(h.rows) != 0 {
		t.Fatalf("expected ignored message to be dropped entirely, rows=%+v replied=%v", h.rows, replied)
	}
}

func TestHandleIncomingMessagePassiveIsFoldedNotReplied(t *testing.T) {
	h := &memHistory{}
	mgr := steering.NewManager()
	hdlr := newTestHandler(h, newTestResolver(false), "hello")
	hdlr.Steering = mgr

	replied := false
	_, err := hdlr.HandleIncomingMessage(context.Background(), &models.RoomMessage{
		ServerTag: "irc", ChannelName: "chan", Nick: "bob", Content: "just chatting",
	}, false, func(string) error { replied = true; return nil })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if replied {
		t.Fatal("passive messages must not produce a direct reply")
	}
	if len(h.rows) != 1 {
		t.Fatalf("expected the passive message to be persisted, rows=%+v", h.rows)
	}
}

func TestHandleIncomingMessageSynchronousCommand(t *testing.T) {
	h := &memHistory{}
	hdlr := newTestHandler(h, newTestResolver(false), "hello there")

	var reply string
	resolved, err := hdlr.HandleIncomingMessage(context.Background(), &models.RoomMessage{
		ServerTag: "irc", ChannelName: "chan", Nick: "alice", Content: "!c hi",
	}, true, func(text string) error { reply = text; return nil })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply != "hello there" {
		t.Fatalf("unexpected reply: %q", reply)
	}
	if resolved.SelectedTrigger != "c" {
		t.Fatalf("unexpected resolved command: %+v", resolved)
	}

	found := false
	for _, row := range h.rows {
		if row.Role == models.RoleAssistant && row.Content == "hello there" && row.Mode == "c" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected the reply to be persisted with mode recorded, rows=%+v", h.rows)
	}
}

func TestHandleIncomingMessageQueuedCommandReleasesSession(t *testing.T) {
	h := &memHistory{}
	mgr := steering.NewManager()
	hdlr := newTestHandler(h, newTestResolver(true), "queued reply")
	hdlr.Steering = mgr

	var reply string
	_, err := hdlr.HandleIncomingMessage(context.Background(), &models.RoomMessage{
		ServerTag: "irc", ChannelName: "chan", Nick: "alice", Content: "hi",
	}, true, func(text string) error { reply = text; return nil })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply != "queued reply" {
		t.Fatalf("unexpected reply: %q", reply)
	}
	if mgr.SessionCount() != 0 {
		t.Fatalf("expected the steering session to be released after completion")
	}
}

func TestHandleIncomingMessageHelpRequested(t *testing.T) {
	h := &memHistory{}
	hdlr := newTestHandler(h, newTestResolver(false), "unused")

	var reply string
	_, err := hdlr.HandleIncomingMessage(context.Background(), &models.RoomMessage{
		ServerTag: "irc", ChannelName: "chan", Nick: "alice", Content: "!help",
	}, true, func(text string) error { reply = text; return nil })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply == "" {
		t.Fatal("expected help text to be sent")
	}
}

func TestApplyLengthPolicyLeavesShortTextAlone(t *testing.T) {
	hdlr := &Handler{ResponseMaxBytes: func(string) int { return 100 }}
	if got := hdlr.applyLengthPolicy("irc#chan", "short"); got != "short" {
		t.Fatalf("unexpected excerpt for short text: %q", got)
	}
}

func TestAppendFallbackAnnotations(t *testing.T) {
	result := &models.PromptResult{
		Text:                     "answer",
		RefusalFallbackActivated: true,
		RefusalFallbackModel:     "fallback:model",
	}
	got := appendFallbackAnnotations("answer", result)
	if got != "answer [refusal fallback to fallback:model]" {
		t.Fatalf("unexpected annotated text: %q", got)
	}
}
