package quest

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/pasky/muaddib-sub002/pkg/models"
)

type fakeState struct {
	started    []string
	snoozed    map[string]time.Time
	active     []string
	subactive  []string
	nextID     int
}

func newFakeState() *fakeState { return &fakeState{snoozed: make(map[string]time.Time)} }

func (s *fakeState) StartQuest(arc, title string) (string, error) {
	s.nextID++
	id := "q" + string(rune('0'+s.nextID))
	s.active = append(s.active, id)
	return id, nil
}

func (s *fakeState) StartSubquest(arc, questID, title string) (string, error) {
	s.nextID++
	return "sq" + string(rune('0'+s.nextID)), nil
}

func (s *fakeState) Snooze(arc, questID string, until time.Time) error {
	s.snoozed[questID] = until
	return nil
}

func (s *fakeState) ActiveQuestIDs(arc string) []string { return s.active }

func (s *fakeState) ActiveTopLevelQuestIDs(arc string) []string { return s.active }

func (s *fakeState) ActiveSubquestIDs(arc string) []string { return s.subactive }

func TestQuestStartCreatesQuest(t *testing.T) {
	state := newFakeState()
	tool := NewStartTool(state, "irc#chan")

	res, err := tool.Execute(context.Background(), models.ToolCall{ID: "1", Input: json.RawMessage(`{"title":"investigate the bug"}`)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Content == "" {
		t.Fatal("expected a confirmation message")
	}
}

func TestSubquestRejectsUnknownQuest(t *testing.T) {
	state := newFakeState()
	tool := NewSubquestTool(state, "irc#chan")

	res, err := tool.Execute(context.Background(), models.ToolCall{
		ID: "1", Input: json.RawMessage(`{"quest_id":"bogus","title":"sub task"}`),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.IsError {
		t.Fatal("expected an error result for an unknown quest id")
	}
}

func TestSnoozeWithTimeOfDayResolvesToNextOccurrence(t *testing.T) {
	state := newFakeState()
	tool := NewSnoozeTool(state, "irc#chan")
	tool.Now = func() time.Time { return time.Date(2026, 7, 31, 10, 0, 0, 0, time.UTC) }
	state.active = []string{"q1"}

	res, err := tool.Execute(context.Background(), models.ToolCall{
		ID: "1", Input: json.RawMessage(`{"quest_id":"q1","until":"09:00"}`),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected error: %q", res.Content)
	}
	until, ok := state.snoozed["q1"]
	if !ok {
		t.Fatal("expected a snooze to be recorded")
	}
	if until.Day() != 1 || until.Month() != time.August {
		t.Fatalf("expected 09:00 to resolve to the next day, got %v", until)
	}
}

func TestSnoozeRejectsInvalidSpec(t *testing.T) {
	state := newFakeState()
	tool := NewSnoozeTool(state, "irc#chan")

	res, err := tool.Execute(context.Background(), models.ToolCall{
		ID: "1", Input: json.RawMessage(`{"quest_id":"q1","until":"not a time"}`),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.IsError {
		t.Fatal("expected an error result for an invalid snooze spec")
	}
}
