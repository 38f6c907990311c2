// Package quest implements the quest_start, subquest_start, and
// quest_snooze baseline tools: longer-running tracked goals that can
// snooze themselves until a later time expressed either as HH:MM or a
// cron-like expression parsed with adhocore/gronx (spec §4.4, §12).
package quest

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/adhocore/gronx"

	"github.com/pasky/muaddib-sub002/pkg/models"
)

var timeOfDayRe = regexp.MustCompile(`^([01]\d|2[0-3]):([0-5]\d)$`)

// State tracks a single arc's active quest/subquests in memory; a real
// deployment backs this with persistent storage, but the tool contract
// only needs an interface.
type State interface {
	StartQuest(arc, title string) (id string, err error)
	StartSubquest(arc, questID, title string) (id string, err error)
	Snooze(arc, questID string, until time.Time) error
	ActiveQuestIDs(arc string) []string

	// ActiveTopLevelQuestIDs and ActiveSubquestIDs split ActiveQuestIDs by
	// nesting depth so callers can tell the three states spec.md:167
	// distinguishes apart: no active quest, an active top-level quest, or
	// an active subquest.
	ActiveTopLevelQuestIDs(arc string) []string
	ActiveSubquestIDs(arc string) []string
}

var startSchema = json.RawMessage(`{
  "type": "object",
  "properties": {"title": {"type": "string"}},
  "required": ["title"]
}`)

// StartTool implements agent.Tool for quest_start.
type StartTool struct {
	State State
	Arc   string
}

func NewStartTool(state State, arc string) *StartTool { return &StartTool{State: state, Arc: arc} }

func (t *StartTool) Name() string                       { return "quest_start" }
func (t *StartTool) Description() string                { return "Start a new tracked quest (longer-running goal) for this conversation." }
func (t *StartTool) Schema() json.RawMessage             { return startSchema }
func (t *StartTool) PersistType() models.ToolPersistType { return models.PersistSummary }

type startInput struct {
	Title string `json:"title"`
}

func (t *StartTool) Execute(ctx context.Context, call models.ToolCall) (models.ToolResult, error) {
	var in startInput
	if err := json.Unmarshal(call.Input, &in); err != nil || in.Title == "" {
		return models.ToolResult{}, fmt.Errorf("quest_start: invalid input: %w", err)
	}
	id, err := t.State.StartQuest(t.Arc, in.Title)
	if err != nil {
		return models.ToolResult{}, fmt.Errorf("quest_start: %w", err)
	}
	return models.ToolResult{ToolCallID: call.ID, Content: fmt.Sprintf("quest %s started", id)}, nil
}

var subquestSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "quest_id": {"type": "string"},
    "title": {"type": "string"}
  },
  "required": ["quest_id", "title"]
}`)

// SubquestTool implements agent.Tool for subquest_start.
type SubquestTool struct {
	State State
	Arc   string
}

func NewSubquestTool(state State, arc string) *SubquestTool { return &SubquestTool{State: state, Arc: arc} }

func (t *SubquestTool) Name() string                       { return "subquest_start" }
func (t *SubquestTool) Description() string                { return "Start a subquest nested under an active quest." }
func (t *SubquestTool) Schema() json.RawMessage             { return subquestSchema }
func (t *SubquestTool) PersistType() models.ToolPersistType { return models.PersistSummary }

type subquestInput struct {
	QuestID string `json:"quest_id"`
	Title   string `json:"title"`
}

func (t *SubquestTool) Execute(ctx context.Context, call models.ToolCall) (models.ToolResult, error) {
	var in subquestInput
	if err := json.Unmarshal(call.Input, &in); err != nil || in.QuestID == "" || in.Title == "" {
		return models.ToolResult{}, fmt.Errorf("subquest_start: invalid input: %w", err)
	}
	valid := false
	for _, id := range t.State.ActiveQuestIDs(t.Arc) {
		if id == in.QuestID {
			valid = true
			break
		}
	}
	if !valid {
		return models.ToolResult{ToolCallID: call.ID, Content: fmt.Sprintf("no active quest %q", in.QuestID), IsError: true}, nil
	}

	id, err := t.State.StartSubquest(t.Arc, in.QuestID, in.Title)
	if err != nil {
		return models.ToolResult{}, fmt.Errorf("subquest_start: %w", err)
	}
	return models.ToolResult{ToolCallID: call.ID, Content: fmt.Sprintf("subquest %s started", id)}, nil
}

var snoozeSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "quest_id": {"type": "string"},
    "until": {"type": "string", "description": "HH:MM time of day, or a cron expression"}
  },
  "required": ["quest_id", "until"]
}`)

// SnoozeTool implements agent.Tool for quest_snooze.
type SnoozeTool struct {
	State State
	Arc   string
	Now   func() time.Time
}

func NewSnoozeTool(state State, arc string) *SnoozeTool {
	return &SnoozeTool{State: state, Arc: arc, Now: time.Now}
}

type snoozeInput struct {
	QuestID string `json:"quest_id"`
	Until   string `json:"until"`
}

func (t *SnoozeTool) Name() string                       { return "quest_snooze" }
func (t *SnoozeTool) Description() string                { return "Snooze a quest until a later time of day or cron expression." }
func (t *SnoozeTool) Schema() json.RawMessage             { return snoozeSchema }
func (t *SnoozeTool) PersistType() models.ToolPersistType { return models.PersistSummary }

func (t *SnoozeTool) Execute(ctx context.Context, call models.ToolCall) (models.ToolResult, error) {
	var in snoozeInput
	if err := json.Unmarshal(call.Input, &in); err != nil || in.QuestID == "" || in.Until == "" {
		return models.ToolResult{}, fmt.Errorf("quest_snooze: invalid input: %w", err)
	}

	now := t.Now()
	if now.IsZero() {
		now = time.Now()
	}

	until, err := resolveSnoozeTime(in.Until, now)
	if err != nil {
		return models.ToolResult{ToolCallID: call.ID, Content: err.Error(), IsError: true}, nil
	}

	if err := t.State.Snooze(t.Arc, in.QuestID, until); err != nil {
		return models.ToolResult{}, fmt.Errorf("quest_snooze: %w", err)
	}
	return models.ToolResult{ToolCallID: call.ID, Content: fmt.Sprintf("snoozed until %s", until.Format(time.RFC3339))}, nil
}

// resolveSnoozeTime accepts either an "HH:MM" time of day (resolved to
// the next occurrence of that time from now) or a cron expression
// (resolved via gronx to its next tick).
func resolveSnoozeTime(spec string, now time.Time) (time.Time, error) {
	if m := timeOfDayRe.FindStringSubmatch(spec); m != nil {
		hour, minute := atoi(m[1]), atoi(m[2])
		candidate := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
		if !candidate.After(now) {
			candidate = candidate.AddDate(0, 0, 1)
		}
		return candidate, nil
	}

	gx := gronx.New()
	if !gx.IsValid(spec) {
		return time.Time{}, fmt.Errorf("quest_snooze: %q is neither an HH:MM time nor a valid cron expression", spec)
	}
	next, err := gronx.NextTickAfter(spec, now, false)
	if err != nil {
		return time.Time{}, fmt.Errorf("quest_snooze: computing next tick: %w", err)
	}
	return next, nil
}

func atoi(s string) int {
	n := 0
	for _, r := range s {
		n = n*10 + int(r-'0')
	}
	return n
}
