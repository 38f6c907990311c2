// Package planning implements the progress_report and make_plan baseline
// tools: lightweight structured notes the model uses to communicate
// intermediate status and upcoming steps without ending its turn (spec
// §4.4).
package planning

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pasky/muaddib-sub002/pkg/models"
)

var progressSchema = json.RawMessage(`{
  "type": "object",
  "properties": {"status": {"type": "string"}},
  "required": ["status"]
}`)

// ProgressTool implements agent.Tool for progress_report. It has no side
// effects beyond being echoed back to the model as acknowledged; its
// value is as a cheap way for the model to narrate status in a long tool
// chain without prematurely ending its turn.
type ProgressTool struct{}

func NewProgressTool() *ProgressTool { return &ProgressTool{} }

func (t *ProgressTool) Name() string                       { return "progress_report" }
func (t *ProgressTool) Description() string                { return "Report intermediate progress during a long task." }
func (t *ProgressTool) Schema() json.RawMessage             { return progressSchema }
func (t *ProgressTool) PersistType() models.ToolPersistType { return models.PersistNone }

type progressInput struct {
	Status string `json:"status"`
}

func (t *ProgressTool) Execute(ctx context.Context, call models.ToolCall) (models.ToolResult, error) {
	var in progressInput
	if err := json.Unmarshal(call.Input, &in); err != nil || in.Status == "" {
		return models.ToolResult{}, fmt.Errorf("progress_report: invalid input: %w", err)
	}
	return models.ToolResult{ToolCallID: call.ID, Content: "acknowledged"}, nil
}

var planSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "steps": {"type": "array", "items": {"type": "string"}}
  },
  "required": ["steps"]
}`)

// PlanTool implements agent.Tool for make_plan.
type PlanTool struct{}

func NewPlanTool() *PlanTool { return &PlanTool{} }

func (t *PlanTool) Name() string                       { return "make_plan" }
func (t *PlanTool) Description() string                { return "Record an ordered plan of upcoming steps." }
func (t *PlanTool) Schema() json.RawMessage             { return planSchema }
func (t *PlanTool) PersistType() models.ToolPersistType { return models.PersistSummary }

type planInput struct {
	Steps []string `json:"steps"`
}

func (t *PlanTool) Execute(ctx context.Context, call models.ToolCall) (models.ToolResult, error) {
	var in planInput
	if err := json.Unmarshal(call.Input, &in); err != nil || len(in.Steps) == 0 {
		return models.ToolResult{}, fmt.Errorf("make_plan: invalid input: %w", err)
	}

	lines := make([]string, len(in.Steps))
	for i, step := range in.Steps {
		lines[i] = fmt.Sprintf("%d. %s", i+1, step)
	}
	return models.ToolResult{ToolCallID: call.ID, Content: strings.Join(lines, "\n")}, nil
}
