// Package oracle implements the oracle baseline tool: a nested session
// runner the agent can delegate a sub-question to, with oracle,
// progress_report, and the quest tools excluded from its own tool set to
// prevent unbounded recursion (spec §4.4).
package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pasky/muaddib-sub002/internal/agent"
	"github.com/pasky/muaddib-sub002/pkg/models"
)

var excludedTools = []string{"oracle", "progress_report", "quest_start", "subquest_start", "quest_snooze"}

var schema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "query": {"type": "string"}
  },
  "required": ["query"]
}`)

// RunnerFactory builds a fresh nested Runner inheriting the parent's
// context (model, system prompt, tool registry) but with the excluded
// tools stripped.
type RunnerFactory func(tools *agent.Registry) *agent.Runner

// Tool implements agent.Tool for oracle. ParentContext carries the outer
// conversation's transcript so the nested session inherits it at consult
// time (spec §4.4) instead of seeing only the bare query.
type Tool struct {
	ParentTools   *agent.Registry
	ParentContext []models.ContentBlock
	NewRunner     RunnerFactory
	System        string
	Model         string
}

func New(parentTools *agent.Registry, parentContext []models.ContentBlock, system, model string, newRunner RunnerFactory) *Tool {
	return &Tool{ParentTools: parentTools, ParentContext: parentContext, NewRunner: newRunner, System: system, Model: model}
}

func (t *Tool) Name() string                       { return "oracle" }
func (t *Tool) Description() string                { return "Delegate a focused sub-question to a nested reasoning session." }
func (t *Tool) Schema() json.RawMessage             { return schema }
func (t *Tool) PersistType() models.ToolPersistType { return models.PersistSummary }

type input struct {
	Query string `json:"query"`
}

func (t *Tool) Execute(ctx context.Context, call models.ToolCall) (models.ToolResult, error) {
	var in input
	if err := json.Unmarshal(call.Input, &in); err != nil || in.Query == "" {
		return models.ToolResult{}, fmt.Errorf("oracle: invalid input: %w", err)
	}

	nestedTools := t.ParentTools.Excluding(excludedTools...)
	runner := t.NewRunner(nestedTools)

	messages := make([]models.ContentBlock, 0, len(t.ParentContext)+1)
	messages = append(messages, t.ParentContext...)
	messages = append(messages, models.ContentBlock{Type: models.BlockText, Text: in.Query})

	sess := &agent.Session{
		Model:    t.Model,
		System:   t.System,
		Messages: messages,
	}

	result, err := runner.Run(ctx, sess)
	if err != nil {
		if errors.Is(err, agent.ErrMaxIterations) {
			return models.ToolResult{ToolCallID: call.ID, Content: "exhausted"}, nil
		}
		return models.ToolResult{ToolCallID: call.ID, Content: fmt.Sprintf("Oracle error: %v", err), IsError: true}, nil
	}

	return models.ToolResult{ToolCallID: call.ID, Content: result.Text}, nil
}
