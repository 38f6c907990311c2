// Package chronicletools implements the chronicle_read and
// chronicle_append baseline tools, gated on a chronicle.Store being
// configured for the arc (spec §4.4, §12).
package chronicletools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pasky/muaddib-sub002/internal/chronicle"
	"github.com/pasky/muaddib-sub002/pkg/models"
)

var readSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "chapters_back": {"type": "integer", "description": "0 = current chapter, 1 = previous, etc."}
  }
}`)

// ReadTool implements agent.Tool for chronicle_read.
type ReadTool struct {
	Store *chronicle.SQLiteStore
	Arc   string
}

func NewReadTool(store *chronicle.SQLiteStore, arc string) *ReadTool {
	return &ReadTool{Store: store, Arc: arc}
}

func (t *ReadTool) Name() string                       { return "chronicle_read" }
func (t *ReadTool) Description() string                { return "Read a past chapter of this conversation's chronicle." }
func (t *ReadTool) Schema() json.RawMessage             { return readSchema }
func (t *ReadTool) PersistType() models.ToolPersistType { return models.PersistNone }

type readInput struct {
	ChaptersBack int `json:"chapters_back"`
}

func (t *ReadTool) Execute(ctx context.Context, call models.ToolCall) (models.ToolResult, error) {
	var in readInput
	if len(call.Input) > 0 {
		if err := json.Unmarshal(call.Input, &in); err != nil {
			return models.ToolResult{}, fmt.Errorf("chronicle_read: invalid input: %w", err)
		}
	}

	text, err := t.Store.RenderChapterRelative(ctx, t.Arc, in.ChaptersBack)
	if err != nil {
		return models.ToolResult{}, fmt.Errorf("chronicle_read: rendering chapter: %w", err)
	}
	if text == "" {
		text = "(no chronicle recorded yet)"
	}
	return models.ToolResult{ToolCallID: call.ID, Content: text}, nil
}

var appendSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "text": {"type": "string"}
  },
  "required": ["text"]
}`)

// AppendTool implements agent.Tool for chronicle_append.
type AppendTool struct {
	Store *chronicle.SQLiteStore
	Arc   string
}

func NewAppendTool(store *chronicle.SQLiteStore, arc string) *AppendTool {
	return &AppendTool{Store: store, Arc: arc}
}

func (t *AppendTool) Name() string                       { return "chronicle_append" }
func (t *AppendTool) Description() string                { return "Append a paragraph to this conversation's current chronicle chapter." }
func (t *AppendTool) Schema() json.RawMessage             { return appendSchema }
func (t *AppendTool) PersistType() models.ToolPersistType { return models.PersistNone }

type appendInput struct {
	Text string `json:"text"`
}

func (t *AppendTool) Execute(ctx context.Context, call models.ToolCall) (models.ToolResult, error) {
	var in appendInput
	if err := json.Unmarshal(call.Input, &in); err != nil || in.Text == "" {
		return models.ToolResult{}, fmt.Errorf("chronicle_append: invalid input: %w", err)
	}

	ch, err := t.Store.GetOrOpenCurrentChapter(ctx, t.Arc)
	if err != nil {
		return models.ToolResult{}, fmt.Errorf("chronicle_append: opening chapter: %w", err)
	}
	if _, err := t.Store.AppendParagraph(ctx, ch.ID, in.Text); err != nil {
		return models.ToolResult{}, fmt.Errorf("chronicle_append: appending paragraph: %w", err)
	}

	return models.ToolResult{ToolCallID: call.ID, Content: "recorded"}, nil
}
