// Package summary implements the persistence-summary followup (spec
// SPEC_FULL.md §12, spec.md §9 "Persistence summary"): a one-shot model
// call that condenses a run's tool-use trace into a short paragraph for
// the chronicle, grounded on the same direct ModelAdapter.Stream usage
// the oracle tool's nested runner relies on, stripped of tool dispatch
// since a summary never needs to call tools itself.
package summary

import (
	"context"
	"fmt"
	"strings"

	"github.com/pasky/muaddib-sub002/internal/agent"
	"github.com/pasky/muaddib-sub002/pkg/models"
)

const defaultSystemPrompt = "Summarize the following tool activity in one or two sentences for a permanent log. Be concise and factual."

// Generator produces persistence summaries via Resolver/Model.
type Generator struct {
	Resolver agent.Resolver
	Model    string
	System   string
}

func NewGenerator(resolver agent.Resolver, model string) *Generator {
	return &Generator{Resolver: resolver, Model: model, System: defaultSystemPrompt}
}

// Generate matches handler.SummaryGenerator's signature.
func (g *Generator) Generate(ctx context.Context, arc string, toolTrace []models.ContentBlock) (string, error) {
	var transcript strings.Builder
	for _, b := range toolTrace {
		switch b.Type {
		case models.BlockToolCall:
			if b.ToolCall != nil {
				fmt.Fprintf(&transcript, "called %s(%s)\n", b.ToolCall.Name, b.ToolCall.Input)
			}
		case models.BlockToolResult:
			if b.ToolResult != nil {
				transcript.WriteString(b.ToolResult.Content)
				transcript.WriteString("\n")
			}
		}
	}
	if transcript.Len() == 0 {
		return "", nil
	}

	adapter, err := g.Resolver.Resolve(g.Model)
	if err != nil {
		return "", fmt.Errorf("summary: resolving model: %w", err)
	}

	events, err := adapter.Stream(ctx, agent.CompletionRequest{
		Model:  g.Model,
		System: g.System,
		Messages: []models.ContentBlock{
			{Type: models.BlockText, Text: transcript.String()},
		},
		MaxTokens: 256,
	})
	if err != nil {
		return "", fmt.Errorf("summary: starting completion: %w", err)
	}

	for ev := range events {
		switch ev.Type {
		case agent.EventError:
			return "", fmt.Errorf("summary: completion failed: %w", ev.Err)
		case agent.EventDone:
			return ev.Message.Text(), nil
		}
	}
	return "", fmt.Errorf("summary: stream closed without a done event")
}
