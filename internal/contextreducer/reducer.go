// Package contextreducer implements the auto-reduce-context behavior
// (spec §4.5 step 5, §9 "Open questions" (c)): collapsing an arc's older
// history into one summarizing block via a one-shot model call, the same
// direct ModelAdapter.Stream pattern internal/summary uses.
package contextreducer

import (
	"context"
	"fmt"

	"github.com/pasky/muaddib-sub002/internal/agent"
	"github.com/pasky/muaddib-sub002/pkg/models"
)

const defaultSystemPrompt = "Condense the following chat transcript into a short paragraph preserving names, decisions, and open threads."

// Reducer condenses a transcript via Resolver/Model.
type Reducer struct {
	Resolver agent.Resolver
	Model    string
	System   string
}

func NewReducer(resolver agent.Resolver, model string) *Reducer {
	return &Reducer{Resolver: resolver, Model: model, System: defaultSystemPrompt}
}

// Reduce matches handler.ContextReducer's signature.
func (r *Reducer) Reduce(ctx context.Context, arc string, transcript string) (string, error) {
	adapter, err := r.Resolver.Resolve(r.Model)
	if err != nil {
		return "", fmt.Errorf("contextreducer: resolving model: %w", err)
	}

	events, err := adapter.Stream(ctx, agent.CompletionRequest{
		Model:  r.Model,
		System: r.System,
		Messages: []models.ContentBlock{
			{Type: models.BlockText, Text: transcript},
		},
		MaxTokens: 512,
	})
	if err != nil {
		return "", fmt.Errorf("contextreducer: starting completion: %w", err)
	}

	for ev := range events {
		switch ev.Type {
		case agent.EventError:
			return "", fmt.Errorf("contextreducer: completion failed: %w", ev.Err)
		case agent.EventDone:
			return ev.Message.Text(), nil
		}
	}
	return "", fmt.Errorf("contextreducer: stream closed without a done event")
}
