// Package classifier implements commands.Classifier: picking a mode label
// for a free-text addressed message under a room's "modeClassifier"
// policy, via the same one-shot ModelAdapter.Stream pattern
// internal/summary and internal/contextreducer use.
package classifier

import (
	"context"
	"fmt"
	"strings"

	"github.com/pasky/muaddib-sub002/internal/agent"
	"github.com/pasky/muaddib-sub002/pkg/models"
)

// ModelClassifier asks Model to choose one of the allowed labels.
type ModelClassifier struct {
	Resolver agent.Resolver
	Model    string
}

func NewModelClassifier(resolver agent.Resolver, model string) *ModelClassifier {
	return &ModelClassifier{Resolver: resolver, Model: model}
}

// Classify matches commands.Classifier's signature.
func (c *ModelClassifier) Classify(queryText string, allowedLabels []string) (string, error) {
	if len(allowedLabels) == 0 {
		return "", fmt.Errorf("classifier: no labels to choose from")
	}
	if len(allowedLabels) == 1 {
		return allowedLabels[0], nil
	}

	adapter, err := c.Resolver.Resolve(c.Model)
	if err != nil {
		return "", fmt.Errorf("classifier: resolving model: %w", err)
	}

	system := fmt.Sprintf(
		"Classify the user's message into exactly one of these labels: %s. Reply with only the label, nothing else.",
		strings.Join(allowedLabels, ", "),
	)

	events, err := adapter.Stream(context.Background(), agent.CompletionRequest{
		Model:  c.Model,
		System: system,
		Messages: []models.ContentBlock{
			{Type: models.BlockText, Text: queryText},
		},
		MaxTokens: 16,
	})
	if err != nil {
		return "", fmt.Errorf("classifier: starting completion: %w", err)
	}

	var label string
	for ev := range events {
		switch ev.Type {
		case agent.EventError:
			return "", fmt.Errorf("classifier: completion failed: %w", ev.Err)
		case agent.EventDone:
			label = strings.TrimSpace(ev.Message.Text())
		}
	}

	for _, allowed := range allowedLabels {
		if strings.EqualFold(allowed, label) {
			return allowed, nil
		}
	}
	return "", fmt.Errorf("classifier: model returned unrecognized label %q", label)
}
