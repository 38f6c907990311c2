package providers

import (
	"context"
	"testing"

	"github.com/pasky/muaddib-sub002/internal/agent"
)

type stubAdapter struct{ name string }

func (a stubAdapter) Name() string        { return a.name }
func (a stubAdapter) SupportsVision() bool { return false }
func (a stubAdapter) SupportsTools() bool  { return true }
func (a stubAdapter) Stream(ctx context.Context, req agent.CompletionRequest) (<-chan agent.StreamEvent, error) {
	return nil, nil
}

func TestRouterResolveRejectsUnqualifiedModelSpec(t *testing.T) {
	r := NewRouter("anthropic", map[string]agent.ModelAdapter{"anthropic": stubAdapter{name: "anthropic"}})

	if _, err := r.Resolve("claude-opus-4"); err == nil {
		t.Fatal("expected an error for an unqualified model spec")
	}
	if _, err := r.Resolve(""); err == nil {
		t.Fatal("expected an error for an empty model spec")
	}
}

func TestRouterResolveDispatchesOnQualifiedPrefix(t *testing.T) {
	r := NewRouter("anthropic", map[string]agent.ModelAdapter{
		"anthropic": stubAdapter{name: "anthropic"},
		"openai":    stubAdapter{name: "openai"},
	})

	adapter, err := r.Resolve("openai:gpt-4o")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if adapter.Name() != "openai" {
		t.Fatalf("expected the openai adapter, got %q", adapter.Name())
	}
}

func TestRouterResolveRejectsUnknownProvider(t *testing.T) {
	r := NewRouter("anthropic", map[string]agent.ModelAdapter{"anthropic": stubAdapter{name: "anthropic"}})

	if _, err := r.Resolve("bedrock:claude-opus-4"); err == nil {
		t.Fatal("expected an error for an unconfigured provider")
	}
}
