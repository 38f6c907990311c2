package commands

import (
	"errors"
	"testing"

	"github.com/pasky/muaddib-sub002/pkg/models"
)

func newTestRegistry() *Registry {
	reg := NewRegistry(models.RuntimeSettings{Model: "default-model", HistorySize: 20})
	reg.RegisterMode(Mode{
		Key:         "chat",
		Runtime:     models.RuntimeSettings{Steering: true},
		OverrideSet: models.RuntimeOverrideMask{Steering: true},
	})
	reg.RegisterMode(Mode{
		Key:         "code",
		Runtime:     models.RuntimeSettings{Model: "code-model"},
		OverrideSet: models.RuntimeOverrideMask{Model: true},
	})
	_ = reg.RegisterTrigger(Trigger{Name: "chat", ModeKey: "chat"})
	_ = reg.RegisterTrigger(Trigger{
		Name:        "code",
		ModeKey:     "code",
		Runtime:     models.RuntimeSettings{ReasoningEffort: "high"},
		OverrideSet: models.RuntimeOverrideMask{ReasoningEffort: true},
	})
	return reg
}

func TestResolveExplicitTrigger(t *testing.T) {
	reg := newTestRegistry()
	r := NewResolver(reg, Policy{Kind: "forced_trigger", ForcedTrigger: "chat"}, nil)

	resolved := r.Resolve("!code fix this bug")
	if resolved.Failed() {
		t.Fatalf("unexpected error: %s", resolved.Error)
	}
	if resolved.SelectedTrigger != "code" || resolved.ModeKey != "code" {
		t.Fatalf("unexpected resolution: %+v", resolved)
	}
	if resolved.Runtime.Model != "code-model" || resolved.Runtime.ReasoningEffort != "high" {
		t.Fatalf("expected mode+trigger composed runtime, got %+v", resolved.Runtime)
	}
	if resolved.SelectedAutomatically {
		t.Fatalf("explicit trigger selection must not be marked automatic")
	}
}

func TestResolveUnknownTriggerFails(t *testing.T) {
	reg := newTestRegistry()
	r := NewResolver(reg, Policy{Kind: "forced_trigger", ForcedTrigger: "chat"}, nil)

	resolved := r.Resolve("!nope do something")
	if !resolved.Failed() {
		t.Fatalf("expected unknown-trigger error")
	}
}

func TestResolveForcedTriggerPolicyAppliesWhenNoExplicitTrigger(t *testing.T) {
	reg := newTestRegistry()
	r := NewResolver(reg, Policy{Kind: "forced_trigger", ForcedTrigger: "chat"}, nil)

	resolved := r.Resolve("hey what's up")
	if resolved.Failed() {
		t.Fatalf("unexpected error: %s", resolved.Error)
	}
	if resolved.SelectedTrigger != "chat" || !resolved.SelectedAutomatically {
		t.Fatalf("expected forced trigger 'chat' selected automatically, got %+v", resolved)
	}
	if !resolved.Runtime.Steering {
		t.Fatalf("expected chat mode's Steering=true to carry through")
	}
}

func TestResolveModePolicy(t *testing.T) {
	reg := newTestRegistry()
	r := NewResolver(reg, Policy{Kind: "mode", ModeKey: "code"}, nil)

	resolved := r.Resolve("refactor this function")
	if resolved.Failed() {
		t.Fatalf("unexpected error: %s", resolved.Error)
	}
	if resolved.ModeKey != "code" || resolved.SelectedTrigger != "" {
		t.Fatalf("unexpected resolution: %+v", resolved)
	}
}

type stubClassifier struct {
	label string
	err   error
}

func (s stubClassifier) Classify(queryText string, allowed []string) (string, error) {
	return s.label, s.err
}

func TestResolveClassifierPolicy(t *testing.T) {
	reg := newTestRegistry()
	r := NewResolver(reg, Policy{Kind: "classifier"}, stubClassifier{label: "code"})

	resolved := r.Resolve("please fix my go program")
	if resolved.Failed() {
		t.Fatalf("unexpected error: %s", resolved.Error)
	}
	if resolved.ModeKey != "code" {
		t.Fatalf("expected classifier to route to 'code' mode, got %+v", resolved)
	}
}

func TestResolveClassifierErrorPropagates(t *testing.T) {
	reg := newTestRegistry()
	r := NewResolver(reg, Policy{Kind: "classifier"}, stubClassifier{err: errors.New("model down")})

	resolved := r.Resolve("please fix my go program")
	if !resolved.Failed() {
		t.Fatalf("expected classification failure to surface as an error")
	}
}

func TestResolveHelpShortCircuits(t *testing.T) {
	reg := newTestRegistry()
	r := NewResolver(reg, Policy{Kind: "forced_trigger", ForcedTrigger: "chat"}, nil)

	resolved := r.Resolve("!help")
	if !resolved.HelpRequested {
		t.Fatalf("expected help requested")
	}
}

func TestResolveModelOverrideAppliesAfterTrigger(t *testing.T) {
	reg := newTestRegistry()
	r := NewResolver(reg, Policy{Kind: "forced_trigger", ForcedTrigger: "chat"}, nil)

	resolved := r.Resolve("!code @haiku quick question")
	if resolved.ModelOverride != "haiku" || resolved.Runtime.Model != "haiku" {
		t.Fatalf("expected model override applied, got %+v", resolved)
	}
}

func TestResolveNoContextFlagSuppressesHistoryWithoutSelectingATrigger(t *testing.T) {
	reg := newTestRegistry()
	r := NewResolver(reg, Policy{Kind: "forced_trigger", ForcedTrigger: "chat"}, nil)

	resolved := r.Resolve("!c what time is it")
	if resolved.Failed() {
		t.Fatalf("unexpected error: %s", resolved.Error)
	}
	if !resolved.NoContext {
		t.Fatalf("expected noContext=true from the !c flag, got %+v", resolved)
	}
	// "!c" is the flag, not a trigger name, so the forced_trigger policy
	// still picks "chat" automatically.
	if resolved.SelectedTrigger != "chat" || !resolved.SelectedAutomatically {
		t.Fatalf("expected !c to fall through to the forced trigger, got %+v", resolved)
	}
	if resolved.QueryText != "what time is it" {
		t.Fatalf("unexpected query text: %q", resolved.QueryText)
	}
}

func TestResolveNoContextFlagCombinesWithExplicitTrigger(t *testing.T) {
	reg := newTestRegistry()
	r := NewResolver(reg, Policy{Kind: "forced_trigger", ForcedTrigger: "chat"}, nil)

	resolved := r.Resolve("!c !code fix this without history")
	if resolved.Failed() {
		t.Fatalf("unexpected error: %s", resolved.Error)
	}
	if !resolved.NoContext {
		t.Fatalf("expected noContext=true to coexist with an explicit trigger, got %+v", resolved)
	}
	if resolved.SelectedTrigger != "code" || resolved.SelectedAutomatically {
		t.Fatalf("expected explicit !code trigger selection, got %+v", resolved)
	}
}

func TestResolveConfiguredFlagTokenOverridesDefault(t *testing.T) {
	reg := newTestRegistry()
	reg.FlagToken = "nc"
	r := NewResolver(reg, Policy{Kind: "forced_trigger", ForcedTrigger: "chat"}, nil)

	resolved := r.Resolve("!nc quick one-off question")
	if !resolved.NoContext {
		t.Fatalf("expected configured flag token 'nc' to set noContext, got %+v", resolved)
	}
}

func TestRegisterDuplicateTriggerRejected(t *testing.T) {
	reg := NewRegistry(models.RuntimeSettings{})
	if err := reg.RegisterTrigger(Trigger{Name: "chat"}); err != nil {
		t.Fatalf("unexpected error on first registration: %v", err)
	}
	if err := reg.RegisterTrigger(Trigger{Name: "chat"}); err == nil {
		t.Fatalf("expected duplicate trigger registration to fail")
	}
}
