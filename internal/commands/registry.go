package commands

import (
	"fmt"

	"github.com/pasky/muaddib-sub002/pkg/models"
)

// Registry holds a channel's configured triggers, modes, and default
// runtime, built once from configuration at startup.
type Registry struct {
	Defaults models.RuntimeSettings

	// FlagToken overrides the resolver's default "!c" no-context flag
	// token (spec §4.1, "!c (or configured flag token)"). Empty means the
	// parser's built-in default applies.
	FlagToken string

	modes    map[string]Mode
	triggers map[string]Trigger
}

// NewRegistry constructs an empty Registry seeded with defaults.
func NewRegistry(defaults models.RuntimeSettings) *Registry {
	return &Registry{
		Defaults: defaults,
		modes:    make(map[string]Mode),
		triggers: make(map[string]Trigger),
	}
}

// RegisterMode adds a mode. Re-registering the same key overwrites it,
// matching how config reload replaces a channel's mode table wholesale.
func (r *Registry) RegisterMode(m Mode) {
	r.modes[m.Key] = m
}

// RegisterTrigger adds a trigger. It is an error to register the same
// trigger name twice within one Registry (spec §4.1 "duplicate-trigger
// rejection").
func (r *Registry) RegisterTrigger(t Trigger) error {
	name := t.Name
	if _, exists := r.triggers[name]; exists {
		return fmt.Errorf("commands: duplicate trigger %q", name)
	}
	r.triggers[name] = t
	return nil
}

// Mode looks up a registered mode by key.
func (r *Registry) Mode(key string) (Mode, bool) {
	m, ok := r.modes[key]
	return m, ok
}

// Trigger looks up a registered trigger by name (case already normalized
// to lowercase by the parser).
func (r *Registry) Trigger(name string) (Trigger, bool) {
	t, ok := r.triggers[name]
	return t, ok
}

// TriggerNames returns every registered trigger name, for help text and
// for restricting a classifier's label set.
func (r *Registry) TriggerNames() []string {
	names := make([]string, 0, len(r.triggers))
	for n := range r.triggers {
		names = append(names, n)
	}
	return names
}
