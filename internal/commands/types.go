// Package commands implements the prefix-grammar command resolver: parsing
// !c/!help/!<trigger>/@<model> forms, channel-mode policy resolution
// (classifier, classifier:<mode>, forced trigger, bare mode name), and
// runtime composition across trigger/mode/default layers (spec §4.1).
package commands

import "github.com/pasky/muaddib-sub002/pkg/models"

// Trigger is a single invocable command: a word following "!" (or the
// implicit default trigger for bare addressed messages).
type Trigger struct {
	Name        string
	Description string
	ModeKey     string
	Runtime     models.RuntimeSettings
	OverrideSet models.RuntimeOverrideMask
	Hidden      bool

	// NoContext, when set, skips history/context assembly entirely for
	// this trigger (e.g. a stateless one-shot tool invocation).
	NoContext bool
}

// Mode is a named runtime configuration bundle a trigger (or the channel's
// default policy) selects into.
type Mode struct {
	Key         string
	Runtime     models.RuntimeSettings
	OverrideSet models.RuntimeOverrideMask
}

// Policy describes how a channel resolves an addressed message with no
// explicit trigger to a mode (spec §4.1 "channel-mode policies").
type Policy struct {
	// Kind is one of "classifier", "classifier_mode", "forced_trigger", "mode".
	Kind string

	// ClassifierModeKey is set when Kind == "classifier_mode": the
	// classifier only chooses among this restricted label set.
	ClassifierModeKey string

	// ForcedTrigger is set when Kind == "forced_trigger": every addressed
	// message with no explicit trigger resolves to this trigger.
	ForcedTrigger string

	// ModeKey is set when Kind == "mode": every addressed message with no
	// explicit trigger resolves directly to this mode.
	ModeKey string
}

// Classifier picks a mode label for free-text addressed messages that
// don't name a trigger, under policy Kind == "classifier"/"classifier_mode".
type Classifier interface {
	Classify(queryText string, allowedLabels []string) (label string, err error)
}
