package commands

import (
	"fmt"

	"github.com/pasky/muaddib-sub002/pkg/models"
)

// Resolver composes a channel's Registry and Policy into ResolvedCommand
// values for addressed messages (spec §4.1).
type Resolver struct {
	Registry   *Registry
	Policy     Policy
	Classifier Classifier
	parser     *Parser
}

// NewResolver constructs a Resolver bound to a channel's registry, policy,
// and (optional) classifier. The registry's FlagToken (if set) overrides
// the parser's default "!c" no-context marker.
func NewResolver(reg *Registry, policy Policy, classifier Classifier) *Resolver {
	parser := NewParser()
	if reg != nil && reg.FlagToken != "" {
		parser.FlagToken = reg.FlagToken
	}
	return &Resolver{Registry: reg, Policy: policy, Classifier: classifier, parser: parser}
}

// Resolve parses an addressed message's text and composes the effective
// ResolvedCommand, following the channel's mode policy when no trigger is
// named explicitly.
func (r *Resolver) Resolve(text string) *models.ResolvedCommand {
	parsed := r.parser.Parse(text)

	if parsed.HelpRequested {
		return &models.ResolvedCommand{HelpRequested: true, QueryText: parsed.QueryText}
	}

	var resolved *models.ResolvedCommand
	if parsed.HasExplicitTrigger {
		resolved = r.resolveTrigger(parsed.TriggerName, parsed.QueryText, false)
	} else {
		resolved = r.resolveByPolicy(parsed.QueryText)
	}

	if resolved.Failed() {
		return resolved
	}

	if parsed.NoContext {
		resolved.NoContext = true
	}

	if parsed.ModelOverride != "" {
		resolved.ModelOverride = parsed.ModelOverride
		resolved.Runtime.Model = parsed.ModelOverride
	}
	return resolved
}

func (r *Resolver) resolveTrigger(name, queryText string, automatic bool) *models.ResolvedCommand {
	trig, ok := r.Registry.Trigger(name)
	if !ok {
		return &models.ResolvedCommand{Error: fmt.Sprintf("unknown command: !%s", name)}
	}

	runtime := r.Registry.Defaults
	if mode, ok := r.Registry.Mode(trig.ModeKey); ok {
		runtime = runtime.Merge(mode.Runtime, mode.OverrideSet)
	}
	runtime = runtime.Merge(trig.Runtime, trig.OverrideSet)

	return &models.ResolvedCommand{
		ModeKey:               trig.ModeKey,
		SelectedTrigger:       trig.Name,
		SelectedAutomatically: automatic,
		Runtime:               runtime,
		QueryText:             queryText,
		NoContext:             trig.NoContext,
	}
}

func (r *Resolver) resolveMode(modeKey, queryText string, automatic bool) *models.ResolvedCommand {
	mode, ok := r.Registry.Mode(modeKey)
	if !ok {
		return &models.ResolvedCommand{Error: fmt.Sprintf("unknown mode: %s", modeKey)}
	}
	runtime := r.Registry.Defaults.Merge(mode.Runtime, mode.OverrideSet)
	return &models.ResolvedCommand{
		ModeKey:               modeKey,
		SelectedAutomatically: automatic,
		Runtime:               runtime,
		QueryText:             queryText,
	}
}

func (r *Resolver) resolveByPolicy(queryText string) *models.ResolvedCommand {
	switch r.Policy.Kind {
	case "forced_trigger":
		return r.resolveTrigger(r.Policy.ForcedTrigger, queryText, true)

	case "mode":
		return r.resolveMode(r.Policy.ModeKey, queryText, true)

	case "classifier", "classifier_mode":
		if r.Classifier == nil {
			return &models.ResolvedCommand{Error: "no classifier configured for this channel"}
		}
		labels := r.classifierLabels()
		label, err := r.Classifier.Classify(queryText, labels)
		if err != nil {
			return &models.ResolvedCommand{Error: fmt.Sprintf("classification failed: %v", err)}
		}
		return r.resolveMode(label, queryText, true)

	default:
		return &models.ResolvedCommand{Error: fmt.Sprintf("unsupported channel policy %q", r.Policy.Kind)}
	}
}

func (r *Resolver) classifierLabels() []string {
	if r.Policy.Kind == "classifier_mode" && r.Policy.ClassifierModeKey != "" {
		return []string{r.Policy.ClassifierModeKey}
	}
	names := make([]string, 0, len(r.Registry.modes))
	for k := range r.Registry.modes {
		names = append(names, k)
	}
	return names
}
