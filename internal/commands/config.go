package commands

import (
	"github.com/pasky/muaddib-sub002/internal/config"
	"github.com/pasky/muaddib-sub002/pkg/models"
)

// RegistryFromConfig builds a room's Registry and Policy from its parsed
// CommandConfig: one Mode per configured mode key, one Trigger per name
// listed under a mode's triggers, and a Policy selected from whichever of
// modeClassifier/forcedTrigger/defaultMode the room configured (spec §4.1,
// §6 configuration surface).
func RegistryFromConfig(cc config.CommandConfig) (*Registry, Policy, error) {
	defaults := models.RuntimeSettings{HistorySize: cc.HistorySize}
	reg := NewRegistry(defaults)
	reg.FlagToken = cc.NoContextToken

	for key, mc := range cc.Modes {
		runtime, overrideSet := modeRuntime(mc)
		reg.RegisterMode(Mode{Key: key, Runtime: runtime, OverrideSet: overrideSet})
		for _, name := range mc.Triggers {
			if err := reg.RegisterTrigger(Trigger{Name: name, ModeKey: key}); err != nil {
				return nil, Policy{}, err
			}
		}
	}

	policy := policyFromConfig(cc)
	return reg, policy, nil
}

func modeRuntime(mc config.ModeConfig) (models.RuntimeSettings, models.RuntimeOverrideMask) {
	runtime := models.RuntimeSettings{
		ReasoningEffort:       mc.ReasoningEffort,
		AllowedTools:          mc.AllowedTools,
		Model:                 mc.Model,
		VisionModel:           mc.VisionModel,
		SystemPrompt:          mc.Prompt,
		HistorySize:           mc.HistorySize,
		Steering:              boolOr(mc.Steering, false),
		AutoReduceContext:     boolOr(mc.AutoReduceContext, false),
		IncludeChapterSummary: boolOr(mc.IncludeChapterSummary, false),
	}
	overrideSet := models.RuntimeOverrideMask{
		ReasoningEffort:       mc.ReasoningEffort != "",
		AllowedTools:          mc.AllowedTools != nil,
		Model:                 mc.Model != "",
		VisionModel:           mc.VisionModel != "",
		SystemPrompt:          mc.Prompt != "",
		HistorySize:           mc.HistorySize > 0,
		Steering:              mc.Steering != nil,
		AutoReduceContext:     mc.AutoReduceContext != nil,
		IncludeChapterSummary: mc.IncludeChapterSummary != nil,
	}
	return runtime, overrideSet
}

func policyFromConfig(cc config.CommandConfig) Policy {
	if boolOr(cc.ModeClassifier.Enabled, false) {
		if cc.ModeClassifier.RestrictToMode != "" {
			return Policy{Kind: "classifier_mode", ClassifierModeKey: cc.ModeClassifier.RestrictToMode}
		}
		return Policy{Kind: "classifier"}
	}
	if cc.ForcedTrigger != "" {
		return Policy{Kind: "forced_trigger", ForcedTrigger: cc.ForcedTrigger}
	}
	if cc.DefaultMode != "" {
		return Policy{Kind: "mode", ModeKey: cc.DefaultMode}
	}
	return Policy{}
}

func boolOr(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}
