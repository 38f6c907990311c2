package models

// RuntimeSettings is the effective, merged configuration a resolved
// command runs with: trigger-level overrides composed over mode-level
// settings composed over defaults (spec §4.1 "Runtime composition").
type RuntimeSettings struct {
	ReasoningEffort string `json:"reasoning_effort,omitempty"`

	// AllowedTools restricts the tool set. Nil means all registered tools.
	AllowedTools []string `json:"allowed_tools,omitempty"`

	Steering             bool `json:"steering"`
	AutoReduceContext    bool `json:"auto_reduce_context"`
	IncludeChapterSummary bool `json:"include_chapter_summary"`

	Model       string `json:"model,omitempty"`
	VisionModel string `json:"vision_model,omitempty"`

	// SystemPrompt is the mode's system prompt text, composed over the
	// channel/trigger layers the same way every other field is.
	SystemPrompt string `json:"system_prompt,omitempty"`

	HistorySize int `json:"history_size"`
}

// Merge composes override over the receiver, field by field. Zero/nil
// fields on override fall back to the receiver's value. Booleans are
// represented as *bool upstream in config; by the time a RuntimeSettings
// is built the merge has already resolved tri-state booleans, so Merge
// only needs to handle the non-boolean fields plus explicit bool args.
func (r RuntimeSettings) Merge(override RuntimeSettings, overrideSet RuntimeOverrideMask) RuntimeSettings {
	out := r
	if overrideSet.ReasoningEffort && override.ReasoningEffort != "" {
		out.ReasoningEffort = override.ReasoningEffort
	}
	if overrideSet.AllowedTools {
		out.AllowedTools = override.AllowedTools
	}
	if overrideSet.Steering {
		out.Steering = override.Steering
	}
	if overrideSet.AutoReduceContext {
		out.AutoReduceContext = override.AutoReduceContext
	}
	if overrideSet.IncludeChapterSummary {
		out.IncludeChapterSummary = override.IncludeChapterSummary
	}
	if overrideSet.Model && override.Model != "" {
		out.Model = override.Model
	}
	if overrideSet.VisionModel && override.VisionModel != "" {
		out.VisionModel = override.VisionModel
	}
	if overrideSet.SystemPrompt && override.SystemPrompt != "" {
		out.SystemPrompt = override.SystemPrompt
	}
	if overrideSet.HistorySize && override.HistorySize > 0 {
		out.HistorySize = override.HistorySize
	}
	return out
}

// RuntimeOverrideMask records which RuntimeSettings fields a given
// trigger/mode layer explicitly sets, so Merge can distinguish "explicitly
// false" from "not set" for boolean fields.
type RuntimeOverrideMask struct {
	ReasoningEffort       bool
	AllowedTools          bool
	Steering              bool
	AutoReduceContext     bool
	IncludeChapterSummary bool
	Model                 bool
	VisionModel           bool
	SystemPrompt          bool
	HistorySize           bool
}

// ResolvedCommand is the output of the command resolver (spec §3, §4.1).
type ResolvedCommand struct {
	ModeKey               string          `json:"mode_key"`
	SelectedTrigger       string          `json:"selected_trigger"`
	SelectedAutomatically bool            `json:"selected_automatically"`
	Runtime               RuntimeSettings `json:"runtime"`
	QueryText             string          `json:"query_text"`
	NoContext             bool            `json:"no_context"`
	ModelOverride         string          `json:"model_override,omitempty"`

	Error          string `json:"error,omitempty"`
	HelpRequested  bool   `json:"help_requested,omitempty"`
}

// Failed reports whether resolution produced a user-visible error.
func (r *ResolvedCommand) Failed() bool {
	return r != nil && r.Error != ""
}
