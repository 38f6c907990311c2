package models

// PromptResult is the output of the session runner (spec §3, §4.3).
type PromptResult struct {
	Text       string     `json:"text"`
	StopReason StopReason `json:"stop_reason"`
	Usage      Usage      `json:"usage"`

	Iterations     int `json:"iterations"`
	ToolCallsCount int `json:"tool_calls_count"`

	VisionFallbackActivated bool   `json:"vision_fallback_activated,omitempty"`
	VisionFallbackModel     string `json:"vision_fallback_model,omitempty"`

	RefusalFallbackActivated bool   `json:"refusal_fallback_activated,omitempty"`
	RefusalFallbackModel     string `json:"refusal_fallback_model,omitempty"`

	// Session exposes the full message list for downstream persistence.
	// Kept as an opaque pointer type here (agent.Session) to avoid an
	// import cycle between models and agent; the agent package sets it.
	Session any `json:"-"`
}
