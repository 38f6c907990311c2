package agent

import "strings"

// refusalSignals is the fixed table of case-insensitive substrings that
// flag a completion as a model refusal rather than a real answer (spec
// §4.6). It is data, not code (Open Question resolved in DESIGN.md): the
// table lives here as a plain slice rather than external configuration,
// since it changes only when a provider's refusal phrasing changes, not
// per deployment.
var refusalSignals = []string{
	"i can't assist with that",
	"i cannot assist with that",
	"i can't help with that",
	"i cannot help with that",
	"i won't be able to help with that",
	"i'm not able to help with that",
	"i am not able to help with that",
	"i can't provide",
	"i cannot provide",
	"i'm unable to provide",
	"i am unable to provide",
	"as an ai, i can't",
	"as an ai, i cannot",
	"against my guidelines",
	"violates my guidelines",
	"i must decline",
	"i have to decline",

	// Provider safety/error codes (spec §4.6), matched against the error
	// text of a failed completion stream. A turn that ends with a
	// stop-reason-error message is not checked against this table.
	"invalid_prompt",
	"invalid_request_error: prompt",
	"content_policy_violation",
	"content_filter",
	"policy_violation",
	"safety_violation",
}

// IsRefusal reports whether text matches one of the known refusal
// signals. It is a pure function: same input, same output, no I/O.
func IsRefusal(text string) bool {
	lower := strings.ToLower(text)
	for _, signal := range refusalSignals {
		if strings.Contains(lower, signal) {
			return true
		}
	}
	return false
}
