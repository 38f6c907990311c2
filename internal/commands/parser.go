package commands

import (
	"regexp"
	"strings"
)

var (
	triggerTokenRe = regexp.MustCompile(`^!([A-Za-z][A-Za-z0-9_-]*)$`)
	modelTokenRe   = regexp.MustCompile(`^@([A-Za-z0-9][A-Za-z0-9_.:\/-]*)$`)
)

// ParsedCommand is the raw result of tokenizing an addressed message's text,
// before the resolver composes runtime settings against the registry.
type ParsedCommand struct {
	// HasExplicitTrigger is true when the message named "!<trigger>" (or
	// the bare "!help" form).
	HasExplicitTrigger bool
	TriggerName        string

	// NoContext is true when the message carried the flag token (default
	// "!c") marking history/context suppression. It is independent of
	// HasExplicitTrigger: the two may appear together in one message
	// (spec §4.1, "!c (or configured flag token) -> noContext=true").
	NoContext bool

	HelpRequested bool

	ModelOverride string

	QueryText string
}

// Parser tokenizes addressed message text into leading "!trigger",
// "!<flag>", and "@model" markers followed by free-text query content.
type Parser struct {
	// FlagToken is the trigger word (without the leading "!") that marks
	// the no-context flag rather than an explicit trigger selection.
	// Defaults to "c".
	FlagToken string
}

// NewParser constructs a Parser with the default "!c" no-context flag.
func NewParser() *Parser {
	return &Parser{FlagToken: "c"}
}

// Parse splits text into its leading command/flag/model markers and the
// remaining query text. Markers may appear in any order but must be among
// the first three whitespace-separated tokens; once a token fails to match
// any marker form, tokenization stops and everything from there
// (inclusive) is QueryText.
func (p *Parser) Parse(text string) ParsedCommand {
	fields := strings.Fields(text)
	var out ParsedCommand

	flagToken := p.FlagToken
	if flagToken == "" {
		flagToken = "c"
	}

	const maxMarkers = 3 // flag + explicit trigger + model override
	consumed := 0
	flagSeen := false
scan:
	for _, tok := range fields {
		if consumed >= maxMarkers {
			break
		}
		switch {
		case out.ModelOverride == "" && modelTokenRe.MatchString(tok):
			out.ModelOverride = modelTokenRe.FindStringSubmatch(tok)[1]
			consumed++
		case triggerTokenRe.MatchString(tok):
			name := triggerTokenRe.FindStringSubmatch(tok)[1]
			switch {
			case !flagSeen && strings.EqualFold(name, flagToken):
				out.NoContext = true
				flagSeen = true
				consumed++
			case !out.HasExplicitTrigger:
				if strings.EqualFold(name, "help") {
					out.HelpRequested = true
				}
				out.HasExplicitTrigger = true
				out.TriggerName = strings.ToLower(name)
				consumed++
			default:
				break scan // second trigger-shaped token ends prefix parsing
			}
		default:
			break scan // stop scanning
		}
	}

	out.QueryText = strings.TrimSpace(strings.Join(fields[minInt(consumed, len(fields)):], " "))
	return out
}

// IsCommand reports whether text begins with a recognizable "!trigger" or
// "@model" marker.
func (p *Parser) IsCommand(text string) bool {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return false
	}
	return triggerTokenRe.MatchString(fields[0]) || modelTokenRe.MatchString(fields[0])
}

// NormalizeCommandText trims surrounding whitespace and collapses internal
// runs of whitespace to single spaces, matching how the channel adapters
// hand text to the parser.
func NormalizeCommandText(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
