// Package addressing decides whether an inbound room message is directly
// addressed to the bot and strips the addressing prefix from its content,
// the transport-agnostic step spec.md describes as RoomMessage.Content
// already being "mention-stripped for direct addressing" but leaves to
// whatever sits between the transport adapters and the message handler.
package addressing

import "strings"

// Detect reports whether content addresses mynick directly (an explicit
// "!trigger" command, a leading "mynick: " / "mynick, " prefix, or an
// "@mynick" mention anywhere in the line) and returns the content with
// that addressing stripped. Channels that are inherently one-to-one (IRC
// DMs, Slack/Discord DMs) should treat every message as direct regardless
// of this check; callers own that transport-specific decision.
func Detect(content, mynick string) (stripped string, direct bool) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return trimmed, false
	}
	if strings.HasPrefix(trimmed, "!") {
		return trimmed, true
	}
	if mynick == "" {
		return trimmed, false
	}

	lower := strings.ToLower(trimmed)
	nickLower := strings.ToLower(mynick)

	if strings.HasPrefix(lower, nickLower) {
		rest := trimmed[len(mynick):]
		if rest == "" || strings.ContainsRune(":,- ", rune(rest[0])) {
			rest = strings.TrimLeft(rest, ":,- ")
			return strings.TrimSpace(rest), true
		}
	}

	if mention := "@" + nickLower; strings.Contains(lower, mention) {
		idx := strings.Index(lower, mention)
		stripped := trimmed[:idx] + trimmed[idx+len(mention):]
		return strings.TrimSpace(stripped), true
	}

	return trimmed, false
}
