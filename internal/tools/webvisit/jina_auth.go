package webvisit

import "strings"

// JinaAuthResolver attaches the bearer key configured under
// tools.jina.apiKey to requests against Jina's r.jina.ai reader proxy, the
// one URL prefix visit_webpage needs authenticated (spec §6).
type JinaAuthResolver struct {
	APIKey string
}

func (r JinaAuthResolver) HeaderFor(rawURL string) (name, value string, ok bool) {
	if r.APIKey == "" || !strings.HasPrefix(rawURL, "https://r.jina.ai/") {
		return "", "", false
	}
	return "Authorization", "Bearer " + r.APIKey, true
}
