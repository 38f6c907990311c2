// Package websearch implements the web_search baseline tool: a
// rate-limited (<=1/s) query against a search backend, with the provider's
// "no results" (HTTP 422) response translated into a plain informational
// result rather than a tool error (spec §4.4).
package websearch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/pasky/muaddib-sub002/internal/ratelimit"
	"github.com/pasky/muaddib-sub002/pkg/models"
)

const endpointName = "web_search"

var schema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "query": {"type": "string", "description": "The search query"}
  },
  "required": ["query"]
}`)

// Backend performs the actual HTTP search request.
type Backend interface {
	Search(ctx context.Context, query string) (Results, error)
}

// Results is a backend's raw search response.
type Results struct {
	StatusCode int
	Items      []ResultItem
}

// ResultItem is a single search hit.
type ResultItem struct {
	Title   string
	URL     string
	Snippet string
}

// Tool implements agent.Tool for web_search.
type Tool struct {
	Backend   Backend
	Limiter   *ratelimit.Registry
}

// New constructs the web_search tool, configuring its limiter to at most
// one request per second (spec §4.4).
func New(backend Backend, limiter *ratelimit.Registry) *Tool {
	limiter.Configure(endpointName, 1, 1)
	return &Tool{Backend: backend, Limiter: limiter}
}

func (t *Tool) Name() string                       { return endpointName }
func (t *Tool) Description() string                { return "Search the web for up-to-date information." }
func (t *Tool) Schema() json.RawMessage             { return schema }
func (t *Tool) PersistType() models.ToolPersistType { return models.PersistSummary }

type input struct {
	Query string `json:"query"`
}

func (t *Tool) Execute(ctx context.Context, call models.ToolCall) (models.ToolResult, error) {
	var in input
	if err := json.Unmarshal(call.Input, &in); err != nil || in.Query == "" {
		return models.ToolResult{}, fmt.Errorf("web_search: invalid input: %w", err)
	}

	if err := t.Limiter.Wait(ctx, endpointName); err != nil {
		return models.ToolResult{}, fmt.Errorf("web_search: rate limit wait: %w", err)
	}

	res, err := t.Backend.Search(ctx, in.Query)
	if err != nil {
		return models.ToolResult{}, fmt.Errorf("web_search: backend request: %w", err)
	}

	if res.StatusCode == http.StatusUnprocessableEntity || len(res.Items) == 0 {
		return models.ToolResult{
			ToolCallID: call.ID,
			Content:    "No search results found for that query.",
		}, nil
	}

	content := ""
	for i, item := range res.Items {
		content += fmt.Sprintf("%d. %s\n%s\n%s\n\n", i+1, item.Title, item.URL, item.Snippet)
	}
	return models.ToolResult{ToolCallID: call.ID, Content: content}, nil
}
