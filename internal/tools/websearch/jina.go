package websearch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// JinaBackend implements Backend against Jina AI's s.jina.ai search
// endpoint, authenticating with the bearer key configured under
// tools.jina.apiKey (spec §6 configuration surface).
type JinaBackend struct {
	APIKey string
	Client *http.Client
}

func NewJinaBackend(apiKey string, client *http.Client) *JinaBackend {
	if client == nil {
		client = http.DefaultClient
	}
	return &JinaBackend{APIKey: apiKey, Client: client}
}

type jinaResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"description"`
}

func (b *JinaBackend) Search(ctx context.Context, query string) (Results, error) {
	endpoint := "https://s.jina.ai/?q=" + url.QueryEscape(query)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Results{}, fmt.Errorf("websearch: building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+b.APIKey)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Respond-With", "no-content")

	resp, err := b.Client.Do(req)
	if err != nil {
		return Results{}, fmt.Errorf("websearch: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnprocessableEntity {
		return Results{StatusCode: resp.StatusCode}, nil
	}
	if resp.StatusCode >= 400 {
		return Results{}, fmt.Errorf("websearch: jina returned HTTP %d", resp.StatusCode)
	}

	var body struct {
		Data []jinaResult `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Results{}, fmt.Errorf("websearch: decoding response: %w", err)
	}

	items := make([]ResultItem, 0, len(body.Data))
	for _, r := range body.Data {
		items = append(items, ResultItem{Title: r.Title, URL: r.URL, Snippet: r.Content})
	}
	return Results{StatusCode: resp.StatusCode, Items: items}, nil
}
