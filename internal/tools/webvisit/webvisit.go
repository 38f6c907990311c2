// Package webvisit implements the visit_webpage baseline tool: fetches an
// http(s) URL with a single GET (no HEAD probe; the content type is taken
// from the GET response's Content-Type header), extracts readable text
// via goquery for HTML pages, inlines small images as base64, and falls
// back to a local artifact read with path-traversal protection when the
// URL targets the configured artifact base URL (spec §4.4).
package webvisit

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/pasky/muaddib-sub002/pkg/models"
)

const (
	toolName    = "visit_webpage"
	maxTextLen  = 8000
	maxImageLen = 5 * 1024 * 1024
)

var schema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "url": {"type": "string", "description": "The http(s) URL to visit"}
  },
  "required": ["url"]
}`)

// AuthResolver returns an extra header to attach for URLs under a
// configured prefix (e.g. per-user bearer tokens for internal services).
type AuthResolver interface {
	HeaderFor(rawURL string) (name, value string, ok bool)
}

// ArtifactReader serves local artifact bytes when a visited URL matches
// the configured artifact base URL, guarding against path traversal.
type ArtifactReader interface {
	BaseURL() string
	Read(relPath string) ([]byte, string, error) // content, mime type, error
}

// Tool implements agent.Tool for visit_webpage.
type Tool struct {
	Client   *http.Client
	Auth     AuthResolver
	Artifact ArtifactReader
}

func New(client *http.Client, auth AuthResolver, artifact ArtifactReader) *Tool {
	if client == nil {
		client = http.DefaultClient
	}
	return &Tool{Client: client, Auth: auth, Artifact: artifact}
}

func (t *Tool) Name() string                       { return toolName }
func (t *Tool) Description() string                { return "Fetch and read the text content of a web page." }
func (t *Tool) Schema() json.RawMessage             { return schema }
func (t *Tool) PersistType() models.ToolPersistType { return models.PersistSummary }

type input struct {
	URL string `json:"url"`
}

func (t *Tool) Execute(ctx context.Context, call models.ToolCall) (models.ToolResult, error) {
	var in input
	if err := json.Unmarshal(call.Input, &in); err != nil || in.URL == "" {
		return models.ToolResult{}, fmt.Errorf("visit_webpage: invalid input: %w", err)
	}

	parsed, err := url.Parse(in.URL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return models.ToolResult{}, fmt.Errorf("visit_webpage: only http(s) URLs are supported")
	}

	if t.Artifact != nil && strings.HasPrefix(in.URL, t.Artifact.BaseURL()) {
		return t.readArtifact(call, in.URL)
	}

	return t.fetch(ctx, call, in.URL)
}

func (t *Tool) readArtifact(call models.ToolCall, rawURL string) (models.ToolResult, error) {
	rel := strings.TrimPrefix(rawURL, t.Artifact.BaseURL())
	rel = strings.TrimPrefix(rel, "/")

	cleaned := filepath.Clean("/" + rel)
	if strings.Contains(cleaned, "..") {
		return models.ToolResult{}, fmt.Errorf("visit_webpage: invalid artifact path")
	}

	data, mime, err := t.Artifact.Read(strings.TrimPrefix(cleaned, "/"))
	if err != nil {
		return models.ToolResult{}, fmt.Errorf("visit_webpage: reading artifact: %w", err)
	}

	if strings.HasPrefix(mime, "image/") {
		return models.ToolResult{
			ToolCallID: call.ID,
			Content:    "image artifact",
			Attachments: []models.Attachment{{
				Type: "image", MimeType: mime, Data: base64.StdEncoding.EncodeToString(data),
			}},
		}, nil
	}
	return models.ToolResult{ToolCallID: call.ID, Content: truncate(string(data), maxTextLen)}, nil
}

func (t *Tool) fetch(ctx context.Context, call models.ToolCall, rawURL string) (models.ToolResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return models.ToolResult{}, fmt.Errorf("visit_webpage: building request: %w", err)
	}
	if t.Auth != nil {
		if name, value, ok := t.Auth.HeaderFor(rawURL); ok {
			req.Header.Set(name, value)
		}
	}

	resp, err := t.Client.Do(req)
	if err != nil {
		return models.ToolResult{}, fmt.Errorf("visit_webpage: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusGone || resp.StatusCode >= 500 {
		return models.ToolResult{}, fmt.Errorf("visit_webpage: upstream returned %d", resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return models.ToolResult{ToolCallID: call.ID, Content: fmt.Sprintf("page returned HTTP %d", resp.StatusCode), IsError: true}, nil
	}

	contentType := resp.Header.Get("Content-Type")
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxImageLen))
	if err != nil {
		return models.ToolResult{}, fmt.Errorf("visit_webpage: reading body: %w", err)
	}

	if strings.HasPrefix(contentType, "image/") {
		return models.ToolResult{
			ToolCallID: call.ID,
			Content:    "image",
			Attachments: []models.Attachment{{
				Type: "image", MimeType: contentType, Data: base64.StdEncoding.EncodeToString(body),
			}},
		}, nil
	}

	text := body
	if strings.Contains(contentType, "html") {
		extracted, err := extractText(body)
		if err == nil {
			text = []byte(extracted)
		}
	}
	return models.ToolResult{ToolCallID: call.ID, Content: truncate(string(text), maxTextLen)}, nil
}

func extractText(body []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	doc.Find("script, style, nav, footer").Remove()
	return strings.TrimSpace(doc.Find("body").Text()), nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "... [truncated]"
}
