// Package artifacts implements the share_artifact and edit_artifact
// baseline tools: writing a new artifact file under a per-arc directory,
// and editing an existing one by requiring its old_string to occur
// exactly once (spec §4.4).
package artifacts

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pasky/muaddib-sub002/pkg/models"
)

// Store manages artifact files for one arc, serving them back out under
// BaseURL.
type Store struct {
	BaseDir string
	BaseURL string
	Arc     string
}

func NewStore(baseDir, baseURL, arc string) *Store {
	return &Store{BaseDir: baseDir, BaseURL: baseURL, Arc: arc}
}

func (s *Store) arcDir() (string, error) {
	dir := filepath.Join(s.BaseDir, sanitize(s.Arc))
	return dir, os.MkdirAll(dir, 0o755)
}

func (s *Store) urlFor(filename string) string {
	return strings.TrimRight(s.BaseURL, "/") + "/" + sanitize(s.Arc) + "/" + filename
}

// Publish writes content under filename in the arc's artifact directory
// and returns its URL. Used directly by the handler's length-policy
// fallback (spec §4.5 step 8) as well as by ShareTool.
func (s *Store) Publish(filename, content string) (string, error) {
	dir, err := s.arcDir()
	if err != nil {
		return "", fmt.Errorf("artifacts: preparing artifact dir: %w", err)
	}
	clean := sanitize(filepath.Base(filename))
	if err := os.WriteFile(filepath.Join(dir, clean), []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("artifacts: writing file: %w", err)
	}
	return s.urlFor(clean), nil
}

// readArtifact serves an artifact's raw bytes and a best-effort MIME type
// given a path relative to the arc's artifact directory.
func (s *Store) readArtifact(relPath string) ([]byte, string, error) {
	dir, err := s.arcDir()
	if err != nil {
		return nil, "", fmt.Errorf("artifacts: preparing artifact dir: %w", err)
	}
	clean := sanitize(filepath.Base(relPath))
	data, err := os.ReadFile(filepath.Join(dir, clean))
	if err != nil {
		return nil, "", fmt.Errorf("artifacts: reading %s: %w", clean, err)
	}
	return data, mimeFor(clean), nil
}

// ReaderAdapter exposes a Store as a webvisit.ArtifactReader: the
// BaseURL/Read method pair visit_webpage needs to serve artifact URLs back
// out without an HTTP round trip, kept off Store itself since Store
// already has a BaseURL field.
type ReaderAdapter struct{ Store *Store }

func NewReaderAdapter(store *Store) ReaderAdapter { return ReaderAdapter{Store: store} }

func (r ReaderAdapter) BaseURL() string {
	return strings.TrimRight(r.Store.BaseURL, "/") + "/" + sanitize(r.Store.Arc) + "/"
}

func (r ReaderAdapter) Read(relPath string) ([]byte, string, error) {
	return r.Store.readArtifact(relPath)
}

func mimeFor(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".gif":
		return "image/gif"
	default:
		return "text/plain"
	}
}

func sanitize(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}

var shareSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "filename": {"type": "string"},
    "content": {"type": "string"}
  },
  "required": ["filename", "content"]
}`)

// ShareTool implements agent.Tool for share_artifact.
type ShareTool struct{ Store *Store }

func NewShareTool(store *Store) *ShareTool { return &ShareTool{Store: store} }

func (t *ShareTool) Name() string                       { return "share_artifact" }
func (t *ShareTool) Description() string                { return "Save a new artifact file and get back a URL to it." }
func (t *ShareTool) Schema() json.RawMessage             { return shareSchema }
func (t *ShareTool) PersistType() models.ToolPersistType { return models.PersistArtifact }

type shareInput struct {
	Filename string `json:"filename"`
	Content  string `json:"content"`
}

func (t *ShareTool) Execute(ctx context.Context, call models.ToolCall) (models.ToolResult, error) {
	var in shareInput
	if err := json.Unmarshal(call.Input, &in); err != nil || in.Filename == "" {
		return models.ToolResult{}, fmt.Errorf("share_artifact: invalid input: %w", err)
	}

	url, err := t.Store.Publish(in.Filename, in.Content)
	if err != nil {
		return models.ToolResult{}, fmt.Errorf("share_artifact: %w", err)
	}

	return models.ToolResult{
		ToolCallID: call.ID,
		Content:    url,
	}, nil
}

var editSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "filename": {"type": "string"},
    "old_string": {"type": "string"},
    "new_string": {"type": "string"}
  },
  "required": ["filename", "old_string", "new_string"]
}`)

// EditTool implements agent.Tool for edit_artifact.
type EditTool struct{ Store *Store }

func NewEditTool(store *Store) *EditTool { return &EditTool{Store: store} }

func (t *EditTool) Name() string                       { return "edit_artifact" }
func (t *EditTool) Description() string                { return "Edit an existing artifact by replacing an exact, unique snippet." }
func (t *EditTool) Schema() json.RawMessage             { return editSchema }
func (t *EditTool) PersistType() models.ToolPersistType { return models.PersistArtifact }

type editInput struct {
	Filename  string `json:"filename"`
	OldString string `json:"old_string"`
	NewString string `json:"new_string"`
}

func (t *EditTool) Execute(ctx context.Context, call models.ToolCall) (models.ToolResult, error) {
	var in editInput
	if err := json.Unmarshal(call.Input, &in); err != nil || in.Filename == "" {
		return models.ToolResult{}, fmt.Errorf("edit_artifact: invalid input: %w", err)
	}

	dir, err := t.Store.arcDir()
	if err != nil {
		return models.ToolResult{}, fmt.Errorf("edit_artifact: preparing artifact dir: %w", err)
	}

	filename := sanitize(filepath.Base(in.Filename))
	path := filepath.Join(dir, filename)

	data, err := os.ReadFile(path)
	if err != nil {
		return models.ToolResult{}, fmt.Errorf("edit_artifact: reading %s: %w", filename, err)
	}
	content := string(data)

	count := strings.Count(content, in.OldString)
	if count != 1 {
		return models.ToolResult{
			ToolCallID: call.ID,
			Content:    fmt.Sprintf("old_string must occur exactly once, found %d occurrences", count),
			IsError:    true,
		}, nil
	}

	updated := strings.Replace(content, in.OldString, in.NewString, 1)
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		return models.ToolResult{}, fmt.Errorf("edit_artifact: writing %s: %w", filename, err)
	}

	return models.ToolResult{ToolCallID: call.ID, Content: t.Store.urlFor(filename)}, nil
}
