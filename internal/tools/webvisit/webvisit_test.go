package webvisit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pasky/muaddib-sub002/pkg/models"
)

func TestExecuteRejectsNonHTTPScheme(t *testing.T) {
	tool := New(nil, nil, nil)
	_, err := tool.Execute(context.Background(), models.ToolCall{ID: "1", Input: json.RawMessage(`{"url":"ftp://example.com"}`)})
	if err == nil {
		t.Fatal("expected error for non-http(s) scheme")
	}
}

func TestExecuteExtractsHTMLText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><body><script>bad()</script><p>Hello, world.</p></body></html>`))
	}))
	defer srv.Close()

	tool := New(srv.Client(), nil, nil)
	res, err := tool.Execute(context.Background(), models.ToolCall{ID: "1", Input: json.RawMessage(`{"url":"` + srv.URL + `"}`)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Content != "Hello, world." {
		t.Fatalf("unexpected extracted text: %q", res.Content)
	}
}

func TestExecuteUpstream5xxIsAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	tool := New(srv.Client(), nil, nil)
	_, err := tool.Execute(context.Background(), models.ToolCall{ID: "1", Input: json.RawMessage(`{"url":"` + srv.URL + `"}`)})
	if err == nil {
		t.Fatal("expected error on upstream 5xx")
	}
}

type fakeArtifactReader struct {
	base string
	data map[string][]byte
}

func (f fakeArtifactReader) BaseURL() string { return f.base }
func (f fakeArtifactReader) Read(relPath string) ([]byte, string, error) {
	data, ok := f.data[relPath]
	if !ok {
		return nil, "", http.ErrMissingFile
	}
	return data, "text/plain", nil
}

func TestExecuteReadsLocalArtifact(t *testing.T) {
	artifact := fakeArtifactReader{base: "https://artifacts.local", data: map[string][]byte{
		"report.txt": []byte("artifact contents"),
	}}
	tool := New(nil, nil, artifact)

	res, err := tool.Execute(context.Background(), models.ToolCall{ID: "1", Input: json.RawMessage(`{"url":"https://artifacts.local/report.txt"}`)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Content != "artifact contents" {
		t.Fatalf("unexpected content: %q", res.Content)
	}
}

func TestExecuteRejectsPathTraversalInArtifactURL(t *testing.T) {
	artifact := fakeArtifactReader{base: "https://artifacts.local", data: map[string][]byte{}}
	tool := New(nil, nil, artifact)

	_, err := tool.Execute(context.Background(), models.ToolCall{ID: "1", Input: json.RawMessage(`{"url":"https://artifacts.local/../../etc/passwd"}`)})
	if err == nil {
		t.Fatal("expected path traversal to be rejected")
	}
}
