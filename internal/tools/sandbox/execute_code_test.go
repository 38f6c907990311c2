package sandbox

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/pasky/muaddib-sub002/pkg/models"
)

func TestExecuteBashSnippet(t *testing.T) {
	tool := New(t.TempDir(), "irc#chan")
	res, err := tool.Execute(context.Background(), models.ToolCall{
		ID: "1", Input: json.RawMessage(`{"language":"bash","code":"echo hello"}`),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected error result: %q", res.Content)
	}
}

func TestExecuteRejectsUnsupportedLanguage(t *testing.T) {
	tool := New(t.TempDir(), "irc#chan")
	_, err := tool.Execute(context.Background(), models.ToolCall{
		ID: "1", Input: json.RawMessage(`{"language":"ruby","code":"puts 1"}`),
	})
	if err == nil {
		t.Fatal("expected error for unsupported language")
	}
}

func TestSanitizeArcStripsUnsafeCharacters(t *testing.T) {
	got := sanitizeArc("irc:libera#some/chan")
	for _, r := range got {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-' || r == '_') {
			t.Fatalf("unexpected character %q in sanitized arc %q", r, got)
		}
	}
}

func TestTruncateHeadTailKeepsBothEnds(t *testing.T) {
	long := make([]byte, 100)
	for i := range long {
		long[i] = byte('a' + i%26)
	}
	out := truncateHeadTail(string(long), 20)
	if len(out) >= len(long) {
		t.Fatalf("expected truncation to shrink output")
	}
}
