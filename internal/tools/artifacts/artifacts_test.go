package artifacts

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/pasky/muaddib-sub002/pkg/models"
)

func testStore(t *testing.T) *Store {
	return NewStore(t.TempDir(), "https://artifacts.example", "irc#chan")
}

func TestShareArtifactWritesFileAndReturnsURL(t *testing.T) {
	store := testStore(t)
	tool := NewShareTool(store)

	res, err := tool.Execute(context.Background(), models.ToolCall{
		ID: "1", Input: json.RawMessage(`{"filename":"report.txt","content":"hello"}`),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Content == "" {
		t.Fatal("expected a URL in the result content")
	}
}

func TestEditArtifactRequiresExactlyOneOccurrence(t *testing.T) {
	store := testStore(t)
	share := NewShareTool(store)
	edit := NewEditTool(store)

	_, err := share.Execute(context.Background(), models.ToolCall{
		ID: "1", Input: json.RawMessage(`{"filename":"x.txt","content":"foo foo bar"}`),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	res, err := edit.Execute(context.Background(), models.ToolCall{
		ID: "2", Input: json.RawMessage(`{"filename":"x.txt","old_string":"foo","new_string":"baz"}`),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.IsError {
		t.Fatal("expected an error result for a non-unique old_string")
	}
}

func TestEditArtifactSucceedsOnUniqueMatch(t *testing.T) {
	store := testStore(t)
	share := NewShareTool(store)
	edit := NewEditTool(store)

	_, err := share.Execute(context.Background(), models.ToolCall{
		ID: "1", Input: json.RawMessage(`{"filename":"x.txt","content":"unique snippet here"}`),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	res, err := edit.Execute(context.Background(), models.ToolCall{
		ID: "2", Input: json.RawMessage(`{"filename":"x.txt","old_string":"unique snippet","new_string":"replaced"}`),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected error result: %q", res.Content)
	}
}
