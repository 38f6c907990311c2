package planning

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/pasky/muaddib-sub002/pkg/models"
)

func TestProgressReportRequiresStatus(t *testing.T) {
	tool := NewProgressTool()

	if _, err := tool.Execute(context.Background(), mkCall(`{}`)); err == nil {
		t.Fatal("expected an error for a missing status")
	}

	res, err := tool.Execute(context.Background(), mkCall(`{"status":"halfway done"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Content != "acknowledged" {
		t.Fatalf("unexpected content: %q", res.Content)
	}
}

func TestMakePlanNumbersSteps(t *testing.T) {
	tool := NewPlanTool()

	res, err := tool.Execute(context.Background(), mkCall(`{"steps":["find the bug","write a fix","add a test"]}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "1. find the bug\n2. write a fix\n3. add a test"
	if res.Content != want {
		t.Fatalf("got %q, want %q", res.Content, want)
	}
}

func TestMakePlanRejectsEmptySteps(t *testing.T) {
	tool := NewPlanTool()
	if _, err := tool.Execute(context.Background(), mkCall(`{"steps":[]}`)); err == nil {
		t.Fatal("expected an error for an empty plan")
	}
}

func mkCall(input string) models.ToolCall {
	return models.ToolCall{ID: "1", Input: json.RawMessage(input)}
}
