package imagegen

import (
	"context"
	"encoding/json"
	"image"
	"image/color"
	"testing"

	"github.com/pasky/muaddib-sub002/pkg/models"
)

type fakeBackend struct{}

func (fakeBackend) Generate(ctx context.Context, prompt string) (image.Image, error) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for x := 0; x < 4; x++ {
		for y := 0; y < 4; y++ {
			img.Set(x, y, color.RGBA{255, 0, 0, 255})
		}
	}
	return img, nil
}

func TestExecuteReturnsPNGAttachment(t *testing.T) {
	tool := New(fakeBackend{}, "test-model")
	res, err := tool.Execute(context.Background(), models.ToolCall{
		ID: "1", Input: json.RawMessage(`{"prompt":"a red square"}`),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Attachments) != 1 || res.Attachments[0].MimeType != "image/png" {
		t.Fatalf("expected a PNG attachment, got %+v", res.Attachments)
	}
}

func TestExecuteRejectsEmptyPrompt(t *testing.T) {
	tool := New(fakeBackend{}, "test-model")
	_, err := tool.Execute(context.Background(), models.ToolCall{ID: "1", Input: json.RawMessage(`{}`)})
	if err == nil {
		t.Fatal("expected error for empty prompt")
	}
}
