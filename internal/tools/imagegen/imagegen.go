// Package imagegen implements the generate_image baseline tool, post-
// processing the backend's raw output with disintegration/imaging (the
// same pure-Go image library the corpus uses for sprite work) so returned
// attachments are always normalized to PNG.
package imagegen

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"

	"github.com/disintegration/imaging"

	"github.com/pasky/muaddib-sub002/pkg/models"
)

var schema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "prompt": {"type": "string"}
  },
  "required": ["prompt"]
}`)

// Backend generates an image from a text prompt.
type Backend interface {
	Generate(ctx context.Context, prompt string) (image.Image, error)
}

// Tool implements agent.Tool for generate_image.
type Tool struct {
	Backend Backend
	Model   string
}

func New(backend Backend, model string) *Tool {
	return &Tool{Backend: backend, Model: model}
}

func (t *Tool) Name() string                       { return "generate_image" }
func (t *Tool) Description() string                { return "Generate an image from a text description." }
func (t *Tool) Schema() json.RawMessage             { return schema }
func (t *Tool) PersistType() models.ToolPersistType { return models.PersistArtifact }

type input struct {
	Prompt string `json:"prompt"`
}

func (t *Tool) Execute(ctx context.Context, call models.ToolCall) (models.ToolResult, error) {
	var in input
	if err := json.Unmarshal(call.Input, &in); err != nil || in.Prompt == "" {
		return models.ToolResult{}, fmt.Errorf("generate_image: invalid input: %w", err)
	}

	img, err := t.Backend.Generate(ctx, in.Prompt)
	if err != nil {
		return models.ToolResult{}, fmt.Errorf("generate_image: backend request: %w", err)
	}

	resized := imaging.Fit(img, 1024, 1024, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, resized, imaging.PNG); err != nil {
		return models.ToolResult{}, fmt.Errorf("generate_image: encoding result: %w", err)
	}

	return models.ToolResult{
		ToolCallID: call.ID,
		Content:    "generated image",
		Attachments: []models.Attachment{{
			Type:     "image",
			MimeType: "image/png",
			Data:     base64.StdEncoding.EncodeToString(buf.Bytes()),
		}},
	}, nil
}
