// Package providers implements agent.ModelAdapter for concrete LLM
// backends. AnthropicAdapter wraps anthropic-sdk-go's streaming Messages
// API, converting muaddib's content-block messages and tool contracts
// into the SDK's wire types and its SSE stream back into agent.StreamEvent
// (spec §6, "external interfaces").
package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/pasky/muaddib-sub002/internal/agent"
	"github.com/pasky/muaddib-sub002/pkg/models"
)

// AnthropicConfig configures an AnthropicAdapter.
type AnthropicConfig struct {
	APIKey         string
	BaseURL        string
	DefaultModel   string
	MaxRetries     int
	RetryDelay     time.Duration
	VisionModels   map[string]bool
}

// AnthropicAdapter implements agent.ModelAdapter for Anthropic's Claude API.
type AnthropicAdapter struct {
	client anthropic.Client

	defaultModel string
	maxRetries   int
	retryDelay   time.Duration
	visionModels map[string]bool
}

// NewAnthropicAdapter builds an adapter from config, applying the same
// defaults the rest of the ecosystem's Anthropic clients use: 3 retries,
// 1s base backoff, claude-sonnet-4 as the fallback model.
func NewAnthropicAdapter(cfg AnthropicConfig) (*AnthropicAdapter, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("anthropic: API key is required")
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "claude-sonnet-4-20250514"
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &AnthropicAdapter{
		client:       anthropic.NewClient(opts...),
		defaultModel: cfg.DefaultModel,
		maxRetries:   cfg.MaxRetries,
		retryDelay:   cfg.RetryDelay,
		visionModels: cfg.VisionModels,
	}, nil
}

func (a *AnthropicAdapter) Name() string { return "anthropic" }

func (a *AnthropicAdapter) SupportsTools() bool { return true }

// SupportsVision reports whether the adapter's default model is a known
// vision-capable Claude model. The runner does not consult it: it switches
// to the session's VisionModel whenever a tool result carries an image.
func (a *AnthropicAdapter) SupportsVision() bool {
	if a.visionModels == nil {
		return true // every current Claude model accepts image input
	}
	return a.visionModels[a.defaultModel]
}

// Stream issues a completion request and translates Anthropic's SSE
// stream into agent.StreamEvent, retrying transient failures with
// exponential backoff before the stream is established.
func (a *AnthropicAdapter) Stream(ctx context.Context, req agent.CompletionRequest) (<-chan agent.StreamEvent, error) {
	out := make(chan agent.StreamEvent)

	messages, err := convertMessages(req.Messages)
	if err != nil {
		return nil, fmt.Errorf("anthropic: converting messages: %w", err)
	}
	tools, err := convertTools(req.Tools)
	if err != nil {
		return nil, fmt.Errorf("anthropic: converting tools: %w", err)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model(req.Model)),
		Messages:  messages,
		MaxTokens: int64(a.maxTokens(req.MaxTokens)),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Type: "text", Text: req.System}}
	}
	if len(tools) > 0 {
		params.Tools = tools
	}

	go a.runStream(ctx, params, out)
	return out, nil
}

func (a *AnthropicAdapter) runStream(ctx context.Context, params anthropic.MessageNewParams, out chan<- agent.StreamEvent) {
	defer close(out)

	var stream interface {
		Next() bool
		Current() anthropic.MessageStreamEventUnion
		Err() error
	}

	var lastErr error
	for attempt := 0; attempt <= a.maxRetries; attempt++ {
		s := a.client.Messages.NewStreaming(ctx, params)
		// Probe the first event eagerly so retryable creation errors (rate
		// limits, 5xx) are caught before any event reaches the caller.
		if s.Next() {
			stream = &primedStream{first: s.Current(), hasFirst: true, inner: s}
			lastErr = nil
			break
		}
		lastErr = s.Err()
		if lastErr == nil {
			stream = &primedStream{inner: s}
			break
		}
		if !isRetryableError(lastErr) {
			out <- agent.StreamEvent{Type: agent.EventError, Err: fmt.Errorf("anthropic: %w", lastErr)}
			return
		}
		if attempt < a.maxRetries {
			backoff := a.retryDelay * time.Duration(math.Pow(2, float64(attempt)))
			select {
			case <-ctx.Done():
				out <- agent.StreamEvent{Type: agent.EventError, Err: ctx.Err()}
				return
			case <-time.After(backoff):
			}
		}
	}
	if lastErr != nil {
		out <- agent.StreamEvent{Type: agent.EventError, Err: fmt.Errorf("anthropic: max retries exceeded: %w", lastErr)}
		return
	}

	out <- agent.StreamEvent{Type: agent.EventStart}
	processStream(stream, out)
}

// primedStream lets runStream re-deliver the first Next()/Current() pair
// it already consumed while probing for creation errors.
type primedStream struct {
	first    anthropic.MessageStreamEventUnion
	hasFirst bool
	inner    interface {
		Next() bool
		Current() anthropic.MessageStreamEventUnion
		Err() error
	}
}

func (s *primedStream) Next() bool {
	if s.hasFirst {
		return true
	}
	return s.inner.Next()
}

func (s *primedStream) Current() anthropic.MessageStreamEventUnion {
	if s.hasFirst {
		s.hasFirst = false
		return s.first
	}
	return s.inner.Current()
}

func (s *primedStream) Err() error { return s.inner.Err() }

func processStream(stream interface {
	Next() bool
	Current() anthropic.MessageStreamEventUnion
	Err() error
}, out chan<- agent.StreamEvent) {
	var currentToolCall *models.ToolCall
	var toolInput strings.Builder
	var textBuf strings.Builder
	var textOpen bool

	var blocks []models.ContentBlock
	var inputTokens, outputTokens int

	for stream.Next() {
		event := stream.Current()

		switch event.Type {
		case "message_start":
			usage := event.AsMessageStart().Message.Usage
			if usage.InputTokens > 0 {
				inputTokens = int(usage.InputTokens)
			}

		case "content_block_start":
			block := event.AsContentBlockStart().ContentBlock
			switch block.Type {
			case "text":
				textOpen = true
				textBuf.Reset()
				out <- agent.StreamEvent{Type: agent.EventTextStart}
			case "tool_use":
				toolUse := block.AsToolUse()
				currentToolCall = &models.ToolCall{ID: toolUse.ID, Name: toolUse.Name}
				toolInput.Reset()
				out <- agent.StreamEvent{Type: agent.EventToolCallStart, ToolCall: currentToolCall}
			}

		case "content_block_delta":
			delta := event.AsContentBlockDelta().Delta
			switch delta.Type {
			case "text_delta":
				if delta.Text != "" {
					textBuf.WriteString(delta.Text)
					out <- agent.StreamEvent{Type: agent.EventTextDelta, TextDelta: delta.Text}
				}
			case "input_json_delta":
				if delta.PartialJSON != "" {
					toolInput.WriteString(delta.PartialJSON)
				}
			}

		case "content_block_stop":
			if textOpen {
				textOpen = false
				if textBuf.Len() > 0 {
					blocks = append(blocks, models.ContentBlock{Type: models.BlockText, Text: textBuf.String()})
				}
				out <- agent.StreamEvent{Type: agent.EventTextEnd}
			} else if currentToolCall != nil {
				currentToolCall.Input = json.RawMessage(toolInput.String())
				blocks = append(blocks, models.ContentBlock{Type: models.BlockToolCall, ToolCall: currentToolCall})
				out <- agent.StreamEvent{Type: agent.EventToolCallEnd, ToolCall: currentToolCall}
				currentToolCall = nil
			}

		case "message_delta":
			usage := event.AsMessageDelta().Usage
			if usage.OutputTokens > 0 {
				outputTokens = int(usage.OutputTokens)
			}

		case "message_stop":
			out <- agent.StreamEvent{Type: agent.EventDone, Message: &models.AssistantMessage{
				Role:       models.RoleAssistant,
				Content:    blocks,
				StopReason: stopReasonFor(blocks),
				Usage:      models.Usage{Input: inputTokens, Output: outputTokens, TotalTokens: inputTokens + outputTokens},
				Provider:   "anthropic",
				CreatedAt:  time.Now(),
			}}
			return

		case "error":
			errEvent := event.AsError()
			out <- agent.StreamEvent{Type: agent.EventError, Err: fmt.Errorf("anthropic: %s: %s", errEvent.Error.Type, errEvent.Error.Message)}
			return
		}
	}

	if err := stream.Err(); err != nil {
		out <- agent.StreamEvent{Type: agent.EventError, Err: fmt.Errorf("anthropic: %w", err)}
	}
}

func stopReasonFor(blocks []models.ContentBlock) models.StopReason {
	for _, b := range blocks {
		if b.Type == models.BlockToolCall {
			return models.StopToolUse
		}
	}
	return models.StopEndTurn
}

func convertMessages(blocks []models.ContentBlock) ([]anthropic.MessageParam, error) {
	if len(blocks) == 0 {
		return nil, nil
	}

	// muaddib keeps a flat content-block sequence per turn rather than the
	// user/assistant message pairing Anthropic's API expects; tool calls
	// and results always originate from the assistant/tool side, so a
	// single user message carries the rest.
	var userContent, assistantContent []anthropic.ContentBlockParamUnion
	for _, b := range blocks {
		switch b.Type {
		case models.BlockText:
			if b.Text != "" {
				userContent = append(userContent, anthropic.NewTextBlock(b.Text))
			}
		case models.BlockToolCall:
			if b.ToolCall == nil {
				continue
			}
			var input map[string]any
			if len(b.ToolCall.Input) > 0 {
				if err := json.Unmarshal(b.ToolCall.Input, &input); err != nil {
					return nil, fmt.Errorf("tool call %q: invalid input: %w", b.ToolCall.Name, err)
				}
			}
			assistantContent = append(assistantContent, anthropic.NewToolUseBlock(b.ToolCall.ID, input, b.ToolCall.Name))
		case models.BlockToolResult:
			if b.ToolResult == nil {
				continue
			}
			userContent = append(userContent, anthropic.NewToolResultBlock(b.ToolResult.ToolCallID, b.ToolResult.Content, b.ToolResult.IsError))
		}
	}
	if len(userContent) == 0 && len(assistantContent) == 0 {
		return nil, nil
	}

	var result []anthropic.MessageParam
	if len(userContent) > 0 {
		result = append(result, anthropic.NewUserMessage(userContent...))
	}
	if len(assistantContent) > 0 {
		result = append(result, anthropic.NewAssistantMessage(assistantContent...))
	}
	return result, nil
}

func convertTools(tools []agent.LLMTool) ([]anthropic.ToolUnionParam, error) {
	if len(tools) == 0 {
		return nil, nil
	}
	result := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		var schema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(t.InputSchema, &schema); err != nil {
			return nil, fmt.Errorf("invalid schema for tool %q: %w", t.Name, err)
		}
		param := anthropic.ToolUnionParamOfTool(schema, t.Name)
		if param.OfTool == nil {
			return nil, fmt.Errorf("invalid schema for tool %q: missing tool definition", t.Name)
		}
		param.OfTool.Description = anthropic.String(t.Description)
		result = append(result, param)
	}
	return result, nil
}

func (a *AnthropicAdapter) model(requested string) string {
	if requested == "" {
		return a.defaultModel
	}
	return requested
}

func (a *AnthropicAdapter) maxTokens(requested int) int {
	if requested <= 0 {
		return 4096
	}
	return requested
}

func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, s := range []string{
		"rate_limit", "429", "too many requests",
		"500", "502", "503", "504",
		"internal server error", "bad gateway", "service unavailable", "gateway timeout",
		"timeout", "deadline exceeded",
		"connection reset", "connection refused", "no such host",
	} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
