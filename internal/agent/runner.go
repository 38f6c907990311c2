package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pasky/muaddib-sub002/internal/steering"
	"github.com/pasky/muaddib-sub002/pkg/models"
)

const (
	emptyCompletionMetaNotice = "<meta>No valid text or tool use found in response. Please try again.</meta>"
	iterationCapMetaNotice    = "<meta>You are near the iteration limit. Wrap up now: give your best final answer without calling further tools.</meta>"

	maxEmptyCompletionRetries = 3
)

// RunnerConfig bundles everything a Runner needs that is constant for the
// lifetime of one session (spec §4.3).
type RunnerConfig struct {
	Resolver Resolver
	Tools    *Registry
	Logger   *slog.Logger

	MaxIterations int

	RefusalFallbackModel string

	SteeringManager *steering.Manager
	SteeringKey     steering.Key

	ToolTimeout time.Duration
}

// Session is the mutable conversation state for one agent run: the model
// being used, the accumulated message list, and sticky fallback flags that
// must not reset between turns.
type Session struct {
	Model       string
	VisionModel string
	System      string

	Messages []models.ContentBlock

	visionFallbackUsed  bool
	refusalFallbackUsed bool
}

// Runner drives the iterative tool-calling agent loop: stream a
// completion, execute any requested tools, feed results back, repeat until
// the model produces a final answer, a hard stop, or the iteration cap is
// reached (spec §4.3).
type Runner struct {
	cfg RunnerConfig
}

// NewRunner constructs a Runner from cfg, defaulting MaxIterations and
// ToolTimeout when unset.
func NewRunner(cfg RunnerConfig) *Runner {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 25
	}
	if cfg.ToolTimeout <= 0 {
		cfg.ToolTimeout = 2 * time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Runner{cfg: cfg}
}

// Run executes the agent loop to completion (spec §4.3, §8 testable
// properties 4-7).
func (r *Runner) Run(ctx context.Context, sess *Session) (*models.PromptResult, error) {
	if r.cfg.Resolver == nil {
		return nil, ErrNoProvider
	}

	result := &models.PromptResult{}
	emptyRetries := 0

	for iteration := 0; ; iteration++ {
		if iteration > 0 {
			r.drainSteeringInto(sess)
		}

		if iteration == r.cfg.MaxIterations-1 {
			sess.Messages = append(sess.Messages, models.ContentBlock{
				Type: models.BlockText,
				Text: iterationCapMetaNotice,
			})
		}

		adapter, err := r.cfg.Resolver.Resolve(sess.Model)
		if err != nil {
			return nil, fmt.Errorf("agent: resolving model %q: %w", sess.Model, err)
		}

		msg, err := r.completeOnce(ctx, adapter, sess)
		if err != nil {
			if IsRefusal(err.Error()) && !sess.refusalFallbackUsed && r.cfg.RefusalFallbackModel != "" {
				sess.refusalFallbackUsed = true
				result.RefusalFallbackActivated = true
				result.RefusalFallbackModel = r.cfg.RefusalFallbackModel
				sess.Model = r.cfg.RefusalFallbackModel
				continue
			}
			return nil, err
		}

		result.Iterations++
		result.Usage = result.Usage.Add(msg.Usage)

		if msg.StopReason == models.StopError {
			return nil, fmt.Errorf("agent: %w", ErrStreamTerminated)
		}

		if len(msg.Content) == 0 || (msg.Text() == "" && len(msg.ToolCalls()) == 0) {
			emptyRetries++
			if emptyRetries > maxEmptyCompletionRetries {
				return nil, ErrEmptyCompletion
			}
			sess.Messages = append(sess.Messages, models.ContentBlock{
				Type: models.BlockText,
				Text: emptyCompletionMetaNotice,
			})
			iteration--
			continue
		}
		emptyRetries = 0

		if text := msg.Text(); text != "" && IsRefusal(text) && !sess.refusalFallbackUsed && r.cfg.RefusalFallbackModel != "" {
			sess.refusalFallbackUsed = true
			result.RefusalFallbackActivated = true
			result.RefusalFallbackModel = r.cfg.RefusalFallbackModel
			sess.Model = r.cfg.RefusalFallbackModel
			continue
		}

		sess.Messages = appendAssistant(sess.Messages, msg)

		calls := msg.ToolCalls()
		if len(calls) == 0 {
			result.Text = msg.Text()
			result.StopReason = msg.StopReason
			return result, nil
		}

		if iteration >= r.cfg.MaxIterations-1 {
			return nil, &MaxIterationsError{Text: msg.Text()}
		}

		toolResults, sawImage := r.executeTools(ctx, calls)
		if sawImage && !sess.visionFallbackUsed && sess.VisionModel != "" && sess.Model != sess.VisionModel {
			sess.visionFallbackUsed = true
			result.VisionFallbackActivated = true
			result.VisionFallbackModel = sess.VisionModel
			sess.Model = sess.VisionModel
		}
		result.ToolCallsCount += len(calls)
		sess.Messages = appendToolResults(sess.Messages, toolResults)
	}
}

func (r *Runner) completeOnce(ctx context.Context, adapter ModelAdapter, sess *Session) (*models.AssistantMessage, error) {
	req := CompletionRequest{
		Model:    sess.Model,
		Messages: sess.Messages,
		System:   sess.System,
		Tools:    r.cfg.Tools.AsLLMTools(),
	}

	events, err := adapter.Stream(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("agent: starting stream: %w", err)
	}

	for ev := range events {
		switch ev.Type {
		case EventError:
			return nil, fmt.Errorf("agent: stream error: %w", ev.Err)
		case EventDone:
			return ev.Message, nil
		}
	}
	return nil, fmt.Errorf("agent: stream closed without a terminal event")
}

// executeTools runs every requested tool call sequentially (sequential,
// not parallel: tool side effects like artifact writes are ordered by the
// model's call order) and reports whether any result carried an image.
func (r *Runner) executeTools(ctx context.Context, calls []models.ToolCall) ([]models.ToolResult, bool) {
	results := make([]models.ToolResult, 0, len(calls))
	sawImage := false

	for _, call := range calls {
		toolCtx, cancel := context.WithTimeout(ctx, r.cfg.ToolTimeout)
		res, err := r.cfg.Tools.Execute(toolCtx, call)
		cancel()

		if err != nil {
			res = models.ToolResult{
				ToolCallID: call.ID,
				Content:    err.Error(),
				IsError:    true,
			}
			r.cfg.Logger.Warn("tool execution failed", "tool", call.Name, "error", err)
		}
		if res.ContainsImage() {
			sawImage = true
		}
		results = append(results, res)
	}
	return results, sawImage
}

// drainSteeringInto folds any steering items queued mid-flight into the
// session as ambient user-role context (spec §4.2, §5).
func (r *Runner) drainSteeringInto(sess *Session) {
	if r.cfg.SteeringManager == nil {
		return
	}
	for _, cm := range r.cfg.SteeringManager.DrainSteeringContext(r.cfg.SteeringKey) {
		sess.Messages = append(sess.Messages, models.ContentBlock{Type: models.BlockText, Text: cm.Content})
	}
}

func appendAssistant(messages []models.ContentBlock, msg *models.AssistantMessage) []models.ContentBlock {
	return append(messages, msg.Content...)
}

func appendToolResults(messages []models.ContentBlock, results []models.ToolResult) []models.ContentBlock {
	for i := range results {
		res := results[i]
		messages = append(messages, models.ContentBlock{
			Type:       models.BlockToolResult,
			ToolResult: &res,
		})
	}
	return messages
}
