// Package handler implements the end-to-end message handler pipeline that
// every transport adapter's inbound message runs through: ignore
// filtering, history persistence, command resolution, steering-queue
// dispatch, context assembly, tool execution via the session runner,
// response post-processing, and final send/persist/followup (spec §4.5).
package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pasky/muaddib-sub002/internal/agent"
	"github.com/pasky/muaddib-sub002/internal/chronicle"
	"github.com/pasky/muaddib-sub002/internal/commands"
	"github.com/pasky/muaddib-sub002/internal/history"
	"github.com/pasky/muaddib-sub002/internal/steering"
	"github.com/pasky/muaddib-sub002/internal/tools/artifacts"
	"github.com/pasky/muaddib-sub002/pkg/models"
)

const (
	defaultHistorySize          = 20
	defaultResponseMaxBytes     = 0 // 0 means no length policy
	defaultAutoReduceTrigger    = 40
	defaultAutoReduceKeepRecent = 6
)

// ToolSetBuilder assembles the tool registry for one run: baseline tools
// filtered by the resolved command's AllowedTools, with per-arc sandbox and
// oracle-invocation context injected (spec §4.5 step 6). Supplied by the
// caller at startup since concrete tool wiring (sandboxes, artifact stores,
// nested oracle runners) depends on configuration this package doesn't own.
type ToolSetBuilder func(ctx context.Context, arc string, resolved *models.ResolvedCommand, parentContext []models.ContentBlock) (*agent.Registry, error)

// ContextReducer collapses old history into a single summarizing text block
// when a mode has AutoReduceContext enabled (spec §4.5 step 5, §9 "Open
// questions" (c)).
type ContextReducer func(ctx context.Context, arc string, transcript string) (string, error)

// SummaryGenerator produces the optional persistence-summary followup over
// a run's tool-use trace (spec §9 "Persistence summary").
type SummaryGenerator func(ctx context.Context, arc string, toolTrace []models.ContentBlock) (string, error)

// Handler wires every collaborator the message pipeline depends on. All
// fields are required except where noted; optional hooks are checked for
// nil before use and the corresponding behavior is simply skipped.
type Handler struct {
	// Resolver looks up the command resolver configured for arc.
	Resolver func(arc string) (*commands.Resolver, bool)

	History   history.Store
	Chronicle chronicle.Store // nil disables chronicle features entirely

	Steering *steering.Manager
	Models   agent.Resolver

	BuildTools ToolSetBuilder

	// System renders the system prompt for a resolved command's mode.
	System func(resolved *models.ResolvedCommand) string

	// Artifacts returns the artifact store for arc, or nil if artifacts
	// are not configured (length-policy excerpting is then skipped).
	Artifacts func(arc string) *artifacts.Store

	// ResponseMaxBytes returns the length-policy threshold for arc; 0
	// disables the policy.
	ResponseMaxBytes func(arc string) int

	// IgnoreUser reports whether nick is on arc's configured ignore list.
	IgnoreUser func(arc, nick string) bool

	Reducer  ContextReducer
	Summary  SummaryGenerator

	// CostLineThreshold triggers a cost/tool-usage followup line when a
	// single response's usage cost exceeds it. 0 disables the followup.
	CostLineThreshold float64

	MaxIterations         int
	ToolTimeout           time.Duration
	RefusalFallbackModel  string

	Logger *slog.Logger
}

func (h *Handler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

// HandleIncomingMessage runs the full pipeline for one inbound message
// (spec §4.5, §6 "Transport -> core"). isDirect marks whether the message
// was addressed to the bot (mention, DM, or explicit trigger); undirected
// messages are persisted and folded into the arc's steering context as
// passive items without producing a reply.
func (h *Handler) HandleIncomingMessage(ctx context.Context, msg *models.RoomMessage, isDirect bool, sendResponse func(string) error) (*models.ResolvedCommand, error) {
	arc := msg.Arc()

	if h.IgnoreUser != nil && h.IgnoreUser(arc, msg.Nick) {
		return nil, nil
	}

	role := models.RoleUser
	if msg.IsFromSelf() {
		role = models.RoleAssistant
	}
	triggerID, err := h.History.AddMessage(ctx, history.StoredMessage{
		Arc: arc, PlatformID: msg.PlatformID, Role: role, Content: msg.Content, CreatedAt: time.Now(),
	})
	if err != nil {
		h.logger().Error("persisting incoming message failed", "arc", arc, "error", err)
	}

	if !isDirect {
		if h.Steering != nil {
			h.Steering.EnqueuePassive(msg, asReplyFunc(sendResponse), false)
		}
		return nil, nil
	}

	return h.handleCommand(ctx, arc, msg, triggerID, sendResponse)
}

// handleCommand implements spec §4.5 steps 3-10 for an addressed message,
// retrying resolution from scratch whenever a queued command settles with
// the retry sentinel (spec §3 "Session retry sentinel").
func (h *Handler) handleCommand(ctx context.Context, arc string, msg *models.RoomMessage, triggerID int64, sendResponse func(string) error) (*models.ResolvedCommand, error) {
	resolver, ok := h.Resolver(arc)
	if !ok {
		err := fmt.Errorf("handler: no command resolver configured for arc %q", arc)
		_ = sendResponse("This room isn't configured yet.")
		return nil, err
	}

	for {
		resolved := resolver.Resolve(msg.Content)

		if resolved.Error != "" {
			return resolved, sendResponse(resolved.Error)
		}
		if resolved.HelpRequested {
			return resolved, sendResponse(helpText(resolver.Registry))
		}

		if !resolved.Runtime.Steering || resolved.NoContext {
			err := h.runOnce(ctx, arc, nil, msg, resolved, triggerID, sendResponse)
			return resolved, err
		}

		if h.Steering == nil {
			err := h.runOnce(ctx, arc, nil, msg, resolved, triggerID, sendResponse)
			return resolved, err
		}

		enq := h.Steering.EnqueueCommand(msg, fmt.Sprint(triggerID), asReplyFunc(sendResponse))
		if !enq.IsRunner {
			outcome := enq.Item.Await()
			if outcome.Err == nil {
				return resolved, nil
			}
			if steering.IsRetrySentinel(outcome.Err) {
				continue
			}
			_ = sendResponse(shortDiagnostic(outcome.Err))
			return resolved, outcome.Err
		}

		key := enq.Key
		err := h.runOnce(ctx, arc, &key, msg, resolved, triggerID, sendResponse)
		if err != nil {
			h.Steering.AbortSession(key, err)
			_ = sendResponse(shortDiagnostic(err))
			return resolved, err
		}
		h.Steering.ReleaseSession(key)
		return resolved, nil
	}
}

// runOnce performs context assembly, tool assembly, the session run, and
// post-processing/send/persist/followups for a single resolved command
// invocation (spec §4.5 steps 5-9). key is non-nil when this invocation is
// the steering session's runner, wiring the runner's mid-turn drain.
func (h *Handler) runOnce(ctx context.Context, arc string, key *steering.Key, msg *models.RoomMessage, resolved *models.ResolvedCommand, triggerID int64, sendResponse func(string) error) error {
	contextBlocks, err := h.assembleContext(ctx, arc, resolved, triggerID)
	if err != nil {
		return fmt.Errorf("handler: assembling context: %w", err)
	}

	var toolRegistry *agent.Registry
	if h.BuildTools != nil {
		toolRegistry, err = h.BuildTools(ctx, arc, resolved, contextBlocks)
		if err != nil {
			return fmt.Errorf("handler: assembling tool set: %w", err)
		}
	} else {
		toolRegistry = agent.NewRegistry()
	}

	system := ""
	if h.System != nil {
		system = h.System(resolved)
	}

	sess := &agent.Session{
		Model:       resolved.Runtime.Model,
		VisionModel: resolved.Runtime.VisionModel,
		System:      system,
		Messages:    append(contextBlocks, models.ContentBlock{Type: models.BlockText, Text: resolved.QueryText}),
	}

	cfg := agent.RunnerConfig{
		Resolver:              h.Models,
		Tools:                 toolRegistry,
		Logger:                h.logger(),
		MaxIterations:         h.MaxIterations,
		RefusalFallbackModel:  h.RefusalFallbackModel,
		ToolTimeout:           h.ToolTimeout,
	}
	if key != nil {
		cfg.SteeringManager = h.Steering
		cfg.SteeringKey = *key
	}

	runner := agent.NewRunner(cfg)
	result, err := runner.Run(ctx, sess)
	if err != nil {
		return err
	}

	finalText := h.applyLengthPolicy(arc, result.Text)
	finalText = appendFallbackAnnotations(finalText, result)

	if err := sendResponse(finalText); err != nil {
		return fmt.Errorf("handler: sending response: %w", err)
	}

	mode := resolved.SelectedTrigger
	if mode == "" {
		mode = resolved.ModeKey
	}
	if _, err := h.History.AddMessage(ctx, history.StoredMessage{
		Arc: arc, Role: models.RoleAssistant, Content: result.Text, Mode: mode, CreatedAt: time.Now(),
	}); err != nil {
		h.logger().Warn("persisting reply failed", "arc", arc, "error", err)
	}

	h.emitFollowups(ctx, arc, sess, result, sendResponse)
	return nil
}

// assembleContext fetches history, optionally prepends a chronicle chapter
// summary, drops the just-persisted triggering message, and applies
// auto-reduction when configured (spec §4.5 step 5).
func (h *Handler) assembleContext(ctx context.Context, arc string, resolved *models.ResolvedCommand, triggerID int64) ([]models.ContentBlock, error) {
	limit := resolved.Runtime.HistorySize
	if limit <= 0 {
		limit = defaultHistorySize
	}

	rows, err := h.History.GetContext(ctx, arc, limit+1)
	if err != nil {
		return nil, err
	}

	var blocks []models.ContentBlock
	for _, row := range rows {
		if row.ID == triggerID {
			continue
		}
		blocks = append(blocks, models.ContentBlock{Type: models.BlockText, Text: fmt.Sprintf("[%s] %s", row.Role, row.Content)})
	}

	if resolved.Runtime.IncludeChapterSummary && h.Chronicle != nil {
		chapter, err := h.Chronicle.RenderChapterRelative(ctx, arc, 0)
		if err != nil {
			h.logger().Warn("rendering chronicle chapter failed", "arc", arc, "error", err)
		} else if strings.TrimSpace(chapter) != "" {
			blocks = append([]models.ContentBlock{{
				Type: models.BlockText,
				Text: "<chronicle>\n" + chapter + "\n</chronicle>",
			}}, blocks...)
		}
	}

	if resolved.Runtime.AutoReduceContext && h.Reducer != nil && len(blocks) > defaultAutoReduceTrigger {
		blocks = h.reduceBlocks(ctx, arc, blocks)
	}

	return blocks, nil
}

func (h *Handler) reduceBlocks(ctx context.Context, arc string, blocks []models.ContentBlock) []models.ContentBlock {
	keep := defaultAutoReduceKeepRecent
	if keep >= len(blocks) {
		return blocks
	}
	old, recent := blocks[:len(blocks)-keep], blocks[len(blocks)-keep:]

	var transcript strings.Builder
	for _, b := range old {
		transcript.WriteString(b.Text)
		transcript.WriteString("\n")
	}

	summary, err := h.Reducer(ctx, arc, transcript.String())
	if err != nil {
		h.logger().Warn("context auto-reduction failed, keeping full history", "arc", arc, "error", err)
		return blocks
	}

	out := []models.ContentBlock{{Type: models.BlockText, Text: "<context_summary>\n" + summary + "\n</context_summary>"}}
	return append(out, recent...)
}

// applyLengthPolicy publishes text as an artifact and replaces the reply
// with a head excerpt plus the artifact URL when it exceeds the arc's
// configured response byte budget (spec §4.5 step 8, §8 scenario S7).
func (h *Handler) applyLengthPolicy(arc, text string) string {
	maxBytes := defaultResponseMaxBytes
	if h.ResponseMaxBytes != nil {
		maxBytes = h.ResponseMaxBytes(arc)
	}
	if maxBytes <= 0 || len(text) <= maxBytes || h.Artifacts == nil {
		return text
	}
	store := h.Artifacts(arc)
	if store == nil {
		return text
	}

	url, err := store.Publish(fmt.Sprintf("response-%d.txt", time.Now().UnixNano()), text)
	if err != nil {
		h.logger().Warn("publishing length-policy artifact failed", "arc", arc, "error", err)
		return text
	}

	excerptLen := maxBytes
	if excerptLen > len(text) {
		excerptLen = len(text)
	}
	return fmt.Sprintf("%s… (full response: %s)", text[:excerptLen], url)
}

// appendFallbackAnnotations appends the fixed fallback-activation markers
// spec §4.5 step 8 requires, vision first, refusal second (both may fire in
// the same run since they're independent sticky flags).
func appendFallbackAnnotations(text string, result *models.PromptResult) string {
	if result.VisionFallbackActivated {
		text += fmt.Sprintf(" [image fallback to %s]", result.VisionFallbackModel)
	}
	if result.RefusalFallbackActivated {
		text += fmt.Sprintf(" [refusal fallback to %s]", result.RefusalFallbackModel)
	}
	return text
}

// emitFollowups appends the cost/tool-usage line for expensive responses
// and generates the optional tool-trace persistence summary (spec §4.5
// step 9, §9 "Persistence summary").
func (h *Handler) emitFollowups(ctx context.Context, arc string, sess *agent.Session, result *models.PromptResult, sendResponse func(string) error) {
	if h.CostLineThreshold > 0 && result.Usage.Cost.Total > h.CostLineThreshold {
		line := fmt.Sprintf("(cost: $%.4f, %d tool call(s), %d iteration(s))", result.Usage.Cost.Total, result.ToolCallsCount, result.Iterations)
		_ = sendResponse(line)
	}

	if h.Summary == nil || h.Chronicle == nil || !hasPersistableToolUse(sess.Messages) {
		return
	}
	summary, err := h.Summary(ctx, arc, sess.Messages)
	if err != nil {
		h.logger().Warn("persistence summary generation failed", "arc", arc, "error", err)
		return
	}
	if strings.TrimSpace(summary) == "" {
		return
	}
	ch, err := h.Chronicle.GetOrOpenCurrentChapter(ctx, arc)
	if err != nil {
		h.logger().Warn("opening chronicle chapter for summary failed", "arc", arc, "error", err)
		return
	}
	if _, err := h.Chronicle.AppendParagraph(ctx, ch.ID, summary); err != nil {
		h.logger().Warn("appending persistence summary failed", "arc", arc, "error", err)
	}
}

func hasPersistableToolUse(messages []models.ContentBlock) bool {
	for _, b := range messages {
		if b.Type == models.BlockToolResult {
			return true
		}
	}
	return false
}

func asReplyFunc(send func(string) error) steering.ReplyFunc {
	return steering.ReplyFunc(send)
}

func helpText(reg *commands.Registry) string {
	names := reg.TriggerNames()
	if len(names) == 0 {
		return "No commands are registered in this room."
	}
	return "Available commands: !" + strings.Join(names, ", !")
}

func shortDiagnostic(err error) string {
	var toolErr *agent.ToolError
	if errors.As(err, &toolErr) {
		return fmt.Sprintf("Tool error: %v", toolErr)
	}
	var maxIterErr *agent.MaxIterationsError
	if errors.As(err, &maxIterErr) {
		if maxIterErr.Text != "" {
			return fmt.Sprintf("I reached the tool-call limit working on that. Here's what I had so far:\n\n%s", maxIterErr.Text)
		}
		return "I reached the tool-call limit working on that."
	}
	switch {
	case errors.Is(err, agent.ErrMaxIterations):
		return "I reached the tool-call limit working on that."
	case errors.Is(err, agent.ErrEmptyCompletion):
		return "Agent produced empty completion."
	case errors.Is(err, agent.ErrNoProvider):
		return "No model provider is configured for that request."
	default:
		msg := err.Error()
		const max = 200
		if len(msg) > max {
			msg = msg[:max] + "…"
		}
		return "Something went wrong: " + msg
	}
}
