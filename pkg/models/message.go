// Package models provides the domain types shared across muaddib's
// agentic dispatch core: room messages, steering keys, resolved commands,
// prompt results, and the content-block records the session runner
// persists per turn.
package models

import (
	"encoding/json"
	"time"
)

// RoomMessage is the unit of work entering the system from a transport
// adapter (IRC/Discord/Slack). It is immutable once constructed; all
// per-conversation state is keyed off Arc().
type RoomMessage struct {
	// ServerTag identifies transport+workspace/network, e.g. "irc:libera"
	// or "discord:1234567890".
	ServerTag string `json:"server_tag"`

	// ChannelName is the room/channel the message arrived on.
	ChannelName string `json:"channel_name"`

	// Nick is the sender's display name.
	Nick string `json:"nick"`

	// Mynick is the bot's own display name on this server.
	Mynick string `json:"mynick"`

	// Content is the message text, mention-stripped for direct addressing.
	Content string `json:"content"`

	// PlatformID is the transport-native message id, used for edit tracking.
	PlatformID string `json:"platform_id,omitempty"`

	// ThreadID identifies a thread for threaded-room transports.
	ThreadID string `json:"thread_id,omitempty"`

	// ThreadStarterID is the platform id of the message that opened the thread.
	ThreadStarterID string `json:"thread_starter_id,omitempty"`

	// Secrets carries per-call header injection values (e.g. per-user auth
	// tokens for visit_webpage). Never persisted.
	Secrets map[string]string `json:"-"`
}

// Arc returns the conversation scope identifier that all per-conversation
// state (history, chronicle, sandbox) is keyed by.
func (m *RoomMessage) Arc() string {
	return m.ServerTag + "#" + m.ChannelName
}

// IsFromSelf reports whether the message was authored by the bot itself.
func (m *RoomMessage) IsFromSelf() bool {
	return m.Nick != "" && m.Nick == m.Mynick
}

// Attachment represents an image or file carried by a message or tool result.
type Attachment struct {
	ID       string `json:"id"`
	Type     string `json:"type"` // image, audio, video, document
	URL      string `json:"url"`
	Filename string `json:"filename,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
	Size     int64  `json:"size,omitempty"`
	// Data holds inline base64-encoded bytes when the attachment was
	// produced in-process (e.g. a screenshot) rather than fetched by URL.
	Data string `json:"data,omitempty"`
}

// ToolCall represents an LLM's request to execute a tool.
type ToolCall struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// ToolResult pairs by ToolCallID with the ToolCall that produced it and
// carries textual/imagey content plus optional structured details.
type ToolResult struct {
	ToolCallID  string         `json:"tool_call_id"`
	Content     string         `json:"content"`
	IsError     bool           `json:"is_error,omitempty"`
	Attachments []Attachment   `json:"attachments,omitempty"`
	Details     map[string]any `json:"details,omitempty"`
}

// ContainsImage reports whether this tool result carries image content,
// used by the session runner to decide whether to engage vision fallback.
func (r ToolResult) ContainsImage() bool {
	for _, a := range r.Attachments {
		if a.Type == "image" {
			return true
		}
	}
	return false
}

// Role identifies the author of a content block sequence.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleToolResult Role = "toolResult"
)

// BlockType discriminates AssistantMessage content blocks.
type BlockType string

const (
	BlockText       BlockType = "text"
	BlockThinking   BlockType = "thinking"
	BlockToolCall   BlockType = "toolCall"
	BlockToolResult BlockType = "toolResult"
	BlockImage      BlockType = "image"
)

// ContentBlock is one element of an AssistantMessage's content sequence.
type ContentBlock struct {
	Type BlockType `json:"type"`

	Text     string `json:"text,omitempty"`
	Thinking string `json:"thinking,omitempty"`

	ToolCall   *ToolCall   `json:"tool_call,omitempty"`
	ToolResult *ToolResult `json:"tool_result,omitempty"`

	ImageData     string `json:"image_data,omitempty"`
	ImageMimeType string `json:"image_mime_type,omitempty"`
}

// StopReason is the terminal condition of a model turn.
type StopReason string

const (
	StopEndTurn    StopReason = "stop"
	StopLength     StopReason = "length"
	StopMaxTokens  StopReason = "max_tokens"
	StopToolUse    StopReason = "tool_use"
	StopError      StopReason = "error"
)

// AssistantMessage is the canonical record produced per model turn.
type AssistantMessage struct {
	Role       Role           `json:"role"`
	Content    []ContentBlock `json:"content"`
	StopReason StopReason     `json:"stop_reason"`
	Usage      Usage          `json:"usage"`
	Provider   string         `json:"provider"`
	Model      string         `json:"model"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Text concatenates all text blocks in the message.
func (m AssistantMessage) Text() string {
	out := ""
	for _, b := range m.Content {
		if b.Type == BlockText {
			out += b.Text
		}
	}
	return out
}

// ToolCalls extracts the tool-call blocks from the message.
func (m AssistantMessage) ToolCalls() []ToolCall {
	var calls []ToolCall
	for _, b := range m.Content {
		if b.Type == BlockToolCall && b.ToolCall != nil {
			calls = append(calls, *b.ToolCall)
		}
	}
	return calls
}

// ToolPersistType controls whether and how the handler generates a
// persistence summary of a tool's effects for future history recall.
type ToolPersistType string

const (
	PersistNone     ToolPersistType = "none"
	PersistSummary  ToolPersistType = "summary"
	PersistArtifact ToolPersistType = "artifact"
)
