// Package history implements the per-arc chat history store backing
// context assembly and cost tracking, on modernc.org/sqlite (spec §4.5,
// §6).
package history

import (
	"context"
	"time"

	"github.com/pasky/muaddib-sub002/pkg/models"
)

// StoredMessage is one persisted row of conversation history.
type StoredMessage struct {
	ID          int64
	Arc         string
	PlatformID  string
	Role        models.Role
	Content     string
	// Mode records the selected trigger/mode this message was produced
	// under (spec §4.5 step 9 "persist the reply ... with trigger stored
	// as mode"); empty for messages with no resolved command (passives,
	// raw user lines not addressed to the bot).
	Mode        string
	CreatedAt   time.Time
	Chronicled  bool
}

// LLMCallRecord is one logged model invocation, used for cost tracking.
type LLMCallRecord struct {
	ID        int64
	Arc       string
	Model     string
	Usage     models.Usage
	CreatedAt time.Time
}

// Store is the chat history persistence contract (spec §4.5 "history
// store").
type Store interface {
	AddMessage(ctx context.Context, msg StoredMessage) (int64, error)

	// GetContext returns up to limit most-recent messages for arc, oldest
	// first, for prompt assembly.
	GetContext(ctx context.Context, arc string, limit int) ([]StoredMessage, error)

	GetFullHistory(ctx context.Context, arc string) ([]StoredMessage, error)

	GetRecentMessagesSince(ctx context.Context, arc string, since time.Time) ([]StoredMessage, error)

	MarkChronicled(ctx context.Context, ids []int64) error

	CountRecentUnchronicled(ctx context.Context, arc string) (int, error)

	CountMessagesSince(ctx context.Context, arc string, since time.Time) (int, error)

	// GetArcCostToday sums cost for all LLM calls in arc since midnight
	// UTC. The handler's cost followup does not call it.
	GetArcCostToday(ctx context.Context, arc string) (float64, error)

	LogLLMCall(ctx context.Context, rec LLMCallRecord) (int64, error)

	UpdateLLMCallResponse(ctx context.Context, id int64, usage models.Usage) error

	UpdateMessageByPlatformID(ctx context.Context, arc, platformID, newContent string) error

	GetMessageIDByPlatformID(ctx context.Context, arc, platformID string) (int64, bool, error)
}
