// Package steering implements the per-arc runner scheduler: at-most-one
// active agent per SteeringKey, mid-flight enqueue and context drain,
// passive-message compaction, and wake/timeout semantics (spec §4.2).
package steering

import (
	"sync"

	"github.com/pasky/muaddib-sub002/pkg/models"
)

// Key is the per-arc sub-scope serialising concurrent agent runs
// (spec §3 "SteeringKey"). Threaded messages key on the thread; unthreaded
// messages key per sender so distinct users in the same channel run in
// parallel.
type Key struct {
	Arc         string
	SubjectNick string
	ThreadID    string
}

// AnySubject is used as SubjectNick for threaded messages, whose key is
// the thread rather than a single sender.
const AnySubject = "*"

// KeyFor derives the SteeringKey for an inbound message: threaded messages
// key on the thread, unthreaded messages key per sender.
func KeyFor(msg *models.RoomMessage) Key {
	if msg.ThreadID != "" {
		return Key{Arc: msg.Arc(), SubjectNick: AnySubject, ThreadID: msg.ThreadID}
	}
	return Key{Arc: msg.Arc(), SubjectNick: msg.Nick}
}

// Kind discriminates command (must produce a reply) from passive
// (overheard, may be folded into context) work items.
type Kind string

const (
	KindCommand Kind = "command"
	KindPassive Kind = "passive"
)

// ReplyFunc delivers final text back through the originating transport.
// Supplied by the caller at enqueue time so that whichever runner
// eventually processes the item can reply on the caller's behalf.
type ReplyFunc func(text string) error

// Item is a message awaiting processing within a session (spec §3
// "QueuedWorkItem"). Every enqueued Item settles exactly once (invariant 3).
type Item struct {
	Kind      Kind
	Message   *models.RoomMessage
	TriggerID string
	Reply     ReplyFunc

	done     chan Outcome
	settleMu sync.Once
}

// Outcome is the settlement value delivered to the enqueueing caller.
type Outcome struct {
	// Err is nil for a successful settlement (drained into context,
	// compacted away, or fully processed). Non-nil means the caller must
	// treat the item as failed; ErrRetrySession specifically means the
	// caller should re-enter as a new runner (spec §3 "failed").
	Err error
}

func newItem(kind Kind, msg *models.RoomMessage, triggerID string, reply ReplyFunc) *Item {
	return &Item{
		Kind:      kind,
		Message:   msg,
		TriggerID: triggerID,
		Reply:     reply,
		done:      make(chan Outcome, 1),
	}
}

// settle resolves the item's completion signal exactly once; subsequent
// calls are no-ops, guaranteeing invariant 3.
func (it *Item) settle(o Outcome) {
	it.settleMu.Do(func() {
		it.done <- o
	})
}

// Await blocks until the item settles and returns its outcome.
func (it *Item) Await() Outcome {
	return <-it.done
}
