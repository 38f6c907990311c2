package steering

import (
	"fmt"
	"sync"
	"time"

	"github.com/pasky/muaddib-sub002/pkg/models"
)

// WaitOutcome is the result of waitForNewItem.
type WaitOutcome string

const (
	Woken   WaitOutcome = "woken"
	Timeout WaitOutcome = "timeout"
)

// session is per-key state: an ordered queue of work items and an optional
// wake signal that resolves when a new item arrives (spec §3
// "SteeringSession"). Exactly one runner owns a session at any time.
type session struct {
	mu    sync.Mutex
	items []*Item

	// pendingWake and pendingTimer implement waitForNewItem: at most one
	// wake function may be installed at a time (invariant 2); replacing it
	// cancels the previous timer.
	pendingWake  chan WaitOutcome
	pendingTimer *time.Timer
}

// ContextMessage is one entry drained from a session for mid-flight
// injection into the running agent's prompt.
type ContextMessage struct {
	Role    string
	Content string
}

// EnqueueCommandResult is returned by Manager.EnqueueCommand.
type EnqueueCommandResult struct {
	IsRunner bool
	Key      Key
	Item     *Item
}

// EnqueuePassiveResult is returned by Manager.EnqueuePassive.
type EnqueuePassiveResult struct {
	Queued            bool
	IsProactiveRunner bool
	Key               Key
	Item              *Item
}

// Manager owns every live SteeringSession, keyed by Key. It guarantees at
// most one SteeringSession per Key at any observation point (invariant 1).
type Manager struct {
	mu       sync.Mutex
	sessions map[Key]*session
}

// NewManager creates an empty steering queue manager.
func NewManager() *Manager {
	return &Manager{sessions: make(map[Key]*session)}
}

// EnqueueCommand implements spec §4.2 enqueueCommand. If no session exists
// for the message's key, one is created and the caller becomes the runner.
// Otherwise the item is appended to the existing session and any installed
// wake function fires.
func (m *Manager) EnqueueCommand(msg *models.RoomMessage, triggerID string, reply ReplyFunc) EnqueueCommandResult {
	key := KeyFor(msg)
	item := newItem(KindCommand, msg, triggerID, reply)

	m.mu.Lock()
	sess, exists := m.sessions[key]
	if !exists {
		sess = &session{}
		m.sessions[key] = sess
	}
	m.mu.Unlock()

	sess.mu.Lock()
	sess.items = append(sess.items, item)
	m.wakeLocked(sess)
	sess.mu.Unlock()

	return EnqueueCommandResult{IsRunner: !exists, Key: key, Item: item}
}

// EnqueuePassive implements spec §4.2 enqueuePassive. If a session exists,
// the item is appended and any waiter is woken. If none exists and
// startProactive is true, a session is created and the caller becomes a
// proactive runner; otherwise the passive message is dropped without ever
// being queued (Queued=false, no Item returned).
func (m *Manager) EnqueuePassive(msg *models.RoomMessage, reply ReplyFunc, startProactive bool) EnqueuePassiveResult {
	key := KeyFor(msg)

	m.mu.Lock()
	sess, exists := m.sessions[key]
	if !exists {
		if !startProactive {
			m.mu.Unlock()
			return EnqueuePassiveResult{Queued: false, Key: key}
		}
		sess = &session{}
		m.sessions[key] = sess
	}
	m.mu.Unlock()

	item := newItem(KindPassive, msg, "", reply)
	sess.mu.Lock()
	sess.items = append(sess.items, item)
	m.wakeLocked(sess)
	sess.mu.Unlock()

	return EnqueuePassiveResult{Queued: true, IsProactiveRunner: !exists, Key: key, Item: item}
}

// wakeLocked fires the installed wake function, if any. Callers must hold
// sess.mu.
func (m *Manager) wakeLocked(sess *session) {
	if sess.pendingWake == nil {
		return
	}
	if sess.pendingTimer != nil {
		sess.pendingTimer.Stop()
	}
	ch := sess.pendingWake
	sess.pendingWake = nil
	sess.pendingTimer = nil
	// Non-blocking send: the channel is always created with capacity 1 by
	// WaitForNewItem, so this never blocks the enqueuing goroutine.
	ch <- Woken
}

// WaitForNewItem installs a wake function for key and blocks until either a
// new item arrives ("woken") or timeout elapses ("timeout"). It resolves
// immediately if the queue is already non-empty. Calling it again before a
// prior call returns replaces (and cancels) the prior wake/timer —
// invariant 2.
func (m *Manager) WaitForNewItem(key Key, timeout time.Duration) WaitOutcome {
	m.mu.Lock()
	sess, ok := m.sessions[key]
	m.mu.Unlock()
	if !ok {
		return Timeout
	}

	sess.mu.Lock()
	if len(sess.items) > 0 {
		sess.mu.Unlock()
		return Woken
	}

	if sess.pendingTimer != nil {
		sess.pendingTimer.Stop()
	}
	resultCh := make(chan WaitOutcome, 1)
	sess.pendingWake = resultCh
	sess.pendingTimer = time.AfterFunc(timeout, func() {
		sess.mu.Lock()
		if sess.pendingWake == resultCh {
			sess.pendingWake = nil
			sess.pendingTimer = nil
			sess.mu.Unlock()
			resultCh <- Timeout
			return
		}
		sess.mu.Unlock()
	})
	sess.mu.Unlock()

	return <-resultCh
}

// DrainSteeringContext drains every currently queued item (command and
// passive alike) as ambient context, finishing each with a successful
// no-reply outcome, and returns them formatted for prompt injection. Used
// by the runner between turns (spec §4.2, §5 "drained between turns").
func (m *Manager) DrainSteeringContext(key Key) []ContextMessage {
	m.mu.Lock()
	sess, ok := m.sessions[key]
	m.mu.Unlock()
	if !ok {
		return nil
	}

	sess.mu.Lock()
	items := sess.items
	sess.items = nil
	sess.mu.Unlock()

	out := make([]ContextMessage, 0, len(items))
	for _, it := range items {
		out = append(out, ContextMessage{
			Role:    "user",
			Content: fmt.Sprintf("<%s> %s", it.Message.Nick, it.Message.Content),
		})
		it.settle(Outcome{})
	}
	return out
}

// CompactResult is returned by TakeNextWorkCompacted.
type CompactResult struct {
	Dropped []*Item
	Next    *Item // nil if the queue was empty
}

// TakeNextWorkCompacted scans the queue for the first command item.
// Passives before it are dropped and settled as successful no-reply
// items; items after Next remain queued. If no command exists, the last passive is
// taken as Next and the rest are dropped (passive compaction). If the
// queue is empty, the session is deleted and Next is nil.
func (m *Manager) TakeNextWorkCompacted(key Key) CompactResult {
	m.mu.Lock()
	sess, ok := m.sessions[key]
	if !ok {
		m.mu.Unlock()
		return CompactResult{}
	}
	m.mu.Unlock()

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if len(sess.items) == 0 {
		m.deleteIfEmpty(key, sess)
		return CompactResult{}
	}

	cmdIdx := -1
	for i, it := range sess.items {
		if it.Kind == KindCommand {
			cmdIdx = i
			break
		}
	}

	var result CompactResult
	if cmdIdx >= 0 {
		result.Dropped = append(result.Dropped, sess.items[:cmdIdx]...)
		result.Next = sess.items[cmdIdx]
		sess.items = sess.items[cmdIdx+1:]
	} else {
		last := len(sess.items) - 1
		result.Dropped = append(result.Dropped, sess.items[:last]...)
		result.Next = sess.items[last]
		sess.items = nil
	}

	for _, it := range result.Dropped {
		it.settle(Outcome{})
	}
	return result
}

// DrainSession iteratively processes every queued item via process,
// finishing each after the callback returns. process receives the item and
// returns the error (if any) to settle it with.
func (m *Manager) DrainSession(key Key, process func(*Item) error) {
	for {
		m.mu.Lock()
		sess, ok := m.sessions[key]
		m.mu.Unlock()
		if !ok {
			return
		}

		sess.mu.Lock()
		if len(sess.items) == 0 {
			sess.mu.Unlock()
			return
		}
		it := sess.items[0]
		sess.items = sess.items[1:]
		sess.mu.Unlock()

		err := process(it)
		it.settle(Outcome{Err: err})
	}
}

// ReleaseSession is the success path: the session is removed; any
// remaining passives are finished with a successful no-reply outcome;
// any remaining commands fail with ErrRetrySession so their callers
// re-enter as new runners (spec §4.2).
func (m *Manager) ReleaseSession(key Key) {
	m.mu.Lock()
	sess, ok := m.sessions[key]
	if ok {
		delete(m.sessions, key)
	}
	m.mu.Unlock()
	if !ok {
		return
	}

	sess.mu.Lock()
	items := sess.items
	sess.items = nil
	if sess.pendingTimer != nil {
		sess.pendingTimer.Stop()
	}
	sess.mu.Unlock()

	for _, it := range items {
		if it.Kind == KindCommand {
			it.settle(Outcome{Err: ErrRetrySession})
		} else {
			it.settle(Outcome{})
		}
	}
}

// AbortSession is the failure path: the session is removed and every
// queued item (command or passive) fails with the supplied error.
func (m *Manager) AbortSession(key Key, cause error) {
	m.mu.Lock()
	sess, ok := m.sessions[key]
	if ok {
		delete(m.sessions, key)
	}
	m.mu.Unlock()
	if !ok {
		return
	}

	sess.mu.Lock()
	items := sess.items
	sess.items = nil
	if sess.pendingTimer != nil {
		sess.pendingTimer.Stop()
	}
	sess.mu.Unlock()

	for _, it := range items {
		it.settle(Outcome{Err: cause})
	}
}

// deleteIfEmpty removes sess from the manager if it has no queued items and
// no pending waiter. Callers must hold sess.mu.
func (m *Manager) deleteIfEmpty(key Key, sess *session) {
	if len(sess.items) != 0 || sess.pendingWake != nil {
		return
	}
	m.mu.Lock()
	if m.sessions[key] == sess {
		delete(m.sessions, key)
	}
	m.mu.Unlock()
}

// SessionCount returns the number of live sessions, for tests verifying
// invariant 1 (at most one session per key, and none linger after release).
func (m *Manager) SessionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// HasSession reports whether a session is currently live for key.
func (m *Manager) HasSession(key Key) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sessions[key]
	return ok
}
