package quest

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// questRecord tracks one quest or subquest's snooze state in memory.
type questRecord struct {
	id          string
	title       string
	parentID    string // empty for a top-level quest, set for a subquest
	snoozedTill time.Time
}

// MemoryState is an in-process State implementation: one arc's quests live
// for the lifetime of the running process. A real deployment would back
// this with the same sqlite stores the rest of the package uses, but
// nothing in spec.md requires quest state to survive a restart.
type MemoryState struct {
	mu     sync.Mutex
	quests map[string]map[string]*questRecord // arc -> questID -> record
}

// NewMemoryState constructs an empty MemoryState.
func NewMemoryState() *MemoryState {
	return &MemoryState{quests: make(map[string]map[string]*questRecord)}
}

func (s *MemoryState) StartQuest(arc, title string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.NewString()
	if s.quests[arc] == nil {
		s.quests[arc] = make(map[string]*questRecord)
	}
	s.quests[arc][id] = &questRecord{id: id, title: title}
	return id, nil
}

func (s *MemoryState) StartSubquest(arc, questID, title string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.quests[arc][questID]; !ok {
		return "", fmt.Errorf("quest: no active quest %q in %q", questID, arc)
	}
	id := uuid.NewString()
	s.quests[arc][id] = &questRecord{id: id, title: title, parentID: questID}
	return id, nil
}

func (s *MemoryState) Snooze(arc, questID string, until time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.quests[arc][questID]
	if !ok {
		return fmt.Errorf("quest: no active quest %q in %q", questID, arc)
	}
	rec.snoozedTill = until
	return nil
}

// ActiveQuestIDs returns the ids of arc's quests that are not currently
// snoozed.
func (s *MemoryState) ActiveQuestIDs(arc string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	var ids []string
	for id, rec := range s.quests[arc] {
		if rec.snoozedTill.IsZero() || rec.snoozedTill.Before(now) {
			ids = append(ids, id)
		}
	}
	return ids
}

// ActiveTopLevelQuestIDs returns the ids of arc's non-snoozed quests that
// have no parent.
func (s *MemoryState) ActiveTopLevelQuestIDs(arc string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	var ids []string
	for id, rec := range s.quests[arc] {
		if rec.parentID == "" && (rec.snoozedTill.IsZero() || rec.snoozedTill.Before(now)) {
			ids = append(ids, id)
		}
	}
	return ids
}

// ActiveSubquestIDs returns the ids of arc's non-snoozed subquests.
func (s *MemoryState) ActiveSubquestIDs(arc string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	var ids []string
	for id, rec := range s.quests[arc] {
		if rec.parentID != "" && (rec.snoozedTill.IsZero() || rec.snoozedTill.Before(now)) {
			ids = append(ids, id)
		}
	}
	return ids
}
