package socket

import (
	"sync/atomic"
	"time"

	"collabnote/internal/identity"
)

// DefaultTypingTTL is how long a typing marker lives after the last typing
// event from its user.
const DefaultTypingTTL = 2 * time.Second

// TypingTracker keeps the per-document set of users currently typing. Every
// record carries a generation; a scheduled expiry only removes the record it
// was scheduled for, so a refresh can never be undone by an older timer.
type TypingTracker struct {
	registry   *Registry
	router     *Router
	ttl        time.Duration
	generation atomic.Uint64
}

func NewTypingTracker(registry *Registry, router *Router, ttl time.Duration) *TypingTracker {
	if ttl <= 0 {
		ttl = DefaultTypingTTL
	}
	return &TypingTracker{registry: registry, router: router, ttl: ttl}
}

// MarkTyping inserts or refreshes the typing record of user in docID and
// broadcasts the typers to the whole session. It is a no-op for documents
// without a session and for users with no presence in it.
func (t *TypingTracker) MarkTyping(docID string, user identity.User) []string {
	s := t.registry.acquire(docID, false)
	if s == nil {
		return []string{}
	}
	defer t.registry.release(s)
	if !s.hasUser(user.ID) {
		return s.typerLabels()
	}
	t.mark(s, user.ID, user.Label())
	return s.typerLabels()
}

// Expire removes the typing record of userID if it still belongs to
// generation. It reports whether a record was removed.
func (t *TypingTracker) Expire(docID, userID string, generation uint64) bool {
	s := t.registry.acquire(docID, false)
	if s == nil {
		return false
	}
	defer t.registry.release(s)
	rec, ok := s.typers[userID]
	if !ok || rec.generation != generation {
		return false
	}
	delete(s.typers, userID)
	t.router.typingLocked(s)
	return true
}

// Clear unconditionally removes the typing record of userID and broadcasts
// the remaining typers.
func (t *TypingTracker) Clear(docID, userID string) []string {
	s := t.registry.acquire(docID, false)
	if s == nil {
		return []string{}
	}
	defer t.registry.release(s)
	t.clear(s, userID)
	t.router.typingLocked(s)
	return s.typerLabels()
}

// TypersOf returns the labels of users typing in docID.
func (t *TypingTracker) TypersOf(docID string) []string {
	s := t.registry.acquire(docID, false)
	if s == nil {
		return []string{}
	}
	defer t.registry.release(s)
	return s.typerLabels()
}

// mark and clear expect s to be locked.

func (t *TypingTracker) mark(s *Session, userID, label string) uint64 {
	generation := t.generation.Add(1)
	rec, ok := s.typers[userID]
	if ok {
		rec.timer.Stop()
		rec.label = label
		rec.generation = generation
	} else {
		s.nextSeq++
		rec = &typingRecord{label: label, generation: generation, seq: s.nextSeq}
		s.typers[userID] = rec
	}
	docID := s.docID
	rec.timer = time.AfterFunc(t.ttl, func() {
		t.Expire(docID, userID, generation)
	})
	t.router.typingLocked(s)
	return generation
}

func (t *TypingTracker) clear(s *Session, userID string) bool {
	rec, ok := s.typers[userID]
	if !ok {
		return false
	}
	rec.timer.Stop()
	delete(s.typers, userID)
	return true
}
