package socket

import (
	"sort"
	"sync"
	"time"

	"collabnote/internal/identity"
)

// Peer is one transport connection as seen by the collaboration core.
type Peer interface {
	ID() string
	// Send enqueues msg without blocking and reports whether it was accepted.
	Send(msg []byte) bool
	// Close terminates the transport. Cleanup happens on the disconnect path.
	Close() error
}

// Presence is a connected user's entry within a document session. There is
// one per connection, so a user with two tabs has two.
type Presence struct {
	User identity.User
	Peer Peer
	seq  uint64
}

type typingRecord struct {
	label      string
	generation uint64
	seq        uint64
	timer      *time.Timer
}

// Session is the live presence context of one document. Its lock serializes
// every mutation and every broadcast for the document, which is what keeps
// broadcasts ordered per document.
type Session struct {
	mu      sync.Mutex
	docID   string
	members map[string]*Presence     // by connection id
	typers  map[string]*typingRecord // by user id
	nextSeq uint64
	closed  bool
}

func newSession(docID string) *Session {
	return &Session{
		docID:   docID,
		members: make(map[string]*Presence),
		typers:  make(map[string]*typingRecord),
	}
}

func (s *Session) add(user identity.User, peer Peer) {
	if p, ok := s.members[peer.ID()]; ok {
		p.User = user
		p.Peer = peer
		return
	}
	s.nextSeq++
	s.members[peer.ID()] = &Presence{User: user, Peer: peer, seq: s.nextSeq}
}

func (s *Session) remove(connID string) (Presence, bool) {
	p, ok := s.members[connID]
	if !ok {
		return Presence{}, false
	}
	delete(s.members, connID)
	return *p, true
}

func (s *Session) hasUser(userID string) bool {
	for _, p := range s.members {
		if p.User.ID == userID {
			return true
		}
	}
	return false
}

// snapshot returns the members in join order.
func (s *Session) snapshot() []Presence {
	out := make([]Presence, 0, len(s.members))
	for _, p := range s.members {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

// users returns one entry per user id, in order of first join.
func (s *Session) users() []identity.User {
	seen := make(map[string]bool, len(s.members))
	users := make([]identity.User, 0, len(s.members))
	for _, p := range s.snapshot() {
		if seen[p.User.ID] {
			continue
		}
		seen[p.User.ID] = true
		users = append(users, p.User)
	}
	return users
}

// typerLabels returns the labels of current typists in the order they
// started typing.
func (s *Session) typerLabels() []string {
	recs := make([]*typingRecord, 0, len(s.typers))
	for _, rec := range s.typers {
		recs = append(recs, rec)
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].seq < recs[j].seq })
	labels := make([]string, 0, len(recs))
	for _, rec := range recs {
		labels = append(labels, rec.label)
	}
	return labels
}

// Registry maps document ids to their sessions. A session exists only while
// it has at least one member.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	metrics  *Metrics
}

func NewRegistry(metrics *Metrics) *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		metrics:  metrics,
	}
}

// acquire returns the session for docID with its lock held. With create
// false it returns nil when the document has no session.
func (r *Registry) acquire(docID string, create bool) *Session {
	for {
		r.mu.Lock()
		s, ok := r.sessions[docID]
		if !ok {
			if !create {
				r.mu.Unlock()
				return nil
			}
			s = newSession(docID)
			r.sessions[docID] = s
			r.metrics.sessionOpened()
		}
		r.mu.Unlock()

		s.mu.Lock()
		if !s.closed {
			return s
		}
		// Lost a race with release of the last member; look again.
		s.mu.Unlock()
	}
}

// release unlocks s, destroying it first if nobody is left.
func (r *Registry) release(s *Session) {
	if len(s.members) == 0 {
		for userID, rec := range s.typers {
			rec.timer.Stop()
			delete(s.typers, userID)
		}
		s.closed = true
		r.mu.Lock()
		if r.sessions[s.docID] == s {
			delete(r.sessions, s.docID)
			r.metrics.sessionClosed()
		}
		r.mu.Unlock()
	}
	s.mu.Unlock()
}

// Join registers peer as a member of docID, creating the session if needed,
// and returns the members including the joiner. Joining twice with the same
// peer does not add a second entry.
func (r *Registry) Join(docID string, user identity.User, peer Peer) []Presence {
	s := r.acquire(docID, true)
	defer r.release(s)
	s.add(user, peer)
	return s.snapshot()
}

// Leave removes the member bound to connID and returns the remaining members.
func (r *Registry) Leave(docID, connID string) []Presence {
	s := r.acquire(docID, false)
	if s == nil {
		return []Presence{}
	}
	defer r.release(s)
	s.remove(connID)
	return s.snapshot()
}

// MembersOf returns a snapshot of docID's members; empty when there is no
// session.
func (r *Registry) MembersOf(docID string) []Presence {
	s := r.acquire(docID, false)
	if s == nil {
		return []Presence{}
	}
	defer r.release(s)
	return s.snapshot()
}

// Sessions reports how many documents currently have a session.
func (r *Registry) Sessions() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
