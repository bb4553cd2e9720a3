package socket

import (
	"sync"

	"collabnote/internal/identity"
	"collabnote/pkg/logger"

	"go.uber.org/zap"
)

// ConnState is where a connection is in its lifecycle.
type ConnState int

const (
	StateUnbound ConnState = iota // connected, not in any document
	StateJoining
	StateActive
	StateLeaving
	StateClosed // terminal
)

func (s ConnState) String() string {
	switch s {
	case StateUnbound:
		return "unbound"
	case StateJoining:
		return "joining"
	case StateActive:
		return "active"
	case StateLeaving:
		return "leaving"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

type connection struct {
	mu    sync.Mutex
	peer  Peer
	auth  *identity.User
	state ConnState
	docID string
	user  identity.User
}

// Lifecycle binds connections to (document, user) pairs and keeps the
// registry and typing tracker consistent on every join, leave and
// disconnect. Events of one connection are serialized by its own lock.
type Lifecycle struct {
	registry *Registry
	tracker  *TypingTracker
	router   *Router
	metrics  *Metrics

	mu    sync.Mutex
	conns map[string]*connection
}

func NewLifecycle(registry *Registry, tracker *TypingTracker, router *Router, metrics *Metrics) *Lifecycle {
	return &Lifecycle{
		registry: registry,
		tracker:  tracker,
		router:   router,
		metrics:  metrics,
		conns:    make(map[string]*connection),
	}
}

// OnConnect registers peer with no document binding. auth is the identity
// the transport authenticated, or nil when the join payload is trusted.
func (l *Lifecycle) OnConnect(peer Peer, auth *identity.User) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.conns[peer.ID()]; ok {
		return
	}
	l.conns[peer.ID()] = &connection{peer: peer, auth: auth, state: StateUnbound}
	l.metrics.connected()
}

// OnJoin binds the connection to docID as user and broadcasts presence. A
// connection already bound elsewhere leaves its old document first.
func (l *Lifecycle) OnJoin(connID, docID string, user identity.User) {
	c := l.lookup(connID)
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateClosed {
		return
	}
	if docID == "" {
		l.violation(c, "missing_document", JoinEvent)
		return
	}
	if c.auth != nil {
		user = c.auth.Merge(user)
	}
	if user.ID == "" {
		l.violation(c, "missing_user", JoinEvent)
		return
	}

	if c.state == StateActive && (c.docID != docID || c.user.ID != user.ID) {
		logger.Log.Debug("implicit leave before join",
			zap.String("connection_id", connID),
			zap.String("from_document_id", c.docID),
			zap.String("document_id", docID))
		l.leaveLocked(c)
	}

	c.state = StateJoining
	s := l.registry.acquire(docID, true)
	s.add(user, c.peer)
	l.router.presenceLocked(s)
	l.registry.release(s)

	c.docID = docID
	c.user = user
	c.state = StateActive
	logger.Log.Info("user joined document",
		zap.String("document_id", docID),
		zap.String("user_id", user.ID),
		zap.String("connection_id", connID))
}

// OnLeave unbinds the connection from docID. The binding recorded at join
// time decides who leaves.
func (l *Lifecycle) OnLeave(connID, docID string) {
	c := l.lookup(connID)
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !l.boundTo(c, docID, LeaveEvent) {
		return
	}
	l.leaveLocked(c)
}

// OnDisconnect runs the leave cleanup for whatever the connection was bound
// to and forgets it. Only the first call for a connection does anything; it
// reports whether this was that call.
func (l *Lifecycle) OnDisconnect(connID string) bool {
	l.mu.Lock()
	c, ok := l.conns[connID]
	delete(l.conns, connID)
	l.mu.Unlock()
	if !ok {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateActive {
		l.leaveLocked(c)
	}
	c.state = StateClosed
	l.metrics.disconnected()
	return true
}

// OnTyping marks the bound user as typing in docID.
func (l *Lifecycle) OnTyping(connID, docID string) {
	l.withSession(connID, docID, TypingEvent, func(c *connection, s *Session) {
		l.tracker.mark(s, c.user.ID, c.user.Label())
	})
}

// OnStopTyping clears the bound user's typing record in docID.
func (l *Lifecycle) OnStopTyping(connID, docID string) {
	l.withSession(connID, docID, StopTypingEvent, func(c *connection, s *Session) {
		l.tracker.clear(s, c.user.ID)
		l.router.typingLocked(s)
	})
}

// OnTitleOrContentUpdate relays an edit to the whole session, sender
// included. Nothing is validated or merged.
func (l *Lifecycle) OnTitleOrContentUpdate(connID, docID string, p ContentUpdatePayload) {
	l.withSession(connID, docID, ContentUpdateEvent, func(c *connection, s *Session) {
		l.router.updateLocked(s, UpdateEvent{
			Title:   p.Title,
			Content: p.Content,
			Version: p.Version,
			UserID:  c.user.ID,
		})
	})
}

// OnCursorMove relays a cursor position to everyone but the sender.
func (l *Lifecycle) OnCursorMove(connID, docID string, p CursorMovePayload) {
	l.withSession(connID, docID, CursorMoveEvent, func(c *connection, s *Session) {
		l.router.cursorLocked(s, CursorEvent{UserID: c.user.ID, Position: p.Position}, connID)
	})
}

// State reports the lifecycle state of a known connection.
func (l *Lifecycle) State(connID string) (ConnState, bool) {
	c := l.lookup(connID)
	if c == nil {
		return StateClosed, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state, true
}

// Binding reports the document and user a connection is bound to.
func (l *Lifecycle) Binding(connID string) (string, identity.User, bool) {
	c := l.lookup(connID)
	if c == nil {
		return "", identity.User{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateActive {
		return "", identity.User{}, false
	}
	return c.docID, c.user, true
}

// Peers returns every connection that has not disconnected yet.
func (l *Lifecycle) Peers() []Peer {
	l.mu.Lock()
	defer l.mu.Unlock()
	peers := make([]Peer, 0, len(l.conns))
	for _, c := range l.conns {
		peers = append(peers, c.peer)
	}
	return peers
}

func (l *Lifecycle) lookup(connID string) *connection {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.conns[connID]
}

// leaveLocked expects c.mu to be held and c to be bound.
func (l *Lifecycle) leaveLocked(c *connection) {
	c.state = StateLeaving
	if s := l.registry.acquire(c.docID, false); s != nil {
		if _, removed := s.remove(c.peer.ID()); removed && !s.hasUser(c.user.ID) {
			l.tracker.clear(s, c.user.ID)
		}
		l.router.presenceLocked(s)
		l.router.typingLocked(s)
		l.registry.release(s)
	}
	logger.Log.Info("user left document",
		zap.String("document_id", c.docID),
		zap.String("user_id", c.user.ID),
		zap.String("connection_id", c.peer.ID()))
	c.docID = ""
	c.user = identity.User{}
	c.state = StateUnbound
}

func (l *Lifecycle) withSession(connID, docID, event string, fn func(c *connection, s *Session)) {
	c := l.lookup(connID)
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !l.boundTo(c, docID, event) {
		return
	}
	s := l.registry.acquire(docID, false)
	if s == nil {
		return
	}
	defer l.registry.release(s)
	fn(c, s)
}

func (l *Lifecycle) boundTo(c *connection, docID, event string) bool {
	if c.state != StateActive {
		l.violation(c, "not_joined", event)
		return false
	}
	if c.docID != docID {
		l.violation(c, "wrong_document", event)
		return false
	}
	return true
}

func (l *Lifecycle) violation(c *connection, reason, event string) {
	l.metrics.violation(reason)
	logger.Log.Debug("ignoring protocol violation",
		zap.String("reason", reason),
		zap.String("event", event),
		zap.String("connection_id", c.peer.ID()),
		zap.String("document_id", c.docID))
}
