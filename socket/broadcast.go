package socket

import (
	"time"

	"collabnote/pkg/logger"

	"go.uber.org/zap"
)

// Router fans messages out to the members of a document session. Delivery is
// fire-and-forget: each peer has its own bounded queue and a full queue only
// drops the message for that peer.
type Router struct {
	registry *Registry
	metrics  *Metrics
	now      func() time.Time
}

func NewRouter(registry *Registry, metrics *Metrics) *Router {
	return &Router{registry: registry, metrics: metrics, now: time.Now}
}

// BroadcastPresence sends the current members of docID to every member.
func (r *Router) BroadcastPresence(docID string) {
	if s := r.registry.acquire(docID, false); s != nil {
		r.presenceLocked(s)
		r.registry.release(s)
	}
}

// BroadcastTyping sends the current typers of docID to every member.
func (r *Router) BroadcastTyping(docID string) {
	if s := r.registry.acquire(docID, false); s != nil {
		r.typingLocked(s)
		r.registry.release(s)
	}
}

// BroadcastUpdate relays ev to every member, the originator included.
func (r *Router) BroadcastUpdate(docID string, ev UpdateEvent) {
	if s := r.registry.acquire(docID, false); s != nil {
		r.updateLocked(s, ev)
		r.registry.release(s)
	}
}

// BroadcastCursor relays ev to every member except the connection exclude.
func (r *Router) BroadcastCursor(docID string, ev CursorEvent, exclude string) {
	if s := r.registry.acquire(docID, false); s != nil {
		r.cursorLocked(s, ev, exclude)
		r.registry.release(s)
	}
}

// The *Locked variants expect the session lock to be held.

func (r *Router) presenceLocked(s *Session) {
	users := s.users()
	active := make([]ActiveUser, 0, len(users))
	for _, u := range users {
		active = append(active, ActiveUser{User: u, Label: u.Label()})
	}
	r.deliver(s, ActiveUsersEvent, ActiveUsersPayload{Users: active}, "")
}

func (r *Router) typingLocked(s *Session) {
	r.deliver(s, TypingUsersEvent, TypingUsersPayload{Users: s.typerLabels()}, "")
}

func (r *Router) updateLocked(s *Session, ev UpdateEvent) {
	ev.DocumentID = s.docID
	if ev.Timestamp == 0 {
		ev.Timestamp = r.now().UnixMilli()
	}
	r.deliver(s, ContentUpdatedEvent, ev, "")
}

func (r *Router) cursorLocked(s *Session, ev CursorEvent, exclude string) {
	r.deliver(s, CursorMovedEvent, ev, exclude)
}

func (r *Router) deliver(s *Session, event string, payload any, exclude string) int {
	if len(s.members) == 0 {
		return 0
	}
	msg, err := encode(event, payload)
	if err != nil {
		logger.Log.Error("encode broadcast", zap.String("event", event), zap.String("document_id", s.docID), zap.Error(err))
		return 0
	}
	r.metrics.broadcast(event)

	delivered := 0
	for connID, p := range s.members {
		if connID == exclude {
			continue
		}
		if p.Peer.Send(msg) {
			delivered++
			continue
		}
		r.metrics.dropped(event)
		logger.Log.Warn("send buffer full, message dropped",
			zap.String("event", event),
			zap.String("document_id", s.docID),
			zap.String("connection_id", connID),
			zap.String("user_id", p.User.ID))
	}
	return delivered
}
