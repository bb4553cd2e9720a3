package socket

import (
	"encoding/json"

	"collabnote/internal/identity"
)

// Client -> server events.
const (
	JoinEvent          = "join"
	LeaveEvent         = "leave"
	TypingEvent        = "typing"
	StopTypingEvent    = "stop-typing"
	ContentUpdateEvent = "content-update"
	CursorMoveEvent    = "cursor-move"
)

// clientEvents is the closed set of event types used as metric labels. Any
// other type is counted under unknownEventLabel.
var clientEvents = map[string]bool{
	JoinEvent:          true,
	LeaveEvent:         true,
	TypingEvent:        true,
	StopTypingEvent:    true,
	ContentUpdateEvent: true,
	CursorMoveEvent:    true,
}

const unknownEventLabel = "unknown"

// Server -> client events.
const (
	ActiveUsersEvent    = "active-users"
	TypingUsersEvent    = "typing-users"
	ContentUpdatedEvent = "content-updated"
	CursorMovedEvent    = "cursor-moved"
)

// WSMessage is the envelope of every frame in both directions.
type WSMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type JoinPayload struct {
	DocumentID string        `json:"documentId"`
	User       identity.User `json:"user"`
}

type LeavePayload struct {
	DocumentID string        `json:"documentId"`
	User       identity.User `json:"user"`
}

type TypingPayload struct {
	DocumentID string `json:"documentId"`
	UserID     string `json:"userId"`
	UserName   string `json:"userName"`
}

type StopTypingPayload struct {
	DocumentID string `json:"documentId"`
	UserID     string `json:"userId"`
}

type ContentUpdatePayload struct {
	DocumentID string          `json:"documentId"`
	Title      string          `json:"title"`
	Content    json.RawMessage `json:"content"`
	Version    int64           `json:"version"`
}

type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type CursorMovePayload struct {
	DocumentID string   `json:"documentId"`
	UserID     string   `json:"userId"`
	Position   Position `json:"position"`
}

// ActiveUser is one entry of active-users: the identity plus the label
// clients should display.
type ActiveUser struct {
	identity.User
	Label string `json:"label"`
}

type ActiveUsersPayload struct {
	Users []ActiveUser `json:"users"`
}

type TypingUsersPayload struct {
	Users []string `json:"users"`
}

// UpdateEvent is relayed once and never kept after the broadcast.
type UpdateEvent struct {
	DocumentID string          `json:"documentId"`
	Title      string          `json:"title"`
	Content    json.RawMessage `json:"content"`
	Version    int64           `json:"version"`
	UserID     string          `json:"userId"`
	Timestamp  int64           `json:"timestamp"` // unix milliseconds
}

type CursorEvent struct {
	UserID   string   `json:"userId"`
	Position Position `json:"position"`
}

func encode(eventType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(WSMessage{Type: eventType, Payload: raw})
}
