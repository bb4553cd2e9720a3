package socket

import (
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"collabnote/internal/identity"

	"github.com/stretchr/testify/require"
)

var (
	alice = identity.User{ID: "user-a", Email: "alice@example.com", FullName: "Alice"}
	bob   = identity.User{ID: "user-b", Email: "bob@example.com"}
)

// fakePeer stands in for a websocket connection.
type fakePeer struct {
	id     string
	ch     chan []byte
	closed atomic.Bool
}

func newFakePeer(id string, buffer int) *fakePeer {
	return &fakePeer{id: id, ch: make(chan []byte, buffer)}
}

func (p *fakePeer) ID() string { return p.id }

func (p *fakePeer) Send(msg []byte) bool {
	select {
	case p.ch <- msg:
		return true
	default:
		return false
	}
}

func (p *fakePeer) Close() error {
	p.closed.Store(true)
	return nil
}

func (p *fakePeer) next(t *testing.T) WSMessage {
	t.Helper()
	select {
	case raw := <-p.ch:
		var msg WSMessage
		require.NoError(t, json.Unmarshal(raw, &msg))
		return msg
	case <-time.After(2 * time.Second):
		t.Fatalf("peer %s: no message within deadline", p.id)
		return WSMessage{}
	}
}

func (p *fakePeer) expectNone(t *testing.T) {
	t.Helper()
	select {
	case raw := <-p.ch:
		t.Fatalf("peer %s: unexpected message %s", p.id, raw)
	default:
	}
}

func (p *fakePeer) drain() {
	for {
		select {
		case <-p.ch:
		default:
			return
		}
	}
}

func activeUserIDs(t *testing.T, msg WSMessage) []string {
	t.Helper()
	require.Equal(t, ActiveUsersEvent, msg.Type)
	var payload ActiveUsersPayload
	require.NoError(t, json.Unmarshal(msg.Payload, &payload))
	ids := make([]string, 0, len(payload.Users))
	for _, u := range payload.Users {
		ids = append(ids, u.ID)
	}
	return ids
}

func typingLabels(t *testing.T, msg WSMessage) []string {
	t.Helper()
	require.Equal(t, TypingUsersEvent, msg.Type)
	var payload TypingUsersPayload
	require.NoError(t, json.Unmarshal(msg.Payload, &payload))
	require.NotNil(t, payload.Users, "typing-users must encode an empty list, not null")
	return payload.Users
}

func memberConnIDs(members []Presence) []string {
	ids := make([]string, 0, len(members))
	for _, p := range members {
		ids = append(ids, p.Peer.ID())
	}
	return ids
}
