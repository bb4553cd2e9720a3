package socket

import (
	"encoding/json"
	"net/http"
	"time"

	"collabnote/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Options tunes the hub. Zero values fall back to defaults.
type Options struct {
	TypingTTL       time.Duration
	SendBuffer      int
	PingInterval    time.Duration
	PongWait        time.Duration
	WriteWait       time.Duration
	MaxMessageBytes int64
	AllowedOrigins  []string
	Registerer      prometheus.Registerer
}

func (o Options) withDefaults() Options {
	if o.TypingTTL <= 0 {
		o.TypingTTL = DefaultTypingTTL
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 256
	}
	if o.PongWait <= 0 {
		o.PongWait = 60 * time.Second
	}
	if o.PingInterval <= 0 || o.PingInterval >= o.PongWait {
		o.PingInterval = (o.PongWait * 9) / 10
	}
	if o.WriteWait <= 0 {
		o.WriteWait = 10 * time.Second
	}
	if o.MaxMessageBytes <= 0 {
		o.MaxMessageBytes = 64 * 1024
	}
	return o
}

// Hub is the gateway of the realtime layer: it owns the session registry,
// typing tracker, router and lifecycle manager and feeds them the events of
// every websocket connection.
type Hub struct {
	Registry  *Registry
	Typing    *TypingTracker
	Router    *Router
	Lifecycle *Lifecycle

	metrics  *Metrics
	opts     Options
	upgrader websocket.Upgrader
}

// Stats is a point-in-time view of the hub.
type Stats struct {
	Sessions    int `json:"sessions"`
	Connections int `json:"connections"`
}

func NewHub(opts Options) *Hub {
	opts = opts.withDefaults()
	metrics := NewMetrics(opts.Registerer)
	registry := NewRegistry(metrics)
	router := NewRouter(registry, metrics)
	tracker := NewTypingTracker(registry, router, opts.TypingTTL)

	h := &Hub{
		Registry:  registry,
		Typing:    tracker,
		Router:    router,
		Lifecycle: NewLifecycle(registry, tracker, router, metrics),
		metrics:   metrics,
		opts:      opts,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(opts.AllowedOrigins),
	}
	return h
}

// CloseDocument disconnects every connection in docID's session, for
// instance after the document was deleted. Cleanup runs through the normal
// disconnect path. It returns the number of connections closed.
func (h *Hub) CloseDocument(docID string) int {
	members := h.Registry.MembersOf(docID)
	for _, p := range members {
		p.Peer.Close()
	}
	if len(members) > 0 {
		logger.Sugar.Infof("Closed %d connection(s) of document %s", len(members), docID)
	}
	return len(members)
}

// Shutdown closes every open connection.
func (h *Hub) Shutdown() {
	for _, p := range h.Lifecycle.Peers() {
		p.Close()
	}
}

func (h *Hub) Stats() Stats {
	return Stats{
		Sessions:    h.Registry.Sessions(),
		Connections: len(h.Lifecycle.Peers()),
	}
}

// dispatch routes one client frame to the lifecycle manager. Malformed
// frames are logged and dropped; they never close the connection.
func (h *Hub) dispatch(c *Client, msg WSMessage) {
	if clientEvents[msg.Type] {
		h.metrics.received(msg.Type)
	} else {
		h.metrics.received(unknownEventLabel)
	}
	lc := h.Lifecycle

	switch msg.Type {
	case JoinEvent:
		var p JoinPayload
		if h.decode(c, msg, &p) {
			lc.OnJoin(c.ID(), p.DocumentID, p.User)
		}
	case LeaveEvent:
		var p LeavePayload
		if h.decode(c, msg, &p) {
			lc.OnLeave(c.ID(), p.DocumentID)
		}
	case TypingEvent:
		var p TypingPayload
		if h.decode(c, msg, &p) {
			lc.OnTyping(c.ID(), p.DocumentID)
		}
	case StopTypingEvent:
		var p StopTypingPayload
		if h.decode(c, msg, &p) {
			lc.OnStopTyping(c.ID(), p.DocumentID)
		}
	case ContentUpdateEvent:
		var p ContentUpdatePayload
		if h.decode(c, msg, &p) {
			lc.OnTitleOrContentUpdate(c.ID(), p.DocumentID, p)
		}
	case CursorMoveEvent:
		var p CursorMovePayload
		if h.decode(c, msg, &p) {
			lc.OnCursorMove(c.ID(), p.DocumentID, p)
		}
	default:
		h.metrics.violation("unknown_event")
		logger.Log.Debug("unknown event type", zap.String("event", msg.Type), zap.String("connection_id", c.ID()))
	}
}

func (h *Hub) decode(c *Client, msg WSMessage, v any) bool {
	if err := json.Unmarshal(msg.Payload, v); err != nil {
		h.metrics.violation("malformed_payload")
		logger.Log.Warn("malformed payload",
			zap.String("event", msg.Type),
			zap.String("connection_id", c.ID()),
			zap.Error(err))
		return false
	}
	return true
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(r *http.Request) bool { return true }
		}
		set[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || set[origin]
	}
}
