package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/ferrovax/gatehouse/internal/gate"
	"github.com/ferrovax/gatehouse/internal/middleware"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// The kiosk UI is served from the same host; anything stricter
		// belongs in front of the service.
		return true
	},
}

// subscriberBuffer is how many events a slow client may lag before its
// events are dropped.
const subscriberBuffer = 16

// EventBroadcaster fans gate events out to WebSocket subscribers. Publish
// never blocks: each subscriber has a bounded queue drained by its own
// writer goroutine, and a full queue drops the event for that subscriber
// only.
type EventBroadcaster struct {
	mu   sync.RWMutex
	subs map[*websocket.Conn]chan []byte
}

// NewEventBroadcaster creates a new event broadcaster.
func NewEventBroadcaster() *EventBroadcaster {
	return &EventBroadcaster{
		subs: make(map[*websocket.Conn]chan []byte),
	}
}

// Publish implements gate.EventSink.
func (b *EventBroadcaster) Publish(ev gate.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		slog.Error("failed to marshal gate event", "error", err)
		return
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for conn, ch := range b.subs {
		select {
		case ch <- data:
		default:
			slog.Warn("dropping gate event for slow websocket client",
				"remote_addr", conn.RemoteAddr().String(),
				"type", ev.Type,
			)
		}
	}
}

// Subscribe registers a connection and starts its writer goroutine.
func (b *EventBroadcaster) Subscribe(conn *websocket.Conn) {
	ch := make(chan []byte, subscriberBuffer)
	b.mu.Lock()
	b.subs[conn] = ch
	b.mu.Unlock()

	go func() {
		for data := range ch {
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				slog.Warn("failed to send gate event to websocket client", "error", err)
				return
			}
		}
	}()
}

// Unsubscribe removes a connection and stops its writer goroutine.
func (b *EventBroadcaster) Unsubscribe(conn *websocket.Conn) {
	b.mu.Lock()
	ch, ok := b.subs[conn]
	if ok {
		delete(b.subs, conn)
	}
	b.mu.Unlock()
	if ok {
		close(ch)
	}
}

// ConnectionCount returns the number of active subscribers.
func (b *EventBroadcaster) ConnectionCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// EventHandlers serves the live gate event stream.
type EventHandlers struct {
	broadcaster *EventBroadcaster
}

// NewEventHandlers creates WebSocket event handlers.
func NewEventHandlers(broadcaster *EventBroadcaster) *EventHandlers {
	return &EventHandlers{broadcaster: broadcaster}
}

// Subscribe handles WebSocket connections on GET /ws/events.
func (h *EventHandlers) Subscribe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.ErrorContext(ctx, "failed to upgrade websocket connection", "error", err)
		return
	}

	h.broadcaster.Subscribe(conn)

	requestID := middleware.GetRequestID(ctx)
	slog.InfoContext(ctx, "websocket client subscribed to gate events", "request_id", requestID)

	defer func() {
		h.broadcaster.Unsubscribe(conn)
		conn.Close()
		slog.InfoContext(ctx, "websocket client unsubscribed", "request_id", requestID)
	}()

	// Clients never send messages; reading is only how we detect the
	// disconnect.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.WarnContext(ctx, "websocket connection closed unexpectedly", "error", err)
			}
			break
		}
	}
}
