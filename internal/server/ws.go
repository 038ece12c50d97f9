package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/tonu1990/edgecam/internal/pipeline"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

// EventsHandler pushes pipeline events to WebSocket clients. Install
// Broadcast as a pipeline listener; a slow client drops the connection
// rather than the event flow.
type EventsHandler struct {
	log     *logrus.Entry
	clients map[*websocket.Conn]bool
	mu      sync.RWMutex
}

// NewEventsHandler creates an empty event hub.
func NewEventsHandler(log *logrus.Logger) *EventsHandler {
	return &EventsHandler{
		log:     log.WithField("component", "events-ws"),
		clients: make(map[*websocket.Conn]bool),
	}
}

// ServeHTTP handles WebSocket upgrade requests.
func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("websocket upgrade failed")
		return
	}
	defer conn.Close()

	h.mu.Lock()
	h.clients[conn] = true
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		h.mu.Unlock()
	}()

	// Keep connection alive by reading messages
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

// eventMessage is the wire form of a pipeline event.
type eventMessage struct {
	Type      string `json:"type"`
	Message   string `json:"message,omitempty"`
	Error     string `json:"error,omitempty"`
	OldState  string `json:"old_state,omitempty"`
	NewState  string `json:"new_state,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// Broadcast sends a pipeline event to all connected clients.
func (h *EventsHandler) Broadcast(ev pipeline.Event) {
	msg := eventMessage{
		Type:      string(ev.Type),
		Message:   ev.Message,
		OldState:  string(ev.OldState),
		NewState:  string(ev.NewState),
		Timestamp: ev.At.UnixMilli(),
	}
	if ev.Err != nil {
		msg.Error = ev.Err.Error()
	}
	if msg.Timestamp < 0 || ev.At.IsZero() {
		msg.Timestamp = time.Now().UnixMilli()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for conn := range h.clients {
		conn.SetWriteDeadline(time.Now().Add(time.Second))
		if err := conn.WriteJSON(msg); err != nil {
			conn.Close()
		}
	}
}
