package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ayusman/camscroll/internal/server/api"
)

// EventsHandler pushes status snapshots to WebSocket clients whenever
// Publish is called, and once on connect.
type EventsHandler struct {
	status *api.StatusHandler
	logger *zap.Logger

	mu      sync.Mutex
	clients map[*websocket.Conn]*sync.Mutex
}

// NewEventsHandler creates a feed of snapshots taken from status.
func NewEventsHandler(status *api.StatusHandler, logger *zap.Logger) *EventsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventsHandler{
		status:  status,
		logger:  logger,
		clients: make(map[*websocket.Conn]*sync.Mutex),
	}
}

// ServeHTTP handles WebSocket upgrade requests.
func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade error", zap.Error(err))
		return
	}
	defer conn.Close()

	wmu := &sync.Mutex{}
	h.mu.Lock()
	h.clients[conn] = wmu
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		h.mu.Unlock()
	}()

	if msg, err := h.snapshot(); err == nil {
		write(conn, wmu, msg)
	}

	// Keep connection alive by reading messages
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

// Publish sends the current status to every client.
func (h *EventsHandler) Publish() {
	msg, err := h.snapshot()
	if err != nil {
		h.logger.Warn("failed to encode status", zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for conn, wmu := range h.clients {
		if err := write(conn, wmu, msg); err != nil {
			h.logger.Debug("status write failed", zap.Error(err))
		}
	}
}

// Clients returns the number of connected clients.
func (h *EventsHandler) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *EventsHandler) snapshot() ([]byte, error) {
	return json.Marshal(struct {
		Type string `json:"type"`
		api.StatusResponse
	}{"status", h.status.Snapshot()})
}

func write(conn *websocket.Conn, wmu *sync.Mutex, msg []byte) error {
	wmu.Lock()
	defer wmu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, msg)
}
