package events

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"compliance-case-service/internal/engine"
	"compliance-case-service/internal/logging"
)

// Hub fans lifecycle events out to connected dashboard clients. A user may
// hold several connections (multiple tabs); dead connections are dropped on
// write failure.
type Hub struct {
	mu     sync.RWMutex
	conns  map[uuid.UUID]map[*websocket.Conn]bool
	logger *logging.Logger
}

// NewHub builds an empty hub.
func NewHub(logger *logging.Logger) *Hub {
	return &Hub{
		conns:  make(map[uuid.UUID]map[*websocket.Conn]bool),
		logger: logger,
	}
}

// Add registers a connection for a user.
func (h *Hub) Add(userID uuid.UUID, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.conns[userID] == nil {
		h.conns[userID] = make(map[*websocket.Conn]bool)
	}
	h.conns[userID][conn] = true
	h.logger.Infof("websocket connected for user %s (total: %d)", userID, len(h.conns[userID]))
}

// Remove unregisters a connection for a user.
func (h *Hub) Remove(userID uuid.UUID, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.conns[userID]; ok {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.conns, userID)
		}
	}
	_ = conn.Close()
}

// Broadcast sends a lifecycle event to every connected client. The exclusive
// lock serializes writes: a gorilla connection supports one concurrent writer.
func (h *Hub) Broadcast(ev engine.Event) {
	payload, err := json.Marshal(ev.Result)
	if err != nil {
		h.logger.Errorf("marshal event failed: %v", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for userID, conns := range h.conns {
		for conn := range conns {
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				h.logger.Errorf("websocket write to user %s failed, dropping connection: %v", userID, err)
				delete(conns, conn)
				_ = conn.Close()
			}
		}
		if len(conns) == 0 {
			delete(h.conns, userID)
		}
	}
}
