package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ServeWS upgrades the connection and registers it with the event hub. The
// read loop only drains control frames; the hub owns all writes.
func (h *Handler) ServeWS(c *gin.Context) {
	userID, _ := callerIdentity(c)
	if userID == uuid.Nil {
		if raw := c.Query("user_id"); raw != "" {
			if parsed, err := uuid.Parse(raw); err == nil {
				userID = parsed
			}
		}
	}
	if userID == uuid.Nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user identity required"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Errorf("websocket upgrade failed: %v", err)
		return
	}
	h.hub.Add(userID, conn)

	go func() {
		defer h.hub.Remove(userID, conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
