package events

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"compliance-case-service/internal/engine"
	"compliance-case-service/internal/logging"
)

func (h *Hub) connCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	total := 0
	for _, conns := range h.conns {
		total += len(conns)
	}
	return total
}

func dialHub(t *testing.T, hub *Hub, userID uuid.UUID) *websocket.Conn {
	t.Helper()
	up := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		require.NoError(t, err)
		hub.Add(userID, conn)
	}))
	t.Cleanup(srv.Close)

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	require.Eventually(t, func() bool { return hub.connCount() == 1 },
		time.Second, 5*time.Millisecond)
	return client
}

func TestBroadcastSerializesConcurrentWriters(t *testing.T) {
	hub := NewHub(logging.NewNop())
	client := dialHub(t, hub, uuid.New())

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			hub.Broadcast(engine.Event{Result: engine.Result{
				Success: true, Entity: "alert", EntityID: 1, Action: "alert.assign",
			}})
		}()
	}
	wg.Wait()

	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
	for i := 0; i < n; i++ {
		_, msg, err := client.ReadMessage()
		require.NoError(t, err)
		assert.Contains(t, string(msg), "alert.assign")
	}
}

func TestBroadcastDropsDeadConnections(t *testing.T) {
	hub := NewHub(logging.NewNop())
	client := dialHub(t, hub, uuid.New())
	require.NoError(t, client.Close())

	// Writes to the closed peer eventually fail; the hub must evict the
	// connection instead of broadcasting into it forever.
	require.Eventually(t, func() bool {
		hub.Broadcast(engine.Event{Result: engine.Result{Entity: "alert", Action: "alert.resolve"}})
		return hub.connCount() == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestAddAndRemove(t *testing.T) {
	hub := NewHub(logging.NewNop())
	userID := uuid.New()
	client := dialHub(t, hub, userID)
	_ = client

	hub.mu.RLock()
	var registered *websocket.Conn
	for conn := range hub.conns[userID] {
		registered = conn
	}
	hub.mu.RUnlock()
	require.NotNil(t, registered)

	hub.Remove(userID, registered)
	assert.Zero(t, hub.connCount())
}
