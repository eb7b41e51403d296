package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/taarskog/somweb-bridge/internal/coordinator"
	"github.com/taarskog/somweb-bridge/internal/infrastructure/config"
	"github.com/taarskog/somweb-bridge/internal/infrastructure/logging"
)

// snapshotEvent is the wire format for one device snapshot pushed over
// the state stream.
type snapshotEvent struct {
	Type                    string         `json:"type"`
	UDI                     string         `json:"udi"`
	Doors                   map[int]string `json:"doors"`
	FirmwareUpdateAvailable bool           `json:"firmware_update_available"`
	UpdatedAt               time.Time      `json:"updated_at"`
}

// WSHub fans coordinator snapshots out to connected WebSocket clients.
// Slow clients are dropped rather than allowed to block the broadcast.
type WSHub struct {
	log *logging.Logger
	cfg config.WebSocketConfig

	mu      sync.Mutex
	clients map[*wsClient]struct{}
	closed  bool
}

// NewWSHub creates a WebSocket hub.
func NewWSHub(log *logging.Logger, cfg config.WebSocketConfig) *WSHub {
	return &WSHub{
		log:     log.With("component", "ws"),
		cfg:     cfg,
		clients: make(map[*wsClient]struct{}),
	}
}

// Run blocks until ctx is cancelled, then closes all clients.
func (h *WSHub) Run(ctx context.Context) {
	<-ctx.Done()
	h.CloseAll()
}

// BroadcastSnapshot pushes one device snapshot to every connected
// client. Registered with the device hub as a snapshot listener.
func (h *WSHub) BroadcastSnapshot(udi string, data coordinator.Data) {
	event := snapshotEvent{
		Type:                    "snapshot",
		UDI:                     udi,
		Doors:                   make(map[int]string, len(data.Doors)),
		FirmwareUpdateAvailable: data.FirmwareUpdateAvailable,
		UpdatedAt:               data.UpdatedAt,
	}
	for id, status := range data.Doors {
		event.Doors[id] = string(status)
	}

	payload, err := json.Marshal(event)
	if err != nil {
		h.log.Error("failed to encode snapshot event", "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		select {
		case client.send <- payload:
		default:
			// Send buffer full: the client is too slow, drop it.
			delete(h.clients, client)
			close(client.send)
		}
	}
}

// CloseAll disconnects every client. Further registrations are refused.
func (h *WSHub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for client := range h.clients {
		close(client.send)
	}
	h.clients = make(map[*wsClient]struct{})
}

// ClientCount returns the number of connected clients.
func (h *WSHub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *WSHub) register(client *wsClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[client] = struct{}{}
	return true
}

func (h *WSHub) unregister(client *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
}

// wsClient is one WebSocket connection.
type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The REST CORS policy governs browser access; the upgrade itself
	// is authenticated by token.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleWebSocket upgrades the connection and streams snapshot events.
// Browsers cannot set an Authorization header on the upgrade request, so
// the access token rides in the token query parameter.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		writeUnauthorized(w, "missing token query parameter")
		return
	}
	if _, err := s.validateToken(token); err != nil {
		writeUnauthorized(w, "invalid or expired token")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := &wsClient{
		conn: conn,
		send: make(chan []byte, 256),
	}
	if !s.wsHub.register(client) {
		conn.Close() //nolint:errcheck
		return
	}

	s.log.Debug("websocket client connected", "remote", r.RemoteAddr)
	go s.writePump(client)
	go s.readPump(client)
}

// readPump drains inbound frames so control messages are processed, and
// unregisters the client when the connection drops.
func (s *Server) readPump(client *wsClient) {
	defer func() {
		s.wsHub.unregister(client)
		client.conn.Close() //nolint:errcheck
	}()

	pongWait := time.Duration(s.cfg.WebSocket.PingInterval+s.cfg.WebSocket.PongTimeout) * time.Second
	client.conn.SetReadLimit(int64(s.cfg.WebSocket.MaxMessageSize))
	client.conn.SetReadDeadline(time.Now().Add(pongWait)) //nolint:errcheck
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		// The stream is one-way: inbound frames are discarded.
		if _, _, err := client.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump forwards broadcast events to the client and keeps the
// connection alive with pings.
func (s *Server) writePump(client *wsClient) {
	pingInterval := time.Duration(s.cfg.WebSocket.PingInterval) * time.Second
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		client.conn.Close() //nolint:errcheck
	}()

	writeWait := time.Duration(s.cfg.WebSocket.PongTimeout) * time.Second

	for {
		select {
		case payload, ok := <-client.send:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck
			if !ok {
				client.conn.WriteMessage(websocket.CloseMessage, []byte{}) //nolint:errcheck
				return
			}
			if err := client.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
