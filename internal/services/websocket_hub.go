package services

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WSMessage represents a WebSocket message
type WSMessage struct {
	Event   string      `json:"event"`
	Payload interface{} `json:"payload"`
}

// Event names delivered over live connections
const (
	EventConnected     = "connected"
	EventAlarmCreated  = "alarm_created"
	EventAlarmUpdated  = "alarm_updated"
	EventAlarmDeleted  = "alarm_deleted"
	EventSyncCompleted = "sync_completed"
)

// WSClient represents a connected WebSocket client
type WSClient struct {
	ID         string // connection id, issued at upgrade time
	UserID     int
	DeviceID   string
	Conn       *websocket.Conn
	Send       chan []byte
	hub        *WebSocketHub
	closedOnce sync.Once
}

// WebSocketHub tracks which connections belong to which user. All state lives
// behind one mutex and is reachable only through Connect/Disconnect/EmitToUser.
type WebSocketHub struct {
	mu        sync.RWMutex
	conns     map[string]*WSClient
	userConns map[int]map[string]*WSClient
}

// MarshalMessage encodes one event frame for delivery on a Send channel.
func MarshalMessage(event string, payload interface{}) ([]byte, error) {
	return json.Marshal(WSMessage{Event: event, Payload: payload})
}

// NewWebSocketHub creates a new WebSocket hub
func NewWebSocketHub() *WebSocketHub {
	return &WebSocketHub{
		conns:     make(map[string]*WSClient),
		userConns: make(map[int]map[string]*WSClient),
	}
}

// NewClient creates a new WebSocket client connected to this hub
func (h *WebSocketHub) NewClient(id string, userID int, deviceID string, conn *websocket.Conn) *WSClient {
	return &WSClient{
		ID:       id,
		UserID:   userID,
		DeviceID: deviceID,
		Conn:     conn,
		Send:     make(chan []byte, 256),
		hub:      h,
	}
}

// Connect adds the client to the presence registry. A user may hold many
// simultaneous connections.
func (h *WebSocketHub) Connect(client *WSClient) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.conns[client.ID] = client
	if h.userConns[client.UserID] == nil {
		h.userConns[client.UserID] = make(map[string]*WSClient)
	}
	h.userConns[client.UserID][client.ID] = client

	log.Printf("WebSocket connected: conn=%s user=%d device=%s (user connections: %d)",
		client.ID, client.UserID, client.DeviceID, len(h.userConns[client.UserID]))
}

// Disconnect removes the connection; empty user entries are dropped so the
// registry never grows unbounded.
func (h *WebSocketHub) Disconnect(connectionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(connectionID)
}

func (h *WebSocketHub) removeLocked(connectionID string) {
	client, ok := h.conns[connectionID]
	if !ok {
		return
	}
	delete(h.conns, connectionID)
	if userClients, ok := h.userConns[client.UserID]; ok {
		delete(userClients, connectionID)
		if len(userClients) == 0 {
			delete(h.userConns, client.UserID)
		}
	}
	close(client.Send)
	log.Printf("WebSocket disconnected: conn=%s user=%d", connectionID, client.UserID)
}

// EmitToUser queues an event on every connection of userID except the
// excluded one, and returns how many connections received it. Delivery is
// queued before this returns; when the only mapped connection is the excluded
// one this is a no-op, not an error.
func (h *WebSocketHub) EmitToUser(userID int, event string, payload interface{}, excludeConnectionID string) int {
	data, err := MarshalMessage(event, payload)
	if err != nil {
		log.Printf("Error marshaling WebSocket message: %v", err)
		return 0
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	sent := 0
	for id, client := range h.userConns[userID] {
		if id == excludeConnectionID {
			continue
		}
		select {
		case client.Send <- data:
			sent++
		default:
			// Client buffer full, drop the connection
			go h.Disconnect(id)
		}
	}
	return sent
}

// ConnectionCount returns the number of live connections
func (h *WebSocketHub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// UserConnectionCount returns the number of live connections for one user
func (h *WebSocketHub) UserConnectionCount(userID int) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.userConns[userID])
}

// WSClient methods

// Close closes the client connection
func (c *WSClient) Close() {
	c.closedOnce.Do(func() {
		c.hub.Disconnect(c.ID)
		c.Conn.Close()
	})
}

// WritePump pumps messages from the hub to the websocket connection
func (c *WSClient) WritePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			// WritePump is the connection's only writer, so no lock is
			// needed around writes.
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ReadPump pumps messages from the websocket connection to the hub
func (c *WSClient) ReadPump(onMessage func(client *WSClient, messageType int, data []byte)) {
	defer c.Close()

	c.Conn.SetReadLimit(64 * 1024)
	c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		messageType, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}

		if onMessage != nil {
			onMessage(c, messageType, message)
		}
	}
}
