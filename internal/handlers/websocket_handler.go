package handlers

import (
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/MaherMaker/TimelyBackend/internal/middleware"
	"github.com/MaherMaker/TimelyBackend/internal/services"
)

// WebSocketHandler upgrades authenticated requests to live connections
type WebSocketHandler struct {
	hub      *services.WebSocketHub
	upgrader websocket.Upgrader
}

// NewWebSocketHandler creates a new WebSocketHandler
func NewWebSocketHandler(hub *services.WebSocketHub) *WebSocketHandler {
	return &WebSocketHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The gateway key check already gated this request.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// HandleWebSocket upgrades the connection and registers it with the hub. The
// first frame the client receives is a `connected` event carrying the issued
// connection id, which the client echoes back on mutating HTTP requests so
// its own events are not mirrored to it.
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentityFromContext(r.Context())
	if identity == nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	connectionID := uuid.New().String()
	client := h.hub.NewClient(connectionID, identity.UserID, identity.DeviceID, conn)
	h.hub.Connect(client)

	// Queue the handshake before the pumps start so it is the first frame out.
	client.Send <- mustMarshalEvent(services.EventConnected, map[string]interface{}{
		"connectionId": connectionID,
		"timestamp":    time.Now().UTC().Format(time.RFC3339),
	})

	go client.WritePump()
	go client.ReadPump(nil)
}

func mustMarshalEvent(event string, payload interface{}) []byte {
	data, err := services.MarshalMessage(event, payload)
	if err != nil {
		log.Printf("Error marshaling %s event: %v", event, err)
		return []byte(`{"event":"` + event + `"}`)
	}
	return data
}
