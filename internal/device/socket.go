package device

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	maxFrameSize = 64 << 10
	frameTimeout = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Devices connect from firmware, not browsers.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// DeviceIDFromRequest returns the deviceId query parameter or a generated fallback.
func DeviceIDFromRequest(r *http.Request) string {
	if id := r.URL.Query().Get("deviceId"); id != "" {
		return id
	}
	return "esp-" + uuid.NewString()[:8]
}

// ServeWS upgrades a device connection, registers it and runs its read loop.
// Frames from one device are handled in arrival order on this goroutine.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	deviceID := DeviceIDFromRequest(r)

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed for %s: %v", deviceID, err)
		return
	}
	ws.SetReadLimit(maxFrameSize)

	log.Printf("New client connected: %s", deviceID)
	conn := h.Registry.Register(deviceID, ws)
	defer h.Registry.Evict(conn)

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("WebSocket error from %s: %v", deviceID, err)
			} else {
				log.Printf("Client %s disconnected: %v", deviceID, err)
			}
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), frameTimeout)
		if err := h.Router.HandleFrame(ctx, deviceID, data); err != nil {
			log.Printf("Error processing WS message from %s: %v", deviceID, err)
		}
		cancel()
	}
}
