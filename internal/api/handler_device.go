package api

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"attendance-backend/internal/device"
)

// GetDeviceStatus handles GET /api/device-status/current.
func (h *Handler) GetDeviceStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "success", "data": h.hub.Status()})
}

// StreamDeviceStatus handles GET /api/device-status as a server-sent event stream.
// The current status is sent first, then one event per connect or disconnect.
func (h *Handler) StreamDeviceStatus(c *gin.Context) {
	events := newFeed[device.LinkStatus]()
	unsubscribe := h.hub.SubscribeStatus(events.put)
	defer unsubscribe()

	log.Println("SSE client connected for device status.")
	stream(c, h.keepAlive, h.hub.Status(), events, nil)
	log.Println("SSE client disconnected.")
}
