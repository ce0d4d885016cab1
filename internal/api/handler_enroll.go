package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"attendance-backend/internal/device"
	"attendance-backend/internal/enroll"
)

type enrollRequest struct {
	Name     string `json:"name"`
	MSV      string `json:"msv"`
	DeviceID string `json:"deviceId"`
}

// RequestEnrollment handles POST /api/enroll/request. The command is dispatched
// and 202 returned with the reserved slot; progress is read from the progress endpoints.
func (h *Handler) RequestEnrollment(c *gin.Context) {
	var req enrollRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		respondMessage(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if id := c.Query("deviceId"); id != "" {
		req.DeviceID = id
	}

	progress, err := h.enroll.Start(c.Request.Context(), enroll.Request{
		DeviceID: req.DeviceID,
		Name:     req.Name,
		MSV:      req.MSV,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"status":  "success",
		"message": "Enrollment started. Place the finger on the sensor.",
		"data":    progress,
	})
}

func slotParam(c *gin.Context) (int, bool) {
	slot, err := strconv.Atoi(c.Param("id"))
	if err != nil || slot <= 0 {
		respondMessage(c, http.StatusBadRequest, "invalid enrollment ID")
		return 0, false
	}
	return slot, true
}

// GetEnrollmentProgress handles GET /api/enroll/progress/:id.
func (h *Handler) GetEnrollmentProgress(c *gin.Context) {
	slot, ok := slotParam(c)
	if !ok {
		return
	}

	progress, found := h.hub.Progress.Get(slot)
	if !found {
		respondMessage(c, http.StatusNotFound, "No enrollment progress found for this ID")
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "data": progress})
}

// StreamEnrollmentProgress handles GET /api/enroll/progress/:id/stream. The
// stream ends after a terminal record has been sent.
func (h *Handler) StreamEnrollmentProgress(c *gin.Context) {
	slot, ok := slotParam(c)
	if !ok {
		return
	}

	// Subscribe before reading the current record so no update falls in between.
	events := newFeed[device.Progress]()
	unsubscribe := h.hub.Progress.Subscribe(func(p device.Progress) {
		if p.Slot == slot {
			events.put(p)
		}
	})
	defer unsubscribe()

	current, found := h.hub.Progress.Get(slot)
	if !found {
		respondMessage(c, http.StatusNotFound, "No enrollment progress found for this ID")
		return
	}

	stream(c, h.keepAlive, current, events, device.Progress.Terminal)
}
