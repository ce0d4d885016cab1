package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"

	"attendance-backend/internal/device"
	"attendance-backend/internal/enroll"
	"attendance-backend/internal/store"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store     store.Store
	hub       *device.Hub
	enroll    *enroll.Service
	webpush   *webpush.Options
	loc       *time.Location
	keepAlive time.Duration
}

// NewHandler creates a new API handler.
func NewHandler(s store.Store, hub *device.Hub, enrollSvc *enroll.Service, webpushOptions *webpush.Options) *Handler {
	return &Handler{
		store:     s,
		hub:       hub,
		enroll:    enrollSvc,
		webpush:   webpushOptions,
		loc:       time.Local,
		keepAlive: 20 * time.Second,
	}
}

// statusFor maps workflow and device errors to HTTP status codes.
func statusFor(err error) int {
	var devErr *device.DeviceError
	switch {
	case errors.Is(err, enroll.ErrInvalidRequest), errors.Is(err, device.ErrDeviceNotConnected):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, enroll.ErrDuplicateMSV), errors.Is(err, store.ErrDuplicate):
		return http.StatusConflict
	case errors.Is(err, enroll.ErrNoCapacity):
		return http.StatusServiceUnavailable
	case errors.Is(err, device.ErrSendFailed):
		return http.StatusBadGateway
	case errors.Is(err, device.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusRequestTimeout
	case errors.As(err, &devErr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, device.ErrDisconnected), errors.Is(err, device.ErrShutdown):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func respondError(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"status": "error", "message": err.Error()})
}

func respondMessage(c *gin.Context, code int, message string) {
	c.JSON(code, gin.H{"status": "error", "message": message})
}
