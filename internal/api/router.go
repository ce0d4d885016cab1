package api

import (
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"attendance-backend/config"
	"attendance-backend/internal/device"
	"attendance-backend/internal/enroll"
	"attendance-backend/internal/mw"
	"attendance-backend/internal/store"
)

// NewRouter creates and configures a new Gin router serving the REST API, the
// SSE streams and the device socket.
func NewRouter(cfg *config.Config, s store.Store, hub *device.Hub, enrollSvc *enroll.Service, webpushOptions *webpush.Options) *gin.Engine {
	r := gin.Default()

	handler := NewHandler(s, hub, enrollSvc, webpushOptions)
	if cfg.Attendance.Location != nil {
		handler.loc = cfg.Attendance.Location
	}
	if cfg.Device.StreamKeepAlive > 0 {
		handler.keepAlive = cfg.Device.StreamKeepAlive
	}

	corsCfg := cors.DefaultConfig()
	if cfg.Server.AllowedOrigin == "" || cfg.Server.AllowedOrigin == "*" {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = []string{cfg.Server.AllowedOrigin}
	}
	r.Use(cors.New(corsCfg))

	// The device socket is long lived and must not be rate limited.
	r.GET(cfg.Device.Path, gin.WrapF(hub.ServeWS))

	rateLimiter := mw.RateLimiter(rate.Limit(cfg.Server.RateLimitPerSec), cfg.Server.RateLimitBurst)

	caching := mw.Cache(time.Duration(cfg.Server.CacheTTLSeconds) * time.Second)

	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		api.GET("/device-status", handler.StreamDeviceStatus)
		api.GET("/device-status/current", handler.GetDeviceStatus)

		api.GET("/logs", caching, handler.GetLogs)

		api.GET("/users", handler.GetUsers)
		api.POST("/users", handler.AddUser)
		api.PUT("/users/:userId", handler.UpdateUser)
		api.DELETE("/users/:userId", handler.DeleteUser)

		api.POST("/enroll/request", handler.RequestEnrollment)
		api.GET("/enroll/progress/:id", handler.GetEnrollmentProgress)
		api.GET("/enroll/progress/:id/stream", handler.StreamEnrollmentProgress)
		api.GET("/enroll/progress-stream/:id", handler.StreamEnrollmentProgress)

		api.GET("/subscriptions", handler.GetSubscription)
		api.PUT("/subscriptions", handler.PutSubscription)
		api.DELETE("/subscriptions", handler.DeleteSubscription)
		api.GET("/vapid_public_key", handler.GetVAPIDPublicKey)
	}

	return r
}
