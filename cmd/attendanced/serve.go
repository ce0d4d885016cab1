package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/spf13/cobra"

	"attendance-backend/internal/api"
	"attendance-backend/internal/attendance"
	"attendance-backend/internal/db"
	"attendance-backend/internal/device"
	"attendance-backend/internal/enroll"
	"attendance-backend/internal/notification"
	"attendance-backend/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API and the device socket",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve()
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		gormDB, err := db.Init(&cfg.Database)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		if sqlDB, err := gormDB.DB(); err == nil {
			sqlDB.Close()
		}
		return nil
	},
}

func serve() error {
	webpushOptions := webpush.Options{
		VAPIDPublicKey:  cfg.Push.PublicKey,
		VAPIDPrivateKey: cfg.Push.PrivateKey,
		Subscriber:      cfg.Push.Subject,
		TTL:             cfg.Push.TTL,
	}

	// Initialize database
	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	logger.Println("database initialized successfully")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	appStore := store.NewGormStore(gormDB)
	logger.Println("data store initialized")

	scans := attendance.NewService(appStore, cfg.Attendance.Location)
	hub := device.NewHub(device.Options{
		HeartbeatInterval: cfg.Device.HeartbeatInterval,
		HeartbeatTimeout:  cfg.Device.HeartbeatTimeout,
	}, scans)

	enrollSvc := enroll.NewService(appStore, hub, enroll.Options{
		MaxSlots:      cfg.Device.MaxSlots,
		EnrollTimeout: cfg.Device.EnrollTimeout,
		DeleteTimeout: cfg.Device.DeleteTimeout,
	})

	if cfg.Push.Enabled() {
		pool := notification.NewWorkerPool(cfg.WorkerPool.Size, appStore, &webpushOptions)
		pool.Start(ctx)
		hub.SubscribeStatus(pool.Dispatch)
		logger.Printf("push notifications enabled with %d workers", cfg.WorkerPool.Size)
	} else {
		logger.Println("VAPID keys not configured; push notifications disabled")
	}

	hubDone := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(hubDone)
	}()

	router := api.NewRouter(cfg, appStore, hub, enrollSvc, &webpushOptions)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Printf("HTTP server starting on port %d, device socket at %s", cfg.Server.Port, cfg.Device.Path)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		logger.Println("Shutdown signal received, stopping services...")
	case err := <-serverErr:
		cancel()
		<-hubDone
		return fmt.Errorf("HTTP server ListenAndServe: %w", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	// Device sockets close before HTTP handlers are drained.
	cancel()
	<-hubDone

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP server Shutdown: %w", err)
	}
	enrollSvc.Wait()

	logger.Println("Server gracefully stopped")
	return nil
}
