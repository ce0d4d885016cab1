package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"

	"attendance-backend/internal/device"
	"attendance-backend/internal/model"
	"attendance-backend/internal/store"
)

// NotificationSender defines the interface for sending a web push notification.
type NotificationSender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is a real implementation of NotificationSender using the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// Message is the JSON body delivered to the admin's service worker.
type Message struct {
	Title       string `json:"title"`
	Body        string `json:"body"`
	DeviceID    string `json:"deviceId"`
	Connected   bool   `json:"connected"`
	ClientCount int    `json:"clientCount"`
}

// WorkerPool manages a pool of workers that push device link changes to admins.
type WorkerPool struct {
	size    int
	jobs    chan device.LinkStatus
	store   store.Store
	webpush *webpush.Options
	sender  NotificationSender
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(size int, s store.Store, webpushOptions *webpush.Options) *WorkerPool {
	if size < 1 {
		size = 1
	}
	return &WorkerPool{
		size:    size,
		jobs:    make(chan device.LinkStatus, size*8),
		store:   s,
		webpush: webpushOptions,
		sender:  &WebPushSender{},
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	log.Printf("Worker %d started", id)
	for {
		select {
		case st := <-wp.jobs:
			log.Printf("Worker %d processing link change of %s (connected=%t)", id, st.DeviceID, st.Connected)
			wp.notifyAll(ctx, st)
		case <-ctx.Done():
			log.Printf("Worker %d shutting down", id)
			return
		}
	}
}

// Dispatch queues a link change. It never blocks: connect and disconnect hooks
// run on the socket goroutines, so a full queue drops the job.
func (wp *WorkerPool) Dispatch(st device.LinkStatus) {
	select {
	case wp.jobs <- st:
	default:
		log.Printf("Notification queue full; dropping link change of %s", st.DeviceID)
	}
}

// Jobs returns the jobs channel for testing.
func (wp *WorkerPool) Jobs() chan device.LinkStatus {
	return wp.jobs
}

func messageFor(st device.LinkStatus) Message {
	m := Message{
		Title:       "Fingerprint device connected",
		Body:        fmt.Sprintf("Device %s is online.", st.DeviceID),
		DeviceID:    st.DeviceID,
		Connected:   st.Connected,
		ClientCount: st.ClientCount,
	}
	if !st.Connected {
		m.Title = "Fingerprint device disconnected"
		m.Body = fmt.Sprintf("Device %s went offline. %d device(s) still connected.", st.DeviceID, st.ClientCount)
	}
	return m
}

// notifyAll pushes st to every registered admin subscription.
func (wp *WorkerPool) notifyAll(ctx context.Context, st device.LinkStatus) {
	subscriptions, err := wp.store.ListSubscriptions(ctx)
	if err != nil {
		log.Printf("Error fetching subscriptions: %v", err)
		return
	}
	if len(subscriptions) == 0 {
		return
	}

	payload, err := json.Marshal(messageFor(st))
	if err != nil {
		log.Printf("Error encoding notification for %s: %v", st.DeviceID, err)
		return
	}

	log.Printf("Sending %d notifications for device %s", len(subscriptions), st.DeviceID)
	for _, sub := range subscriptions {
		wp.sendNotification(ctx, sub, payload)
	}
}

// sendNotification sends a single web push notification.
func (wp *WorkerPool) sendNotification(ctx context.Context, sub model.PushSubscription, payload []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
	if err != nil {
		log.Printf("Error sending notification to %s: %v", sub.Endpoint, err)
		return
	}
	defer resp.Body.Close()

	// Handle expired subscriptions
	if resp.StatusCode == http.StatusGone {
		log.Printf("Subscription for endpoint %s is expired. Deleting.", sub.Endpoint)
		if err := wp.store.DeleteSubscription(ctx, sub.Endpoint); err != nil {
			log.Printf("Failed to delete expired subscription %s: %v", sub.Endpoint, err)
		}
	}
}
