package device

import (
	"context"
	"sync"
	"time"
)

// Options configures a Hub.
type Options struct {
	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration
}

// LinkStatus describes a change in device connectivity.
type LinkStatus struct {
	DeviceID    string    `json:"deviceId,omitempty"`
	Connected   bool      `json:"connected"`
	IsConnected bool      `json:"isConnected"`
	ClientCount int       `json:"clientCount"`
	LastUpdate  time.Time `json:"lastUpdate"`
}

// Hub owns the connection, pending-operation and progress tables and the
// components that operate on them.
type Hub struct {
	Registry   *Registry
	Correlator *Correlator
	Progress   *Tracker
	Monitor    *Monitor
	Router     *Router

	subsMu sync.Mutex
	subs   map[uint64]func(LinkStatus)
	nextID uint64
}

// NewHub builds a hub. scans receives ambient fingerprint reads and may be nil.
func NewHub(opts Options, scans ScanHandler) *Hub {
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = 10 * time.Second
	}
	if opts.HeartbeatTimeout <= 0 {
		opts.HeartbeatTimeout = 20 * time.Second
	}

	h := &Hub{subs: make(map[uint64]func(LinkStatus))}
	h.Registry = NewRegistry(RegistryHooks{
		Registered: func(deviceID string) { h.publish(deviceID, true) },
		Removed: func(deviceID string) {
			h.Correlator.CancelForDevice(deviceID)
			h.publish(deviceID, false)
		},
		Replaced: func(deviceID string) { h.Correlator.CancelForDevice(deviceID) },
	})
	h.Correlator = NewCorrelator(h.Registry.Send)
	h.Progress = NewTracker()
	h.Monitor = NewMonitor(h.Registry, h.Correlator, opts.HeartbeatInterval, opts.HeartbeatTimeout)
	h.Router = NewRouter(h.Registry, h.Correlator, h.Progress, scans)
	return h
}

// Run drives the heartbeat monitor until ctx is done, then closes every socket.
func (h *Hub) Run(ctx context.Context) {
	h.Monitor.Run(ctx)
	h.Close()
}

// Close evicts every connection and fails whatever is still pending.
func (h *Hub) Close() {
	for _, c := range h.Registry.Snapshot() {
		h.Registry.Evict(c)
	}
	h.Correlator.CancelAll(ErrShutdown)
}

// Connected reports whether deviceID has a registered connection.
func (h *Hub) Connected(deviceID string) bool {
	_, ok := h.Registry.Get(deviceID)
	return ok
}

// Status returns the current aggregate connectivity.
func (h *Hub) Status() LinkStatus {
	n := h.Registry.Count()
	return LinkStatus{IsConnected: n > 0, ClientCount: n, LastUpdate: time.Now().UTC()}
}

// SubscribeStatus registers fn for every connect and disconnect.
func (h *Hub) SubscribeStatus(fn func(LinkStatus)) func() {
	h.subsMu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = fn
	h.subsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.subsMu.Lock()
			delete(h.subs, id)
			h.subsMu.Unlock()
		})
	}
}

func (h *Hub) publish(deviceID string, connected bool) {
	st := h.Status()
	st.DeviceID = deviceID
	st.Connected = connected

	h.subsMu.Lock()
	listeners := make([]func(LinkStatus), 0, len(h.subs))
	for _, fn := range h.subs {
		listeners = append(listeners, fn)
	}
	h.subsMu.Unlock()

	for _, fn := range listeners {
		fn(st)
	}
}
