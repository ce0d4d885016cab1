package device

import (
	"context"
	"log"
	"time"
)

// Monitor probes every registered connection and evicts silent ones.
type Monitor struct {
	registry   *Registry
	correlator *Correlator
	interval   time.Duration
	timeout    time.Duration
	now        func() time.Time
}

// NewMonitor creates a heartbeat monitor.
func NewMonitor(registry *Registry, correlator *Correlator, interval, timeout time.Duration) *Monitor {
	return &Monitor{
		registry:   registry,
		correlator: correlator,
		interval:   interval,
		timeout:    timeout,
		now:        time.Now,
	}
}

// Run probes connections every interval until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	log.Printf("Heartbeat monitor started (interval %s, timeout %s)", m.interval, m.timeout)

	timer := time.NewTimer(m.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Heartbeat monitor shutting down.")
			return
		case <-timer.C:
			m.Check(m.now())
			timer.Reset(m.interval)
		}
	}
}

// Check runs one probe round at the given time and returns the evicted device ids.
func (m *Monitor) Check(now time.Time) []string {
	var evicted []string
	for _, c := range m.registry.Snapshot() {
		// Enrollment needs several physical touches; never cut it off here.
		if m.correlator.HasPending(c.DeviceID, KindEnroll) {
			log.Printf("Skip heartbeat check for %s - currently enrolling", c.DeviceID)
			continue
		}

		if !c.Alive() && now.Sub(c.LastHeartbeat()) > m.timeout {
			log.Printf("Client %s is unresponsive (last heartbeat: %s). Terminating connection.",
				c.DeviceID, c.LastHeartbeat().Format(time.RFC3339))
			if m.registry.Evict(c) {
				evicted = append(evicted, c.DeviceID)
			}
			continue
		}

		c.expectAck()
		if err := c.write(heartbeatCommand); err != nil {
			log.Printf("Error sending heartbeat to %s: %v", c.DeviceID, err)
			if m.registry.Evict(c) {
				evicted = append(evicted, c.DeviceID)
			}
		}
	}
	return evicted
}
