package device

import (
	"sync"
	"time"
)

// Progress is the latest known state of an enrollment slot.
type Progress struct {
	Slot      int       `json:"id"`
	Status    Status    `json:"status"`
	Step      int       `json:"step"`
	Message   string    `json:"message"`
	Name      string    `json:"name"`
	MSV       string    `json:"msv"`
	DeviceID  string    `json:"deviceId"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Terminal reports whether the enrollment has finished.
func (p Progress) Terminal() bool {
	return p.Status.Terminal()
}

// Tracker stores enrollment progress per slot and fans every change out to
// subscribers. Listeners run synchronously on the publishing goroutine and must
// not call Set or Apply.
type Tracker struct {
	// pubMu serialises publishes so listeners observe changes in write order.
	pubMu sync.Mutex

	mu      sync.RWMutex
	records map[int]Progress

	subsMu sync.Mutex
	subs   map[uint64]func(Progress)
	nextID uint64

	now func() time.Time
}

// NewTracker creates an empty progress tracker.
func NewTracker() *Tracker {
	return &Tracker{
		records: make(map[int]Progress),
		subs:    make(map[uint64]func(Progress)),
		now:     time.Now,
	}
}

// Set upserts the record for slot and notifies subscribers.
func (t *Tracker) Set(slot int, p Progress) Progress {
	t.pubMu.Lock()
	defer t.pubMu.Unlock()

	p.Slot = slot
	p.UpdatedAt = t.now()
	t.mu.Lock()
	t.records[slot] = p
	t.mu.Unlock()

	t.publish(p)
	return p
}

// Apply merges a device status report into the slot's record. Reports for
// unknown or terminal records are ignored.
func (t *Tracker) Apply(slot int, report StatusPayload) (Progress, bool) {
	t.pubMu.Lock()
	defer t.pubMu.Unlock()

	t.mu.Lock()
	p, ok := t.records[slot]
	if !ok || p.Terminal() {
		t.mu.Unlock()
		return p, false
	}
	if report.Status != "" {
		p.Status = report.Status
	}
	if report.Step != 0 {
		p.Step = report.Step
	}
	if report.Message != "" {
		p.Message = report.Message
	}
	p.UpdatedAt = t.now()
	t.records[slot] = p
	t.mu.Unlock()

	t.publish(p)
	return p, true
}

// Get returns the last known record for slot.
func (t *Tracker) Get(slot int) (Progress, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.records[slot]
	return p, ok
}

// Subscribe registers fn for every subsequent change across all slots.
// The returned function unsubscribes and may be called more than once.
func (t *Tracker) Subscribe(fn func(Progress)) func() {
	t.subsMu.Lock()
	id := t.nextID
	t.nextID++
	t.subs[id] = fn
	t.subsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			t.subsMu.Lock()
			delete(t.subs, id)
			t.subsMu.Unlock()
		})
	}
}

func (t *Tracker) publish(p Progress) {
	t.subsMu.Lock()
	listeners := make([]func(Progress), 0, len(t.subs))
	for _, fn := range t.subs {
		listeners = append(listeners, fn)
	}
	t.subsMu.Unlock()

	for _, fn := range listeners {
		fn(p)
	}
}
