package device

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"
)

// Response is the terminal success result of a device operation.
type Response struct {
	Kind    Kind   `json:"kind"`
	Slot    int    `json:"id"`
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
}

// Call is an in-flight device operation. Exactly one outcome is delivered.
type Call struct {
	Kind      Kind
	Slot      int
	DeviceID  string
	CreatedAt time.Time

	done chan struct{}
	resp Response
	err  error

	// Guarded by the owning Correlator's mutex.
	timeout  time.Duration
	deadline time.Time
	timer    *time.Timer
	gen      uint64
	settled  bool
}

// Done is closed once the call has an outcome.
func (c *Call) Done() <-chan struct{} {
	return c.done
}

// Result returns the outcome. It must only be called after Done is closed.
func (c *Call) Result() (Response, error) {
	return c.resp, c.err
}

// Wait blocks until the call settles or ctx ends. Giving up on ctx does not
// cancel the operation; its timer still settles it.
func (c *Call) Wait(ctx context.Context) (Response, error) {
	select {
	case <-c.done:
		return c.resp, c.err
	case <-ctx.Done():
		return Response{}, ctx.Err()
	}
}

type callKey struct {
	kind Kind
	slot int
}

// Correlator matches asynchronous device responses to pending operations
// keyed by (kind, slot).
type Correlator struct {
	mu      sync.Mutex
	pending map[callKey]*Call
	send    func(deviceID string, msg any) bool
	now     func() time.Time
}

// NewCorrelator creates a correlator that writes commands through send.
func NewCorrelator(send func(deviceID string, msg any) bool) *Correlator {
	return &Correlator{
		pending: make(map[callKey]*Call),
		send:    send,
		now:     time.Now,
	}
}

// Dispatch registers a pending operation and sends its command. The returned
// Call settles on a terminal device response, timeout, or disconnect.
func (c *Correlator) Dispatch(deviceID string, slot int, kind Kind, timeout time.Duration) (*Call, error) {
	call := &Call{
		Kind:      kind,
		Slot:      slot,
		DeviceID:  deviceID,
		CreatedAt: c.now(),
		done:      make(chan struct{}),
		timeout:   timeout,
	}
	key := callKey{kind, slot}

	// Registered before sending so a fast reply cannot beat the entry.
	c.mu.Lock()
	if prev, ok := c.pending[key]; ok {
		log.Printf("Overwriting pending %s for ID %d (device %s); earlier caller will time out", kind, slot, prev.DeviceID)
	}
	c.pending[key] = call
	c.armLocked(call)
	c.mu.Unlock()

	if !c.send(deviceID, Command{Type: kind.commandType(), ID: slot}) {
		err := fmt.Errorf("%w: %s command for ID %d to device %s", ErrSendFailed, kind, slot, deviceID)
		c.mu.Lock()
		if c.pending[key] == call {
			delete(c.pending, key)
		}
		c.settleLocked(call, Response{}, err)
		c.mu.Unlock()
		return nil, err
	}

	log.Printf("%s request initiated for ID %d on %s. Waiting for response...", kind, slot, deviceID)
	return call, nil
}

// Request dispatches a command and waits for its outcome.
func (c *Correlator) Request(ctx context.Context, deviceID string, slot int, kind Kind, timeout time.Duration) (Response, error) {
	call, err := c.Dispatch(deviceID, slot, kind, timeout)
	if err != nil {
		return Response{}, err
	}
	return call.Wait(ctx)
}

// armLocked replaces the call's timer with a fresh full-length deadline.
func (c *Correlator) armLocked(call *Call) {
	if call.timer != nil {
		call.timer.Stop()
	}
	call.gen++
	gen := call.gen
	call.deadline = c.now().Add(call.timeout)
	call.timer = time.AfterFunc(call.timeout, func() { c.expire(call, gen) })
}

func (c *Correlator) expire(call *Call, gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// A stale timer lost the race against Stop after a reschedule or settle.
	if call.settled || call.gen != gen {
		return
	}
	key := callKey{call.Kind, call.Slot}
	if c.pending[key] == call {
		delete(c.pending, key)
	}
	log.Printf("%s request for ID %d on %s timed out", call.Kind, call.Slot, call.DeviceID)
	c.settleLocked(call, Response{}, fmt.Errorf("%w: %s request for ID %d on %s", ErrTimeout, call.Kind, call.Slot, call.DeviceID))
}

func (c *Correlator) settleLocked(call *Call, resp Response, err error) bool {
	if call.settled {
		return false
	}
	call.settled = true
	if call.timer != nil {
		call.timer.Stop()
	}
	call.resp = resp
	call.err = err
	close(call.done)
	return true
}

// Resolve applies a device status report. It returns false when no operation
// is pending for (kind, payload.ID); such reports are logged and dropped.
func (c *Correlator) Resolve(kind Kind, payload StatusPayload) bool {
	key := callKey{kind, payload.ID}

	c.mu.Lock()
	defer c.mu.Unlock()

	call, ok := c.pending[key]
	if !ok {
		log.Printf("Received %s response for unknown/completed ID: %d", kind, payload.ID)
		return false
	}

	// Deletion has no intermediate states: anything but success fails it.
	if kind == KindDelete && payload.Status != StatusSuccess {
		delete(c.pending, key)
		c.settleLocked(call, Response{}, &DeviceError{Kind: kind, Slot: payload.ID, Status: payload.Status, Message: payload.Message})
		return true
	}

	switch payload.Status {
	case StatusProcessing:
		log.Printf("%s progress for ID %d: step %d - %s", kind, payload.ID, payload.Step, payload.Message)
		c.armLocked(call)
	case StatusSuccess:
		delete(c.pending, key)
		c.settleLocked(call, Response{Kind: kind, Slot: payload.ID, Status: payload.Status, Message: payload.Message}, nil)
	case StatusError, StatusNotFound:
		delete(c.pending, key)
		c.settleLocked(call, Response{}, &DeviceError{Kind: kind, Slot: payload.ID, Status: payload.Status, Message: payload.Message})
	default:
		log.Printf("Ignoring %s response with unknown status %q for ID %d", kind, payload.Status, payload.ID)
	}
	return true
}

// CancelForDevice fails every pending operation owned by deviceID.
func (c *Correlator) CancelForDevice(deviceID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for key, call := range c.pending {
		if call.DeviceID != deviceID {
			continue
		}
		delete(c.pending, key)
		c.settleLocked(call, Response{}, fmt.Errorf("%w: device %s disconnected during %s for ID %d", ErrDisconnected, deviceID, call.Kind, call.Slot))
		n++
	}
	if n > 0 {
		log.Printf("Cancelled %d pending operation(s) for %s", n, deviceID)
	}
	return n
}

// CancelAll fails every pending operation with err.
func (c *Correlator) CancelAll(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, call := range c.pending {
		delete(c.pending, key)
		c.settleLocked(call, Response{}, err)
	}
}

// HasPending reports whether deviceID owns any pending operation of kind.
func (c *Correlator) HasPending(deviceID string, kind Kind) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, call := range c.pending {
		if key.kind == kind && call.DeviceID == deviceID {
			return true
		}
	}
	return false
}

// IsPending reports whether an operation of kind is pending for slot.
func (c *Correlator) IsPending(kind Kind, slot int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.pending[callKey{kind, slot}]
	return ok
}

// Deadline returns the current deadline of the pending operation, if any.
func (c *Correlator) Deadline(kind Kind, slot int) (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	call, ok := c.pending[callKey{kind, slot}]
	if !ok {
		return time.Time{}, false
	}
	return call.deadline, true
}

// PendingSlots returns the slots with a pending operation of kind.
func (c *Correlator) PendingSlots(kind Kind) []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	var slots []int
	for key := range c.pending {
		if key.kind == kind {
			slots = append(slots, key.slot)
		}
	}
	return slots
}
