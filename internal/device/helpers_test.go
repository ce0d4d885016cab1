package device

import (
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeConn records outbound frames in memory.
type fakeConn struct {
	mu         sync.Mutex
	sent       []any
	failWrites bool
	closed     int
}

func (f *fakeConn) WriteJSON(v interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWrites {
		return errors.New("write: broken pipe")
	}
	f.sent = append(f.sent, v)
	return nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func (f *fakeConn) setFailWrites(v bool) {
	f.mu.Lock()
	f.failWrites = v
	f.mu.Unlock()
}

func (f *fakeConn) commands() []Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Command, 0, len(f.sent))
	for _, v := range f.sent {
		if c, ok := v.(Command); ok {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeConn) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// fakeClock is a settable time source.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
	return c.t
}

func waitDone(t *testing.T, call *Call, within time.Duration) {
	t.Helper()
	select {
	case <-call.Done():
	case <-time.After(within):
		t.Fatalf("call for %s/%d did not settle within %s", call.Kind, call.Slot, within)
	}
}

func assertPending(t *testing.T, call *Call) {
	t.Helper()
	select {
	case <-call.Done():
		t.Fatalf("call for %s/%d settled unexpectedly", call.Kind, call.Slot)
	default:
	}
}
