package device

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type hookRecorder struct {
	mu         sync.Mutex
	registered []string
	removed    []string
}

func (h *hookRecorder) hooks() RegistryHooks {
	return RegistryHooks{
		Registered: func(id string) { h.mu.Lock(); h.registered = append(h.registered, id); h.mu.Unlock() },
		Removed:    func(id string) { h.mu.Lock(); h.removed = append(h.removed, id); h.mu.Unlock() },
	}
}

func (h *hookRecorder) removedIDs() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.removed...)
}

func TestRegistry_RegisterGetCount(t *testing.T) {
	rec := &hookRecorder{}
	r := NewRegistry(rec.hooks())

	_, ok := r.Get("esp-1")
	assert.False(t, ok)

	c := r.Register("esp-1", &fakeConn{})
	got, ok := r.Get("esp-1")
	require.True(t, ok)
	assert.Same(t, c, got)
	assert.True(t, got.Alive())
	assert.False(t, got.LastHeartbeat().IsZero())
	assert.Equal(t, 1, r.Count())
	assert.Equal(t, []string{"esp-1"}, rec.registered)
}

func TestRegistry_ReplaceKeepsOneConnection(t *testing.T) {
	rec := &hookRecorder{}
	r := NewRegistry(rec.hooks())

	oldConn := &fakeConn{}
	newConn := &fakeConn{}
	first := r.Register("esp-1", oldConn)
	second := r.Register("esp-1", newConn)

	assert.Equal(t, 1, r.Count())
	assert.Equal(t, 1, oldConn.closeCount(), "replaced socket is closed")

	// The replaced socket's read loop ending must not unregister its successor.
	assert.False(t, r.Release(first))
	got, ok := r.Get("esp-1")
	require.True(t, ok)
	assert.Same(t, second, got)
	assert.Empty(t, rec.removedIDs())
}

func TestRegistry_RemoveIsIdempotent(t *testing.T) {
	rec := &hookRecorder{}
	r := NewRegistry(rec.hooks())
	r.Register("esp-1", &fakeConn{})

	assert.True(t, r.Remove("esp-1"))
	assert.False(t, r.Remove("esp-1"))
	assert.Equal(t, 0, r.Count())
	assert.Equal(t, []string{"esp-1"}, rec.removedIDs())
}

func TestRegistry_Send(t *testing.T) {
	t.Run("missing device", func(t *testing.T) {
		r := NewRegistry(RegistryHooks{})
		assert.False(t, r.Send("ghost", Command{Type: TypeEnroll, ID: 1}))
	})

	t.Run("writes to a live device", func(t *testing.T) {
		r := NewRegistry(RegistryHooks{})
		conn := &fakeConn{}
		r.Register("esp-1", conn)

		assert.True(t, r.Send("esp-1", Command{Type: TypeEnroll, ID: 5}))
		assert.Equal(t, []Command{{Type: TypeEnroll, ID: 5}}, conn.commands())
	})

	t.Run("refuses a device awaiting a heartbeat ack", func(t *testing.T) {
		r := NewRegistry(RegistryHooks{})
		conn := &fakeConn{}
		c := r.Register("esp-1", conn)
		c.expectAck()

		assert.False(t, r.Send("esp-1", Command{Type: TypeEnroll, ID: 5}))
		assert.Empty(t, conn.commands())
		assert.Equal(t, 1, r.Count(), "not alive is not a reason to evict")
	})

	t.Run("write failure evicts and notifies", func(t *testing.T) {
		rec := &hookRecorder{}
		r := NewRegistry(rec.hooks())
		conn := &fakeConn{failWrites: true}
		r.Register("esp-1", conn)

		assert.False(t, r.Send("esp-1", Command{Type: TypeDelete, ID: 2}))
		assert.Equal(t, 0, r.Count())
		assert.Equal(t, 1, conn.closeCount())
		assert.Equal(t, []string{"esp-1"}, rec.removedIDs())
	})
}

func TestRegistry_TouchRestoresLiveness(t *testing.T) {
	clock := newFakeClock()
	r := NewRegistry(RegistryHooks{})
	r.now = clock.Now

	c := r.Register("esp-1", &fakeConn{})
	c.expectAck()
	require.False(t, c.Alive())

	at := clock.Advance(7 * time.Second)
	r.Touch("esp-1")
	assert.True(t, c.Alive())
	assert.Equal(t, at, c.LastHeartbeat())

	// Unknown devices are ignored.
	r.Touch("ghost")
}
