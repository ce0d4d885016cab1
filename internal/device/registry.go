package device

import (
	"log"
	"sync"
	"time"
)

// Conn is the socket behind a device connection. *websocket.Conn satisfies it.
type Conn interface {
	WriteJSON(v interface{}) error
	Close() error
}

// Connection is the registry entry for one device socket.
type Connection struct {
	DeviceID    string
	ConnectedAt time.Time

	conn    Conn
	writeMu sync.Mutex

	mu            sync.Mutex
	lastHeartbeat time.Time
	alive         bool
}

func (c *Connection) write(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(v)
}

// Alive reports whether the device acked since the last heartbeat probe.
func (c *Connection) Alive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.alive
}

// LastHeartbeat returns the time of the last heartbeat ack.
func (c *Connection) LastHeartbeat() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastHeartbeat
}

func (c *Connection) ack(now time.Time) {
	c.mu.Lock()
	c.alive = true
	c.lastHeartbeat = now
	c.mu.Unlock()
}

func (c *Connection) expectAck() {
	c.mu.Lock()
	c.alive = false
	c.mu.Unlock()
}

// RegistryHooks are invoked after the registry table changes, outside its lock.
type RegistryHooks struct {
	Registered func(deviceID string)
	Removed    func(deviceID string)
	// Replaced runs when a reconnect displaces an existing socket, before the
	// new connection is stored.
	Replaced func(deviceID string)
}

// Registry tracks at most one live connection per device identifier.
type Registry struct {
	mu    sync.Mutex
	conns map[string]*Connection
	hooks RegistryHooks
	now   func() time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry(hooks RegistryHooks) *Registry {
	return &Registry{
		conns: make(map[string]*Connection),
		hooks: hooks,
		now:   time.Now,
	}
}

// Register stores conn for deviceID, closing any connection it replaces.
func (r *Registry) Register(deviceID string, conn Conn) *Connection {
	now := r.now()
	c := &Connection{
		DeviceID:      deviceID,
		ConnectedAt:   now,
		conn:          conn,
		lastHeartbeat: now,
		alive:         true,
	}

	r.mu.Lock()
	prev := r.conns[deviceID]
	delete(r.conns, deviceID)
	r.mu.Unlock()

	// Work sent over the old socket cannot be answered on the new one.
	if prev != nil {
		log.Printf("Device %s reconnected; closing previous socket", deviceID)
		prev.conn.Close()
		if r.hooks.Replaced != nil {
			r.hooks.Replaced(deviceID)
		}
	}

	r.mu.Lock()
	r.conns[deviceID] = c
	r.mu.Unlock()

	if r.hooks.Registered != nil {
		r.hooks.Registered(deviceID)
	}
	return c
}

// Get returns the live connection for deviceID.
func (r *Registry) Get(deviceID string) (*Connection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conns[deviceID]
	return c, ok
}

// Remove deletes the entry for deviceID. A second call is a no-op.
func (r *Registry) Remove(deviceID string) bool {
	r.mu.Lock()
	_, ok := r.conns[deviceID]
	delete(r.conns, deviceID)
	r.mu.Unlock()

	if ok {
		r.removed(deviceID)
	}
	return ok
}

// Release removes c only while it is still the current connection for its device,
// so a socket replaced by a reconnect cannot unregister its successor.
func (r *Registry) Release(c *Connection) bool {
	r.mu.Lock()
	cur, ok := r.conns[c.DeviceID]
	ok = ok && cur == c
	if ok {
		delete(r.conns, c.DeviceID)
	}
	r.mu.Unlock()

	if ok {
		r.removed(c.DeviceID)
	}
	return ok
}

// Evict closes the socket and releases the entry.
func (r *Registry) Evict(c *Connection) bool {
	if err := c.conn.Close(); err != nil {
		log.Printf("Error closing socket for %s: %v", c.DeviceID, err)
	}
	return r.Release(c)
}

func (r *Registry) removed(deviceID string) {
	log.Printf("Device %s removed from registry", deviceID)
	if r.hooks.Removed != nil {
		r.hooks.Removed(deviceID)
	}
}

// Send writes msg to the device. It returns false when the device is missing,
// not alive, or the write fails; a failed write evicts the connection.
func (r *Registry) Send(deviceID string, msg any) bool {
	c, ok := r.Get(deviceID)
	if !ok || !c.Alive() {
		log.Printf("Device %s not found or not alive.", deviceID)
		return false
	}

	log.Printf("Sending command to %s: %+v", deviceID, msg)
	if err := c.write(msg); err != nil {
		log.Printf("Error sending command to %s: %v", deviceID, err)
		r.Evict(c)
		return false
	}
	return true
}

// Touch records a heartbeat ack from deviceID.
func (r *Registry) Touch(deviceID string) {
	if c, ok := r.Get(deviceID); ok {
		c.ack(r.now())
	}
}

// Count returns the number of registered connections.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

// Snapshot returns the current connections in no particular order.
func (r *Registry) Snapshot() []*Connection {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Connection, 0, len(r.conns))
	for _, c := range r.conns {
		out = append(out, c)
	}
	return out
}
