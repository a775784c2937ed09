package realtime

import (
	"sync"

	"github.com/gorilla/websocket"
)

// Registry is the single source of truth for "is this user currently
// reachable". It maps user id to the one active connection per user and is
// shared by the accept path, the teardown path and every background loop.
// It is never a package global; construct one and pass it down.
//
// The registry is process-local. Scaling past one instance needs an external
// presence layer, which is out of scope for this transport.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]*Connection // userID -> connection
}

// NewRegistry constructs an initialized Registry.
func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]*Connection)}
}

// Attach registers a connection and starts its write loop. If the user
// already had an active connection, it is swapped out and closed so exactly
// one socket per user stays live.
func (r *Registry) Attach(conn *Connection) {
	r.mu.Lock()
	previous := r.conns[conn.UserID]
	r.conns[conn.UserID] = conn
	r.mu.Unlock()

	conn.Start()

	if previous != nil {
		previous.Close(4001, "session replaced")
	}
}

// Detach removes the connection if it is still the user's current entry and
// reports whether anything was removed. A stale connection replaced by a
// newer one does not evict its successor, so its teardown must not emit an
// offline presence broadcast.
func (r *Registry) Detach(conn *Connection) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.conns[conn.UserID]
	if !ok || current != conn {
		return false
	}
	delete(r.conns, conn.UserID)
	return true
}

// Get returns the user's current connection, if any.
func (r *Registry) Get(userID string) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.conns[userID]
	return conn, ok
}

// IsOnline reports whether the user has a live connection.
func (r *Registry) IsOnline(userID string) bool {
	_, ok := r.Get(userID)
	return ok
}

// NotifyUser delivers payload to the user's current connection. Push
// failures are reported, never raised, so one broken peer cannot stall
// fan-out to the others.
func (r *Registry) NotifyUser(userID string, payload []byte) bool {
	conn, ok := r.Get(userID)
	if !ok {
		return false
	}
	return conn.Send(payload) == nil
}

// Snapshot returns the currently tracked connections for sweep-style
// iteration without holding the lock during I/O.
func (r *Registry) Snapshot() []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conns := make([]*Connection, 0, len(r.conns))
	for _, conn := range r.conns {
		conns = append(conns, conn)
	}
	return conns
}

// Len reports the number of live connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Close terminates all tracked connections and clears the registry.
func (r *Registry) Close() {
	r.mu.Lock()
	conns := make([]*Connection, 0, len(r.conns))
	for _, conn := range r.conns {
		conns = append(conns, conn)
	}
	r.conns = make(map[string]*Connection)
	r.mu.Unlock()

	for _, conn := range conns {
		conn.Close(websocket.CloseGoingAway, "server shutdown")
	}
}
