// Package registry keeps the connections held by this process. It has no
// cross-process view; the presence store answers who is online cluster-wide.
package registry

import (
	"sync"
)

// Conn is a live connection that can receive pushed events.
type Conn interface {
	// ID returns the connection id
	ID() string

	// Deliver queues a server-pushed event for the connection.
	Deliver(event string, data []byte) error
}

// Registry maps connection ids to the connections held by this process
type Registry struct {
	mu    sync.RWMutex
	conns map[string]Conn
}

// New creates an empty registry
func New() *Registry {
	return &Registry{conns: make(map[string]Conn)}
}

// Add registers conn, replacing any connection with the same id
func (r *Registry) Add(conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[conn.ID()] = conn
}

// Remove unregisters id. Unknown ids are ignored.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, id)
}

// Len returns the number of registered connections
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Snapshot returns the registered connections at the time of the call.
// Callers may deliver to them without holding the registry lock.
func (r *Registry) Snapshot() []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Conn, 0, len(r.conns))
	for _, c := range r.conns {
		out = append(out, c)
	}
	return out
}

// Each calls fn for every connection in a snapshot, stopping when fn returns false
func (r *Registry) Each(fn func(Conn) bool) {
	for _, c := range r.Snapshot() {
		if !fn(c) {
			return
		}
	}
}
