// Package runtime wires connections, dispatching and fanout together.
// It orchestrates delivery without containing news domain rules.
package runtime

import (
	"sync"

	"github.com/samber/lo"
)

// Registry tracks every live connection. Add, Remove and Snapshot are
// called from arbitrary goroutines: one receive loop per connection plus
// the fanout engine, so every access goes through the lock.
type Registry struct {
	mu          sync.RWMutex
	connections map[string]*Connection
}

func NewRegistry() *Registry {
	return &Registry{connections: make(map[string]*Connection)}
}

func (r *Registry) Add(conn *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connections[conn.ID] = conn
}

// Remove deletes the connection and returns it, or nil when another path
// already removed it. Callers own closing the transport; combined with
// Connection.Close being idempotent this makes double teardown harmless.
func (r *Registry) Remove(connectionID string) *Connection {
	r.mu.Lock()
	defer r.mu.Unlock()
	conn, ok := r.connections[connectionID]
	if !ok {
		return nil
	}
	delete(r.connections, connectionID)
	return conn
}

func (r *Registry) TryGet(connectionID string) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.connections[connectionID]
	return conn, ok
}

// Snapshot returns a point-in-time copy of the connection set, safe to
// iterate while other goroutines add and remove connections.
func (r *Registry) Snapshot() []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Values(r.connections)
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.connections)
}
