package hub

import (
	"context"
	"sync"
)

// Conn is one live push connection.
type Conn interface {
	// IsOpen reports whether the connection can still accept frames.
	IsOpen() bool
	// Send writes one text frame.
	Send(ctx context.Context, frame []byte) error
	// Close releases the connection. Calling it twice is safe.
	Close() error
}

// Entry is one (id, connection) pair from a registry snapshot.
type Entry struct {
	ID   string
	Conn Conn
}

// Registry is the set of live push connections keyed by connection id. All
// methods are safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]Conn
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]Conn)}
}

// Add inserts conn under id, replacing any existing entry.
func (r *Registry) Add(id string, conn Conn) {
	r.mu.Lock()
	r.conns[id] = conn
	r.mu.Unlock()
}

// Remove deletes id if present.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	delete(r.conns, id)
	r.mu.Unlock()
}

// Snapshot returns the entries present at call time.
func (r *Registry) Snapshot() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := make([]Entry, 0, len(r.conns))
	for id, conn := range r.conns {
		entries = append(entries, Entry{ID: id, Conn: conn})
	}
	return entries
}

// Count is advisory; it may be stale as soon as it returns.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
