package broker

import (
	"sync"
)

// Registry is the broker's table of currently known clients, keyed by
// identifier (spec.md §3). It also hands out fresh generations so that a
// reconnect under the same identifier never collides with a still-closing
// previous Handle.
type Registry struct {
	mu         sync.RWMutex
	clients    map[string]*Client
	generation uint64
}

// NewRegistry returns an empty client registry.
func NewRegistry() *Registry {
	return &Registry{clients: make(map[string]*Client)}
}

// Add inserts client under id, replacing (and returning) any previous
// occupant — the caller is responsible for disconnecting the replaced
// client, which happens when a new connection claims an identifier
// already in use (spec.md §4.2 treats this as the prior session ending).
func (r *Registry) Add(client *Client) (previous *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	previous = r.clients[client.id]
	r.clients[client.id] = client
	return previous
}

// Remove deletes id from the registry iff it still maps to client
// (guards against removing a newer connection that reused the same
// identifier).
func (r *Registry) Remove(client *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.clients[client.id]; ok && cur == client {
		delete(r.clients, client.id)
	}
}

// Get returns the client currently registered under id.
func (r *Registry) Get(id string) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[id]
	return c, ok
}

// Snapshot returns every currently registered client.
func (r *Registry) Snapshot() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		out = append(out, c)
	}
	return out
}

// NextGeneration returns a fresh, registry-wide unique generation number
// for a newly accepted connection's Handle.
func (r *Registry) NextGeneration() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.generation++
	return r.generation
}

// Count returns the number of registered clients, for command.status.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}
