package broker

import (
	"sync"

	"github.com/alperakcan/mbus-sub000/internal/envelope"
)

// Subscription is a (source, event) filter, per spec.md §3/§4.3. Either
// field may be the corresponding wildcard.
type Subscription struct {
	Source string
	Event  string
}

// SubscriptionTable is one client's subscription set. Matching is
// byte-wise string equality against the wildcards only — never a glob.
type SubscriptionTable struct {
	mu    sync.RWMutex
	items map[Subscription]struct{}
}

// NewSubscriptionTable returns an empty subscription set.
func NewSubscriptionTable() *SubscriptionTable {
	return &SubscriptionTable{items: make(map[Subscription]struct{})}
}

// Add registers sub, returning false if it was already present (duplicate
// subscribe is defined as a no-op success by spec.md §4.3).
func (t *SubscriptionTable) Add(sub Subscription) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.items[sub]; exists {
		return false
	}
	t.items[sub] = struct{}{}
	return true
}

// Remove deregisters sub, returning false if it was not present.
func (t *SubscriptionTable) Remove(sub Subscription) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.items[sub]; !exists {
		return false
	}
	delete(t.items, sub)
	return true
}

// Matches reports whether any subscription in the table matches an event
// from source with the given identifier, per spec.md §4.3:
// ∃ (s,e) ∈ S with s ∈ {SourceAll, source} and e ∈ {IdentifierAll, id}.
func (t *SubscriptionTable) Matches(source, identifier string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	candidates := [2]string{source, envelope.SourceAll}
	events := [2]string{identifier, envelope.IdentifierAll}
	for _, s := range candidates {
		for _, e := range events {
			if _, ok := t.items[Subscription{Source: s, Event: e}]; ok {
				return true
			}
		}
	}
	return false
}

// Snapshot returns a copy of the current subscription set, for
// command.client introspection.
func (t *SubscriptionTable) Snapshot() []Subscription {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Subscription, 0, len(t.items))
	for s := range t.items {
		out = append(out, s)
	}
	return out
}
