package client

import (
	"sync"

	"github.com/alperakcan/mbus-sub000/internal/envelope"
)

// EventHandler receives events this client subscribed to.
type EventHandler func(env *envelope.Envelope)

type subscriptionKey struct {
	source string
	event  string
}

// subscriptionTable holds this client's own local event callbacks,
// mirroring the broker's SubscriptionTable but keyed to a Go function
// instead of a connection.
type subscriptionTable struct {
	mu    sync.RWMutex
	items map[subscriptionKey]EventHandler
}

func newSubscriptionTable() *subscriptionTable {
	return &subscriptionTable{items: make(map[subscriptionKey]EventHandler)}
}

func (t *subscriptionTable) set(source, event string, handler EventHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.items[subscriptionKey{source, event}] = handler
}

func (t *subscriptionTable) remove(source, event string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.items, subscriptionKey{source, event})
}

// dispatch invokes every handler whose filter matches (source, event),
// using the same four-combination wildcard rule as the broker's
// SubscriptionTable.Matches.
func (t *subscriptionTable) dispatch(env *envelope.Envelope) {
	t.mu.RLock()
	var handlers []EventHandler
	candidates := [2]string{env.Source, envelope.SourceAll}
	events := [2]string{env.Identifier, envelope.IdentifierAll}
	for _, s := range candidates {
		for _, e := range events {
			if h, ok := t.items[subscriptionKey{s, e}]; ok {
				handlers = append(handlers, h)
			}
		}
	}
	t.mu.RUnlock()

	for _, h := range handlers {
		h(env)
	}
}
