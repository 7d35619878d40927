package broker

import "sync"

// PendingCall is one forwarded command awaiting completion, stored on the
// destination client's PendingTable (spec.md §4.5, §9). Originator is a
// generational Handle rather than a *Client so a disconnect-then-reconnect
// under the same identifier can never be mistaken for the original
// waiter.
type PendingCall struct {
	Originator Handle
	Identifier string
	Sequence   int
}

type pendingKey struct {
	originatorID string
	identifier   string
	sequence     int
}

// PendingTable is the "waits" queue owned by one destination client,
// keyed by (originator identifier, identifier, sequence) so that
// concurrent calls from different originators with coincidentally equal
// sequence numbers never collide.
type PendingTable struct {
	mu    sync.Mutex
	items map[pendingKey]*PendingCall
}

// NewPendingTable returns an empty pending-call table.
func NewPendingTable() *PendingTable {
	return &PendingTable{items: make(map[pendingKey]*PendingCall)}
}

// Add registers a new pending call.
func (t *PendingTable) Add(call *PendingCall) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.items[pendingKey{
		originatorID: call.Originator.ID,
		identifier:   call.Identifier,
		sequence:     call.Sequence,
	}] = call
}

// Complete looks up and removes the pending call matching
// (originatorID, identifier, sequence) — the three fields a command.result
// payload carries as destination/identifier/sequence (spec.md §4.4).
func (t *PendingTable) Complete(originatorID, identifier string, sequence int) (*PendingCall, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := pendingKey{originatorID: originatorID, identifier: identifier, sequence: sequence}
	call, ok := t.items[key]
	if !ok {
		return nil, false
	}
	delete(t.items, key)
	return call, true
}

// DrainAll removes and returns every pending call in the table — used
// when the destination client disconnects, so the broker can complete
// each of its originators' waits with status -1 (spec.md §4.5).
func (t *PendingTable) DrainAll() []*PendingCall {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*PendingCall, 0, len(t.items))
	for _, call := range t.items {
		out = append(out, call)
	}
	t.items = make(map[pendingKey]*PendingCall)
	return out
}

// RemoveByOriginator drops every pending call whose originator is
// originatorID. The broker's disconnect path does not call it: a
// completion for an originator that has since disconnected is discarded
// by handleResult's Handle check instead.
func (t *PendingTable) RemoveByOriginator(originatorID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for key := range t.items {
		if key.originatorID == originatorID {
			delete(t.items, key)
		}
	}
}
