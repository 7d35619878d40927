package broker

import (
	"sync"
	"time"

	"github.com/alperakcan/mbus-sub000/internal/envelope"
	"github.com/alperakcan/mbus-sub000/internal/frame"
	"github.com/alperakcan/mbus-sub000/internal/transport"
)

// Status is a BrokerClient's lifecycle stage, per spec.md §3.
type Status int

// Recognized client lifecycle stages.
const (
	StatusNone Status = iota
	StatusAccepted
	StatusConnected
	StatusDisconnected
)

func (s Status) String() string {
	switch s {
	case StatusAccepted:
		return "accepted"
	case StatusConnected:
		return "connected"
	case StatusDisconnected:
		return "disconnected"
	default:
		return "none"
	}
}

// Handle is a stable, generational reference to a Client. Pending calls
// store a Handle rather than a bare pointer so that a disconnect-then-
// reconnect under the same identifier can never resolve a stale wait
// against the wrong connection (spec.md §9, "Pointer graphs → arenas +
// indices").
type Handle struct {
	ID         string
	Generation uint64
}

// Client is the broker's in-memory representation of one connected peer
// (spec.md §3's BrokerClient entity): identity, transport, buffers,
// queues, subscriptions, registered commands, and keepalive state.
//
// The four outbound queues spec.md names (results, requests, events,
// waits) are collapsed here into a single ordered outbound channel plus
// the separate waits table: spec.md's only ordering requirement is FIFO
// delivery to one destination (§4.4, §5), which one channel satisfies
// directly and more simply than four queues drained under a priority
// rule the spec never mandates.
type Client struct {
	mu sync.Mutex

	id         string
	generation uint64
	conn       transport.Conn
	remoteAddr string
	status     Status
	compression frame.Compression

	subscriptions *SubscriptionTable
	commands      *CommandTable

	// waits holds pending forwarded calls this client is the destination
	// of — i.e. calls this client has not yet answered with
	// command.result. Owned by this Client per spec.md §9's "owned by the
	// destination client" rule.
	waits *PendingTable

	eventSeq int // next sequence stamped on events delivered to this client

	outbound    chan *envelope.Envelope
	closeReason envelope.DisconnectReason
	closeOnce   sync.Once
	done        chan struct{}

	pingInterval  time.Duration
	pingTimeout   time.Duration
	pingThreshold int
	lastRecv      time.Time
	missed        int
}

const outboundQueueCapacity = 4096

func newClient(id string, generation uint64, conn transport.Conn, remoteAddr string) *Client {
	return &Client{
		id:            id,
		generation:    generation,
		conn:          conn,
		remoteAddr:    remoteAddr,
		status:        StatusNone,
		compression:   frame.CompressionNone,
		subscriptions: NewSubscriptionTable(),
		commands:      NewCommandTable(),
		waits:         NewPendingTable(),
		outbound:      make(chan *envelope.Envelope, outboundQueueCapacity),
		done:          make(chan struct{}),
	}
}

// Handle returns a stable reference to this client.
func (c *Client) Handle() Handle {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Handle{ID: c.id, Generation: c.generation}
}

// ID returns the client's identifier.
func (c *Client) ID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.id
}

func (c *Client) setID(id string) {
	c.mu.Lock()
	c.id = id
	c.mu.Unlock()
}

// Status returns the client's current lifecycle stage.
func (c *Client) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *Client) setStatus(s Status) {
	c.mu.Lock()
	c.status = s
	c.mu.Unlock()
}

// RemoteAddr returns the peer's textual socket address, used in
// event.connected payloads.
func (c *Client) RemoteAddr() string {
	return c.remoteAddr
}

func (c *Client) setCompression(comp frame.Compression) {
	c.mu.Lock()
	c.compression = comp
	c.mu.Unlock()
}

func (c *Client) Compression() frame.Compression {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.compression
}

func (c *Client) configureKeepalive(interval, timeout time.Duration, threshold int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pingInterval = interval
	c.pingTimeout = timeout
	c.pingThreshold = threshold
	c.lastRecv = time.Now().Add(-interval)
	c.missed = 0
}

func (c *Client) keepaliveEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pingInterval > 0
}

// recordPing is called whenever an event.ping arrives from this client.
func (c *Client) recordPing() {
	c.mu.Lock()
	c.lastRecv = time.Now()
	c.missed = 0
	c.mu.Unlock()
}

// sweepKeepalive advances the missed-ping counter per spec.md §4.6 and
// reports whether the client has now exceeded its threshold.
func (c *Client) sweepKeepalive(now time.Time) (exceeded bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pingInterval <= 0 {
		return false
	}
	for now.After(c.lastRecv.Add(c.pingInterval + c.pingTimeout)) {
		c.missed++
		c.lastRecv = c.lastRecv.Add(c.pingInterval)
	}
	return c.missed > c.pingThreshold
}

// enqueue appends env to the client's outbound queue. If the queue is
// saturated it closes the client's connection and returns false — the
// Go-idiomatic stand-in for spec.md's byte-buffer-bounded backpressure
// (§5).
func (c *Client) enqueue(env *envelope.Envelope) bool {
	select {
	case c.outbound <- env:
		return true
	default:
		c.markClosed(envelope.ReasonInternalError)
		return false
	}
}

// nextEventSequence returns this client's next event sequence, wrapping
// per spec.md's [1,9999] rule. Distinct from any sender's own publish
// sequence — spec.md §4.5 requires each recipient's event stream to carry
// its own independent sequence numbers.
func (c *Client) nextEventSequence() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.eventSeq = envelope.NextSequence(c.eventSeq)
	return c.eventSeq
}

// markClosed records the close reason exactly once and signals done.
func (c *Client) markClosed(reason envelope.DisconnectReason) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closeReason = reason
		c.status = StatusDisconnected
		c.mu.Unlock()
		close(c.done)
		_ = c.conn.Close()
	})
}

func (c *Client) closeReasonValue() envelope.DisconnectReason {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeReason
}
