package client

import (
	"context"
	"crypto/tls"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/alperakcan/mbus-sub000/internal/envelope"
	"github.com/alperakcan/mbus-sub000/internal/frame"
	"github.com/alperakcan/mbus-sub000/internal/transport"
)

// Options configures a Client.
type Options struct {
	Network string // "tcp", "unix", or "ws"
	Address string

	Identifier   string
	Password     string
	Compressions []string

	ConnectInterval time.Duration
	ConnectTimeout  time.Duration

	KeepaliveInterval  time.Duration
	KeepaliveTimeout   time.Duration
	KeepaliveThreshold int

	// TLS, when set, is used to dial over TLS instead of plain TCP.
	// Only meaningful when Network == "tcp".
	TLS *tls.Config

	// ChunkTokenBudget, when positive, makes Call split a payload whose
	// estimated token footprint exceeds it across multiple envelopes (see
	// internal/envelope's Budget/Split). Zero disables chunking.
	ChunkTokenBudget int

	Debug  bool
	Logger *log.Logger

	// OnConnect, when set, is invoked by Connect on the caller's goroutine
	// after every successful handshake. OnDisconnect, when set, is invoked
	// on every disconnect, on whichever goroutine ran the teardown (Close's
	// caller, or a reader goroutine that lost the connection).
	OnConnect    func(c *Client)
	OnDisconnect func(c *Client, reason envelope.DisconnectReason)
}

const defaultOutboundCapacity = 1024

// Client is one mbus client reactor: connection state, request
// correlation, and subscription/routine dispatch for a single logical
// peer identity.
type Client struct {
	opts Options

	mu    sync.Mutex
	state State
	id    string
	conn  transport.Conn
	compression frame.Compression
	done  chan struct{}

	outbound chan *envelope.Envelope

	requests      *requestTable
	subscriptions *subscriptionTable
	routines      *routineTable
	reassembler   *envelope.Reassembler

	logger *log.Logger
}

// New creates a Client in StateUnknown. Call Run to drive its connect
// loop, or Connect for a single connection attempt.
func New(opts Options) *Client {
	if opts.Network == "" {
		opts.Network = "tcp"
	}
	if opts.ConnectInterval <= 0 {
		opts.ConnectInterval = time.Second
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 5 * time.Second
	}
	if len(opts.Compressions) == 0 {
		opts.Compressions = []string{"zlib", "none"}
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Client{
		opts:          opts,
		id:            opts.Identifier,
		requests:      newRequestTable(),
		subscriptions: newSubscriptionTable(),
		routines:      newRoutineTable(),
		reassembler:   envelope.NewReassembler(),
		logger:        logger,
	}
}

func (c *Client) logf(format string, args ...interface{}) {
	if c.opts.Debug {
		c.logger.Printf(format, args...)
	}
}

func (c *Client) setState(s State) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !transitions[c.state][s] && c.state != s {
		return &ErrInvalidTransition{From: c.state, To: s}
	}
	c.state = s
	return nil
}

// State returns the client's current lifecycle stage.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Identifier returns the client's current identifier, empty before the
// first successful command.create handshake.
func (c *Client) Identifier() string {
	return c.identifier()
}

func (c *Client) identifier() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.id
}

func (c *Client) setIdentifier(id string) {
	c.mu.Lock()
	c.id = id
	c.mu.Unlock()
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

func (c *Client) nextOutboundSequence() int {
	req := c.requests.allocate(0)
	c.requests.release(req.sequence)
	return req.sequence
}

func (c *Client) dial(ctx context.Context) (transport.Conn, error) {
	switch c.opts.Network {
	case "unix":
		return transport.DialUnix(c.opts.Address)
	case "ws":
		return transport.DialWS(c.opts.Address)
	default:
		if c.opts.TLS != nil {
			return transport.DialTLS(c.opts.Address, c.opts.TLS)
		}
		return transport.DialTCP(c.opts.Address)
	}
}

// Connect performs a single connection attempt: dial, command.create
// handshake, then starts the reader/writer/keepalive goroutines. It
// returns once the handshake completes or fails; the connection then
// runs until it drops, at which point State transitions to
// StateDisconnected.
func (c *Client) Connect(ctx context.Context) error {
	if err := c.setState(StateConnecting); err != nil {
		return err
	}

	dialCtx, cancel := context.WithTimeout(ctx, c.opts.ConnectTimeout)
	defer cancel()
	conn, err := c.dial(dialCtx)
	if err != nil {
		c.setState(StateDisconnected)
		return fmt.Errorf("client: dial: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.done = make(chan struct{})
	c.outbound = make(chan *envelope.Envelope, defaultOutboundCapacity)
	done := c.done
	c.mu.Unlock()

	go c.runWriter(done)
	go c.runReader(done)

	res, err := c.call(envelope.ServerIdentifier, envelope.CommandCreate, createRequestPayload{
		Identifier:   c.identifier(),
		Password:     c.opts.Password,
		Compressions: c.opts.Compressions,
		Ping:         keepalivePayload(c.opts.KeepaliveInterval, c.opts.KeepaliveTimeout, c.opts.KeepaliveThreshold),
	}, c.opts.ConnectTimeout)
	if err != nil {
		c.teardown(envelope.ReasonInternalError)
		return fmt.Errorf("client: handshake: %w", err)
	}
	if res.Status == nil || *res.Status != 0 {
		c.teardown(envelope.ReasonInternalError)
		return fmt.Errorf("client: broker rejected command.create, status %v", res.Status)
	}

	var created struct {
		Identifier  string `json:"identifier"`
		Compression string `json:"compression"`
	}
	if err := res.UnmarshalPayload(&created); err == nil {
		c.setIdentifier(created.Identifier)
		c.setCompression(frame.Compression(created.Compression))
	}

	c.setState(StateConnected)
	if c.opts.KeepaliveInterval > 0 {
		go c.runKeepalive(c.opts.KeepaliveInterval, done)
	}
	if c.opts.OnConnect != nil {
		c.opts.OnConnect(c)
	}
	return nil
}

// Run drives the connect/retry loop until ctx is canceled, reconnecting
// after ConnectInterval whenever the connection drops (spec.md §5's
// "client is responsible for reconnection" rule).
func (c *Client) Run(ctx context.Context) error {
	for {
		if err := c.Connect(ctx); err != nil {
			c.logf("client: connect failed: %v", err)
		} else {
			<-c.done // blocks until this connection drops
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.opts.ConnectInterval):
		}
	}
}

// Close ends the current connection, if any, and transitions to
// StateDisconnected.
func (c *Client) Close() error {
	c.setState(StateDisconnecting)
	c.teardown(envelope.ReasonCloseCommand)
	return nil
}

func (c *Client) teardown(reason envelope.DisconnectReason) {
	c.mu.Lock()
	done := c.done
	conn := c.conn
	c.mu.Unlock()
	if done == nil {
		return
	}
	select {
	case <-done:
	default:
		close(done)
	}
	if conn != nil {
		_ = conn.Close()
	}
	c.requests.failAll()
	c.setState(StateDisconnected)
	if c.opts.OnDisconnect != nil {
		c.opts.OnDisconnect(c, reason)
	}
}

type createRequestPayload struct {
	Identifier   string       `json:"identifier"`
	Password     string       `json:"password"`
	Compressions []string     `json:"compressions"`
	Ping         pingPayload  `json:"ping"`
}

type pingPayload struct {
	Interval  int `json:"interval"`
	Timeout   int `json:"timeout"`
	Threshold int `json:"threshold"`
}

func keepalivePayload(interval, timeout time.Duration, threshold int) pingPayload {
	return pingPayload{
		Interval:  int(interval / time.Millisecond),
		Timeout:   int(timeout / time.Millisecond),
		Threshold: threshold,
	}
}
