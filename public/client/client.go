// Package client is the public entry point for embedding an mbus client
// in another program. It wraps internal/client's Client so callers
// outside this module never need to import an internal package directly.
package client

import (
	"context"
	"crypto/tls"
	"fmt"
	"log"
	"time"

	"github.com/alperakcan/mbus-sub000/internal/client"
	"github.com/alperakcan/mbus-sub000/internal/config"
	"github.com/alperakcan/mbus-sub000/internal/envelope"
)

// EventHandler receives events a Client subscribed to.
type EventHandler = client.EventHandler

// RoutineHandler answers a command a Client registered.
type RoutineHandler = client.RoutineHandler

// DisconnectReason explains why a Client's connection to the broker
// ended.
type DisconnectReason = envelope.DisconnectReason

// Config configures a new Client connection.
type Config struct {
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

	// ChunkTokenBudget, when positive, splits a Call payload whose
	// estimated token footprint exceeds it across multiple envelopes.
	ChunkTokenBudget int

	Debug  bool
	Logger *log.Logger

	OnConnect    func(c *Client)
	OnDisconnect func(c *Client, reason DisconnectReason)
}

// Client is a connection to an mbus broker.
type Client struct {
	inner *client.Client
}

// New constructs a Client from cfg. Call Connect for a single connection
// attempt or Run to drive the connect/retry loop.
func New(cfg Config) *Client {
	c := &Client{}
	c.inner = client.New(client.Options{
		Network:            cfg.Network,
		Address:            cfg.Address,
		Identifier:         cfg.Identifier,
		Password:           cfg.Password,
		Compressions:       cfg.Compressions,
		ConnectInterval:    cfg.ConnectInterval,
		ConnectTimeout:     cfg.ConnectTimeout,
		KeepaliveInterval:  cfg.KeepaliveInterval,
		KeepaliveTimeout:   cfg.KeepaliveTimeout,
		KeepaliveThreshold: cfg.KeepaliveThreshold,
		TLS:                cfg.TLS,
		ChunkTokenBudget:   cfg.ChunkTokenBudget,
		Debug:              cfg.Debug,
		Logger:             cfg.Logger,
		OnConnect: func(inner *client.Client) {
			if cfg.OnConnect != nil {
				cfg.OnConnect(c)
			}
		},
		OnDisconnect: func(inner *client.Client, reason envelope.DisconnectReason) {
			if cfg.OnDisconnect != nil {
				cfg.OnDisconnect(c, reason)
			}
		},
	})
	return c
}

// FromConfigFile loads a YAML configuration file and returns an
// unconnected Client built from its client.* settings.
func FromConfigFile(filename string) (*Client, error) {
	cfg, err := config.Load(filename)
	if err != nil {
		return nil, err
	}

	var tlsConfig *tls.Config
	if cfg.Client.TLS.Enabled {
		tlsConfig = &tls.Config{}
		if cfg.Client.TLS.CertFile != "" && cfg.Client.TLS.KeyFile != "" {
			cert, err := tls.LoadX509KeyPair(cfg.Client.TLS.CertFile, cfg.Client.TLS.KeyFile)
			if err != nil {
				return nil, fmt.Errorf("client: load tls keypair: %w", err)
			}
			tlsConfig.Certificates = []tls.Certificate{cert}
		}
	}

	return New(Config{
		Network:            cfg.Client.Network,
		Address:            cfg.Client.Address,
		Identifier:         cfg.Client.Identifier,
		Password:           cfg.Client.Password,
		Compressions:       cfg.Client.Compressions,
		ConnectInterval:    time.Duration(cfg.Client.ConnectIntervalMS) * time.Millisecond,
		ConnectTimeout:     time.Duration(cfg.Client.ConnectTimeoutMS) * time.Millisecond,
		KeepaliveInterval:  time.Duration(cfg.Client.Keepalive.IntervalMS) * time.Millisecond,
		KeepaliveTimeout:   time.Duration(cfg.Client.Keepalive.TimeoutMS) * time.Millisecond,
		KeepaliveThreshold: cfg.Client.Keepalive.Threshold,
		TLS:                tlsConfig,
		ChunkTokenBudget:   cfg.Client.ChunkTokenBudget,
		Debug:              cfg.Client.Debug || cfg.Debug,
	}), nil
}

// Connect performs a single connection attempt and handshake.
func (c *Client) Connect(ctx context.Context) error {
	return c.inner.Connect(ctx)
}

// Run drives the connect/retry loop until ctx is canceled.
func (c *Client) Run(ctx context.Context) error {
	return c.inner.Run(ctx)
}

// Close ends the current connection.
func (c *Client) Close() error {
	return c.inner.Close()
}

// Identifier returns the client's broker-assigned identifier.
func (c *Client) Identifier() string {
	return c.inner.Identifier()
}

// State returns the client's current lifecycle stage as a string
// ("unknown", "connecting", "connected", "disconnecting", "disconnected").
func (c *Client) State() string {
	return c.inner.State().String()
}

// Call sends a command to another client (or the broker) and waits for
// its result. A zero timeout waits indefinitely.
func (c *Client) Call(destination, identifier string, payload interface{}, timeout time.Duration) (*envelope.Envelope, error) {
	return c.inner.Call(destination, identifier, payload, timeout)
}

// Subscribe registers handler for events matching (source, event).
func (c *Client) Subscribe(source, event string, handler EventHandler) error {
	return c.inner.Subscribe(source, event, handler)
}

// Unsubscribe removes a subscription previously installed by Subscribe.
func (c *Client) Unsubscribe(source, event string) error {
	return c.inner.Unsubscribe(source, event)
}

// Register installs handler as this client's answer to command calls
// named command.
func (c *Client) Register(command string, handler RoutineHandler) error {
	return c.inner.Register(command, handler)
}

// Unregister removes a routine previously installed by Register.
func (c *Client) Unregister(command string) error {
	return c.inner.Unregister(command)
}

// Publish asks the broker to fan an event out to subscribers when
// destination is empty; otherwise destination selects the recipients:
// every other client, subscribers, or the one client with that
// identifier.
func (c *Client) Publish(identifier string, payload interface{}, destination string) error {
	return c.inner.Publish(identifier, payload, destination)
}

// Status queries the broker's command.status introspection command.
func (c *Client) Status(timeout time.Duration) (*envelope.Envelope, error) {
	return c.inner.Status(timeout)
}

// Clients queries the broker's command.clients introspection command.
func (c *Client) Clients(timeout time.Duration) (*envelope.Envelope, error) {
	return c.inner.Clients(timeout)
}
