// Package broker is the public entry point for embedding an mbus broker
// in another program. It wraps internal/broker's Service so callers
// outside this module never need to import an internal package directly.
package broker

import (
	"crypto/tls"
	"fmt"
	"log"
	"time"

	"github.com/alperakcan/mbus-sub000/internal/broker"
	"github.com/alperakcan/mbus-sub000/internal/config"
	"github.com/alperakcan/mbus-sub000/internal/transport"
)

// Config is the subset of internal/config.BrokerConfig a caller assembles
// to start a broker without reading a YAML file.
type Config struct {
	TCPAddr  string
	UnixAddr string
	WSAddr   string
	WSPath   string

	Password        string
	Debug           bool
	RunTimeout      time.Duration
	MaxInboundBytes int

	Logger *log.Logger
}

// Broker is a running mbus broker: its listeners and its underlying
// Service.
type Broker struct {
	svc *broker.Service
}

// New constructs a Broker from cfg without starting it. Call Listen for
// each transport to accept on, then Run.
func New(cfg Config) *Broker {
	return &Broker{
		svc: broker.NewService(broker.Options{
			Password:        cfg.Password,
			RunTimeout:      cfg.RunTimeout,
			MaxInboundBytes: cfg.MaxInboundBytes,
			Debug:           cfg.Debug,
		}, cfg.Logger),
	}
}

// FromConfigFile loads a YAML configuration file and returns a Broker
// along with the transports it should listen on, per the file's
// broker.tcp_addr / unix_addr / ws_addr settings.
func FromConfigFile(filename string) (*Broker, *config.Config, error) {
	cfg, err := config.Load(filename)
	if err != nil {
		return nil, nil, err
	}
	b := New(Config{
		Password:        cfg.Broker.Password,
		Debug:           cfg.Broker.Debug || cfg.Debug,
		RunTimeout:      time.Duration(cfg.Broker.RunTimeoutMS) * time.Millisecond,
		MaxInboundBytes: cfg.Broker.MaxInboundKB * 1024,
	})
	return b, cfg, nil
}

// ListenTCP binds and serves a TCP listener at addr.
func (b *Broker) ListenTCP(addr string) error {
	l, err := transport.ListenTCP(addr)
	if err != nil {
		return err
	}
	b.svc.Serve(l)
	return nil
}

// ListenUnix binds and serves a Unix domain socket listener at path.
func (b *Broker) ListenUnix(path string) error {
	l, err := transport.ListenUnix(path)
	if err != nil {
		return err
	}
	b.svc.Serve(l)
	return nil
}

// ListenTLS binds and serves a TLS-wrapped TCP listener at addr, using the
// given certificate/key pair.
func (b *Broker) ListenTLS(addr, certFile, keyFile string) error {
	tlsConfig, err := loadTLSConfig(certFile, keyFile)
	if err != nil {
		return err
	}
	l, err := transport.ListenTLS(addr, tlsConfig)
	if err != nil {
		return err
	}
	b.svc.Serve(l)
	return nil
}

// ListenUnixTLS binds and serves a TLS-wrapped Unix domain socket listener
// at path.
func (b *Broker) ListenUnixTLS(path, certFile, keyFile string) error {
	tlsConfig, err := loadTLSConfig(certFile, keyFile)
	if err != nil {
		return err
	}
	l, err := transport.ListenUnixTLS(path, tlsConfig)
	if err != nil {
		return err
	}
	b.svc.Serve(l)
	return nil
}

func loadTLSConfig(certFile, keyFile string) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("broker: load tls keypair: %w", err)
	}
	return &tls.Config{Certificates: []tls.Certificate{cert}}, nil
}

// ListenWS binds and serves a WebSocket listener at addr/path.
func (b *Broker) ListenWS(addr, path string) error {
	l, err := transport.ListenWS(addr, path)
	if err != nil {
		return err
	}
	b.svc.Serve(l)
	return nil
}

// Run starts the keepalive sweep goroutine and blocks until Stop is
// called from another goroutine.
func (b *Broker) Run() {
	b.svc.RunKeepaliveSweep()
}

// Stop closes every listener and connected client.
func (b *Broker) Stop() {
	b.svc.Stop()
}
