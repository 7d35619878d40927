// Package broker implements the mbus message broker: the registry of
// connected clients, the built-in command router, and the per-connection
// reactor loops.
//
// spec.md's own broker is a single-threaded poll() loop driving every
// connection's read/write buffers and a periodic keepalive sweep from one
// thread. Go's idiomatic shape for this is goroutine-per-connection with
// the shared registries guarded by mutexes, plus one ticker-driven sweep
// goroutine — so that is what Service runs, rather than a literal
// translation of poll(). See SPEC_FULL.md's REDESIGN FLAGS section.
package broker

import (
	"log"
	"sync"
	"time"

	"github.com/alperakcan/mbus-sub000/internal/envelope"
	"github.com/alperakcan/mbus-sub000/internal/frame"
	"github.com/alperakcan/mbus-sub000/internal/transport"
)

// Options configures a Service.
type Options struct {
	Password        string
	RunTimeout      time.Duration
	MaxInboundBytes int
	Debug           bool
}

// Service is the running broker: its client registry, its set of
// listeners, and the goroutines that drive them.
type Service struct {
	registry *Registry
	password string
	maxInboundBytes int

	logger *log.Logger
	debug  bool

	listeners []transport.Listener

	wg        sync.WaitGroup
	closeOnce sync.Once
	closed    chan struct{}
}

const defaultMaxInboundBytes = 16 * 1024 * 1024
const keepaliveSweepInterval = 1 * time.Second

// NewService creates a broker Service. logger may be nil, in which case
// log.Default() is used; messages are only ever emitted when opts.Debug
// is set, matching the teacher's own `if debug { log.Printf(...) }` style
// rather than a leveled logging library — see SPEC_FULL.md's AMBIENT
// STACK section.
func NewService(opts Options, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}
	maxInbound := opts.MaxInboundBytes
	if maxInbound <= 0 {
		maxInbound = defaultMaxInboundBytes
	}
	return &Service{
		registry:        NewRegistry(),
		password:        opts.Password,
		maxInboundBytes: maxInbound,
		logger:          logger,
		debug:           opts.Debug,
		closed:          make(chan struct{}),
	}
}

func (s *Service) logf(format string, args ...interface{}) {
	if s.debug {
		s.logger.Printf(format, args...)
	}
}

// Serve accepts connections from listener until the Service is stopped,
// spawning one reader/writer goroutine pair per accepted connection.
func (s *Service) Serve(listener transport.Listener) {
	s.wg.Add(1)
	s.listeners = append(s.listeners, listener)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := listener.Accept()
			if err != nil {
				select {
				case <-s.closed:
					return
				default:
					s.logf("broker: accept error: %v", err)
					return
				}
			}
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				s.serveConn(conn)
			}()
		}
	}()
}

// Stop closes every listener and connected client, then waits for all
// per-connection goroutines to return.
func (s *Service) Stop() {
	s.closeOnce.Do(func() {
		close(s.closed)
		for _, l := range s.listeners {
			_ = l.Close()
		}
		for _, c := range s.registry.Snapshot() {
			c.markClosed(envelope.ReasonInternalError)
		}
	})
	s.wg.Wait()
}

// RunKeepaliveSweep runs the periodic keepalive check (spec.md §4.6)
// until the Service is stopped. Call it in its own goroutine; it blocks.
func (s *Service) RunKeepaliveSweep() {
	ticker := time.NewTicker(keepaliveSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.closed:
			return
		case now := <-ticker.C:
			for _, client := range s.registry.Snapshot() {
				if client.sweepKeepalive(now) {
					client.markClosed(envelope.ReasonPingThreshold)
				}
			}
		}
	}
}

// serveConn owns one accepted connection end to end: it runs the writer
// goroutine, reads frames until the connection or client is closed, and
// cleans up the registry and any pending waits on exit.
func (s *Service) serveConn(conn transport.Conn) {
	client := newClient("", s.registry.NextGeneration(), conn, conn.RemoteAddr().String())
	client.setStatus(StatusAccepted)

	var writerDone sync.WaitGroup
	writerDone.Add(1)
	go func() {
		defer writerDone.Done()
		s.runWriter(client)
	}()

	s.runReader(client)

	// markClosed is a no-op if a handler (command.close, keepalive sweep)
	// already closed this client with a more specific reason.
	client.markClosed(envelope.ReasonConnectionClosed)
	writerDone.Wait()

	s.registry.Remove(client)
	for _, call := range client.waits.DrainAll() {
		if originator, ok := s.registry.Get(call.Originator.ID); ok && originator.Handle() == call.Originator {
			failure, err := envelope.NewResult(envelope.ServerIdentifier, originator.ID(), call.Identifier, call.Sequence, StatusInternalError, nil)
			if err == nil {
				originator.enqueue(failure)
			}
		}
	}
	if client.ID() != "" {
		s.publishDisconnected(client, client.closeReasonValue())
	}
}

func (s *Service) runReader(client *Client) {
	buf := make([]byte, 0, 4096)
	tmp := make([]byte, 64*1024)
	for {
		n, err := client.conn.Read(tmp)
		if n > 0 {
			buf = append(buf, tmp[:n]...)
			if s.maxInboundBytes > 0 && len(buf) > s.maxInboundBytes {
				s.logf("broker: client %s exceeded max inbound buffer", client.ID())
				return
			}
			for {
				raw, rest, ok, ferr := frame.TryPop(buf, client.Compression())
				if ferr != nil {
					s.logf("broker: frame error from %s: %v", client.ID(), ferr)
					return
				}
				if !ok {
					buf = rest
					break
				}
				buf = rest
				env, perr := envelope.Parse([]byte(raw), client.ID())
				if perr != nil {
					s.logf("broker: parse error from %s: %v", client.ID(), perr)
					return
				}
				s.handleInbound(client, env)
			}
		}
		if err != nil {
			return
		}
		select {
		case <-client.done:
			return
		default:
		}
	}
}

func (s *Service) runWriter(client *Client) {
	var buf []byte
	for {
		select {
		case env, ok := <-client.outbound:
			if !ok {
				return
			}
			data, err := env.ToJSON()
			if err != nil {
				continue
			}
			compression := client.Compression()
			if env.Type == envelope.TypeResult && env.Identifier == envelope.CommandCreate {
				// spec.md §6.2/§8: the command.create exchange itself is
				// always uncompressed, even though this reply is what
				// negotiates compression for every frame after it.
				compression = frame.CompressionNone
			}
			buf = buf[:0]
			buf, err = frame.PushString(buf, compression, string(data))
			if err != nil {
				s.logf("broker: frame encode error for %s: %v", client.ID(), err)
				return
			}
			if _, err := client.conn.Write(buf); err != nil {
				return
			}
		case <-client.done:
			return
		}
	}
}
