package transport

import (
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// wsConn adapts a *websocket.Conn to the byte-stream Conn interface the
// frame codec expects. WebSocket is message-framed, not byte-framed, so
// Write sends one binary message per call and Read drains a leftover
// buffer across messages — from the frame codec's point of view this
// looks exactly like a TCP socket.
type wsConn struct {
	conn    *websocket.Conn
	leftover []byte
}

func newWSConn(c *websocket.Conn) *wsConn {
	return &wsConn{conn: c}
}

func (c *wsConn) Read(p []byte) (int, error) {
	for len(c.leftover) == 0 {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return 0, err
		}
		c.leftover = data
	}
	n := copy(p, c.leftover)
	c.leftover = c.leftover[n:]
	return n, nil
}

func (c *wsConn) Write(p []byte) (int, error) {
	if err := c.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (c *wsConn) Close() error                       { return c.conn.Close() }
func (c *wsConn) LocalAddr() net.Addr                { return c.conn.LocalAddr() }
func (c *wsConn) RemoteAddr() net.Addr               { return c.conn.RemoteAddr() }
func (c *wsConn) SetDeadline(t time.Time) error {
	if err := c.conn.SetReadDeadline(t); err != nil {
		return err
	}
	return c.conn.SetWriteDeadline(t)
}
func (c *wsConn) SetReadDeadline(t time.Time) error  { return c.conn.SetReadDeadline(t) }
func (c *wsConn) SetWriteDeadline(t time.Time) error { return c.conn.SetWriteDeadline(t) }

// wsListener bridges an http.Server accepting WebSocket upgrade requests
// into the Listener interface, queuing each upgraded connection for
// Accept to pick up.
type wsListener struct {
	addr     net.Addr
	upgrader websocket.Upgrader
	server   *http.Server
	rawLn    net.Listener
	connCh   chan Conn
	errCh    chan error
}

// ListenWS starts an HTTP server on addr that upgrades every request on
// path to a WebSocket connection, then hands it to the broker's accept
// loop exactly like a TCP connection.
func ListenWS(addr, path string) (Listener, error) {
	if addr == "" {
		addr = "127.0.0.1:8080"
	}
	if path == "" {
		path = "/"
	}

	rawLn, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: listen ws %s: %w", addr, err)
	}

	l := &wsListener{
		addr:     rawLn.Addr(),
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		rawLn:    rawLn,
		connCh:   make(chan Conn),
		errCh:    make(chan error, 1),
	}

	mux := http.NewServeMux()
	mux.HandleFunc(path, l.handleUpgrade)
	l.server = &http.Server{Handler: mux}

	go func() {
		if err := l.server.Serve(rawLn); err != nil && err != http.ErrServerClosed {
			select {
			case l.errCh <- err:
			default:
			}
		}
	}()

	return l, nil
}

func (l *wsListener) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := l.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	l.connCh <- newWSConn(conn)
}

func (l *wsListener) Accept() (Conn, error) {
	select {
	case c := <-l.connCh:
		return c, nil
	case err := <-l.errCh:
		return nil, err
	}
}

func (l *wsListener) Close() error {
	return l.rawLn.Close()
}

func (l *wsListener) Addr() net.Addr {
	return l.addr
}

// DialWS opens a client-side WebSocket connection to url (e.g.
// "ws://localhost:8080/").
func DialWS(url string) (Conn, error) {
	c, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("transport: dial ws %s: %w", url, err)
	}
	return newWSConn(c), nil
}
