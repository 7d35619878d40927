package transport

import (
	"crypto/tls"
	"fmt"
	"net"
)

// tcpListener wraps a net.Listener so Accept returns our Conn interface.
type tcpListener struct {
	net.Listener
}

// ListenTCP binds a TCP listener at addr (e.g. "127.0.0.1:8000"). An empty
// addr uses the mbus default, "127.0.0.1:8000".
func ListenTCP(addr string) (Listener, error) {
	if addr == "" {
		addr = "127.0.0.1:8000"
	}
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: listen tcp %s: %w", addr, err)
	}
	return &tcpListener{Listener: l}, nil
}

func (l *tcpListener) Accept() (Conn, error) {
	c, err := l.Listener.Accept()
	if err != nil {
		return nil, err
	}
	return c, nil
}

// ListenUnix binds a Unix domain socket listener at path. An empty path
// uses the mbus default, "/tmp/mbus-server-uds".
func ListenUnix(path string) (Listener, error) {
	if path == "" {
		path = "/tmp/mbus-server-uds"
	}
	addr, err := net.ResolveUnixAddr("unix", path)
	if err != nil {
		return nil, fmt.Errorf("transport: resolve unix addr %s: %w", path, err)
	}
	l, err := net.ListenUnix("unix", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: listen unix %s: %w", path, err)
	}
	return &tcpListener{Listener: l}, nil
}

// ListenTLS wraps ListenTCP with a TLS handshake on accept, using the
// provided server configuration. Plain crypto/tls is used directly — no
// ecosystem TLS server library appears anywhere in the retrieved corpus,
// every repo that terminates TLS does so with the standard library.
func ListenTLS(addr string, config *tls.Config) (Listener, error) {
	inner, err := ListenTCP(addr)
	if err != nil {
		return nil, err
	}
	rawListener := inner.(*tcpListener).Listener
	return &tcpListener{Listener: tls.NewListener(rawListener, config)}, nil
}

// ListenUnixTLS wraps ListenUnix with a TLS handshake on accept.
func ListenUnixTLS(path string, config *tls.Config) (Listener, error) {
	inner, err := ListenUnix(path)
	if err != nil {
		return nil, err
	}
	rawListener := inner.(*tcpListener).Listener
	return &tcpListener{Listener: tls.NewListener(rawListener, config)}, nil
}

// DialTCP opens a plain TCP connection to addr.
func DialTCP(addr string) (Conn, error) {
	c, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: dial tcp %s: %w", addr, err)
	}
	return c, nil
}

// DialUnix opens a connection to a Unix domain socket at path.
func DialUnix(path string) (Conn, error) {
	c, err := net.Dial("unix", path)
	if err != nil {
		return nil, fmt.Errorf("transport: dial unix %s: %w", path, err)
	}
	return c, nil
}

// DialTLS opens a TLS connection to addr.
func DialTLS(addr string, config *tls.Config) (Conn, error) {
	c, err := tls.Dial("tcp", addr, config)
	if err != nil {
		return nil, fmt.Errorf("transport: dial tls %s: %w", addr, err)
	}
	return c, nil
}
