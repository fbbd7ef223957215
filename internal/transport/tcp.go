package transport

import (
	"context"
	"crypto/tls"
	"net"
	"sync"

	"github.com/graphwire/bolt-go-driver/dberr"
)

// TCPChannel is the native socket transport. Dialing is synchronous (Go's
// net.Dialer already blocks until connect succeeds or the context
// deadline fires), so there is no pre-connect write queue to maintain in
// practice; Write simply serialises concurrent writers onto the socket.
type TCPChannel struct {
	conn      net.Conn
	encrypted bool

	mu        sync.Mutex
	onMessage func([]byte)
	onError   func(error)

	closeOnce sync.Once
	readDone  chan struct{}
}

// DialTCP connects to addr (host:port) with the given dial timeout context
// and, if tlsConfig is non-nil, wraps the connection in TLS using it.
func DialTCP(ctx context.Context, addr string, tlsConfig *tls.Config) (*TCPChannel, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, &dberr.ServiceUnavailableError{Message: "could not connect to " + addr, Cause: err}
	}
	encrypted := false
	if tlsConfig != nil {
		tlsConn := tls.Client(conn, tlsConfig)
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			conn.Close()
			return nil, &dberr.ServiceUnavailableError{Message: "TLS handshake failed with " + addr, Cause: err}
		}
		conn = tlsConn
		encrypted = true
	}
	c := &TCPChannel{conn: conn, encrypted: encrypted, readDone: make(chan struct{})}
	go c.readLoop()
	return c, nil
}

func (c *TCPChannel) readLoop() {
	defer close(c.readDone)
	buf := make([]byte, 32*1024)
	for {
		n, err := c.conn.Read(buf)
		if n > 0 {
			c.mu.Lock()
			handler := c.onMessage
			c.mu.Unlock()
			if handler != nil {
				handler(append([]byte(nil), buf[:n]...))
			}
		}
		if err != nil {
			c.mu.Lock()
			handler := c.onError
			c.mu.Unlock()
			if handler != nil {
				handler(dberr.ClassifyTransportError("connection closed", err))
			}
			return
		}
	}
}

func (c *TCPChannel) Write(p []byte) error {
	_, err := c.conn.Write(p)
	if err != nil {
		return dberr.ClassifyTransportError("write failed", err)
	}
	return nil
}

func (c *TCPChannel) OnMessage(handler func([]byte)) {
	c.mu.Lock()
	c.onMessage = handler
	c.mu.Unlock()
}

func (c *TCPChannel) OnError(handler func(error)) {
	c.mu.Lock()
	c.onError = handler
	c.mu.Unlock()
}

func (c *TCPChannel) Close(cb func()) {
	c.closeOnce.Do(func() {
		c.conn.Close()
	})
	if cb != nil {
		go func() {
			<-c.readDone
			cb()
		}()
	}
}

func (c *TCPChannel) IsEncrypted() bool { return c.encrypted }
