package transport

import (
	"context"
	"crypto/tls"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/graphwire/bolt-go-driver/dberr"
)

// WebSocketChannel is the browser-oriented transport: the same duplex byte
// contract layered over a WebSocket binary-message stream instead of a raw
// TCP socket, for environments (browser WASM, restrictive proxies) where a
// plain TCP dial is unavailable.
type WebSocketChannel struct {
	conn      *websocket.Conn
	encrypted bool

	writeMu sync.Mutex

	mu        sync.Mutex
	onMessage func([]byte)
	onError   func(error)

	closeOnce sync.Once
	readDone  chan struct{}
}

// DialWebSocket connects to a ws:// or wss:// URL. tlsConfig, if non-nil,
// is only consulted for wss:// URLs.
func DialWebSocket(ctx context.Context, url string, tlsConfig *tls.Config) (*WebSocketChannel, error) {
	dialer := websocket.Dialer{TLSClientConfig: tlsConfig}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, &dberr.ServiceUnavailableError{Message: "could not connect to " + url, Cause: err}
	}
	c := &WebSocketChannel{
		conn:      conn,
		encrypted: tlsConfig != nil,
		readDone:  make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

func (c *WebSocketChannel) readLoop() {
	defer close(c.readDone)
	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			handler := c.onError
			c.mu.Unlock()
			if handler != nil {
				handler(dberr.ClassifyTransportError("websocket closed", err))
			}
			return
		}
		if msgType != websocket.BinaryMessage {
			continue
		}
		c.mu.Lock()
		handler := c.onMessage
		c.mu.Unlock()
		if handler != nil {
			handler(data)
		}
	}
}

func (c *WebSocketChannel) Write(p []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return dberr.ClassifyTransportError("websocket write failed", err)
	}
	return nil
}

func (c *WebSocketChannel) OnMessage(handler func([]byte)) {
	c.mu.Lock()
	c.onMessage = handler
	c.mu.Unlock()
}

func (c *WebSocketChannel) OnError(handler func(error)) {
	c.mu.Lock()
	c.onError = handler
	c.mu.Unlock()
}

func (c *WebSocketChannel) Close(cb func()) {
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		_ = c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()
		c.conn.Close()
	})
	if cb != nil {
		go func() {
			<-c.readDone
			cb()
		}()
	}
}

func (c *WebSocketChannel) IsEncrypted() bool { return c.encrypted }
