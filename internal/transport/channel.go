// Package transport implements the duplex byte transports this driver can
// speak over: a native TCP socket and a browser-oriented WebSocket, both
// behind the same Channel contract, plus the TLS trust strategies layered
// on top of the native transport.
package transport

// Channel is a duplex byte transport. Write enqueues bytes for sending;
// before the underlying connection is established they are queued locally
// and drained once it is. OnMessage/OnError register the single handlers
// invoked for inbound data and for the one fatal transport error a channel
// ever reports. Close requests graceful shutdown and invokes cb once the
// underlying socket has ended.
type Channel interface {
	Write(p []byte) error
	OnMessage(handler func([]byte))
	OnError(handler func(error))
	Close(cb func())
	IsEncrypted() bool
}

// DefaultPort is the native protocol's default TCP port.
const DefaultPort = 7687
