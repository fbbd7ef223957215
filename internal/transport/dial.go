package transport

import (
	"context"
	"crypto/tls"
	"fmt"
)

// Kind selects which concrete Channel implementation Dial constructs.
// Selection is explicit configuration, never a runtime environment sniff.
type Kind int

const (
	KindTCP Kind = iota
	KindWebSocket
)

// Dial opens a Channel of the requested kind against addr. For KindTCP,
// addr is "host:port"; for KindWebSocket it is a full ws://or wss:// URL.
func Dial(ctx context.Context, kind Kind, addr string, tlsConfig *tls.Config) (Channel, error) {
	switch kind {
	case KindTCP:
		return DialTCP(ctx, addr, tlsConfig)
	case KindWebSocket:
		return DialWebSocket(ctx, addr, tlsConfig)
	default:
		return nil, fmt.Errorf("transport: unknown channel kind %d", kind)
	}
}
