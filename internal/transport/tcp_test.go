package transport

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTCPChannelRoundTrip(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	serverDone := make(chan []byte, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		buf := make([]byte, 5)
		n, _ := conn.Read(buf)
		serverDone <- buf[:n]
		conn.Write([]byte("world"))
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	ch, err := DialTCP(ctx, ln.Addr().String(), nil)
	require.NoError(t, err)
	defer ch.Close(nil)

	received := make(chan []byte, 1)
	ch.OnMessage(func(p []byte) { received <- p })

	require.NoError(t, ch.Write([]byte("hello")))

	select {
	case got := <-serverDone:
		assert.Equal(t, "hello", string(got))
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for server to receive write")
	}

	select {
	case got := <-received:
		assert.Equal(t, "world", string(got))
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for client to receive message")
	}

	assert.False(t, ch.IsEncrypted())
}

func TestTCPChannelReportsErrorOnRemoteClose(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		conn.Close()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	ch, err := DialTCP(ctx, ln.Addr().String(), nil)
	require.NoError(t, err)
	defer ch.Close(nil)

	errCh := make(chan error, 1)
	ch.OnError(func(e error) { errCh <- e })

	select {
	case err := <-errCh:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for error callback")
	}
}
