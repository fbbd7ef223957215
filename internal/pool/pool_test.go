package pool

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graphwire/bolt-go-driver/internal/bolt"
)

// noopChannel is a minimal transport.Channel fake: it never actually talks
// to anything, but lets a test fire its OnError handler to simulate a
// fatal transport failure.
type noopChannel struct {
	mu    sync.Mutex
	onErr func(error)
}

func (c *noopChannel) Write([]byte) error            { return nil }
func (c *noopChannel) OnMessage(func([]byte))        {}
func (c *noopChannel) OnError(h func(error)) {
	c.mu.Lock()
	c.onErr = h
	c.mu.Unlock()
}
func (c *noopChannel) Close(cb func()) {
	if cb != nil {
		cb()
	}
}
func (c *noopChannel) IsEncrypted() bool { return false }

func (c *noopChannel) fail(err error) {
	c.mu.Lock()
	h := c.onErr
	c.mu.Unlock()
	if h != nil {
		h(err)
	}
}

func newFakeConnection() (*bolt.Connection, *noopChannel) {
	ch := &noopChannel{}
	return bolt.NewConnection(ch, "pool-test", nil, nil), ch
}

func TestPoolAcquireCreatesUpToMaxSizeThenBlocks(t *testing.T) {
	var created int
	dial := func(ctx context.Context) (*bolt.Connection, error) {
		created++
		conn, _ := newFakeConnection()
		return conn, nil
	}
	p, err := NewPool(dial, 1)
	require.NoError(t, err)
	defer p.Close()

	ctx := context.Background()
	res1, err := p.Acquire(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, created)

	shortCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, err = p.Acquire(shortCtx)
	assert.Error(t, err, "pool at MaxSize must block until a slot frees up")

	res1.Release()
	res2, err := p.Acquire(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, created, "a released connection must be reused, not recreated")
	res2.Release()
}

func TestPoolDestroyRemovesConnection(t *testing.T) {
	dial := func(ctx context.Context) (*bolt.Connection, error) {
		conn, _ := newFakeConnection()
		return conn, nil
	}
	p, err := NewPool(dial, 2)
	require.NoError(t, err)
	defer p.Close()

	res, err := p.Acquire(context.Background())
	require.NoError(t, err)
	res.Destroy()

	require.Eventually(t, func() bool {
		return p.Stats().DestroyedConns == 1
	}, time.Second, time.Millisecond, "destructor should have run asynchronously")
}

func TestPoolAcquireAllIdleReturnsReleasedConnections(t *testing.T) {
	dial := func(ctx context.Context) (*bolt.Connection, error) {
		conn, _ := newFakeConnection()
		return conn, nil
	}
	p, err := NewPool(dial, 2)
	require.NoError(t, err)
	defer p.Close()

	res, err := p.Acquire(context.Background())
	require.NoError(t, err)
	res.Release()

	idle := p.AcquireAllIdle()
	require.Len(t, idle, 1)
	idle[0].ReleaseUnused()
}

func TestBreakerPoolTripsOpenAfterRepeatedAcquireFailures(t *testing.T) {
	dialErr := errors.New("address unreachable")
	dial := func(ctx context.Context) (*bolt.Connection, error) {
		return nil, dialErr
	}
	base, err := NewPool(dial, 5)
	require.NoError(t, err)
	defer base.Close()

	settings := NewDefaultBreakerSettings(1, time.Minute, time.Minute)
	bp := NewBreakerPool(base, "db1.example.com:7687", settings)

	var lastErr error
	tripped := false
	for i := 0; i < 10; i++ {
		_, lastErr = bp.Acquire(context.Background())
		if lastErr != nil && !errors.Is(lastErr, dialErr) {
			tripped = true
			break
		}
	}
	require.Error(t, lastErr)
	assert.True(t, tripped, "breaker should trip open instead of calling the failing dialer forever")
}
