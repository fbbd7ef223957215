// Package pool manages per-address connection pools: one jackc/puddle pool
// per address, each optionally wrapped in a sony/gobreaker circuit breaker
// so a address whose member keeps failing trips open instead of every
// session queueing behind a socket that will never connect.
package pool

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/jackc/puddle/v2"

	"github.com/graphwire/bolt-go-driver/internal/bolt"
)

// Resource is a borrowed connection. Exactly one of Release/ReleaseUnused/
// Destroy must be called once the borrower is done with it.
type Resource interface {
	// Value returns the underlying connection.
	Value() *bolt.Connection

	// Release returns a healthy connection to the pool for reuse.
	Release()

	// ReleaseUnused returns the connection without counting it as used —
	// for idle-eviction scans that only inspected a connection.
	ReleaseUnused()

	// Destroy closes the connection and removes it from the pool. Callers
	// must use this instead of Release whenever the connection reports
	// IsBroken after its last use.
	Destroy()

	CreationTime() time.Time
	IdleDuration() time.Duration
}

// Pool manages the connections for a single address.
type Pool interface {
	// Acquire blocks until a connection is available or ctx is done,
	// creating one if the pool is under its size limit.
	Acquire(ctx context.Context) (Resource, error)

	// AcquireAllIdle acquires every currently idle connection, for the
	// idle-eviction sweep.
	AcquireAllIdle() []Resource

	// Close closes the pool and every connection it holds.
	Close()

	Stats() Stats
}

// Stats is a snapshot of one address's pool state.
type Stats struct {
	TotalConns     int32
	IdleConns      int32
	ActiveConns    int32
	AcquireCount   uint64
	CreatedConns   uint64
	DestroyedConns uint64
	AcquireErrors  uint64
}

// Dialer produces a new, already-handshaken-and-authenticated connection.
// The pool never performs handshake/HELLO itself; that belongs to whatever
// constructs connections for a given address (driver-level dial logic).
type Dialer func(ctx context.Context) (*bolt.Connection, error)

type puddlePool struct {
	pool           *puddle.Pool[*bolt.Connection]
	createdConns   atomic.Int64
	destroyedConns atomic.Int64
}

// NewPool builds a puddle-backed Pool for one address. maxSize caps the
// number of live connections (the configured max_connection_pool_size).
func NewPool(dial Dialer, maxSize int32) (Pool, error) {
	pp := &puddlePool{}
	p, err := puddle.NewPool(&puddle.Config[*bolt.Connection]{
		Constructor: func(ctx context.Context) (*bolt.Connection, error) {
			conn, err := dial(ctx)
			if err == nil {
				pp.createdConns.Add(1)
			}
			return conn, err
		},
		Destructor: func(c *bolt.Connection) {
			pp.destroyedConns.Add(1)
			c.Close()
		},
		MaxSize: maxSize,
	})
	if err != nil {
		return nil, err
	}
	pp.pool = p
	return pp, nil
}

func (p *puddlePool) Acquire(ctx context.Context) (Resource, error) {
	return p.pool.Acquire(ctx)
}

func (p *puddlePool) AcquireAllIdle() []Resource {
	res := p.pool.AcquireAllIdle()
	out := make([]Resource, len(res))
	for i, r := range res {
		out[i] = r
	}
	return out
}

func (p *puddlePool) Close() { p.pool.Close() }

func (p *puddlePool) Stats() Stats {
	s := p.pool.Stat()
	return Stats{
		TotalConns:     s.TotalResources(),
		IdleConns:      s.IdleResources(),
		ActiveConns:    s.AcquiredResources(),
		AcquireCount:   uint64(s.AcquireCount()),
		CreatedConns:   uint64(p.createdConns.Load()),
		DestroyedConns: uint64(p.destroyedConns.Load()),
		AcquireErrors:  uint64(s.CanceledAcquireCount()),
	}
}
