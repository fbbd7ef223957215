package pool

import (
	"context"
	"sync"
	"time"

	"github.com/graphwire/bolt-go-driver/internal/bolt"
	"github.com/graphwire/bolt-go-driver/internal/coarsetime"
)

// AddressPool is one address's connection pool plus its circuit breaker and
// idle-eviction sweep, the unit the driver's pool registry keys on.
type AddressPool struct {
	addr string
	pool Pool

	maxIdle   time.Duration
	stopEvict chan struct{}
	evictOnce sync.Once
}

// Options controls an AddressPool's eviction policy and circuit breaker.
// A nil BreakerSettings disables the breaker entirely.
type Options struct {
	MaxSize         int32
	MaxIdle         time.Duration // 0 disables idle eviction
	EvictInterval   time.Duration // 0 defaults to MaxIdle/2
	BreakerSettings *BreakerSettings
}

// BreakerSettings configures the per-address circuit breaker. A nil value
// on Options disables the breaker.
type BreakerSettings struct {
	MaxRequests uint32
	Interval    time.Duration
	Timeout     time.Duration
}

// NewAddressPool builds the pool for one address, wiring dial through
// puddle and, if configured, a circuit breaker, then starts the idle
// eviction sweep if MaxIdle > 0.
func NewAddressPool(addr string, dial Dialer, opts Options) (*AddressPool, error) {
	base, err := NewPool(dial, opts.MaxSize)
	if err != nil {
		return nil, err
	}

	var p Pool = base
	if opts.BreakerSettings != nil {
		settings := NewDefaultBreakerSettings(
			opts.BreakerSettings.MaxRequests,
			opts.BreakerSettings.Interval,
			opts.BreakerSettings.Timeout,
		)
		p = NewBreakerPool(p, addr, settings)
	}

	ap := &AddressPool{addr: addr, pool: p, maxIdle: opts.MaxIdle, stopEvict: make(chan struct{})}
	if opts.MaxIdle > 0 {
		interval := opts.EvictInterval
		if interval <= 0 {
			interval = opts.MaxIdle / 2
		}
		go ap.evictLoop(interval)
	}
	return ap, nil
}

func (ap *AddressPool) Address() string { return ap.addr }

func (ap *AddressPool) Acquire(ctx context.Context) (Resource, error) {
	return ap.pool.Acquire(ctx)
}

func (ap *AddressPool) Stats() Stats { return ap.pool.Stats() }

// Close stops the eviction sweep and closes every connection.
func (ap *AddressPool) Close() {
	ap.evictOnce.Do(func() { close(ap.stopEvict) })
	ap.pool.Close()
}

// WithConnection acquires a connection, runs fn, and destroys the
// connection if it reports IsBroken afterwards, releasing it otherwise — grounded
// on the same acquire/use/release-or-destroy shape as a single memcache
// request-response cycle, generalized here to an arbitrary unit of work
// against a long-lived Connection rather than one round trip.
func (ap *AddressPool) WithConnection(ctx context.Context, fn func(*bolt.Connection) error) error {
	res, err := ap.Acquire(ctx)
	if err != nil {
		return err
	}
	err = fn(res.Value())
	// A FAILURE the bolt layer already acknowledged leaves the connection
	// in StateReady regardless of err; only a connection IsBroken reports
	// (handshake/transport/protocol level) must be discarded here. Query
	// errors like a classifiable dberr.Classified are the caller's concern
	// (retry executor), not the pool's.
	if res.Value().IsBroken() {
		res.Destroy()
		return err
	}
	res.Release()
	return err
}

// evictLoop periodically destroys idle connections that have been idle for
// at least maxIdle or were created at least 4*maxIdle ago, and returns the
// rest, unused, to the pool — grounded on pool_custom.go's
// per-resource CreationTime/IdleDuration bookkeeping.
func (ap *AddressPool) evictLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ap.stopEvict:
			return
		case <-ticker.C:
			ap.evictOnceNow()
		}
	}
}

func (ap *AddressPool) evictOnceNow() {
	// coarsetime is accurate enough for an age comparison measured in
	// minutes, and keeps a sweep over many idle connections from calling
	// time.Now() once per resource.
	now := coarsetime.Now()
	for _, res := range ap.pool.AcquireAllIdle() {
		if res.IdleDuration() >= ap.maxIdle || now.Sub(res.CreationTime()) >= ap.maxIdle*4 {
			res.Destroy()
			continue
		}
		res.ReleaseUnused()
	}
}
