package pool

import (
	"context"
	"time"

	"github.com/sony/gobreaker/v2"
)

// breakerPool wraps a Pool so that repeated Acquire failures (meaning the
// address's constructor — dial, handshake, HELLO — keeps failing) trip a
// circuit breaker, failing fast instead of letting every session queue up
// behind a dead address. It never wraps individual queries: once a
// connection is acquired, whatever the caller does with it is outside the
// breaker's view, matching routing's own forget semantics (§4.I) which
// handle write-unavailability at the table level instead.
type breakerPool struct {
	inner Pool
	cb    *gobreaker.CircuitBreaker[Resource]
}

// NewBreakerPool wraps inner with a circuit breaker named addr. Settings
// controls trip sensitivity; NewDefaultBreakerSettings gives a sane
// starting point.
func NewBreakerPool(inner Pool, addr string, settings gobreaker.Settings) Pool {
	if settings.Name == "" {
		settings.Name = addr
	}
	return &breakerPool{
		inner: inner,
		cb:    gobreaker.NewCircuitBreaker[Resource](settings),
	}
}

// NewDefaultBreakerSettings gives sane defaults: trip once at least 3
// requests were seen and 60% failed.
func NewDefaultBreakerSettings(maxRequests uint32, interval, timeout time.Duration) gobreaker.Settings {
	return gobreaker.Settings{
		MaxRequests: maxRequests,
		Interval:    interval,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
	}
}

func (p *breakerPool) Acquire(ctx context.Context) (Resource, error) {
	return p.cb.Execute(func() (Resource, error) {
		return p.inner.Acquire(ctx)
	})
}

func (p *breakerPool) AcquireAllIdle() []Resource { return p.inner.AcquireAllIdle() }
func (p *breakerPool) Close()                     { p.inner.Close() }
func (p *breakerPool) Stats() Stats               { return p.inner.Stats() }

// BreakerState reports the current breaker state, for diagnostics.
func (p *breakerPool) BreakerState() gobreaker.State { return p.cb.State() }
