// Package retry implements the transaction retry executor: given a way to
// begin a transaction and a unit of work to run inside it, it retries on
// classified-retryable failures with exponential backoff and jitter, up to
// a total time budget.
package retry

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/graphwire/bolt-go-driver/dberr"
)

// Transaction is the minimal shape the executor needs from whatever
// session.go's explicit transaction type turns out to be: committable and
// rollback-able, both against a context for cancellation.
type Transaction interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// BeginFunc opens a new transaction, the tx_creator of the algorithm.
type BeginFunc func(ctx context.Context) (Transaction, error)

// WorkFunc runs the caller's unit of work against an open transaction.
type WorkFunc[T any] func(ctx context.Context, tx Transaction) (T, error)

// Settings parametrizes the backoff schedule.
type Settings struct {
	MaxElapsedTime time.Duration
	InitialDelay   time.Duration
	Multiplier     float64
	JitterFactor   float64
}

// DefaultSettings mirrors common driver defaults: 30s budget, 1s initial
// delay, doubling backoff, 20% jitter.
func DefaultSettings() Settings {
	return Settings{
		MaxElapsedTime: 30 * time.Second,
		InitialDelay:   time.Second,
		Multiplier:     2.0,
		JitterFactor:   0.2,
	}
}

// Executor runs Execute's retry loop under one Settings.
type Executor struct {
	settings Settings
	sleep    func(ctx context.Context, d time.Duration) error
	now      func() time.Time
}

// NewExecutor builds an Executor with the given settings.
func NewExecutor(settings Settings) *Executor {
	return &Executor{
		settings: settings,
		sleep:    sleepCtx,
		now:      time.Now,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Execute runs the algorithm: begin a transaction, run work, commit; retry
// the whole begin/work/commit cycle on a retryable error until the total
// elapsed time exceeds settings.MaxElapsedTime, at which point the last
// error is returned. A non-retryable error propagates immediately without
// retrying. A panic raised synchronously inside work is recovered and
// classified exactly like an error work returns.
func Execute[T any](ctx context.Context, ex *Executor, begin BeginFunc, work WorkFunc[T]) (T, error) {
	var zero T
	start := ex.now()
	delay := ex.settings.InitialDelay

	for {
		result, err := attempt(ctx, begin, work)
		if err == nil {
			return result, nil
		}
		if !dberr.IsRetryable(err) {
			return zero, err
		}
		if ex.now().Sub(start) >= ex.settings.MaxElapsedTime {
			return zero, err
		}
		if sleepErr := ex.sleep(ctx, jittered(delay, ex.settings.JitterFactor)); sleepErr != nil {
			return zero, err
		}
		delay = time.Duration(float64(delay) * ex.settings.Multiplier)
	}
}

// attempt runs one begin/work/commit cycle. A work error rolls the
// transaction back and is returned as-is; a clean work result followed by
// a failing commit returns the commit error instead.
func attempt[T any](ctx context.Context, begin BeginFunc, work WorkFunc[T]) (result T, err error) {
	var zero T
	tx, err := begin(ctx)
	if err != nil {
		return zero, err
	}

	result, workErr := callWork(ctx, tx, work)
	if workErr != nil {
		_ = tx.Rollback(ctx)
		return zero, workErr
	}

	if commitErr := tx.Commit(ctx); commitErr != nil {
		return zero, commitErr
	}
	return result, nil
}

// callWork invokes work and converts a synchronous panic into an error,
// the Go analog of the algorithm's "errors thrown synchronously by the
// work function are caught and classified identically."
func callWork[T any](ctx context.Context, tx Transaction, work WorkFunc[T]) (result T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = recoverAsError(r)
		}
	}()
	return work(ctx, tx)
}

func recoverAsError(r any) error {
	if err, ok := r.(error); ok {
		return fmt.Errorf("panic in retry work function: %w", err)
	}
	return fmt.Errorf("panic in retry work function: %v", r)
}

func jittered(base time.Duration, factor float64) time.Duration {
	if factor <= 0 || base <= 0 {
		return base
	}
	spread := float64(base) * factor
	offset := (rand.Float64()*2 - 1) * spread
	d := time.Duration(float64(base) + offset)
	if d < 0 {
		return 0
	}
	return d
}
