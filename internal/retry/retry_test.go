package retry

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graphwire/bolt-go-driver/dberr"
)

// fakeTx records whether it was committed or rolled back.
type fakeTx struct {
	committed  bool
	rolledBack bool
	commitErr  error
}

func (tx *fakeTx) Commit(ctx context.Context) error {
	tx.committed = true
	return tx.commitErr
}

func (tx *fakeTx) Rollback(ctx context.Context) error {
	tx.rolledBack = true
	return nil
}

// fakeClock drives Execute's elapsed-time and sleep logic deterministically:
// every sleep call advances the clock by the requested duration instead of
// actually blocking.
type fakeClock struct {
	t      time.Time
	delays []time.Duration
}

func newFakeClock() *fakeClock { return &fakeClock{t: time.Unix(0, 0)} }

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) sleep(ctx context.Context, d time.Duration) error {
	c.delays = append(c.delays, d)
	c.t = c.t.Add(d)
	return nil
}

func newTestExecutor(settings Settings, clock *fakeClock) *Executor {
	ex := NewExecutor(settings)
	ex.now = clock.now
	ex.sleep = clock.sleep
	return ex
}

func TestExecuteSucceedsWithoutRetryOnFirstAttempt(t *testing.T) {
	clock := newFakeClock()
	ex := newTestExecutor(DefaultSettings(), clock)

	begin := func(ctx context.Context) (Transaction, error) { return &fakeTx{}, nil }
	work := func(ctx context.Context, tx Transaction) (int, error) { return 42, nil }

	result, err := Execute(context.Background(), ex, begin, work)
	require.NoError(t, err)
	assert.Equal(t, 42, result)
	assert.Empty(t, clock.delays)
}

func TestExecuteRetriesRetryableWorkErrorThenSucceeds(t *testing.T) {
	clock := newFakeClock()
	ex := newTestExecutor(Settings{
		MaxElapsedTime: time.Minute,
		InitialDelay:   100 * time.Millisecond,
		Multiplier:     2,
		JitterFactor:   0,
	}, clock)

	attempts := 0
	var lastTx *fakeTx
	begin := func(ctx context.Context) (Transaction, error) {
		lastTx = &fakeTx{}
		return lastTx, nil
	}
	work := func(ctx context.Context, tx Transaction) (string, error) {
		attempts++
		if attempts < 3 {
			return "", &dberr.ServiceUnavailableError{Message: "down"}
		}
		return "ok", nil
	}

	result, err := Execute(context.Background(), ex, begin, work)
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, clock.delays)
	assert.True(t, lastTx.committed)
}

func TestExecutePropagatesNonRetryableErrorImmediately(t *testing.T) {
	clock := newFakeClock()
	ex := newTestExecutor(DefaultSettings(), clock)

	begin := func(ctx context.Context) (Transaction, error) { return &fakeTx{}, nil }
	clientErr := &dberr.ClientError{}
	work := func(ctx context.Context, tx Transaction) (int, error) { return 0, clientErr }

	_, err := Execute(context.Background(), ex, begin, work)
	assert.Same(t, error(clientErr), err)
	assert.Empty(t, clock.delays, "non-retryable errors must not sleep before propagating")
}

func TestExecuteRollsBackOnWorkErrorAndDoesNotCommit(t *testing.T) {
	clock := newFakeClock()
	ex := newTestExecutor(DefaultSettings(), clock)

	var tx *fakeTx
	begin := func(ctx context.Context) (Transaction, error) {
		tx = &fakeTx{}
		return tx, nil
	}
	work := func(ctx context.Context, t Transaction) (int, error) {
		return 0, &dberr.ClientError{}
	}

	_, err := Execute(context.Background(), ex, begin, work)
	require.Error(t, err)
	assert.True(t, tx.rolledBack)
	assert.False(t, tx.committed)
}

func TestExecuteRetriesOnRetryableCommitError(t *testing.T) {
	clock := newFakeClock()
	ex := newTestExecutor(Settings{
		MaxElapsedTime: time.Minute,
		InitialDelay:   10 * time.Millisecond,
		Multiplier:     2,
		JitterFactor:   0,
	}, clock)

	calls := 0
	begin := func(ctx context.Context) (Transaction, error) {
		calls++
		commitErr := error(nil)
		if calls == 1 {
			commitErr = dberr.NewTransientError("Neo.TransientError.Transaction.Outdated", "retry me")
		}
		return &fakeTx{commitErr: commitErr}, nil
	}
	work := func(ctx context.Context, tx Transaction) (int, error) { return 7, nil }

	result, err := Execute(context.Background(), ex, begin, work)
	require.NoError(t, err)
	assert.Equal(t, 7, result)
	assert.Equal(t, 2, calls)
}

func TestExecutePropagatesLastErrorOnceMaxElapsedTimeExceeded(t *testing.T) {
	clock := newFakeClock()
	ex := newTestExecutor(Settings{
		MaxElapsedTime: 300 * time.Millisecond,
		InitialDelay:   100 * time.Millisecond,
		Multiplier:     2,
		JitterFactor:   0,
	}, clock)

	wantErr := &dberr.ServiceUnavailableError{Message: "still down"}
	begin := func(ctx context.Context) (Transaction, error) { return &fakeTx{}, nil }
	work := func(ctx context.Context, tx Transaction) (int, error) { return 0, wantErr }

	_, err := Execute(context.Background(), ex, begin, work)
	assert.Same(t, error(wantErr), err)
}

// TestRetrySumOfDelaysIsBounded verifies property 9: the sum of scheduled
// delays in any failed run is at most T + d0*k^ceil(log_k(T/d0)), and the
// number of attempts is logarithmic in T/d0.
func TestRetrySumOfDelaysIsBounded(t *testing.T) {
	clock := newFakeClock()
	maxElapsed := 10 * time.Second
	initialDelay := 50 * time.Millisecond
	multiplier := 2.0
	ex := newTestExecutor(Settings{
		MaxElapsedTime: maxElapsed,
		InitialDelay:   initialDelay,
		Multiplier:     multiplier,
		JitterFactor:   0,
	}, clock)

	begin := func(ctx context.Context) (Transaction, error) { return &fakeTx{}, nil }
	work := func(ctx context.Context, tx Transaction) (int, error) {
		return 0, &dberr.ServiceUnavailableError{Message: "down"}
	}

	_, err := Execute(context.Background(), ex, begin, work)
	require.Error(t, err)

	var sum time.Duration
	for _, d := range clock.delays {
		sum += d
	}

	ratio := float64(maxElapsed) / float64(initialDelay)
	maxAttempts := int(math.Ceil(math.Log(ratio)/math.Log(multiplier))) + 2
	assert.LessOrEqual(t, len(clock.delays), maxAttempts, "attempt count must be logarithmic in T/d0")

	bound := float64(maxElapsed) + float64(initialDelay)*math.Pow(multiplier, math.Ceil(math.Log(ratio)/math.Log(multiplier)))
	assert.LessOrEqual(t, float64(sum), bound)
}

func TestExecuteStopsRetryingWhenContextCancelled(t *testing.T) {
	clock := newFakeClock()
	ex := newTestExecutor(Settings{
		MaxElapsedTime: time.Minute,
		InitialDelay:   time.Second,
		Multiplier:     2,
		JitterFactor:   0,
	}, clock)
	ex.sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	begin := func(ctx context.Context) (Transaction, error) { return &fakeTx{}, nil }
	work := func(ctx context.Context, tx Transaction) (int, error) {
		return 0, &dberr.ServiceUnavailableError{Message: "down"}
	}

	_, err := Execute(ctx, ex, begin, work)
	require.Error(t, err)
	var svcErr *dberr.ServiceUnavailableError
	assert.ErrorAs(t, err, &svcErr, "a sleep aborted by context cancellation still surfaces the last work error")
}
