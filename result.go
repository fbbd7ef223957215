package boltdriver

import (
	"context"
	"sync"

	"github.com/graphwire/bolt-go-driver/internal/bolt"
)

// Result is the stream-observer handle a Run call returns: keys arrive
// first (from RUN's response metadata), then zero or more records, then a
// terminating summary or error. On V4+ the underlying PULL is not sent
// until the caller either starts consuming (Next) or gives up (discard),
// so an unconsumed Result costs one DISCARD instead of transferring every
// record over the wire; on V1-V3 the PULL_ALL already travelled with RUN
// and there is no such choice.
type Result struct {
	conn *bolt.Connection

	mu        sync.Mutex
	keys      []string
	keysReady bool
	pullSent  bool
	terminated bool
	termErr   error
	summary   map[string]any

	keysCh    chan struct{}
	recordsCh chan []any
	doneCh    chan struct{}

	current []any

	// onDone is invoked exactly once, with the terminal bookmark (if any)
	// and error, once this result is fully drained — the hook Session/
	// Transaction use to release the borrowed connection.
	onDone func(bookmark string, err error)
}

func newResult(conn *bolt.Connection) *Result {
	return &Result{
		conn:      conn,
		keysCh:    make(chan struct{}),
		recordsCh: make(chan []any, 64),
		doneCh:    make(chan struct{}),
	}
}

// observer returns the bolt.Observer (and KeysObserver) this Result
// listens on.
func (r *Result) observer() bolt.Observer { return resultObserver{r} }

type resultObserver struct{ r *Result }

func (o resultObserver) OnKeys(keys []string) {
	r := o.r
	r.mu.Lock()
	if !r.keysReady {
		r.keys = keys
		r.keysReady = true
		close(r.keysCh)
	}
	r.mu.Unlock()
}

func (o resultObserver) OnNext(fields []any) {
	o.r.recordsCh <- fields
}

func (o resultObserver) OnCompleted(meta map[string]any) {
	r := o.r
	r.mu.Lock()
	r.summary = meta
	r.terminated = true
	r.mu.Unlock()
	close(r.doneCh)
	if r.onDone != nil {
		bookmark, _ := meta["bookmark"].(string)
		r.onDone(bookmark, nil)
	}
}

func (o resultObserver) OnError(err error) {
	r := o.r
	r.mu.Lock()
	r.terminated = true
	r.termErr = err
	r.mu.Unlock()
	close(r.doneCh)
	if r.onDone != nil {
		r.onDone("", err)
	}
}

// Keys blocks until RUN's field-name metadata has arrived.
func (r *Result) Keys(ctx context.Context) ([]string, error) {
	select {
	case <-r.keysCh:
		r.mu.Lock()
		defer r.mu.Unlock()
		return r.keys, nil
	case <-r.doneCh:
		r.mu.Lock()
		defer r.mu.Unlock()
		return r.keys, r.termErr
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ensurePull issues the V4+ PULL request the first time a caller actually
// wants records. V1-V3 already has PULL_ALL in flight from Run, so this is
// a no-op there.
func (r *Result) ensurePull(ctx context.Context) error {
	r.mu.Lock()
	if r.pullSent || r.terminated || r.conn.Adapter().Version().Major < 4 {
		r.mu.Unlock()
		return nil
	}
	r.pullSent = true
	r.mu.Unlock()
	return r.conn.Pull(-1, -1, r.observer())
}

// Next blocks for the next record. ok is false once the stream is
// exhausted; callers must then check Err for a non-nil terminal error.
func (r *Result) Next(ctx context.Context) (record []any, ok bool, err error) {
	if err := r.ensurePull(ctx); err != nil {
		return nil, false, err
	}
	// Records already buffered take priority over a closed doneCh: the
	// dispatch goroutine always finishes sending every RECORD before the
	// terminator, but select does not otherwise favor one ready case over
	// another, so an unguarded select could report "done" while records
	// are still waiting to be read out.
	select {
	case fields := <-r.recordsCh:
		return fields, true, nil
	default:
	}
	select {
	case fields := <-r.recordsCh:
		return fields, true, nil
	case <-r.doneCh:
		select {
		case fields := <-r.recordsCh:
			return fields, true, nil
		default:
		}
		r.mu.Lock()
		defer r.mu.Unlock()
		return nil, false, r.termErr
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

// Summary blocks until the stream terminates and returns the SUCCESS
// metadata (or a non-nil error on FAILURE).
func (r *Result) Summary(ctx context.Context) (map[string]any, error) {
	select {
	case <-r.doneCh:
		r.mu.Lock()
		defer r.mu.Unlock()
		return r.summary, r.termErr
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// discard cancels an unconsumed (or partially consumed) result: on V4+, if
// no PULL has been sent yet, it sends DISCARD instead; otherwise it drains
// whatever is still arriving until the terminator, matching V1-V3's
// always-drain behaviour.
func (r *Result) discard(ctx context.Context) error {
	r.mu.Lock()
	if r.terminated {
		err := r.termErr
		r.mu.Unlock()
		return err
	}
	needsDiscardMsg := !r.pullSent && r.conn.Adapter().Version().Major >= 4
	r.pullSent = true
	r.mu.Unlock()

	if needsDiscardMsg {
		if err := r.conn.Discard(-1, -1, r.observer()); err != nil {
			return err
		}
	}

	for {
		select {
		case <-r.recordsCh:
		case <-r.doneCh:
			r.mu.Lock()
			defer r.mu.Unlock()
			return r.termErr
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
