package boltdriver

import (
	"context"
	"fmt"
	"sync"

	"github.com/graphwire/bolt-go-driver/internal/bolt"
	"github.com/graphwire/bolt-go-driver/internal/pool"
	"github.com/graphwire/bolt-go-driver/internal/retry"
	"github.com/graphwire/bolt-go-driver/internal/routing"
)

// AccessMode selects whether a session (or one of its transactions) reads
// or writes, the role a routing table's rotation is partitioned by.
type AccessMode = routing.AccessMode

const (
	Read  = routing.Read
	Write = routing.Write
)

// Session is a borrowed-connection unit of work against one database. It
// is not safe for concurrent use: exactly one run or transaction may be in
// flight on a session at a time, matching the single-pending-request-
// stream invariant of the connection underneath it.
type Session struct {
	driver    *Driver
	database  string
	mode      AccessMode
	bookmarks []string

	mu     sync.Mutex
	open   *openResult // the session's still-unconsumed auto-commit result, if any
	tx     *Transaction
	closed bool
}

// openResult tracks an auto-commit Run's borrowed connection until its
// result stream is exhausted or explicitly discarded, so the next Run or
// BeginTransaction can reclaim the connection first.
type openResult struct {
	result *Result
	res    pool.Resource
	addr   string
}

// LastBookmark returns the most recently observed bookmark, or "" if none
// has been recorded yet.
func (s *Session) LastBookmark() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.bookmarks) == 0 {
		return ""
	}
	return s.bookmarks[len(s.bookmarks)-1]
}

func (s *Session) addBookmark(bookmark string) {
	if bookmark == "" {
		return
	}
	s.mu.Lock()
	s.bookmarks = append(s.bookmarks, bookmark)
	s.mu.Unlock()
}

// Close ends the session, discarding any still-open result stream and
// rolling back any still-open explicit transaction.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	var err error
	if s.tx != nil {
		err = s.tx.Rollback(ctx)
		s.tx = nil
	}
	if s.open != nil {
		s.closeOpenResultLocked(ctx)
	}
	return err
}

// closeOpenResultLocked discards whatever remains of the session's
// auto-commit result and releases its connection. Caller holds s.mu.
func (s *Session) closeOpenResultLocked(ctx context.Context) {
	o := s.open
	s.open = nil
	err := o.result.discard(ctx)
	s.driver.releaseConnection(o.res, s.database, o.addr, err)
}

// Run executes statement as an auto-commit transaction and returns a
// Result the caller streams records from. Any previous Result from this
// session that has not been fully consumed is discarded first.
func (s *Session) Run(ctx context.Context, statement string, params map[string]any) (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, fmt.Errorf("boltdriver: session is closed")
	}
	if s.tx != nil {
		return nil, fmt.Errorf("boltdriver: session already has an open explicit transaction")
	}
	if s.open != nil {
		s.closeOpenResultLocked(ctx)
	}

	res, addr, err := s.driver.acquireConnection(ctx, s.database, s.mode)
	if err != nil {
		return nil, err
	}
	conn := res.Value()

	tx := bolt.TxMetadata{Bookmarks: s.bookmarks, Database: s.database}
	if s.mode == Read {
		tx.Mode = "r"
	}

	result := newResult(conn)
	if err := conn.Run(statement, params, tx, result.observer()); err != nil {
		s.driver.releaseConnection(res, s.database, addr, err)
		return nil, err
	}

	result.onDone = func(bookmark string, opErr error) {
		s.addBookmark(bookmark)
		s.mu.Lock()
		s.open = nil
		s.mu.Unlock()
		s.driver.releaseConnection(res, s.database, addr, opErr)
	}
	s.open = &openResult{result: result, res: res, addr: addr}
	return result, nil
}

// BeginTransaction opens an explicit transaction. Only one may be open on
// a session at a time.
func (s *Session) BeginTransaction(ctx context.Context) (*Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, fmt.Errorf("boltdriver: session is closed")
	}
	if s.tx != nil {
		return nil, fmt.Errorf("boltdriver: session already has an open explicit transaction")
	}
	if s.open != nil {
		s.closeOpenResultLocked(ctx)
	}

	res, addr, err := s.driver.acquireConnection(ctx, s.database, s.mode)
	if err != nil {
		return nil, err
	}
	conn := res.Value()

	txMeta := bolt.TxMetadata{Bookmarks: s.bookmarks, Database: s.database}
	if s.mode == Read {
		txMeta.Mode = "r"
	}

	if conn.Adapter().Version().Major >= 3 {
		if err := beginV3(ctx, conn, txMeta); err != nil {
			s.driver.releaseConnection(res, s.database, addr, err)
			return nil, err
		}
	} else if err := beginLegacy(ctx, conn, txMeta); err != nil {
		s.driver.releaseConnection(res, s.database, addr, err)
		return nil, err
	}

	s.driver.stats.recordTransactionBegun()
	tx := &Transaction{session: s, conn: conn, res: res, addr: addr}
	s.tx = tx
	return tx, nil
}

func beginV3(ctx context.Context, conn *bolt.Connection, tx bolt.TxMetadata) error {
	done := make(chan error, 1)
	obs := bolt.FuncObserver{
		Completed: func(map[string]any) { done <- nil },
		Err:       func(e error) { done <- e },
	}
	if err := conn.Begin(tx, obs); err != nil {
		return err
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// beginLegacy models BEGIN as run("BEGIN", bookmarks)+pull_all on V1/V2,
// the only way those versions express an explicit transaction.
func beginLegacy(ctx context.Context, conn *bolt.Connection, tx bolt.TxMetadata) error {
	done := make(chan error, 1)
	obs := bolt.FuncObserver{
		Completed: func(map[string]any) { done <- nil },
		Err:       func(e error) { done <- e },
	}
	if err := conn.Run("BEGIN", nil, tx, obs); err != nil {
		return err
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ExecuteRead runs work inside a managed, retried read transaction:
// BeginTransaction, work, Commit, with the retry executor covering the
// whole begin/work/commit cycle on a classified-retryable failure.
func ExecuteRead[T any](ctx context.Context, s *Session, ex *retry.Executor, work func(*Transaction) (T, error)) (T, error) {
	return executeManaged(ctx, s, Read, ex, work)
}

// ExecuteWrite is ExecuteRead's write-mode counterpart.
func ExecuteWrite[T any](ctx context.Context, s *Session, ex *retry.Executor, work func(*Transaction) (T, error)) (T, error) {
	return executeManaged(ctx, s, Write, ex, work)
}

func executeManaged[T any](ctx context.Context, s *Session, mode AccessMode, ex *retry.Executor, work func(*Transaction) (T, error)) (T, error) {
	s.mu.Lock()
	s.mode = mode
	s.mu.Unlock()

	begin := func(ctx context.Context) (retry.Transaction, error) {
		return s.BeginTransaction(ctx)
	}
	retryWork := func(ctx context.Context, t retry.Transaction) (T, error) {
		return work(t.(*Transaction))
	}
	result, err := retry.Execute(ctx, ex, begin, retryWork)
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}

// Transaction is an explicit, single-use transaction borrowed from a
// Session. It implements retry.Transaction so it can be driven by the
// retry executor via ExecuteRead/ExecuteWrite.
type Transaction struct {
	session *Session
	conn    *bolt.Connection
	res     pool.Resource
	addr    string

	mu   sync.Mutex
	open *openResult
	done bool
}

// Run executes statement inside this transaction and returns a Result.
// Any previous Result from this transaction not yet consumed is
// discarded first.
func (tx *Transaction) Run(ctx context.Context, statement string, params map[string]any) (*Result, error) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.done {
		return nil, fmt.Errorf("boltdriver: transaction is already committed or rolled back")
	}
	if tx.open != nil {
		_ = tx.open.result.discard(ctx)
		tx.open = nil
	}

	result := newResult(tx.conn)
	txMeta := bolt.TxMetadata{Database: tx.session.database}
	if err := tx.conn.Run(statement, params, txMeta, result.observer()); err != nil {
		return nil, err
	}
	tx.open = &openResult{result: result}
	return result, nil
}

// Commit ends the transaction successfully, recording the returned
// bookmark on the owning session and releasing the borrowed connection.
func (tx *Transaction) Commit(ctx context.Context) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.done {
		return nil
	}
	if tx.open != nil {
		if err := tx.open.result.discard(ctx); err != nil {
			tx.finishLocked(ctx, err)
			return err
		}
		tx.open = nil
	}

	bookmark, err := commitOn(ctx, tx.conn)
	tx.finishLocked(ctx, err)
	if err == nil {
		tx.session.addBookmark(bookmark)
		tx.session.driver.stats.recordTransactionCommitted()
	}
	return err
}

// Rollback aborts the transaction, releasing the borrowed connection. It
// is a no-op if the transaction already ended.
func (tx *Transaction) Rollback(ctx context.Context) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.done {
		return nil
	}
	if tx.open != nil {
		_ = tx.open.result.discard(ctx)
		tx.open = nil
	}

	err := rollbackOn(ctx, tx.conn)
	tx.finishLocked(ctx, err)
	tx.session.driver.stats.recordTransactionRolledBack()
	return err
}

// finishLocked releases the borrowed connection and detaches the
// transaction from its session. Caller holds tx.mu.
func (tx *Transaction) finishLocked(ctx context.Context, opErr error) {
	tx.done = true
	tx.session.mu.Lock()
	if tx.session.tx == tx {
		tx.session.tx = nil
	}
	tx.session.mu.Unlock()
	tx.session.driver.releaseConnection(tx.res, tx.session.database, tx.addr, opErr)
}

func commitOn(ctx context.Context, conn *bolt.Connection) (string, error) {
	done := make(chan struct{})
	var bookmark string
	var opErr error
	obs := bolt.FuncObserver{
		Completed: func(meta map[string]any) {
			bookmark, _ = meta["bookmark"].(string)
			close(done)
		},
		Err: func(e error) { opErr = e; close(done) },
	}
	if conn.Adapter().Version().Major >= 3 {
		if err := conn.Commit(obs); err != nil {
			return "", err
		}
	} else if err := conn.Run("COMMIT", nil, bolt.TxMetadata{}, obs); err != nil {
		return "", err
	}
	select {
	case <-done:
		return bookmark, opErr
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func rollbackOn(ctx context.Context, conn *bolt.Connection) error {
	done := make(chan error, 1)
	obs := bolt.FuncObserver{
		Completed: func(map[string]any) { done <- nil },
		Err:       func(e error) { done <- e },
	}
	var err error
	if conn.Adapter().Version().Major >= 3 {
		err = conn.Rollback(obs)
	} else {
		err = conn.Run("ROLLBACK", nil, bolt.TxMetadata{}, obs)
	}
	if err != nil {
		return err
	}
	select {
	case e := <-done:
		return e
	case <-ctx.Done():
		return ctx.Err()
	}
}
