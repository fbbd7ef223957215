package bolt

import (
	"context"
	"fmt"
	"sync"

	"github.com/graphwire/bolt-go-driver/chunking"
	"github.com/graphwire/bolt-go-driver/dberr"
	"github.com/graphwire/bolt-go-driver/internal/transport"
	"github.com/graphwire/bolt-go-driver/log"
	"github.com/graphwire/bolt-go-driver/packstream"
)

// Connection is one authenticated wire-protocol connection: handshake,
// send loop, observer queue, and the failure/acknowledgement state
// machine. It pipelines freely (many enqueued
// requests awaiting responses) but only ever has one writer at a time.
type Connection struct {
	channel transport.Channel
	adapter *Adapter
	logger  log.Logger
	bolt    log.BoltLogger
	connID  string

	structMappers map[byte]packstream.StructMapper

	writeMu sync.Mutex
	chunker *chunking.Chunker
	bufPool *packstream.WriteBufferPool

	dechunker *chunking.Dechunker

	mu       sync.Mutex
	state    State
	queue    observerQueue
	acking   bool
	lastFail error

	// OnBroken is invoked exactly once, with the error that broke the
	// connection, when a fatal error unregisters it from whatever pool
	// holds it. Nil is a valid no-op default.
	OnBroken func(err error)
}

type channelSink struct {
	ch transport.Channel
}

func (s channelSink) Write(p []byte) error { return s.ch.Write(p) }

// NewConnection wires ch's message stream through a Dechunker into this
// connection's dispatch logic. The caller still owns performing the
// handshake and HELLO before the connection is usable for Run/Pull.
func NewConnection(ch transport.Channel, connID string, logger log.Logger, boltLogger log.BoltLogger) *Connection {
	if logger == nil {
		logger = log.Noop{}
	}
	c := &Connection{
		channel:       ch,
		logger:        logger,
		bolt:          boltLogger,
		connID:        connID,
		structMappers: make(map[byte]packstream.StructMapper),
		state:         StateStart,
	}
	c.chunker = chunking.NewChunker(channelSink{ch: ch}, chunking.DefaultCapacity)
	c.bufPool = packstream.NewWriteBufferPool(256)
	c.dechunker = chunking.NewDechunker(c.onMessage)
	ch.OnMessage(c.onRawBytes)
	ch.OnError(c.handleTransportError)
	return c
}

func (c *Connection) onRawBytes(p []byte) {
	if err := c.dechunker.Feed(p); err != nil {
		c.handleFatalError(&dberr.ProtocolError{Message: "dechunking failed", Cause: err})
	}
}

func (c *Connection) handleTransportError(err error) {
	c.handleFatalError(err)
}

// State returns the connection's current lifecycle stage.
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// RegisterStructMapper adds a mapper a caller-supplied typed-value layer
// wants materialised from this connection's responses (e.g. a graph
// Node/Relationship mapper); this module itself registers none by default.
func (c *Connection) RegisterStructMapper(signature byte, mapper packstream.StructMapper) {
	c.mu.Lock()
	c.structMappers[signature] = mapper
	c.mu.Unlock()
}

// Handshake writes the magic preamble and version proposals and blocks for
// the server's 4-byte reply, negotiating the Adapter used for the rest of
// the connection's life.
func (c *Connection) Handshake(ctx context.Context, proposals []Version) (Version, error) {
	c.mu.Lock()
	c.state = StateHandshaking
	c.mu.Unlock()

	replyCh := make(chan []byte, 1)
	var buffered []byte
	c.channel.OnMessage(func(p []byte) {
		buffered = append(buffered, p...)
		if len(buffered) >= 4 {
			replyCh <- buffered[:4]
		}
	})

	if err := c.channel.Write(EncodeHandshake(proposals)); err != nil {
		return Version{}, err
	}

	var reply []byte
	select {
	case reply = <-replyCh:
	case <-ctx.Done():
		return Version{}, ctx.Err()
	}

	version, err := DecodeNegotiatedVersion(reply)
	if err != nil {
		c.handleFatalError(err)
		return Version{}, err
	}

	adapter, err := NewAdapter(version)
	if err != nil {
		protoErr := &dberr.ProtocolError{Message: err.Error()}
		c.handleFatalError(protoErr)
		return Version{}, protoErr
	}
	c.mu.Lock()
	c.adapter = adapter
	c.state = StateNegotiated
	c.mu.Unlock()

	// Any bytes received past the 4-byte reply belong to the real message
	// stream; replay them through the normal path before switching over.
	leftover := buffered[4:]
	c.channel.OnMessage(c.onRawBytes)
	if len(leftover) > 0 {
		c.onRawBytes(leftover)
	}
	return version, nil
}

// Hello authenticates the connection. It blocks until SUCCESS/FAILURE
// arrives or ctx is cancelled.
func (c *Connection) Hello(ctx context.Context, userAgent string, authToken map[string]any, routingContext map[string]string) error {
	c.mu.Lock()
	adapter := c.adapter
	c.state = StateAuthenticating
	c.mu.Unlock()

	msg, err := adapter.EncodeHello(userAgent, authToken, routingContext)
	if err != nil {
		return err
	}

	done := make(chan error, 1)
	obs := FuncObserver{
		Completed: func(map[string]any) {
			c.mu.Lock()
			c.state = StateReady
			c.mu.Unlock()
			done <- nil
		},
		Err: func(e error) { done <- e },
	}
	if err := c.enqueueAndFlush(msg, obs); err != nil {
		return err
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Adapter exposes the negotiated version's adapter for callers that need
// to build messages (Run/Pull helpers live at this layer intentionally so
// the adapter and the observer queue stay consistent).
func (c *Connection) Adapter() *Adapter {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.adapter
}

// keysRelay captures a RUN response's field-name metadata and forwards it
// to the real observer's OnKeys (if it implements KeysObserver), without
// ever calling the real observer's OnCompleted — that belongs to the
// terminator of the PULL/PULL_ALL that follows.
type keysRelay struct {
	target Observer
}

// KeysObserver is an optional Observer extension for receiving the RUN
// response's field-name list before any records arrive.
type KeysObserver interface {
	OnKeys(keys []string)
}

func (k *keysRelay) OnNext([]any) {}

func (k *keysRelay) OnCompleted(metadata map[string]any) {
	if ko, ok := k.target.(KeysObserver); ok {
		if raw, ok := metadata["fields"].([]any); ok {
			keys := make([]string, 0, len(raw))
			for _, f := range raw {
				if s, ok := f.(string); ok {
					keys = append(keys, s)
				}
			}
			ko.OnKeys(keys)
		}
	}
}

func (k *keysRelay) OnError(err error) {
	k.target.OnError(err)
}

// Run encodes and pipelines a RUN (and, on V1-V3, its paired PULL_ALL) for
// statement/params under tx. On V4+ the caller must follow up with a
// separate Pull/Discard call; on V1-V3 the supplied observer already
// receives the PULL_ALL's records and terminator.
func (c *Connection) Run(statement string, params map[string]any, tx TxMetadata, obs Observer) error {
	adapter := c.Adapter()
	if adapter == nil {
		return fmt.Errorf("bolt: connection not negotiated")
	}
	msgs, err := adapter.EncodeRun(statement, params, tx)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.enqueueLocked(msgs[0], &keysRelay{target: obs}); err != nil {
		return err
	}
	if len(msgs) > 1 {
		if err := c.enqueueLocked(msgs[1], obs); err != nil {
			return err
		}
	}
	return c.flushLocked()
}

// Pull encodes and pipelines PULL{n, qid} (V4+) or PULL_ALL (V1-V3,
// n/qid ignored).
func (c *Connection) Pull(n, qid int64, obs Observer) error {
	adapter := c.Adapter()
	msg := adapter.EncodePull(n, qid)
	return c.enqueueAndFlush(msg, obs)
}

// Discard encodes and pipelines DISCARD{n, qid} (V4+) or DISCARD_ALL
// (V1-V3).
func (c *Connection) Discard(n, qid int64, obs Observer) error {
	adapter := c.Adapter()
	msg := adapter.EncodeDiscard(n, qid)
	return c.enqueueAndFlush(msg, obs)
}

// Begin/Commit/Rollback are V3+ explicit-transaction messages. Callers on
// V1/V2 must instead use Run with the literal BEGIN/COMMIT/ROLLBACK
// statement text, which is what those versions model transactions as.
func (c *Connection) Begin(tx TxMetadata, obs Observer) error {
	adapter := c.Adapter()
	msg, err := adapter.EncodeBegin(tx)
	if err != nil {
		return err
	}
	return c.enqueueAndFlush(msg, obs)
}

func (c *Connection) Commit(obs Observer) error {
	adapter := c.Adapter()
	msg, err := adapter.EncodeCommit()
	if err != nil {
		return err
	}
	return c.enqueueAndFlush(msg, obs)
}

func (c *Connection) Rollback(obs Observer) error {
	adapter := c.Adapter()
	msg, err := adapter.EncodeRollback()
	if err != nil {
		return err
	}
	return c.enqueueAndFlush(msg, obs)
}

// Route sends the V4.3+ ROUTE message.
func (c *Connection) Route(routingContext map[string]string, bookmarks []string, database string, obs Observer) error {
	adapter := c.Adapter()
	msg, err := adapter.EncodeRoute(routingContext, bookmarks, database)
	if err != nil {
		return err
	}
	return c.enqueueAndFlush(msg, obs)
}

// ackSentinel is the private observer attached to the RESET/ACK_FAILURE
// this connection sends on its own initiative after a FAILURE. Its
// response is bookkeeping, never surfaced to an application observer.
type ackSentinel struct{ conn *Connection }

func (a *ackSentinel) OnNext([]any) {}

func (a *ackSentinel) OnCompleted(map[string]any) {
	a.conn.mu.Lock()
	a.conn.acking = false
	a.conn.lastFail = nil
	if a.conn.state != StateFailed && a.conn.state != StateClosed {
		a.conn.state = StateReady
	}
	a.conn.mu.Unlock()
}

func (a *ackSentinel) OnError(error) {
	a.conn.mu.Lock()
	a.conn.acking = false
	a.conn.mu.Unlock()
}

func (c *Connection) enqueueAndFlush(msg *Message, obs Observer) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.enqueueLocked(msg, obs); err != nil {
		return err
	}
	return c.flushLocked()
}

// enqueueLocked packs msg into the chunker and pushes obs onto the
// observer queue. Caller must hold writeMu.
func (c *Connection) enqueueLocked(msg *Message, obs Observer) error {
	buf := c.bufPool.Get()
	defer c.bufPool.Put(buf)
	if err := packstream.NewPacker(buf).Pack(msg); err != nil {
		return err
	}
	if err := c.chunker.Write(buf.Bytes()); err != nil {
		return err
	}
	c.chunker.MessageBoundary()
	if c.bolt != nil {
		c.bolt.LogClientMessage(c.connID, "0x%02X %v", msg.Signature, msg.Fields)
	}
	c.mu.Lock()
	c.queue.push(obs)
	c.mu.Unlock()
	return nil
}

func (c *Connection) flushLocked() error {
	return c.chunker.Flush()
}

// enqueueInternal is used for the ack sentinel, which must jump in ahead
// of (or rather: immediately behind) whatever is already pipelined, using
// the same writeMu as every other writer so chunker state never races.
func (c *Connection) enqueueInternal(msg *Message, obs Observer) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.enqueueLocked(msg, obs); err != nil {
		return err
	}
	return c.flushLocked()
}

// onMessage is the Dechunker's callback: buf holds one complete message.
func (c *Connection) onMessage(buf packstream.Buffer) error {
	u := packstream.NewUnpacker(buf)
	c.mu.Lock()
	for sig, mapper := range c.structMappers {
		u.RegisterStructMapper(sig, mapper)
	}
	c.mu.Unlock()

	val, err := u.Unpack()
	if err != nil {
		c.handleFatalError(&dberr.ProtocolError{Message: "malformed message", Cause: err})
		return nil
	}
	s, ok := val.(*Message)
	if !ok {
		c.handleFatalError(&dberr.ProtocolError{Message: "top-level value is not a message structure"})
		return nil
	}
	if c.bolt != nil {
		c.bolt.LogServerMessage(c.connID, "0x%02X %v", s.Signature, s.Fields)
	}

	switch s.Signature {
	case SigRecord:
		fields, _ := firstField(s, []any(nil))
		c.dispatchRecord(fields)
	case SigSuccess:
		meta, _ := firstField(s, map[string]any{})
		c.dispatchSuccess(meta)
	case SigFailure:
		meta, _ := firstField(s, map[string]any{})
		code, _ := meta["code"].(string)
		message, _ := meta["message"].(string)
		c.dispatchFailure(dberr.Classify(code, message))
	case SigIgnored:
		c.dispatchIgnored()
	default:
		c.handleFatalError(&dberr.ProtocolError{Message: fmt.Sprintf("unknown response signature 0x%02X", s.Signature)})
	}
	return nil
}

func firstField[T any](s *Message, zero T) (T, bool) {
	if len(s.Fields) == 0 {
		return zero, false
	}
	v, ok := s.Fields[0].(T)
	if !ok {
		return zero, false
	}
	return v, true
}

func (c *Connection) dispatchRecord(fields []any) {
	c.mu.Lock()
	obs := c.queue.current()
	c.mu.Unlock()
	if obs != nil {
		obs.OnNext(fields)
	}
}

func (c *Connection) dispatchSuccess(metadata map[string]any) {
	c.mu.Lock()
	obs := c.queue.advance()
	adapter := c.adapter
	c.mu.Unlock()
	if obs == nil {
		return
	}
	normalized := metadata
	if adapter != nil {
		normalized = adapter.NormalizeMetadata(metadata)
	}
	obs.OnCompleted(normalized)
}

func (c *Connection) dispatchFailure(cerr error) {
	c.mu.Lock()
	obs := c.queue.advance()
	c.lastFail = cerr
	needsAck := !c.acking
	c.acking = true
	adapter := c.adapter
	c.mu.Unlock()
	if obs != nil {
		obs.OnError(cerr)
	}
	if needsAck && adapter != nil {
		ackMsg := adapter.EncodeResetOrAck()
		if err := c.enqueueInternal(ackMsg, &ackSentinel{conn: c}); err != nil {
			c.handleFatalError(err)
		}
	}
}

// dispatchIgnored routes an IGNORED response to the pending observer as
// the failure that caused it, so the caller sees the true cause instead of
// a generic "ignored" error.
func (c *Connection) dispatchIgnored() {
	c.mu.Lock()
	obs := c.queue.advance()
	cause := c.lastFail
	c.mu.Unlock()
	if obs == nil {
		return
	}
	if cause == nil {
		cause = fmt.Errorf("bolt: request ignored")
	}
	obs.OnError(cause)
}

// Reset sends an explicit user-initiated RESET/ACK_FAILURE, cancelling any
// current result stream on the server, and blocks until it completes.
func (c *Connection) Reset(ctx context.Context) error {
	adapter := c.Adapter()
	if adapter == nil {
		return fmt.Errorf("bolt: connection not negotiated")
	}
	done := make(chan error, 1)
	obs := FuncObserver{
		Completed: func(map[string]any) { done <- nil },
		Err:       func(e error) { done <- e },
	}
	msg := adapter.EncodeResetOrAck()
	if err := c.enqueueAndFlush(msg, obs); err != nil {
		return err
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// handleFatalError marks the connection broken, fails the current and all
// pending observers, and unregisters it from whatever pool holds it. It is
// idempotent: a second call after the connection is already Failed/Closed
// is a no-op.
func (c *Connection) handleFatalError(err error) {
	c.mu.Lock()
	if c.state == StateFailed || c.state == StateClosed {
		c.mu.Unlock()
		return
	}
	c.state = StateFailed
	c.lastFail = err
	c.queue.drainWithError(err)
	onBroken := c.OnBroken
	c.mu.Unlock()
	c.logger.Errorf("connection %s broken: %v", c.connID, err)
	if onBroken != nil {
		onBroken(err)
	}
}

// IsBroken reports whether this connection can no longer be used.
func (c *Connection) IsBroken() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateFailed || c.state == StateClosed
}

// Close sends GOODBYE (if the connection is healthy and negotiated V3+)
// and closes the underlying channel. Closing an already-broken connection
// never attempts goodbye.
func (c *Connection) Close() {
	c.mu.Lock()
	healthy := c.state != StateFailed && c.state != StateClosed
	adapter := c.adapter
	c.state = StateClosed
	c.mu.Unlock()

	if healthy && adapter != nil {
		if msg, ok := adapter.EncodeGoodbye(); ok {
			c.writeMu.Lock()
			buf := packstream.NewWriteBuffer(16)
			if err := packstream.NewPacker(buf).Pack(msg); err == nil {
				if err := c.chunker.Write(buf.Bytes()); err == nil {
					c.chunker.MessageBoundary()
					c.chunker.Flush()
				}
			}
			c.writeMu.Unlock()
		}
	}
	c.dechunker.Close()
	c.channel.Close(nil)
}
