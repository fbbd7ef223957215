package packstream

import "sync"

// WriteBufferPool recycles growable Contiguous write buffers to cut
// allocation overhead on the per-message pack path — every enqueued
// request packs into one of these before handing the bytes to the
// chunker.
type WriteBufferPool struct {
	pool sync.Pool
}

// NewWriteBufferPool builds a pool whose buffers start at capacityHint
// bytes before they first grow.
func NewWriteBufferPool(capacityHint int) *WriteBufferPool {
	return &WriteBufferPool{
		pool: sync.Pool{
			New: func() any { return NewWriteBuffer(capacityHint) },
		},
	}
}

// Get returns an empty, ready-to-pack-into buffer.
func (p *WriteBufferPool) Get() *Contiguous {
	return p.pool.Get().(*Contiguous)
}

// Put resets buf and returns it to the pool.
func (p *WriteBufferPool) Put(buf *Contiguous) {
	buf.data = buf.data[:0]
	buf.pos = 0
	p.pool.Put(buf)
}
