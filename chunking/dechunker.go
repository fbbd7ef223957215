package chunking

import (
	"github.com/graphwire/bolt-go-driver/packstream"
)

type dechunkerState int

const (
	stateAwaitingChunk dechunkerState = iota
	stateInHeader
	stateInChunk
	stateClosed
)

// MessageHandler is invoked once per fully reassembled message. buf is a
// packstream.Buffer positioned at 0 — a Contiguous if the message arrived
// in a single chunk, a Composed otherwise.
type MessageHandler func(buf packstream.Buffer) error

// Dechunker reassembles inbound bytes, fed in arbitrary fragments, into
// complete messages delimited by the 0x0000 sentinel chunk. It has no
// notion of a full read loop: callers feed it whatever bytes a transport
// read produced, as many or as few as arrived.
type Dechunker struct {
	state     dechunkerState
	onMessage MessageHandler

	headerHi   byte
	haveHeader bool
	chunkSize  int

	current []packstream.Buffer // chunks accumulated for the in-progress message
}

func NewDechunker(onMessage MessageHandler) *Dechunker {
	return &Dechunker{state: stateAwaitingChunk, onMessage: onMessage}
}

// Feed processes an arbitrary slice of inbound bytes, which may contain
// zero, one, or many chunk headers/payloads, and may end mid-header or
// mid-payload. It calls onMessage once per complete message found.
func (d *Dechunker) Feed(data []byte) error {
	buf := packstream.NewContiguous(data)
	for d.state != stateClosed && buf.HasRemaining() {
		switch d.state {
		case stateAwaitingChunk:
			if err := d.stepAwaitingChunk(buf); err != nil {
				return err
			}
		case stateInHeader:
			if err := d.stepInHeader(buf); err != nil {
				return err
			}
		case stateInChunk:
			if err := d.stepInChunk(buf); err != nil {
				return err
			}
		}
	}
	return nil
}

func (d *Dechunker) stepAwaitingChunk(buf packstream.Buffer) error {
	if buf.Remaining() >= 2 {
		hi, err := buf.ReadU8()
		if err != nil {
			return err
		}
		lo, err := buf.ReadU8()
		if err != nil {
			return err
		}
		return d.onHeader(int(hi)<<8 | int(lo))
	}
	hi, err := buf.ReadU8()
	if err != nil {
		return err
	}
	d.headerHi = hi
	d.haveHeader = true
	d.state = stateInHeader
	return nil
}

func (d *Dechunker) stepInHeader(buf packstream.Buffer) error {
	lo, err := buf.ReadU8()
	if err != nil {
		return err
	}
	d.haveHeader = false
	return d.onHeader(int(d.headerHi)<<8 | int(lo))
}

func (d *Dechunker) onHeader(n int) error {
	if n == 0 {
		return d.emitMessage()
	}
	d.chunkSize = n
	d.state = stateInChunk
	return nil
}

// ownedSlice copies n bytes out of buf starting at its current position so
// accumulated chunks survive the caller reusing its read buffer on the
// next Feed call.
func ownedSlice(buf packstream.Buffer, n int) (packstream.Buffer, error) {
	raw, err := buf.ReadBytes(n)
	if err != nil {
		return nil, err
	}
	owned := make([]byte, n)
	copy(owned, raw)
	return packstream.NewContiguous(owned), nil
}

func (d *Dechunker) stepInChunk(buf packstream.Buffer) error {
	remaining := buf.Remaining()
	if d.chunkSize <= remaining {
		view, err := ownedSlice(buf, d.chunkSize)
		if err != nil {
			return err
		}
		d.current = append(d.current, view)
		d.chunkSize = 0
		d.state = stateAwaitingChunk
		return nil
	}
	view, err := ownedSlice(buf, remaining)
	if err != nil {
		return err
	}
	d.current = append(d.current, view)
	d.chunkSize -= remaining
	return nil
}

func (d *Dechunker) emitMessage() error {
	var msg packstream.Buffer
	switch len(d.current) {
	case 0:
		msg = packstream.NewContiguous(nil)
	case 1:
		msg = d.current[0]
		msg.Seek(0)
	default:
		msg = packstream.NewComposed(d.current...)
	}
	d.current = nil
	d.state = stateAwaitingChunk
	if d.onMessage != nil {
		return d.onMessage(msg)
	}
	return nil
}

// Close puts the dechunker into a terminal no-op state; further Feed calls
// return immediately without error.
func (d *Dechunker) Close() {
	d.state = stateClosed
}
