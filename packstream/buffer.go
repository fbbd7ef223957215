package packstream

import (
	"encoding/binary"
	"encoding/hex"
	"math"
)

// Buffer is a position-tracked, big-endian byte sequence. Two physical
// backings exist: Contiguous, a single growable byte array, and Composed,
// an ordered sequence of sub-buffers exposed as one logical buffer. Both
// satisfy this interface so the Packer/Unpacker and the chunker never need
// to know which one they hold.
type Buffer interface {
	Len() int
	Position() int
	Seek(pos int)
	Remaining() int
	HasRemaining() bool

	GetU8(at int) (byte, error)
	PutU8(at int, v byte) error
	GetI16(at int) (int16, error)
	PutI16(at int, v int16) error
	GetI32(at int) (int32, error)
	PutI32(at int, v int32) error
	GetI64(at int) (int64, error)
	PutI64(at int, v int64) error
	GetF64(at int) (float64, error)
	PutF64(at int, v float64) error

	ReadU8() (byte, error)
	WriteU8(v byte) error
	ReadI8() (int8, error)
	WriteI8(v int8) error
	ReadI16() (int16, error)
	WriteI16(v int16) error
	ReadI32() (int32, error)
	WriteI32(v int32) error
	ReadI64() (int64, error)
	WriteI64(v int64) error
	ReadF64() (float64, error)
	WriteF64(v float64) error

	// ReadBytes reads n raw bytes and advances the position. The returned
	// slice MAY alias the underlying storage; callers that need an owned
	// copy must clone it.
	ReadBytes(n int) ([]byte, error)
	WriteBytes(p []byte) error

	// ReadSlice returns a view over the next n bytes and advances position.
	// On a Composed buffer, a slice that crosses a sub-buffer boundary is
	// copied into a new Contiguous buffer; callers needing contiguity (a
	// raw network write) must not assume a zero-copy result.
	ReadSlice(n int) (Buffer, error)

	ToHex() string
}

// NewContiguous wraps an existing byte slice for reading; Position starts
// at 0 and Len is fixed at len(data).
func NewContiguous(data []byte) *Contiguous {
	return &Contiguous{data: data}
}

// NewWriteBuffer returns an empty Contiguous buffer that grows as bytes are
// written to it, starting with the given capacity hint.
func NewWriteBuffer(capacityHint int) *Contiguous {
	return &Contiguous{data: make([]byte, 0, capacityHint), growable: true}
}

// Contiguous is a Buffer backed by a single byte array.
type Contiguous struct {
	data     []byte
	pos      int
	growable bool
}

func (b *Contiguous) Len() int            { return len(b.data) }
func (b *Contiguous) Position() int       { return b.pos }
func (b *Contiguous) Seek(pos int)        { b.pos = pos }
func (b *Contiguous) Remaining() int      { return len(b.data) - b.pos }
func (b *Contiguous) HasRemaining() bool  { return b.pos < len(b.data) }
func (b *Contiguous) Bytes() []byte       { return b.data }

func (b *Contiguous) ensureCap(at, n int) error {
	need := at + n
	if need <= len(b.data) {
		return nil
	}
	if !b.growable {
		return newDecodingError("write past buffer length: at=%d n=%d len=%d", at, n, len(b.data))
	}
	if need > cap(b.data) {
		grown := make([]byte, need, 2*need)
		copy(grown, b.data)
		b.data = grown[:len(b.data)]
	}
	b.data = b.data[:need]
	return nil
}

func (b *Contiguous) checkRange(at, n int) error {
	if at < 0 || n < 0 || at+n > len(b.data) {
		return newDecodingError("out of range: at=%d n=%d len=%d", at, n, len(b.data))
	}
	return nil
}

func (b *Contiguous) GetU8(at int) (byte, error) {
	if err := b.checkRange(at, 1); err != nil {
		return 0, err
	}
	return b.data[at], nil
}

func (b *Contiguous) PutU8(at int, v byte) error {
	if err := b.ensureCap(at, 1); err != nil {
		return err
	}
	b.data[at] = v
	return nil
}

func (b *Contiguous) GetI16(at int) (int16, error) {
	if err := b.checkRange(at, 2); err != nil {
		return 0, err
	}
	return int16(binary.BigEndian.Uint16(b.data[at:])), nil
}

func (b *Contiguous) PutI16(at int, v int16) error {
	if err := b.ensureCap(at, 2); err != nil {
		return err
	}
	binary.BigEndian.PutUint16(b.data[at:], uint16(v))
	return nil
}

func (b *Contiguous) GetI32(at int) (int32, error) {
	if err := b.checkRange(at, 4); err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(b.data[at:])), nil
}

func (b *Contiguous) PutI32(at int, v int32) error {
	if err := b.ensureCap(at, 4); err != nil {
		return err
	}
	binary.BigEndian.PutUint32(b.data[at:], uint32(v))
	return nil
}

func (b *Contiguous) GetI64(at int) (int64, error) {
	if err := b.checkRange(at, 8); err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(b.data[at:])), nil
}

func (b *Contiguous) PutI64(at int, v int64) error {
	if err := b.ensureCap(at, 8); err != nil {
		return err
	}
	binary.BigEndian.PutUint64(b.data[at:], uint64(v))
	return nil
}

func (b *Contiguous) GetF64(at int) (float64, error) {
	bits, err := b.GetI64(at)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(uint64(bits)), nil
}

func (b *Contiguous) PutF64(at int, v float64) error {
	return b.PutI64(at, int64(math.Float64bits(v)))
}

func (b *Contiguous) ReadU8() (byte, error) {
	v, err := b.GetU8(b.pos)
	if err != nil {
		return 0, err
	}
	b.pos++
	return v, nil
}

func (b *Contiguous) WriteU8(v byte) error {
	if err := b.PutU8(b.pos, v); err != nil {
		return err
	}
	b.pos++
	return nil
}

func (b *Contiguous) ReadI8() (int8, error) {
	v, err := b.ReadU8()
	return int8(v), err
}

func (b *Contiguous) WriteI8(v int8) error { return b.WriteU8(byte(v)) }

func (b *Contiguous) ReadI16() (int16, error) {
	v, err := b.GetI16(b.pos)
	if err != nil {
		return 0, err
	}
	b.pos += 2
	return v, nil
}

func (b *Contiguous) WriteI16(v int16) error {
	if err := b.PutI16(b.pos, v); err != nil {
		return err
	}
	b.pos += 2
	return nil
}

func (b *Contiguous) ReadI32() (int32, error) {
	v, err := b.GetI32(b.pos)
	if err != nil {
		return 0, err
	}
	b.pos += 4
	return v, nil
}

func (b *Contiguous) WriteI32(v int32) error {
	if err := b.PutI32(b.pos, v); err != nil {
		return err
	}
	b.pos += 4
	return nil
}

func (b *Contiguous) ReadI64() (int64, error) {
	v, err := b.GetI64(b.pos)
	if err != nil {
		return 0, err
	}
	b.pos += 8
	return v, nil
}

func (b *Contiguous) WriteI64(v int64) error {
	if err := b.PutI64(b.pos, v); err != nil {
		return err
	}
	b.pos += 8
	return nil
}

func (b *Contiguous) ReadF64() (float64, error) {
	v, err := b.GetF64(b.pos)
	if err != nil {
		return 0, err
	}
	b.pos += 8
	return v, nil
}

func (b *Contiguous) WriteF64(v float64) error {
	if err := b.PutF64(b.pos, v); err != nil {
		return err
	}
	b.pos += 8
	return nil
}

func (b *Contiguous) ReadBytes(n int) ([]byte, error) {
	if err := b.checkRange(b.pos, n); err != nil {
		return nil, err
	}
	out := b.data[b.pos : b.pos+n]
	b.pos += n
	return out, nil
}

func (b *Contiguous) WriteBytes(p []byte) error {
	if err := b.ensureCap(b.pos, len(p)); err != nil {
		return err
	}
	copy(b.data[b.pos:], p)
	b.pos += len(p)
	return nil
}

func (b *Contiguous) ReadSlice(n int) (Buffer, error) {
	raw, err := b.ReadBytes(n)
	if err != nil {
		return nil, err
	}
	return &Contiguous{data: raw}, nil
}

func (b *Contiguous) ToHex() string { return hex.EncodeToString(b.data) }

// Composed presents an ordered list of sub-buffers as one logical buffer.
// Its length is the sum of its parts; reads transparently cross part
// boundaries. It is built by the dechunker when a message spans more than
// one chunk and is never itself the target of a write.
type Composed struct {
	parts  []Buffer
	offset []int // cumulative start offset of each part
	length int
	pos    int
}

func NewComposed(parts ...Buffer) *Composed {
	c := &Composed{parts: parts}
	off := 0
	c.offset = make([]int, len(parts))
	for i, p := range parts {
		c.offset[i] = off
		off += p.Len()
	}
	c.length = off
	return c
}

func (c *Composed) Len() int           { return c.length }
func (c *Composed) Position() int      { return c.pos }
func (c *Composed) Seek(pos int)       { c.pos = pos }
func (c *Composed) Remaining() int     { return c.length - c.pos }
func (c *Composed) HasRemaining() bool { return c.pos < c.length }

// locate returns the part index owning absolute offset at, and the offset
// within that part.
func (c *Composed) locate(at int) (int, int, error) {
	if at < 0 || at > c.length {
		return 0, 0, newDecodingError("composed buffer: offset %d out of range (len %d)", at, c.length)
	}
	lo, hi := 0, len(c.parts)
	for lo < hi {
		mid := (lo + hi) / 2
		if c.offset[mid] <= at {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	idx := lo - 1
	if idx < 0 {
		idx = 0
	}
	return idx, at - c.offset[idx], nil
}

func (c *Composed) GetU8(at int) (byte, error) {
	idx, off, err := c.locate(at)
	if err != nil {
		return 0, err
	}
	return c.parts[idx].GetU8(off)
}

func (c *Composed) PutU8(at int, v byte) error {
	idx, off, err := c.locate(at)
	if err != nil {
		return err
	}
	return c.parts[idx].PutU8(off, v)
}

// readMultiByte reads n bytes starting at absolute offset at, crossing part
// boundaries as needed, and returns them as a freshly allocated slice.
func (c *Composed) readMultiByte(at, n int) ([]byte, error) {
	if at < 0 || n < 0 || at+n > c.length {
		return nil, newDecodingError("composed buffer: read past end at=%d n=%d len=%d", at, n, c.length)
	}
	out := make([]byte, 0, n)
	idx, off, err := c.locate(at)
	if err != nil {
		return nil, err
	}
	remaining := n
	for remaining > 0 {
		part := c.parts[idx]
		avail := part.Len() - off
		take := remaining
		if take > avail {
			take = avail
		}
		for i := 0; i < take; i++ {
			b, err := part.GetU8(off + i)
			if err != nil {
				return nil, err
			}
			out = append(out, b)
		}
		remaining -= take
		idx++
		off = 0
	}
	return out, nil
}

func (c *Composed) GetI16(at int) (int16, error) {
	b, err := c.readMultiByte(at, 2)
	if err != nil {
		return 0, err
	}
	return int16(binary.BigEndian.Uint16(b)), nil
}

func (c *Composed) PutI16(at int, v int16) error {
	buf := make([]byte, 2)
	binary.BigEndian.PutUint16(buf, uint16(v))
	return c.putMultiByte(at, buf)
}

func (c *Composed) GetI32(at int) (int32, error) {
	b, err := c.readMultiByte(at, 4)
	if err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(b)), nil
}

func (c *Composed) PutI32(at int, v int32) error {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, uint32(v))
	return c.putMultiByte(at, buf)
}

func (c *Composed) GetI64(at int) (int64, error) {
	b, err := c.readMultiByte(at, 8)
	if err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(b)), nil
}

func (c *Composed) PutI64(at int, v int64) error {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(v))
	return c.putMultiByte(at, buf)
}

func (c *Composed) GetF64(at int) (float64, error) {
	bits, err := c.GetI64(at)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(uint64(bits)), nil
}

func (c *Composed) PutF64(at int, v float64) error {
	return c.PutI64(at, int64(math.Float64bits(v)))
}

func (c *Composed) putMultiByte(at int, p []byte) error {
	for i, b := range p {
		if err := c.PutU8(at+i, b); err != nil {
			return err
		}
	}
	return nil
}

func (c *Composed) ReadU8() (byte, error) {
	v, err := c.GetU8(c.pos)
	if err != nil {
		return 0, err
	}
	c.pos++
	return v, nil
}

func (c *Composed) WriteU8(v byte) error {
	if err := c.PutU8(c.pos, v); err != nil {
		return err
	}
	c.pos++
	return nil
}

func (c *Composed) ReadI8() (int8, error) {
	v, err := c.ReadU8()
	return int8(v), err
}

func (c *Composed) WriteI8(v int8) error { return c.WriteU8(byte(v)) }

func (c *Composed) ReadI16() (int16, error) {
	v, err := c.GetI16(c.pos)
	if err != nil {
		return 0, err
	}
	c.pos += 2
	return v, nil
}

func (c *Composed) WriteI16(v int16) error {
	if err := c.PutI16(c.pos, v); err != nil {
		return err
	}
	c.pos += 2
	return nil
}

func (c *Composed) ReadI32() (int32, error) {
	v, err := c.GetI32(c.pos)
	if err != nil {
		return 0, err
	}
	c.pos += 4
	return v, nil
}

func (c *Composed) WriteI32(v int32) error {
	if err := c.PutI32(c.pos, v); err != nil {
		return err
	}
	c.pos += 4
	return nil
}

func (c *Composed) ReadI64() (int64, error) {
	v, err := c.GetI64(c.pos)
	if err != nil {
		return 0, err
	}
	c.pos += 8
	return v, nil
}

func (c *Composed) WriteI64(v int64) error {
	if err := c.PutI64(c.pos, v); err != nil {
		return err
	}
	c.pos += 8
	return nil
}

func (c *Composed) ReadF64() (float64, error) {
	v, err := c.GetF64(c.pos)
	if err != nil {
		return 0, err
	}
	c.pos += 8
	return v, nil
}

func (c *Composed) WriteF64(v float64) error {
	if err := c.PutF64(c.pos, v); err != nil {
		return err
	}
	c.pos += 8
	return nil
}

func (c *Composed) ReadBytes(n int) ([]byte, error) {
	b, err := c.readMultiByte(c.pos, n)
	if err != nil {
		return nil, err
	}
	c.pos += n
	return b, nil
}

func (c *Composed) WriteBytes(p []byte) error {
	if err := c.putMultiByte(c.pos, p); err != nil {
		return err
	}
	c.pos += len(p)
	return nil
}

// ReadSlice returns a view over the next n bytes. If they fall within a
// single part and that part is contiguous, the view aliases that part's
// storage; if they cross a part boundary, the bytes are copied into a new
// Contiguous buffer.
func (c *Composed) ReadSlice(n int) (Buffer, error) {
	idx, off, err := c.locate(c.pos)
	if err != nil {
		return nil, err
	}
	if off+n <= c.parts[idx].Len() {
		part := c.parts[idx]
		c.pos += n
		savedPos := part.Position()
		part.Seek(off)
		view, err := part.ReadSlice(n)
		part.Seek(savedPos)
		return view, err
	}
	raw, err := c.readMultiByte(c.pos, n)
	if err != nil {
		return nil, err
	}
	c.pos += n
	return &Contiguous{data: raw}, nil
}

func (c *Composed) ToHex() string {
	out := make([]byte, 0, c.length)
	for _, p := range c.parts {
		for i := 0; i < p.Len(); i++ {
			b, _ := p.GetU8(i)
			out = append(out, b)
		}
	}
	return hex.EncodeToString(out)
}
