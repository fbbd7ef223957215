package packstream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContiguousPutGet(t *testing.T) {
	buf := NewWriteBuffer(8)
	require.NoError(t, buf.PutU8(0, 0xAB))
	require.NoError(t, buf.PutI32(1, -1234))
	v, err := buf.GetU8(0)
	require.NoError(t, err)
	assert.Equal(t, byte(0xAB), v)
	i, err := buf.GetI32(1)
	require.NoError(t, err)
	assert.Equal(t, int32(-1234), i)
}

func TestContiguousOutOfRangeFails(t *testing.T) {
	buf := NewContiguous([]byte{1, 2, 3})
	_, err := buf.GetU8(10)
	require.Error(t, err)
	var decErr *DecodingError
	assert.ErrorAs(t, err, &decErr)
}

func TestContiguousRemaining(t *testing.T) {
	buf := NewContiguous([]byte{1, 2, 3, 4})
	assert.Equal(t, 4, buf.Remaining())
	assert.True(t, buf.HasRemaining())
	_, err := buf.ReadBytes(4)
	require.NoError(t, err)
	assert.Equal(t, 0, buf.Remaining())
	assert.False(t, buf.HasRemaining())
}

func TestReadSliceAdvancesAndShares(t *testing.T) {
	buf := NewContiguous([]byte{1, 2, 3, 4, 5})
	view, err := buf.ReadSlice(3)
	require.NoError(t, err)
	assert.Equal(t, 3, view.Len())
	assert.Equal(t, 2, buf.Remaining())

	// the view aliases buf's bytes: a write through buf is visible in view
	require.NoError(t, buf.PutU8(0, 9))
	got, err := view.GetU8(0)
	require.NoError(t, err)
	assert.Equal(t, byte(9), got)
}

func TestComposedReadsAcrossParts(t *testing.T) {
	a := NewContiguous([]byte{0x00, 0x01})
	b := NewContiguous([]byte{0x02, 0x03, 0x04})
	composed := NewComposed(a, b)
	assert.Equal(t, 5, composed.Len())

	first, err := composed.ReadU8()
	require.NoError(t, err)
	assert.Equal(t, byte(0x00), first)

	raw, err := composed.ReadBytes(4)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x02, 0x03, 0x04}, raw)
	assert.False(t, composed.HasRemaining())
}

func TestComposedMultiByteValueSpansBoundary(t *testing.T) {
	a := NewContiguous([]byte{0x00, 0x00})
	b := NewContiguous([]byte{0x01, 0x00})
	composed := NewComposed(a, b)
	v, err := composed.ReadI32()
	require.NoError(t, err)
	assert.Equal(t, int32(0x00000100), v)
}

func TestComposedReadSliceAcrossBoundaryCopies(t *testing.T) {
	a := NewContiguous([]byte{1, 2})
	b := NewContiguous([]byte{3, 4})
	composed := NewComposed(a, b)
	view, err := composed.ReadSlice(3)
	require.NoError(t, err)
	assert.Equal(t, 3, view.Len())
	got, _ := view.ReadBytes(3)
	assert.Equal(t, []byte{1, 2, 3}, got)
}

func TestToHex(t *testing.T) {
	buf := NewContiguous([]byte{0xDE, 0xAD, 0xBE, 0xEF})
	assert.Equal(t, "deadbeef", buf.ToHex())
}
