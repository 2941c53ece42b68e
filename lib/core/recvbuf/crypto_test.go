package recvbuf

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_CryptoSegments(t *testing.T) {
	rb := New(4096)
	c := NewCryptoAdapter(rb, 10)

	assert.Equal(t, 10, c.SegmentRemaining())
	c.Received(4)
	assert.Equal(t, 6, c.SegmentRemaining())
	assert.False(t, c.SegmentComplete())

	c.Received(6)
	assert.True(t, c.SegmentComplete())

	// Each record announces the size of the next one.
	c.Cut(10, 6)
	assert.Equal(t, 6, c.SegmentRemaining())
	c.Received(3)
	assert.Equal(t, 3, c.SegmentRemaining())
	c.Received(3)
	c.Cut(6, 5)
	assert.Equal(t, 5, c.SegmentRemaining())
}

func Test_CryptoCutMonotonic(t *testing.T) {
	rb := New(4096)
	c := NewCryptoAdapter(rb, 8)
	c.Received(8)

	// Partial cut: the remainder stays counted against the new segment.
	c.Cut(5, 4)
	assert.Equal(t, 1, c.SegmentRemaining())

	assert.Panics(t, func() { c.Cut(4, 2) })  // more than received
	assert.Panics(t, func() { c.Cut(1, 0) })  // next segment must be positive
	assert.Panics(t, func() { c.Cut(1, -4) }) // next segment must be positive
	assert.Panics(t, func() { c.Cut(-1, 4) }) // negative consumed
	assert.Panics(t, func() { c.Cut(0, 2) })  // would grow remaining past segment
}

func Test_CryptoRetire(t *testing.T) {
	rb := New(4096)
	c := NewCryptoAdapter(rb, 4)
	c.Received(4)
	c.Cut(4, 1)
	assert.False(t, c.Retired())

	c.Retire()
	assert.True(t, c.Retired())
	assert.Panics(t, func() { c.SegmentRemaining() })
	assert.Panics(t, func() { c.SegmentComplete() })
	assert.Panics(t, func() { c.Cut(0, 1) })
	assert.Panics(t, func() { c.Received(1) })
}

func Test_CryptoCommitPlaintext(t *testing.T) {
	rb := New(4096)
	c := NewCryptoAdapter(rb, 16)

	// 16 raw bytes arrive, decrypted in place: a 13-byte plaintext
	// message plus 3 bytes belonging to the next record.
	copy(c.WritableRegion(), make([]byte, 16))
	c.Received(16)
	assert.True(t, c.SegmentComplete())

	rb.BeginMessage(13)
	c.CommitPlaintext(13)
	assert.True(t, rb.Complete())
	assert.Panics(t, func() { c.CommitPlaintext(1) })

	c.Cut(16, 8)
	assert.Equal(t, 8, c.SegmentRemaining())
}

func Test_NewCryptoAdapterRejectsBadSegment(t *testing.T) {
	rb := New(64)
	assert.Panics(t, func() { NewCryptoAdapter(rb, 0) })
}
