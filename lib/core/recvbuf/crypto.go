package recvbuf

// retired marks an adapter that no longer tracks an encrypted segment.
const retired = -1

// CryptoAdapter runs a second, independent framing pass over the bytes of
// a Buffer it does not own. While a connection is mid-handshake only a
// prefix of the stream is encrypted, and encrypted record boundaries do
// not line up with plaintext message boundaries; the adapter counts
// arrived bytes against the current encrypted segment while the wrapped
// Buffer keeps counting against the plaintext message underneath.
//
// The wrapped Buffer outlives the adapter. Once the handshake fully
// completes the adapter is Retired and the Buffer resumes normal framing.
type CryptoAdapter struct {
	rb       *Buffer
	pos      int // bytes consumed toward the current encrypted segment
	expected int // current segment size, retired when no longer tracking
}

func NewCryptoAdapter(rb *Buffer, firstSegment int) *CryptoAdapter {
	if firstSegment <= 0 {
		panic("recvbuf: first segment size must be positive")
	}
	return &CryptoAdapter{
		rb:       rb,
		expected: firstSegment,
	}
}

// WritableRegion exposes the buffer region for the next socket read,
// regardless of which framing pass currently owns the stream.
func (c *CryptoAdapter) WritableRegion() []byte {
	return c.rb.WritableRegion()
}

// Received records n raw stream bytes against the encrypted segment. The
// bytes land in the wrapped buffer's storage but are not yet visible to
// the plaintext framing pass.
func (c *CryptoAdapter) Received(n int) {
	if c.expected == retired {
		panic("recvbuf: Received on retired crypto adapter")
	}
	if n < 0 {
		panic("recvbuf: negative byte count")
	}
	if c.pos+n > c.expected {
		panic("recvbuf: received bytes beyond encrypted segment")
	}
	c.pos += n
	c.rb.fill(n)
	c.check()
}

func (c *CryptoAdapter) SegmentComplete() bool {
	if c.expected == retired {
		panic("recvbuf: SegmentComplete on retired crypto adapter")
	}
	return c.pos >= c.expected
}

func (c *CryptoAdapter) SegmentRemaining() int {
	if c.expected == retired {
		panic("recvbuf: SegmentRemaining on retired crypto adapter")
	}
	if c.pos >= c.expected {
		return 0
	}
	return c.expected - c.pos
}

// Cut commits consumed bytes as belonging to the encrypted framing pass
// and immediately re-arms the counter with the next segment size. Each
// record announces the size of the one that follows it; the cut may only
// shrink what remains of the current segment, never grow it.
func (c *CryptoAdapter) Cut(consumed, nextExpected int) {
	if c.expected == retired {
		panic("recvbuf: Cut on retired crypto adapter")
	}
	if consumed < 0 {
		panic("recvbuf: Cut with negative consumed count")
	}
	if nextExpected <= 0 {
		panic("recvbuf: Cut with non-positive next segment size")
	}
	if consumed > c.pos {
		panic("recvbuf: Cut consuming more than received")
	}
	c.pos -= consumed
	c.expected = nextExpected
	if c.pos > c.expected {
		panic("recvbuf: Cut would grow remaining segment")
	}
	c.check()
}

// Segment returns the bytes received so far for the current encrypted
// segment, for in-place decryption.
func (c *CryptoAdapter) Segment() []byte {
	if c.expected == retired {
		panic("recvbuf: Segment on retired crypto adapter")
	}
	return c.rb.data[c.rb.end-c.pos : c.rb.end]
}

// CommitPlaintext hands n decrypted bytes, already in place in the
// backing storage, to the plaintext framing pass.
func (c *CryptoAdapter) CommitPlaintext(n int) {
	c.rb.advance(n)
}

// Retire permanently stops encrypted-segment tracking. Any further
// segment call is a caller bug.
func (c *CryptoAdapter) Retire() {
	c.expected = retired
	c.pos = 0
}

func (c *CryptoAdapter) Retired() bool {
	return c.expected == retired
}
