package recvbuf

// Buffer does the receive-side framing bookkeeping for one connection:
// how many bytes of the current wire message have arrived versus how many
// the message header announced. It never touches the socket and never
// interprets payload bytes; the read loop feeds it via Received and asks
// Complete/Remaining to know where message boundaries fall.
//
// A Buffer is owned by exactly one connection and is not safe for
// concurrent use.
type Buffer struct {
	data      []byte
	start     int // bytes logically discarded from the front, compaction pending
	end       int // bytes physically written
	pos       int // bytes consumed toward the current message
	expected  int // announced size of the in-flight message, 0 = none
	watermark int // smoothed message size, used to pre-size reads
}

const defaultWatermark = 1024

func New(capacity int) *Buffer {
	if capacity <= 0 {
		panic("recvbuf: capacity must be positive")
	}
	return &Buffer{
		data:      make([]byte, capacity),
		watermark: defaultWatermark,
	}
}

// ExpectedSize returns the full size of the in-flight message, or 0 when
// no message boundary is known yet.
func (b *Buffer) ExpectedSize() int {
	return b.expected
}

// Remaining returns how many bytes of the in-flight message are still
// missing. Calling it with no message in flight is a caller bug.
func (b *Buffer) Remaining() int {
	if b.expected == 0 {
		panic("recvbuf: Remaining with no message in flight")
	}
	if b.pos >= b.expected {
		return 0
	}
	return b.expected - b.pos
}

func (b *Buffer) Complete() bool {
	return b.expected > 0 && b.pos >= b.expected
}

func (b *Buffer) Pos() int {
	return b.pos
}

func (b *Buffer) Cap() int {
	return len(b.data)
}

// Watermark is a smoothed running average of message sizes. It only
// drives read pre-sizing; it has no effect on framing correctness.
func (b *Buffer) Watermark() int {
	return b.watermark
}

// Received records that n more bytes of the in-flight message landed in
// the backing storage. It is the single mutating entry point of the read
// path and does not look at the bytes themselves.
func (b *Buffer) Received(n int) {
	if n < 0 {
		panic("recvbuf: negative byte count")
	}
	if b.expected == 0 {
		panic("recvbuf: Received with no message in flight")
	}
	if b.pos+n > len(b.data) {
		panic("recvbuf: received bytes overflow capacity")
	}
	if b.pos+n > b.expected {
		panic("recvbuf: received bytes beyond message boundary")
	}
	b.pos += n
	b.end += n
	b.check()
}

// BeginMessage announces the size of a freshly starting message, as
// decoded from its length prefix. The previous message must have been
// fully consumed and Reset first. Zero-length keep-alives never reach
// here; callers handle them without engaging the buffer.
func (b *Buffer) BeginMessage(size int) {
	if size <= 0 {
		panic("recvbuf: BeginMessage size must be positive")
	}
	if b.expected != 0 {
		panic("recvbuf: BeginMessage while message in flight")
	}
	if b.pos != 0 {
		panic("recvbuf: BeginMessage before previous message was reset")
	}
	if !b.Normalized() {
		panic("recvbuf: BeginMessage on non-normalized buffer")
	}
	b.Reserve(size)
	b.expected = size
	b.watermark = b.watermark - b.watermark/16 + size/16
	if b.watermark < 1 {
		b.watermark = 1
	}
	b.check()
}

// Reset returns the buffer to the no-message state once the current
// message has been fully consumed. The consumed bytes are logically cut
// off the front; Normalize resolves the cut.
func (b *Buffer) Reset() {
	if !b.Complete() {
		panic("recvbuf: Reset before message completed")
	}
	b.start += b.expected
	b.pos = 0
	b.expected = 0
	b.check()
}

// Normalized reports whether no front cut is pending.
func (b *Buffer) Normalized() bool {
	return b.start == 0
}

// Normalize slides any bytes behind a pending front cut down to the start
// of the backing storage. Must be called after Reset before the next
// BeginMessage.
func (b *Buffer) Normalize() {
	if b.start == 0 {
		return
	}
	copy(b.data, b.data[b.start:b.end])
	b.end -= b.start
	b.start = 0
	b.check()
}

// Clear drops everything, message state and stored bytes alike. Used at
// the encryption cutover, once the handshake layer has consumed the
// whole encrypted prefix and plaintext framing starts from a clean
// stream position.
func (b *Buffer) Clear() {
	b.start = 0
	b.end = 0
	b.pos = 0
	b.expected = 0
	b.check()
}

// WritableRegion exposes the storage available for the next socket read.
func (b *Buffer) WritableRegion() []byte {
	return b.data[b.end:]
}

// MessageBytes returns the bytes received so far for the current message.
func (b *Buffer) MessageBytes() []byte {
	return b.data[b.start : b.start+b.pos]
}

// Reserve grows the backing storage so that at least n message bytes fit.
func (b *Buffer) Reserve(n int) {
	if n <= len(b.data) {
		return
	}
	grown := make([]byte, n)
	copy(grown, b.data[:b.end])
	b.data = grown
}

// fill advances only the physical write offset. Used by the encrypted
// adapter, whose segment accounting is independent of message accounting.
func (b *Buffer) fill(n int) {
	if b.end+n > len(b.data) {
		panic("recvbuf: fill overflows capacity")
	}
	b.end += n
}

// advance moves only the logical message position. Used by the encrypted
// adapter when decrypted bytes, already physically present, are committed
// to the plaintext framing pass.
func (b *Buffer) advance(n int) {
	if b.expected == 0 {
		panic("recvbuf: advance with no message in flight")
	}
	if b.pos+n > b.expected {
		panic("recvbuf: advance beyond message boundary")
	}
	b.pos += n
	b.check()
}
