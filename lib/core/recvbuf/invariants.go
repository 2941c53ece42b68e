package recvbuf

// check verifies the buffer invariants after a mutation. It compiles down
// to nothing unless the invariants build tag is set.
func (b *Buffer) check() {
	if !debugChecks {
		return
	}
	if b.start < 0 || b.end < 0 || b.pos < 0 {
		panic("recvbuf: negative offset")
	}
	if b.end > len(b.data) {
		panic("recvbuf: end offset beyond capacity")
	}
	if b.start > b.end {
		panic("recvbuf: start offset beyond end offset")
	}
	if b.expected > 0 && b.pos > b.expected {
		panic("recvbuf: position beyond expected size")
	}
	if b.expected == 0 && b.pos != 0 {
		panic("recvbuf: position without message in flight")
	}
}

func (c *CryptoAdapter) check() {
	if !debugChecks {
		return
	}
	if c.expected == retired {
		return
	}
	if c.pos < 0 || c.expected <= 0 {
		panic("recvbuf: bad crypto segment state")
	}
	if c.pos > c.expected {
		panic("recvbuf: crypto position beyond segment size")
	}
}
