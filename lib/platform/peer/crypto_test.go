package peer

import (
	"encoding/binary"
	"net"
	"testing"
	"time"

	"example.com/peerwire/lib/core/events"

	"github.com/stretchr/testify/assert"
)

// fakeCrypto models a record protocol where a 4-byte header announces
// the size of the record that follows, and one record ends the
// encrypted prefix.
type fakeCrypto struct {
	gotHeader  bool
	sawPayload []byte
}

func (f *fakeCrypto) FirstSegment() int { return 4 }

func (f *fakeCrypto) OnSegment(seg []byte) (int, int, bool, error) {
	if !f.gotHeader {
		f.gotHeader = true
		next := int(binary.BigEndian.Uint32(seg))
		return 4, next, false, nil
	}
	f.sawPayload = append([]byte(nil), seg...)
	return len(seg), 1, true, nil
}

func Test_cryptoPrefixCutover(t *testing.T) {
	hub := events.NewHub(64, events.CategoryAll)
	c := testConn(hub)

	fc := &fakeCrypto{}
	c.SetCryptoHandler(fc)

	client, server := net.Pipe()
	c.conn = client
	go c.readLoop()

	// Encrypted prefix: header announcing 6 bytes, then the record.
	header := make([]byte, 4)
	binary.BigEndian.PutUint32(header, 6)
	_, err := server.Write(header)
	assert.NoError(t, err)
	_, err = server.Write([]byte("secret"))
	assert.NoError(t, err)

	// After cutover, plaintext framing picks up seamlessly.
	_, err = server.Write([]byte{0, 0, 0, 1, msgUnchoke})
	assert.NoError(t, err)

	assert.Eventually(t, func() bool {
		for _, ev := range hub.Drain() {
			if ch, ok := ev.(events.ChokeChanged); ok && !ch.Choked {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, []byte("secret"), fc.sawPayload)
	c.Close("test done")
}
