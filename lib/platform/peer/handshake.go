package peer

import (
	"bytes"
	"encoding/binary"
	"errors"
)

var errHandshakeMismatch = errors.New("handshake does not match")

type handshake struct {
	proto        string
	featureFlags uint64
	infoHash     []byte
	peerID       []byte
}

func (u handshake) matches(v handshake) bool {
	return u.proto == v.proto && bytes.Equal(u.infoHash, v.infoHash)
}

func (h handshake) getBytes() []byte {
	handshakeBytes := make([]byte, 1024)

	protoLen := len(h.proto)

	n := 0
	n += copy(handshakeBytes[n:], []byte{byte(protoLen)})
	n += copy(handshakeBytes[n:], []byte(h.proto))

	binary.BigEndian.PutUint64(handshakeBytes[n:], h.featureFlags)
	n += 8

	n += copy(handshakeBytes[n:], h.infoHash)
	n += copy(handshakeBytes[n:], h.peerID)

	return handshakeBytes[:n]
}

func newHandshake(b []byte) (handshake, error) {
	var h handshake

	if len(b) < 1 {
		return h, errors.New("empty handshake")
	}
	protoLen := int(b[0])
	if len(b) < 1+protoLen+8+20+20 {
		return h, errors.New("short handshake")
	}
	n := 1

	h.proto = string(b[n : n+protoLen])
	n += protoLen
	h.featureFlags = binary.BigEndian.Uint64(b[n:])
	n += 8

	h.infoHash = b[n : n+20]
	n += 20

	h.peerID = b[n : n+20]

	return h, nil
}
