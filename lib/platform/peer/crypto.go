package peer

// CryptoHandler is the handshake/crypto layer's hook into the read loop
// for streams that start encrypted. The connection feeds it one
// completed encrypted segment at a time; the handler decrypts the
// segment in place and steers the framing:
//
//   - consumed/next re-arm the encrypted framing pass (each record
//     announces the size of the one that follows),
//   - done signals the cutover to plaintext framing. The handler must
//     have consumed the entire encrypted prefix by then.
//
// Key exchange itself happens before the connection enters the read
// loop and is none of this package's business.
type CryptoHandler interface {
	FirstSegment() int
	OnSegment(seg []byte) (consumed int, next int, done bool, err error)
}
