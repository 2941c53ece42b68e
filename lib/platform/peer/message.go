package peer

// Wire message ids, BEP 3 / BEP 10.
const (
	msgChoke         = 0
	msgUnchoke       = 1
	msgInterested    = 2
	msgNotInterested = 3
	msgHave          = 4
	msgBitfield      = 5
	msgRequest       = 6
	msgPiece         = 7
	msgCancel        = 8
	msgExtended      = 20
)

// A length prefix above this is treated as a protocol violation rather
// than an allocation request. Largest legitimate message is a piece with
// one 16 KiB block plus header.
const maxMessageSize = 1 << 17

const defaultBlockLength = 16384
