package peer

import (
	"example.com/peerwire/lib/core/adapter/bandwidth"
	"example.com/peerwire/lib/core/domain"
)

// PieceRequest is an incoming request from the remote peer, surfaced to
// whatever upload policy sits above the connection.
type PieceRequest struct {
	PieceNo uint32
	Begin   uint32
	Length  uint32
	From    domain.Host
}

type Stats struct {
	DownloadBytes uint64
	UploadBytes   uint64
}

// Peer is one wire connection. The framing state behind it is owned by
// the connection's read goroutine; RequestBlock must be called from that
// goroutine, i.e. from inside one of the On* callbacks.
type Peer interface {
	bandwidth.Consumer

	Connect() error
	Close(reason string)
	Host() domain.Host

	TheirPieces() domain.PieceList
	WeAreChoked() bool
	Interested()
	Unchoke()

	RequestBlock(b domain.BlockID, length int) error
	Outstanding() int
	SendBlock(req PieceRequest, data []byte) error
	PieceRequests() <-chan PieceRequest

	OnChokedChanged(fn func(isChoked bool))
	OnPiecesUpdated(fn func())
	OnBlockArrive(fn func(b domain.BlockID, data []byte))

	Stats() Stats
}

type Factory interface {
	New(h domain.Host) Peer
}

type FactoryFn func(h domain.Host) Peer

func (p FactoryFn) New(h domain.Host) Peer {
	return p(h)
}
