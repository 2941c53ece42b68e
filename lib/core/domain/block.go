package domain

// BlockID identifies one block: the piece it belongs to and the block's
// index within that piece. Only meaningful relative to a fixed piece
// length, which callers are responsible for agreeing on.
type BlockID struct {
	Piece uint32
	Block uint32
}

func (b BlockID) Less(other BlockID) bool {
	if b.Piece != other.Piece {
		return b.Piece < other.Piece
	}
	return b.Block < other.Block
}

// PendingBlock is an outstanding block request. Tag is opaque here;
// connections use it to carry whatever origin or priority marker they
// need back when the request is retired.
type PendingBlock struct {
	Block BlockID
	Tag   interface{}
}
