package domain

import "errors"

type PieceList []byte

func NewPieceList(piecesCount int) PieceList {
	return make(PieceList, (piecesCount+7)/8)
}

func (p PieceList) ApproxPieceCount() uint32 {
	return uint32(len(p) * 8)
}

func (p PieceList) ContainPiece(pieceNo uint32) bool {
	i := int(pieceNo / 8)
	if i >= len(p) {
		return false
	}
	j := 7 - pieceNo%8
	return (p[i]>>j)&1 == 1
}

func (p PieceList) SetPiece(pieceNo uint32) error {
	i := int(pieceNo / 8)
	if i >= len(p) {
		return errors.New("out of bound")
	}
	j := 7 - pieceNo%8
	p[i] |= 1 << j
	return nil
}
