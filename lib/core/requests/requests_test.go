package requests

import (
	"math"
	"testing"

	"example.com/peerwire/lib/core/domain"

	"github.com/stretchr/testify/assert"
)

func Test_Matches(t *testing.T) {
	ids := []domain.BlockID{
		{Piece: 0, Block: 0},
		{Piece: 0, Block: 1},
		{Piece: 1, Block: 0},
		{Piece: 7, Block: 42},
		{Piece: math.MaxUint32, Block: 0},
		{Piece: 0, Block: math.MaxUint32},
		{Piece: math.MaxUint32, Block: math.MaxUint32},
	}

	for _, a := range ids {
		for _, b := range ids {
			p := domain.PendingBlock{Block: b, Tag: "peer-1"}
			assert.Equal(t, a == b, Matches(a, p))
		}
	}
}

func Test_QueueRetire(t *testing.T) {
	var q Queue
	q.Add(domain.PendingBlock{Block: domain.BlockID{Piece: 3, Block: 0}, Tag: 1})
	q.Add(domain.PendingBlock{Block: domain.BlockID{Piece: 3, Block: 1}, Tag: 2})
	q.Add(domain.PendingBlock{Block: domain.BlockID{Piece: 4, Block: 0}, Tag: 3})
	assert.Equal(t, 3, q.Len())

	p, ok := q.Retire(domain.BlockID{Piece: 3, Block: 1})
	assert.True(t, ok)
	assert.Equal(t, 2, p.Tag)
	assert.Equal(t, 2, q.Len())

	// Unsolicited: nothing retired.
	_, ok = q.Retire(domain.BlockID{Piece: 9, Block: 9})
	assert.False(t, ok)
	assert.Equal(t, 2, q.Len())

	// Already retired once.
	_, ok = q.Retire(domain.BlockID{Piece: 3, Block: 1})
	assert.False(t, ok)
}

func Test_QueueDrop(t *testing.T) {
	var q Queue
	q.Add(domain.PendingBlock{Block: domain.BlockID{Piece: 1, Block: 1}})
	q.Add(domain.PendingBlock{Block: domain.BlockID{Piece: 1, Block: 2}})

	dropped := q.Drop()
	assert.Len(t, dropped, 2)
	assert.Equal(t, 0, q.Len())
	assert.Len(t, q.Drop(), 0)
}
