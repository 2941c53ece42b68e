package requests

import "example.com/peerwire/lib/core/domain"

// Matches reports whether a received block satisfies an outstanding
// request. It sits on the hot path between framing completion and the
// storage write-back, so it stays a bare equality check; any change to
// block addressing lands here.
func Matches(candidate domain.BlockID, pending domain.PendingBlock) bool {
	return candidate == pending.Block
}

// Queue is the outstanding-request list of one connection. It is small,
// bounded by the in-flight request limit, and only ever touched by the
// goroutine servicing that connection, so a plain slice scan is fine.
type Queue struct {
	pending []domain.PendingBlock
}

func (q *Queue) Add(p domain.PendingBlock) {
	q.pending = append(q.pending, p)
}

// Retire removes and returns the first pending request the received
// block satisfies. ok is false when the data was unsolicited; the caller
// discards it without writing it anywhere.
func (q *Queue) Retire(b domain.BlockID) (p domain.PendingBlock, ok bool) {
	for i, cand := range q.pending {
		if Matches(b, cand) {
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
			return cand, true
		}
	}
	return domain.PendingBlock{}, false
}

func (q *Queue) Len() int {
	return len(q.pending)
}

// Drop empties the queue and returns what was outstanding, so the caller
// can recycle the requests to other connections on teardown.
func (q *Queue) Drop() []domain.PendingBlock {
	out := q.pending
	q.pending = nil
	return out
}
