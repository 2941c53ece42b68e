package events

import (
	"sync"
	"sync/atomic"
)

// Hub is the client-wide alert queue. Producers on any goroutine Post
// events; exactly one drain loop calls Drain on its own cadence. Two
// fixed-capacity generations alternate: producers append to the active
// one, Drain swaps parity and hands the frozen one out, so producers are
// never blocked for longer than one append and iteration of drained
// events never contends with new production.
//
// Admission is best-effort. An event whose category is masked out, or
// that arrives while the active generation is full, is silently dropped;
// producers sit on latency-sensitive paths and must never stall on a
// slow consumer. Dropped is the only trace such events leave.
type Hub struct {
	mu     sync.Mutex
	gens   [2][]Event
	active int
	limit  int

	mask    uint32 // atomic
	dropped uint64 // atomic
}

func NewHub(limit int, mask Category) *Hub {
	if limit <= 0 {
		panic("events: queue limit must be positive")
	}
	h := &Hub{limit: limit}
	h.gens[0] = make([]Event, 0, limit)
	h.gens[1] = make([]Event, 0, limit)
	atomic.StoreUint32(&h.mask, uint32(mask))
	return h
}

// SetCategoryMask adjusts the admission filter. Safe from any goroutine,
// without taking the queue lock.
func (h *Hub) SetCategoryMask(mask Category) {
	atomic.StoreUint32(&h.mask, uint32(mask))
}

func (h *Hub) CategoryMask() Category {
	return Category(atomic.LoadUint32(&h.mask))
}

// ShouldPost reports whether an event of the given category would pass
// the mask. Producers call it before building an event so filtered-out
// categories cost nothing to construct.
func (h *Hub) ShouldPost(c Category) bool {
	return c&h.CategoryMask() != 0
}

// Post appends ev to the active generation. A no-op when the category is
// masked out or the generation is full; callers must not assume the
// event was recorded.
func (h *Hub) Post(ev Event) {
	if !h.ShouldPost(ev.Category()) {
		return
	}
	h.mu.Lock()
	if len(h.gens[h.active]) >= h.limit {
		h.mu.Unlock()
		atomic.AddUint64(&h.dropped, 1)
		return
	}
	h.gens[h.active] = append(h.gens[h.active], ev)
	h.mu.Unlock()
}

// Drain swaps generations and returns the frozen one. The returned slice
// stays valid until the drain after next; the single consumer must be
// done with it by then.
func (h *Hub) Drain() []Event {
	h.mu.Lock()
	out := h.gens[h.active]
	h.active ^= 1
	h.gens[h.active] = h.gens[h.active][:0]
	h.mu.Unlock()
	return out
}

func (h *Hub) QueueLimit() int {
	return h.limit
}

// Dropped returns how many admitted-category events were refused because
// the active generation was full.
func (h *Hub) Dropped() uint64 {
	return atomic.LoadUint64(&h.dropped)
}
