package bandwidth

import (
	"sync"
	"sync/atomic"
	"time"

	"example.com/peerwire/lib/core/adapter/bandwidth"
	"example.com/peerwire/lib/core/adapter/clock"
	"example.com/peerwire/lib/logger"
)

var l = logger.Named("bandwidth")

// Scheduler refills consumer allowances on a fixed tick, splitting each
// channel's per-second budget evenly across the consumers that are not
// tearing down. Connections never see the budget, only their grants.
type Scheduler interface {
	Register(c bandwidth.Consumer)
	Unregister(c bandwidth.Consumer)
	Start()
	Stop()
	Rate(channelID int) int
	Distributed(channelID int) uint64
}

// unthrottledQuantum is granted per tick on channels without a rate. It
// sits far above any per-tick demand a connection can have, so consumers
// on an unthrottled channel never observe an empty allowance.
const unthrottledQuantum = 64 << 20

type Factory struct {
	Clock clock.Clock
	Rates [bandwidth.NumChannels]int // bytes per second, 0 = unthrottled channel
	Tick  time.Duration
}

func (f Factory) New() Scheduler {
	tick := f.Tick
	if tick == 0 {
		tick = 100 * time.Millisecond
	}
	return &schedulerImpl{
		Factory: f,
		tick:    tick,
		stopCh:  make(chan struct{}),
	}
}

type schedulerImpl struct {
	Factory
	tick   time.Duration
	stopCh chan struct{}

	mu        sync.Mutex
	consumers []bandwidth.Consumer
	last      time.Time

	distributed [bandwidth.NumChannels]uint64 // atomic
}

var _ Scheduler = &schedulerImpl{}

func (s *schedulerImpl) Register(c bandwidth.Consumer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.consumers = append(s.consumers, c)

	// Unthrottled channels get their first quantum right away so a fresh
	// connection never waits for the next tick.
	for ch := 0; ch < bandwidth.NumChannels; ch++ {
		if s.Rates[ch] <= 0 {
			c.AssignBandwidth(ch, unthrottledQuantum)
		}
	}
}

func (s *schedulerImpl) Unregister(c bandwidth.Consumer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.consumers {
		if existing == c {
			s.consumers = append(s.consumers[:i], s.consumers[i+1:]...)
			return
		}
	}
}

func (s *schedulerImpl) Start() {
	s.mu.Lock()
	s.last = s.Clock.Now()
	s.mu.Unlock()
	go s.run()
}

func (s *schedulerImpl) Stop() {
	close(s.stopCh)
}

func (s *schedulerImpl) Rate(channelID int) int {
	return s.Rates[channelID]
}

func (s *schedulerImpl) Distributed(channelID int) uint64 {
	return atomic.LoadUint64(&s.distributed[channelID])
}

func (s *schedulerImpl) run() {
	for {
		select {
		case <-s.stopCh:
			return
		case <-s.Clock.After(s.tick):
			s.distribute()
		}
	}
}

func (s *schedulerImpl) distribute() {
	s.mu.Lock()
	now := s.Clock.Now()
	elapsed := now.Sub(s.last)
	s.last = now

	// Consumers that started tearing down since the last tick get no
	// further grants and fall out of the list.
	active := s.consumers[:0]
	for _, c := range s.consumers {
		if !c.IsDisconnecting() {
			active = append(active, c)
		}
	}
	s.consumers = active

	if len(active) == 0 {
		s.mu.Unlock()
		return
	}

	for ch := 0; ch < bandwidth.NumChannels; ch++ {
		rate := s.Rates[ch]
		if rate <= 0 {
			// No rate means no throttling: keep everyone topped up.
			// These synthetic grants stay out of the Distributed stats.
			for _, c := range active {
				c.AssignBandwidth(ch, unthrottledQuantum)
			}
			continue
		}
		budget := int(float64(rate) * elapsed.Seconds())
		per := budget / len(active)
		if per <= 0 {
			continue
		}
		for _, c := range active {
			c.AssignBandwidth(ch, per)
		}
		atomic.AddUint64(&s.distributed[ch], uint64(per*len(active)))
	}
	consumers := len(active)
	s.mu.Unlock()

	l.Sugar().Debugw("distributed", "consumers", consumers, "elapsed", elapsed)
}
