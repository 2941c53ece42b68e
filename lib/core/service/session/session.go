package session

import (
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/net/context"

	bandwidthScheduler "example.com/peerwire/lib/platform/bandwidth"

	peerAdapter "example.com/peerwire/lib/core/adapter/peer"
	"example.com/peerwire/lib/core/domain"
	"example.com/peerwire/lib/core/events"
	"example.com/peerwire/lib/logger"
	"example.com/peerwire/lib/platform/eventlog"
)

var l = logger.Named("session")

type Stats struct {
	Peers        int
	Drained      uint64
	Dropped      uint64
	ErrorsLogged uint64
}

// Session glues the data plane together: it owns the drain loop that is
// the hub's single consumer, keeps the connection pool registered with
// the bandwidth scheduler, and pushes error events into the retention
// log. Peer selection and piece policy stay out; callers decide which
// hosts to add and what to request.
type Session interface {
	Start()
	Stop()
	AddHosts(hosts ...domain.Host)
	AddPeer(p peerAdapter.Peer)
	Peers() []peerAdapter.Peer
	Stats() Stats
}

type Impl struct {
	Hub         *events.Hub
	Scheduler   bandwidthScheduler.Scheduler
	PeerFactory peerAdapter.Factory
	EventLog    *eventlog.EventLog // optional

	DrainInterval  time.Duration
	ConnectWorkers int

	mu    sync.Mutex
	peers []peerAdapter.Peer

	stopCh   chan struct{}
	stopOnce sync.Once

	drained      uint64 // atomic
	errorsLogged uint64 // atomic
}

var _ Session = &Impl{}

func (s *Impl) drainInterval() time.Duration {
	if s.DrainInterval == 0 {
		return 500 * time.Millisecond
	}
	return s.DrainInterval
}

func (s *Impl) Start() {
	s.stopCh = make(chan struct{})
	s.Scheduler.Start()
	go s.drainLoop()
}

func (s *Impl) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		s.Scheduler.Stop()

		s.mu.Lock()
		peers := append([]peerAdapter.Peer(nil), s.peers...)
		s.mu.Unlock()
		for _, p := range peers {
			p.Close("session stopped")
		}
	})
}

// AddHosts dials the given hosts with a bounded worker pool and adds
// every connection that completes its handshake.
func (s *Impl) AddHosts(hosts ...domain.Host) {
	workers := s.ConnectWorkers
	if workers == 0 {
		workers = 5
	}
	goroutinelim := make(chan struct{}, workers)
	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Minute)

	var wg sync.WaitGroup
	for _, host := range hosts {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		go func(h domain.Host) {
			defer wg.Done()
			goroutinelim <- struct{}{}
			defer func() { <-goroutinelim }()
			if ctx.Err() != nil {
				return
			}

			p := s.PeerFactory.New(h)
			if err := p.Connect(); err != nil {
				l.Sugar().Debugw("connect failed", "host", h.IP.String(), "err", err)
				return
			}
			s.AddPeer(p)
		}(host)
	}
	go func() {
		wg.Wait()
		cancel()
	}()
}

func (s *Impl) AddPeer(p peerAdapter.Peer) {
	s.mu.Lock()
	s.peers = append(s.peers, p)
	s.mu.Unlock()
	s.Scheduler.Register(p)
}

// Peers returns the connections that are not tearing down.
func (s *Impl) Peers() []peerAdapter.Peer {
	s.mu.Lock()
	defer s.mu.Unlock()

	alive := s.peers[:0]
	for _, p := range s.peers {
		if !p.IsDisconnecting() {
			alive = append(alive, p)
		}
	}
	s.peers = alive
	return append([]peerAdapter.Peer(nil), alive...)
}

func (s *Impl) Stats() Stats {
	return Stats{
		Peers:        len(s.Peers()),
		Drained:      atomic.LoadUint64(&s.drained),
		Dropped:      s.Hub.Dropped(),
		ErrorsLogged: atomic.LoadUint64(&s.errorsLogged),
	}
}

// drainLoop is the hub's one consumer.
func (s *Impl) drainLoop() {
	ticker := time.NewTicker(s.drainInterval())
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			s.drainOnce()
			return
		case <-ticker.C:
			s.drainOnce()
		}
	}
}

func (s *Impl) drainOnce() {
	drained := s.Hub.Drain()
	if len(drained) == 0 {
		return
	}
	atomic.AddUint64(&s.drained, uint64(len(drained)))

	var errEvents []events.Event
	for _, ev := range drained {
		if ev.Category()&events.CategoryError != 0 {
			l.Sugar().Warnw(ev.Describe())
			errEvents = append(errEvents, ev)
		} else {
			l.Sugar().Infow(ev.Describe())
		}
	}
	if s.EventLog != nil && len(errEvents) > 0 {
		if err := s.EventLog.Append(errEvents...); err != nil {
			l.Sugar().Warnw("event log append failed", "err", err)
		} else {
			atomic.AddUint64(&s.errorsLogged, uint64(len(errEvents)))
		}
	}
}
