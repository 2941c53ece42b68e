package session

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	bandwidthAdapter "example.com/peerwire/lib/core/adapter/bandwidth"
	peerAdapter "example.com/peerwire/lib/core/adapter/peer"
	"example.com/peerwire/lib/core/domain"
	"example.com/peerwire/lib/core/events"
	"example.com/peerwire/lib/platform/eventlog"
	"example.com/peerwire/lib/platform/mem"
)

type fakeScheduler struct {
	registered   []bandwidthAdapter.Consumer
	started      bool
	stopped      bool
	unregistered int
}

func (f *fakeScheduler) Register(c bandwidthAdapter.Consumer)   { f.registered = append(f.registered, c) }
func (f *fakeScheduler) Unregister(c bandwidthAdapter.Consumer) { f.unregistered++ }
func (f *fakeScheduler) Start()                                 { f.started = true }
func (f *fakeScheduler) Stop()                                  { f.stopped = true }
func (f *fakeScheduler) Rate(channelID int) int                 { return 0 }
func (f *fakeScheduler) Distributed(channelID int) uint64       { return 0 }

type fakePeer struct {
	host          domain.Host
	disconnecting bool
	closed        bool
	connectErr    error
}

func (f *fakePeer) AssignBandwidth(channelID int, amount int) {}
func (f *fakePeer) IsDisconnecting() bool                     { return f.disconnecting }
func (f *fakePeer) Connect() error                            { return f.connectErr }
func (f *fakePeer) Close(reason string)                       { f.closed = true; f.disconnecting = true }
func (f *fakePeer) Host() domain.Host                         { return f.host }
func (f *fakePeer) TheirPieces() domain.PieceList             { return nil }
func (f *fakePeer) WeAreChoked() bool                         { return true }
func (f *fakePeer) Interested()                               {}
func (f *fakePeer) Unchoke()                                  {}
func (f *fakePeer) RequestBlock(b domain.BlockID, length int) error {
	return nil
}
func (f *fakePeer) Outstanding() int { return 0 }
func (f *fakePeer) SendBlock(req peerAdapter.PieceRequest, data []byte) error {
	return nil
}
func (f *fakePeer) PieceRequests() <-chan peerAdapter.PieceRequest    { return nil }
func (f *fakePeer) OnChokedChanged(fn func(isChoked bool))            {}
func (f *fakePeer) OnPiecesUpdated(fn func())                         {}
func (f *fakePeer) OnBlockArrive(fn func(b domain.BlockID, d []byte)) {}
func (f *fakePeer) Stats() peerAdapter.Stats                          { return peerAdapter.Stats{} }

func testSession() (*Impl, *fakeScheduler) {
	sched := &fakeScheduler{}
	s := &Impl{
		Hub:       events.NewHub(64, events.CategoryAll),
		Scheduler: sched,
		EventLog:  &eventlog.EventLog{Store: mem.MemMetadata{SyncMap: &sync.Map{}}, Limit: 16},
	}
	return s, sched
}

func Test_AddPeerRegistersWithScheduler(t *testing.T) {
	s, sched := testSession()

	p := &fakePeer{}
	s.AddPeer(p)

	assert.Len(t, sched.registered, 1)
	assert.Len(t, s.Peers(), 1)
}

func Test_PeersPrunesDisconnecting(t *testing.T) {
	s, _ := testSession()

	alive := &fakePeer{}
	dead := &fakePeer{disconnecting: true}
	s.AddPeer(alive)
	s.AddPeer(dead)

	peers := s.Peers()
	assert.Len(t, peers, 1)
	assert.Same(t, alive, peers[0].(*fakePeer))

	// Pruned for good, not just filtered from the copy.
	assert.Len(t, s.Peers(), 1)
}

func Test_drainOnceLogsErrors(t *testing.T) {
	s, _ := testSession()

	s.Hub.Post(events.KeepAlive{})
	s.Hub.Post(events.ProtocolViolation{Reason: "bad id"})
	s.drainOnce()

	stats := s.Stats()
	assert.Equal(t, uint64(2), stats.Drained)
	assert.Equal(t, uint64(1), stats.ErrorsLogged)

	entries, err := s.EventLog.Recent()
	assert.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.Contains(t, entries[0].Text, "bad id")
}

func Test_StartStopClosesPeers(t *testing.T) {
	s, sched := testSession()

	p := &fakePeer{}
	s.AddPeer(p)

	s.Start()
	assert.True(t, sched.started)

	s.Stop()
	assert.True(t, sched.stopped)
	assert.True(t, p.closed)

	// Stop is idempotent.
	s.Stop()
}

func Test_AddHostsDialsAndAdds(t *testing.T) {
	s, sched := testSession()

	good := &fakePeer{}
	bad := &fakePeer{connectErr: assert.AnError}
	byPort := map[uint16]*fakePeer{6881: good, 6882: bad}
	s.PeerFactory = peerAdapter.FactoryFn(func(h domain.Host) peerAdapter.Peer {
		return byPort[h.Port]
	})

	s.AddHosts(
		domain.Host{Port: 6881},
		domain.Host{Port: 6882},
	)

	assert.Eventually(t, func() bool {
		return len(s.Peers()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Len(t, sched.registered, 1)
}
