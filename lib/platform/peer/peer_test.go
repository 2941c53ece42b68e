//go:generate mockgen -destination ../../mocks/net/net.go net Conn
package peer

import (
	"encoding/binary"
	"encoding/hex"
	"net"
	"testing"
	"time"

	"example.com/peerwire/lib/core/adapter/bandwidth"
	"example.com/peerwire/lib/core/domain"
	"example.com/peerwire/lib/core/events"
	mock_net "example.com/peerwire/lib/mocks/net"
	bandwidthScheduler "example.com/peerwire/lib/platform/bandwidth"
	"example.com/peerwire/lib/platform/realclock"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
)

func testFactory(hub *events.Hub) Factory {
	return Factory{
		InfoHash:    []byte("aaaaaaaaaaaaaaaaaaaa"),
		Hub:         hub,
		Unthrottled: true,
	}
}

func testConn(hub *events.Hub) *connImpl {
	h := domain.Host{IP: net.IPv4(127, 0, 0, 1), Port: 6881}
	return testFactory(hub).New(h).(*connImpl)
}

func TestRequest(t *testing.T) {
	t.Run("handleMessage forwards an incoming request to the channel", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		conn := mock_net.NewMockConn(ctrl)

		c := testConn(nil)
		c.conn = conn
		c.weAreChoked = 0

		conn.EXPECT().Write(gomock.Any()).DoAndReturn(func(b []byte) (int, error) {
			c.handleMessage(b[4:]) // strip length prefix
			return len(b), nil
		})
		// Loop our own request back in; only used to get bytes into the
		// expectation above.
		err := c.RequestBlock(domain.BlockID{Piece: 4, Block: 2}, 8)
		assert.NoError(t, err)
		assert.Equal(t, 1, c.Outstanding())

		req := <-c.PieceRequests()
		assert.Equal(t, uint32(4), req.PieceNo)
		assert.Equal(t, uint32(2*defaultBlockLength), req.Begin)
		assert.Equal(t, uint32(8), req.Length)
	})

	t.Run("RequestBlock refuses while choked", func(t *testing.T) {
		c := testConn(nil)
		assert.Error(t, c.RequestBlock(domain.BlockID{Piece: 0, Block: 0}, 8))
	})
}

func Test_handshake(t *testing.T) {
	infoHash, _ := hex.DecodeString("a4ef8a65e78a69eedf588cb87e382d382a37baab")

	handshakeReq := handshake{
		proto:        protoBitTorrent,
		featureFlags: 0x10_00_00_00_00_10_00_11,
		infoHash:     infoHash,
		peerID:       []byte("-PW0001-0257f4bc7fa1"),
	}

	b := handshakeReq.getBytes()
	handshakeReconstruct, err := newHandshake(b)
	assert.NoError(t, err)
	assert.Equal(t, handshakeReq, handshakeReconstruct)

	_, err = newHandshake(b[:20])
	assert.Error(t, err)
}

func pieceMsg(piece, begin uint32, data []byte) []byte {
	msg := make([]byte, 9+len(data))
	msg[0] = msgPiece
	binary.BigEndian.PutUint32(msg[1:], piece)
	binary.BigEndian.PutUint32(msg[5:], begin)
	copy(msg[9:], data)
	return msg
}

func Test_handlePiece(t *testing.T) {
	hub := events.NewHub(32, events.CategoryAll)
	c := testConn(hub)

	var gotBlock domain.BlockID
	var gotData []byte
	c.OnBlockArrive(func(b domain.BlockID, data []byte) {
		gotBlock = b
		gotData = data
	})

	want := domain.BlockID{Piece: 7, Block: 2}
	c.pending.Add(domain.PendingBlock{Block: want})

	ok := c.handleMessage(pieceMsg(7, 2*defaultBlockLength, []byte("payload")))
	assert.True(t, ok)
	assert.Equal(t, want, gotBlock)
	assert.Equal(t, []byte("payload"), gotData)
	assert.Equal(t, 0, c.Outstanding())

	drained := hub.Drain()
	assert.Len(t, drained, 1)
	recv := drained[0].(events.BlockReceived)
	assert.Equal(t, want, recv.Block)
	assert.Equal(t, 7, recv.Size)
}

func Test_unsolicitedPieceTearsDown(t *testing.T) {
	hub := events.NewHub(32, events.CategoryAll)
	c := testConn(hub)

	ok := c.handleMessage(pieceMsg(1, 0, []byte("surprise")))
	assert.False(t, ok)
	assert.True(t, c.IsDisconnecting())

	drained := hub.Drain()
	assert.Len(t, drained, 2)
	_, isUnsolicited := drained[0].(events.UnsolicitedBlock)
	assert.True(t, isUnsolicited)
	_, isDisconnect := drained[1].(events.PeerDisconnected)
	assert.True(t, isDisconnect)
}

func Test_misalignedPieceIsViolation(t *testing.T) {
	hub := events.NewHub(32, events.CategoryAll)
	c := testConn(hub)

	ok := c.handleMessage(pieceMsg(1, 5, []byte("x")))
	assert.False(t, ok)

	drained := hub.Drain()
	v := drained[0].(events.ProtocolViolation)
	assert.Contains(t, v.Reason, "misaligned")
}

func Test_unknownMessageIsViolation(t *testing.T) {
	hub := events.NewHub(32, events.CategoryAll)
	c := testConn(hub)

	ok := c.handleMessage([]byte{99, 0, 0})
	assert.False(t, ok)
	assert.True(t, c.IsDisconnecting())
}

func Test_bitfieldAndHave(t *testing.T) {
	hub := events.NewHub(32, events.CategoryAll)
	c := testConn(hub)

	updated := 0
	c.OnPiecesUpdated(func() { updated++ })

	assert.True(t, c.handleMessage([]byte{msgBitfield, 0b10000000}))
	assert.True(t, c.TheirPieces().ContainPiece(0))
	assert.False(t, c.TheirPieces().ContainPiece(1))

	have := make([]byte, 5)
	have[0] = msgHave
	binary.BigEndian.PutUint32(have[1:], 5)
	assert.True(t, c.handleMessage(have))
	assert.True(t, c.TheirPieces().ContainPiece(5))
	assert.Equal(t, 2, updated)
}

func Test_readLoop(t *testing.T) {
	hub := events.NewHub(64, events.CategoryAll)
	c := testConn(hub)

	client, server := net.Pipe()
	c.conn = client
	go c.readLoop()

	var drained []events.Event
	drainUntil := func(match func(events.Event) bool) events.Event {
		var found events.Event
		assert.Eventually(t, func() bool {
			drained = append(drained, hub.Drain()...)
			for _, ev := range drained {
				if match(ev) {
					found = ev
					return true
				}
			}
			return false
		}, 2*time.Second, 10*time.Millisecond)
		return found
	}

	// Keep-alive: zero-length prefix, no body.
	_, err := server.Write([]byte{0, 0, 0, 0})
	assert.NoError(t, err)
	drainUntil(func(ev events.Event) bool {
		_, ok := ev.(events.KeepAlive)
		return ok
	})

	// Choke state change, framed.
	_, err = server.Write([]byte{0, 0, 0, 1, msgUnchoke})
	assert.NoError(t, err)
	ev := drainUntil(func(ev events.Event) bool {
		_, ok := ev.(events.ChokeChanged)
		return ok
	})
	assert.False(t, ev.(events.ChokeChanged).Choked)
	assert.False(t, c.WeAreChoked())

	// Oversized length prefix is a violation and ends the connection.
	_, err = server.Write([]byte{0xff, 0xff, 0xff, 0xff})
	assert.NoError(t, err)
	drainUntil(func(ev events.Event) bool {
		_, ok := ev.(events.ProtocolViolation)
		return ok
	})
	assert.True(t, c.IsDisconnecting())
}

func Test_readLoopWithUnthrottledDownloadChannel(t *testing.T) {
	hub := events.NewHub(64, events.CategoryAll)
	c := testConn(hub)
	c.Unthrottled = false

	// A listening session runs with no download rate; the scheduler must
	// still keep the download allowance topped up or the read loop never
	// sees the first header.
	sched := bandwidthScheduler.Factory{
		Clock: realclock.RealClock{},
		Rates: [bandwidth.NumChannels]int{0, 1 << 20},
		Tick:  10 * time.Millisecond,
	}.New()
	sched.Register(c)
	sched.Start()
	defer sched.Stop()

	client, server := net.Pipe()
	c.conn = client
	go c.readLoop()

	go server.Write([]byte{0, 0, 0, 0})

	assert.Eventually(t, func() bool {
		for _, ev := range hub.Drain() {
			if _, ok := ev.(events.KeepAlive); ok {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)
	c.Close("test done")
}

func Test_starvationPostsOnce(t *testing.T) {
	hub := events.NewHub(64, events.CategoryAll)
	c := testConn(hub)
	c.Unthrottled = false

	client, server := net.Pipe()
	c.conn = client
	go c.readLoop()
	go server.Write([]byte{0, 0, 0, 1, msgChoke})

	// Long enough for many retry sleeps; still one event.
	time.Sleep(100 * time.Millisecond)
	exhausted := 0
	for _, ev := range hub.Drain() {
		if _, ok := ev.(events.BandwidthExhausted); ok {
			exhausted++
		}
	}
	assert.Equal(t, 1, exhausted)
	c.Close("test done")
}

func Test_readLoopThrottled(t *testing.T) {
	hub := events.NewHub(64, events.CategoryError|events.CategoryPeer)
	c := testConn(hub)
	c.Unthrottled = false

	client, server := net.Pipe()
	c.conn = client
	go c.readLoop()

	go func() {
		server.Write([]byte{0, 0, 0, 1, msgChoke})
	}()

	// No allowance yet: the message must not land.
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, hub.Drain(), 0)

	c.AssignBandwidth(bandwidth.ChannelDownload, 64)
	assert.Eventually(t, func() bool {
		for _, ev := range hub.Drain() {
			if ch, ok := ev.(events.ChokeChanged); ok && ch.Choked {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)

	c.Close("test done")
}
