package peer

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	peerAdapter "example.com/peerwire/lib/core/adapter/peer"

	"example.com/peerwire/lib/core/adapter/bandwidth"
	"example.com/peerwire/lib/core/domain"
	"example.com/peerwire/lib/core/events"
	"example.com/peerwire/lib/core/recvbuf"
	"example.com/peerwire/lib/core/requests"
	"example.com/peerwire/lib/extensions"
	"example.com/peerwire/lib/logger"
)

var l = logger.Named("peer")

const protoBitTorrent = "BitTorrent protocol"

var errDisconnecting = errors.New("connection is tearing down")

type Factory struct {
	InfoHash    []byte
	PeerID      []byte
	Hub         *events.Hub
	BlockLength int
	DialTimeout time.Duration
	// Unthrottled connections skip allowance accounting entirely. Only
	// meant for tests and tools; sessions always run with a scheduler.
	Unthrottled bool
}

func (f Factory) New(h domain.Host) peerAdapter.Peer {
	if f.BlockLength == 0 {
		f.BlockLength = defaultBlockLength
	}
	if f.DialTimeout == 0 {
		f.DialTimeout = 3 * time.Second
	}
	if len(f.PeerID) == 0 {
		f.PeerID = []byte("-PW0001-000000000000")
	}
	return &connImpl{
		Factory:       f,
		host:          h,
		buf:           recvbuf.New(defaultBlockLength + 64),
		weAreChoked:   1,
		pieceRequests: make(chan peerAdapter.PieceRequest, 16),
	}
}

var _ peerAdapter.Factory = Factory{}

// connImpl is one peer connection. Its framing state (buf, crypto,
// pending) is touched only by the read goroutine; the allowances and the
// disconnecting flag are the cross-goroutine surface.
type connImpl struct {
	Factory
	host domain.Host
	conn net.Conn

	buf     *recvbuf.Buffer
	crypto  CryptoHandler
	pending requests.Queue

	allowances    [bandwidth.NumChannels]bandwidth.Allowance
	disconnecting int32  // atomic
	downBytes     uint64 // atomic
	upBytes       uint64 // atomic

	theirPieces       domain.PieceList
	weAreChoked       int32 // atomic, remote choking us
	theyAreInterested bool
	weAreInterested   bool

	pieceRequests chan peerAdapter.PieceRequest
	ext           extensions.ExtHandler

	onChokedChangedFns []func(bool)
	onPiecesUpdatedFns []func()
	onBlockArriveFns   []func(b domain.BlockID, data []byte)
	notificationMut    sync.RWMutex

	writeMut sync.Mutex
}

var _ peerAdapter.Peer = &connImpl{}

func (c *connImpl) Host() domain.Host {
	return c.host
}

// SetCryptoHandler installs the encrypted-prefix handler. Must be called
// before Connect.
func (c *connImpl) SetCryptoHandler(h CryptoHandler) {
	c.crypto = h
}

func (c *connImpl) Connect() error {
	hostname := net.JoinHostPort(c.host.IP.String(), strconv.Itoa(int(c.host.Port)))
	conn, err := net.DialTimeout("tcp", hostname, c.DialTimeout)
	if err != nil {
		return err
	}
	c.conn = conn

	conn.SetDeadline(time.Now().Add(5 * time.Second))

	if err := c.doHandshake(); err != nil {
		conn.Close()
		return err
	}

	c.post(events.PeerConnected{Host: c.host})
	c.start()
	return nil
}

func (c *connImpl) start() {
	c.ext = extensions.NewExtHandler(c.sendCmd, func(client string) {
		c.post(events.ExtendedHandshake{Host: c.host, Client: client})
	})
	c.ext.Init()
	go c.readLoop()
}

func (c *connImpl) doHandshake() error {
	handshakeReq := handshake{
		proto:        protoBitTorrent,
		featureFlags: 0x00_00_00_00_00_10_00_00,
		infoHash:     c.InfoHash,
		peerID:       c.PeerID,
	}
	if _, err := c.conn.Write(handshakeReq.getBytes()); err != nil {
		return err
	}

	respBuf := make([]byte, 68)
	if _, err := io.ReadFull(c.conn, respBuf); err != nil {
		return err
	}
	resp, err := newHandshake(respBuf)
	if err != nil {
		return err
	}
	if !resp.matches(handshakeReq) {
		return errors.New("handshake does not match")
	}
	return nil
}

// readLoop is the owner of all framing state: it alone calls into the
// buffer, the crypto adapter and the pending-request queue.
func (c *connImpl) readLoop() {
	if c.crypto != nil {
		if err := c.runCryptoPrefix(); err != nil {
			c.violation(err.Error())
			return
		}
	}

	header := make([]byte, 4)
	for {
		if c.IsDisconnecting() {
			return
		}
		if err := c.readFull(header); err != nil {
			c.Close("read: " + err.Error())
			return
		}
		c.conn.SetDeadline(time.Now().Add(5 * time.Minute))

		msgLen := binary.BigEndian.Uint32(header)
		if msgLen == 0 {
			// Keep-alive carries no body; the buffer never sees it.
			c.post(events.KeepAlive{Host: c.host})
			continue
		}
		if msgLen > maxMessageSize {
			c.violation(fmt.Sprintf("length prefix %d overflows capacity", msgLen))
			return
		}

		c.buf.BeginMessage(int(msgLen))
		for !c.buf.Complete() {
			if err := c.readSome(); err != nil {
				c.Close("read: " + err.Error())
				return
			}
		}

		ok := c.handleMessage(c.buf.MessageBytes())
		c.buf.Reset()
		c.buf.Normalize()
		if !ok {
			return
		}
	}
}

// runCryptoPrefix drives the encrypted stream prefix through the crypto
// adapter, segment by segment, until the handler signals cutover. The
// handler must have consumed the entire prefix by then; plaintext
// framing restarts from a clean buffer.
func (c *connImpl) runCryptoPrefix() error {
	adapter := recvbuf.NewCryptoAdapter(c.buf, c.crypto.FirstSegment())
	for {
		if c.IsDisconnecting() {
			return errDisconnecting
		}

		want := adapter.SegmentRemaining()
		region := adapter.WritableRegion()
		if want > len(region) {
			want = len(region)
		}
		take := c.takeDownload(want)
		if take == 0 {
			continue
		}
		n, err := c.conn.Read(region[:take])
		if n < take {
			c.allowances[bandwidth.ChannelDownload].Give(take - n)
		}
		if n > 0 {
			adapter.Received(n)
			atomic.AddUint64(&c.downBytes, uint64(n))
		}
		if err != nil {
			return err
		}

		if !adapter.SegmentComplete() {
			continue
		}
		consumed, next, done, err := c.crypto.OnSegment(adapter.Segment())
		if err != nil {
			return err
		}
		if done {
			adapter.Retire()
			c.buf.Clear()
			return nil
		}
		adapter.Cut(consumed, next)
	}
}

// readFull reads exactly len(p) bytes, drawing download allowance as it
// goes. Used only for the 4-byte length prefix.
func (c *connImpl) readFull(p []byte) error {
	got := 0
	for got < len(p) {
		take := c.takeDownload(len(p) - got)
		if take == 0 {
			if c.IsDisconnecting() {
				return errDisconnecting
			}
			continue
		}
		n, err := io.ReadFull(c.conn, p[got:got+take])
		if n < take {
			c.allowances[bandwidth.ChannelDownload].Give(take - n)
		}
		got += n
		atomic.AddUint64(&c.downBytes, uint64(n))
		if err != nil {
			return err
		}
	}
	return nil
}

// readSome performs one granted socket read into the message buffer.
func (c *connImpl) readSome() error {
	want := c.buf.Remaining()
	region := c.buf.WritableRegion()
	if want > len(region) {
		want = len(region)
	}
	take := c.takeDownload(want)
	if take == 0 {
		if c.IsDisconnecting() {
			return errDisconnecting
		}
		return nil
	}
	n, err := c.conn.Read(region[:take])
	if n < take {
		c.allowances[bandwidth.ChannelDownload].Give(take - n)
	}
	if n > 0 {
		c.buf.Received(n)
		atomic.AddUint64(&c.downBytes, uint64(n))
	}
	return err
}

// takeDownload blocks until some download allowance arrives, or returns
// 0 when the connection is tearing down. Never more than want. One
// BandwidthExhausted event per starvation episode, not per retry.
func (c *connImpl) takeDownload(want int) int {
	if c.Unthrottled {
		return want
	}
	posted := false
	for {
		take := c.allowances[bandwidth.ChannelDownload].Take(want)
		if take > 0 {
			return take
		}
		if c.IsDisconnecting() {
			return 0
		}
		if !posted {
			c.post(events.BandwidthExhausted{ChannelID: bandwidth.ChannelDownload})
			posted = true
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// handleMessage decodes one complete wire message. A false return means
// the peer broke protocol and the connection is gone.
func (c *connImpl) handleMessage(msg []byte) bool {
	msgType := msg[0]
	msgVal := msg[1:]

	switch msgType {
	case msgChoke:
		c.handleWeAreChoked(true)
	case msgUnchoke:
		c.handleWeAreChoked(false)
	case msgInterested:
		c.theyAreInterested = true
	case msgNotInterested:
		c.theyAreInterested = false
	case msgHave:
		if len(msgVal) != 4 {
			c.violation("have message with bad length")
			return false
		}
		pieceNo := binary.BigEndian.Uint32(msgVal)
		if pieceNo >= c.theirPieces.ApproxPieceCount() {
			grown := domain.NewPieceList(int(pieceNo) + 1)
			copy(grown, c.theirPieces)
			c.theirPieces = grown
		}
		if err := c.theirPieces.SetPiece(pieceNo); err == nil {
			c.handlePiecesUpdated()
		}
	case msgBitfield:
		c.theirPieces = append(domain.PieceList(nil), msgVal...)
		c.handlePiecesUpdated()
	case msgRequest:
		return c.handleRequest(msgVal)
	case msgCancel:
		l.Sugar().Debugw("cancel ignored", "host", c.host.IP.String())
	case msgPiece:
		return c.handlePiece(msgVal)
	case msgExtended:
		if len(msgVal) < 1 {
			c.violation("empty extended message")
			return false
		}
		if err := c.ext.HandleCommand(msgVal[0], msgVal[1:]); err != nil {
			c.violation(err.Error())
			return false
		}
	default:
		c.violation(fmt.Sprintf("unknown message id %d", msgType))
		return false
	}
	return true
}

func (c *connImpl) handleWeAreChoked(choked bool) {
	if choked {
		atomic.StoreInt32(&c.weAreChoked, 1)
	} else {
		atomic.StoreInt32(&c.weAreChoked, 0)
	}
	c.post(events.ChokeChanged{Host: c.host, Choked: choked})

	c.notificationMut.RLock()
	defer c.notificationMut.RUnlock()
	for _, fn := range c.onChokedChangedFns {
		fn(choked)
	}
}

func (c *connImpl) handlePiecesUpdated() {
	c.post(events.PiecesUpdated{Host: c.host})

	c.notificationMut.RLock()
	defer c.notificationMut.RUnlock()
	for _, fn := range c.onPiecesUpdatedFns {
		fn()
	}
}

func (c *connImpl) handleRequest(msgVal []byte) bool {
	if len(msgVal) != 12 {
		c.violation("request message with bad length")
		return false
	}
	req := peerAdapter.PieceRequest{
		PieceNo: binary.BigEndian.Uint32(msgVal[0:4]),
		Begin:   binary.BigEndian.Uint32(msgVal[4:8]),
		Length:  binary.BigEndian.Uint32(msgVal[8:12]),
		From:    c.host,
	}
	select {
	case c.pieceRequests <- req:
	default:
		l.Sugar().Debugw("piece request dropped, consumer slow",
			"host", c.host.IP.String(), "piece", req.PieceNo)
	}
	return true
}

func (c *connImpl) handlePiece(msgVal []byte) bool {
	if len(msgVal) < 8 {
		c.violation("piece message with bad length")
		return false
	}
	index := binary.BigEndian.Uint32(msgVal[0:4])
	begin := binary.BigEndian.Uint32(msgVal[4:8])
	data := msgVal[8:]

	if begin%uint32(c.BlockLength) != 0 {
		c.violation(fmt.Sprintf("misaligned block offset %d", begin))
		return false
	}
	blockID := domain.BlockID{Piece: index, Block: begin / uint32(c.BlockLength)}

	if _, ok := c.pending.Retire(blockID); !ok {
		// Data nobody asked for is discarded, never written anywhere.
		c.post(events.UnsolicitedBlock{Host: c.host, Block: blockID})
		c.Close("unsolicited block")
		return false
	}

	c.post(events.BlockReceived{Host: c.host, Block: blockID, Size: len(data)})

	c.notificationMut.RLock()
	defer c.notificationMut.RUnlock()
	for _, fn := range c.onBlockArriveFns {
		fn(blockID, data)
	}
	return true
}

func (c *connImpl) RequestBlock(b domain.BlockID, length int) error {
	if c.WeAreChoked() {
		return errors.New("choked")
	}
	if c.IsDisconnecting() {
		return errDisconnecting
	}

	writeBuf := make([]byte, 12)
	binary.BigEndian.PutUint32(writeBuf[0:], b.Piece)
	binary.BigEndian.PutUint32(writeBuf[4:], b.Block*uint32(c.BlockLength))
	binary.BigEndian.PutUint32(writeBuf[8:], uint32(length))
	c.sendCmd(writeBuf, msgRequest)

	c.pending.Add(domain.PendingBlock{Block: b, Tag: c.host})
	return nil
}

func (c *connImpl) Outstanding() int {
	return c.pending.Len()
}

// SendBlock answers a PieceRequest, drawing upload allowance for the
// payload before it goes on the wire.
func (c *connImpl) SendBlock(req peerAdapter.PieceRequest, data []byte) error {
	if c.IsDisconnecting() {
		return errDisconnecting
	}
	if !c.Unthrottled {
		granted := 0
		for granted < len(data) {
			n := c.allowances[bandwidth.ChannelUpload].Take(len(data) - granted)
			if n == 0 {
				if c.IsDisconnecting() {
					return errDisconnecting
				}
				time.Sleep(10 * time.Millisecond)
				continue
			}
			granted += n
		}
	}

	writeBuf := make([]byte, 8+len(data))
	binary.BigEndian.PutUint32(writeBuf[0:], req.PieceNo)
	binary.BigEndian.PutUint32(writeBuf[4:], req.Begin)
	copy(writeBuf[8:], data)
	c.sendCmd(writeBuf, msgPiece)
	atomic.AddUint64(&c.upBytes, uint64(len(data)))
	return nil
}

func (c *connImpl) PieceRequests() <-chan peerAdapter.PieceRequest {
	return c.pieceRequests
}

func (c *connImpl) Interested() {
	c.weAreInterested = true
	c.sendCmd(nil, msgInterested)
}

func (c *connImpl) Unchoke() {
	c.sendCmd(nil, msgUnchoke)
}

func (c *connImpl) sendCmd(msg []byte, cmdID byte) {
	writeBuf := make([]byte, len(msg)+4+1)
	binary.BigEndian.PutUint32(writeBuf[0:], uint32(len(msg)+1))
	writeBuf[4] = cmdID
	copy(writeBuf[5:], msg)

	c.writeMut.Lock()
	defer c.writeMut.Unlock()
	if c.conn == nil {
		return
	}
	if _, err := c.conn.Write(writeBuf); err != nil {
		l.Sugar().Debugw("write failed", "host", c.host.IP.String(), "err", err)
	}
}

func (c *connImpl) TheirPieces() domain.PieceList {
	return c.theirPieces
}

func (c *connImpl) WeAreChoked() bool {
	return atomic.LoadInt32(&c.weAreChoked) == 1
}

// AssignBandwidth implements the scheduler's grant contract. Called from
// the scheduler goroutine; the read/write paths observe the allowance
// atomically.
func (c *connImpl) AssignBandwidth(channelID int, amount int) {
	c.allowances[channelID].Grant(amount)
}

func (c *connImpl) IsDisconnecting() bool {
	return atomic.LoadInt32(&c.disconnecting) == 1
}

// violation tears the connection down over a peer protocol breach. Only
// this connection is affected; the event is the caller-visible record.
func (c *connImpl) violation(reason string) {
	c.post(events.ProtocolViolation{Host: c.host, Reason: reason})
	c.Close(reason)
}

func (c *connImpl) Close(reason string) {
	if !atomic.CompareAndSwapInt32(&c.disconnecting, 0, 1) {
		return
	}
	if c.conn != nil {
		c.conn.Close()
	}
	if dropped := c.pending.Drop(); len(dropped) > 0 {
		l.Sugar().Debugw("dropping outstanding requests",
			"host", c.host.IP.String(), "count", len(dropped))
	}
	c.post(events.PeerDisconnected{Host: c.host, Reason: reason})
}

func (c *connImpl) Stats() peerAdapter.Stats {
	return peerAdapter.Stats{
		DownloadBytes: atomic.LoadUint64(&c.downBytes),
		UploadBytes:   atomic.LoadUint64(&c.upBytes),
	}
}

func (c *connImpl) OnChokedChanged(fn func(isChoked bool)) {
	c.notificationMut.Lock()
	defer c.notificationMut.Unlock()
	c.onChokedChangedFns = append(c.onChokedChangedFns, fn)
}

func (c *connImpl) OnPiecesUpdated(fn func()) {
	c.notificationMut.Lock()
	defer c.notificationMut.Unlock()
	c.onPiecesUpdatedFns = append(c.onPiecesUpdatedFns, fn)
}

func (c *connImpl) OnBlockArrive(fn func(b domain.BlockID, data []byte)) {
	c.notificationMut.Lock()
	defer c.notificationMut.Unlock()
	c.onBlockArriveFns = append(c.onBlockArriveFns, fn)
}

func (c *connImpl) post(ev events.Event) {
	if c.Hub == nil {
		return
	}
	if !c.Hub.ShouldPost(ev.Category()) {
		return
	}
	c.Hub.Post(ev)
}
