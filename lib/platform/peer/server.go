package peer

import (
	"bytes"
	"io"
	"net"
	"strconv"
	"sync"

	peerAdapter "example.com/peerwire/lib/core/adapter/peer"
	"example.com/peerwire/lib/core/domain"
	"example.com/peerwire/lib/core/events"
)

const (
	listenPortStart = 6881
	listenPortEnd   = 6889
)

// Serve listens on the first free port of the standard range and hands
// accepted, handshake-complete connections out on the channel.
func (f Factory) Serve() (<-chan peerAdapter.Peer, uint16, error) {
	var listen net.Listener
	var port uint16
	var lastErr error
	for i := listenPortStart; i <= listenPortEnd; i++ {
		var err error
		listen, err = net.Listen("tcp", ":"+strconv.Itoa(i))
		if err == nil {
			port = uint16(i)
			break
		}
		lastErr = err
	}
	if listen == nil {
		if f.Hub != nil {
			f.Hub.Post(events.ListenFailed{Port: listenPortEnd, Reason: lastErr.Error()})
		}
		return nil, 0, lastErr
	}

	l.Sugar().Infow("listening", "port", port)
	newPeerChan := make(chan peerAdapter.Peer)
	go f.acceptLoop(listen, newPeerChan)
	return newPeerChan, port, nil
}

// acceptLoop closes newPeerChan when the listener dies, so consumers
// ranging over it learn the listen socket is gone. In-flight handshakes
// finish first; the channel is only closed once nothing can send on it.
func (f Factory) acceptLoop(listen net.Listener, newPeerChan chan<- peerAdapter.Peer) {
	var handshakes sync.WaitGroup
	defer func() {
		handshakes.Wait()
		close(newPeerChan)
	}()
	for {
		conn, err := listen.Accept()
		if err != nil {
			l.Sugar().Warnw("accept failed", "err", err)
			return
		}
		handshakes.Add(1)
		go func(conn net.Conn) {
			defer handshakes.Done()
			p, err := f.acceptPeer(conn)
			if err != nil {
				l.Sugar().Debugw("incoming handshake failed",
					"remote", conn.RemoteAddr().String(), "err", err)
				conn.Close()
				return
			}
			newPeerChan <- p
		}(conn)
	}
}

func (f Factory) acceptPeer(conn net.Conn) (peerAdapter.Peer, error) {
	respBuf := make([]byte, 68)
	if _, err := io.ReadFull(conn, respBuf); err != nil {
		return nil, err
	}
	theirs, err := newHandshake(respBuf)
	if err != nil {
		return nil, err
	}

	ipStr, portStr, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		return nil, err
	}
	remotePort, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, err
	}
	h := domain.Host{
		IP:   net.ParseIP(ipStr),
		Port: uint16(remotePort),
	}

	c := f.New(h).(*connImpl)
	c.conn = conn

	ours := handshake{
		proto:        protoBitTorrent,
		featureFlags: 0x00_00_00_00_00_10_00_00,
		infoHash:     c.InfoHash,
		peerID:       c.PeerID,
	}
	if !theirs.matches(ours) || !bytes.Equal(theirs.infoHash, c.InfoHash) {
		return nil, errHandshakeMismatch
	}
	if _, err := conn.Write(ours.getBytes()); err != nil {
		return nil, err
	}

	c.post(events.PeerConnected{Host: h, Incoming: true})
	c.start()
	return c, nil
}
