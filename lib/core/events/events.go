package events

import (
	"fmt"

	"example.com/peerwire/lib/core/domain"
)

type Category uint32

const (
	CategoryConnect Category = 1 << iota
	CategoryPeer
	CategoryBlock
	CategoryError
	CategoryStats

	CategoryAll Category = 0xffffffff
)

// Event is what the hub queues. Concrete event types are plain value
// structs; Describe is what the drain loop logs.
type Event interface {
	Category() Category
	Describe() string
}

type PeerConnected struct {
	Host     domain.Host
	Incoming bool
}

func (PeerConnected) Category() Category { return CategoryConnect }
func (e PeerConnected) Describe() string {
	return fmt.Sprintf("connected to %s:%d", e.Host.IP, e.Host.Port)
}

type PeerDisconnected struct {
	Host   domain.Host
	Reason string
}

func (PeerDisconnected) Category() Category { return CategoryConnect }
func (e PeerDisconnected) Describe() string {
	return fmt.Sprintf("disconnected from %s:%d: %s", e.Host.IP, e.Host.Port, e.Reason)
}

// ProtocolViolation reports a peer that broke the wire protocol. The
// offending connection is torn down; the rest of the client is not
// affected.
type ProtocolViolation struct {
	Host   domain.Host
	Reason string
}

func (ProtocolViolation) Category() Category { return CategoryError }
func (e ProtocolViolation) Describe() string {
	return fmt.Sprintf("protocol violation from %s:%d: %s", e.Host.IP, e.Host.Port, e.Reason)
}

type BlockReceived struct {
	Host  domain.Host
	Block domain.BlockID
	Size  int
}

func (BlockReceived) Category() Category { return CategoryBlock }
func (e BlockReceived) Describe() string {
	return fmt.Sprintf("block %d/%d (%d bytes) from %s:%d",
		e.Block.Piece, e.Block.Block, e.Size, e.Host.IP, e.Host.Port)
}

// UnsolicitedBlock reports block data that matched no outstanding
// request. The payload is discarded.
type UnsolicitedBlock struct {
	Host  domain.Host
	Block domain.BlockID
}

func (UnsolicitedBlock) Category() Category { return CategoryError }
func (e UnsolicitedBlock) Describe() string {
	return fmt.Sprintf("unsolicited block %d/%d from %s:%d",
		e.Block.Piece, e.Block.Block, e.Host.IP, e.Host.Port)
}

type ChokeChanged struct {
	Host   domain.Host
	Choked bool
}

func (ChokeChanged) Category() Category { return CategoryPeer }
func (e ChokeChanged) Describe() string {
	if e.Choked {
		return fmt.Sprintf("choked by %s:%d", e.Host.IP, e.Host.Port)
	}
	return fmt.Sprintf("unchoked by %s:%d", e.Host.IP, e.Host.Port)
}

type PiecesUpdated struct {
	Host domain.Host
}

func (PiecesUpdated) Category() Category { return CategoryPeer }
func (e PiecesUpdated) Describe() string {
	return fmt.Sprintf("bitfield updated for %s:%d", e.Host.IP, e.Host.Port)
}

type KeepAlive struct {
	Host domain.Host
}

func (KeepAlive) Category() Category { return CategoryPeer }
func (e KeepAlive) Describe() string {
	return fmt.Sprintf("keep-alive from %s:%d", e.Host.IP, e.Host.Port)
}

type ExtendedHandshake struct {
	Host   domain.Host
	Client string
}

func (ExtendedHandshake) Category() Category { return CategoryPeer }
func (e ExtendedHandshake) Describe() string {
	return fmt.Sprintf("extended handshake from %s:%d (%s)", e.Host.IP, e.Host.Port, e.Client)
}

type ListenFailed struct {
	Port   uint16
	Reason string
}

func (ListenFailed) Category() Category { return CategoryError }
func (e ListenFailed) Describe() string {
	return fmt.Sprintf("listen on port %d failed: %s", e.Port, e.Reason)
}

type BandwidthExhausted struct {
	ChannelID int
}

func (BandwidthExhausted) Category() Category { return CategoryStats }
func (e BandwidthExhausted) Describe() string {
	return fmt.Sprintf("channel %d ran out of allowance", e.ChannelID)
}
