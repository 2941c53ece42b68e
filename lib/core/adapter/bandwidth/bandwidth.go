package bandwidth

import "sync/atomic"

// Consumer is the scheduler's view of a connection. The scheduler hands
// out transfer allowance per channel (a traffic class such as one
// torrent's download or upload; the scheduler defines the id space), and
// the connection must never move more bytes on a channel than the sum of
// unspent grants. Fairness policy lives entirely in the scheduler; the
// connection only obeys the quota.
type Consumer interface {
	// AssignBandwidth hands the consumer amount more bytes of allowance
	// on the given channel. May be called from the scheduler goroutine;
	// the consumer must make the grant visible to its own I/O goroutine.
	AssignBandwidth(channelID int, amount int)

	// IsDisconnecting lets the scheduler skip grants to a connection
	// that is tearing down.
	IsDisconnecting() bool
}

// Allowance is the default grant accounting: an atomic byte counter that
// is safe between a granting scheduler goroutine and a consuming I/O
// goroutine.
type Allowance struct {
	n int64
}

func (a *Allowance) Grant(amount int) {
	if amount < 0 {
		panic("bandwidth: negative grant")
	}
	atomic.AddInt64(&a.n, int64(amount))
}

// Take withdraws up to max bytes of allowance and returns how many were
// actually withdrawn, possibly 0.
func (a *Allowance) Take(max int) int {
	if max <= 0 {
		return 0
	}
	for {
		cur := atomic.LoadInt64(&a.n)
		if cur <= 0 {
			return 0
		}
		take := int64(max)
		if take > cur {
			take = cur
		}
		if atomic.CompareAndSwapInt64(&a.n, cur, cur-take) {
			return int(take)
		}
	}
}

// Give returns allowance that was taken but not used, e.g. when a read
// came back short.
func (a *Allowance) Give(n int) {
	if n < 0 {
		panic("bandwidth: negative give-back")
	}
	atomic.AddInt64(&a.n, int64(n))
}

func (a *Allowance) Available() int {
	return int(atomic.LoadInt64(&a.n))
}

// Well-known channel ids used by this client's scheduler.
const (
	ChannelDownload = iota
	ChannelUpload
	NumChannels
)
