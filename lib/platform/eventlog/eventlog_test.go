package eventlog

import (
	"net"
	"sync"
	"testing"

	"example.com/peerwire/lib/core/domain"
	"example.com/peerwire/lib/core/events"
	"example.com/peerwire/lib/platform/mem"

	"github.com/stretchr/testify/assert"
)

func Test_AppendAndRecent(t *testing.T) {
	l := &EventLog{
		Store: mem.MemMetadata{SyncMap: &sync.Map{}},
		Limit: 3,
	}

	_, err := l.Recent()
	assert.Error(t, err)

	host := domain.Host{IP: net.IPv4(10, 0, 0, 1), Port: 6881}
	assert.NoError(t, l.Append(
		events.ProtocolViolation{Host: host, Reason: "bad length prefix"},
		events.PeerDisconnected{Host: host, Reason: "violation"},
	))

	entries, err := l.Recent()
	assert.NoError(t, err)
	assert.Len(t, entries, 2)
	assert.Contains(t, entries[0].Text, "bad length prefix")
	assert.Equal(t, uint32(events.CategoryError), entries[0].Category)
}

func Test_LimitIsARing(t *testing.T) {
	l := &EventLog{
		Store: mem.MemMetadata{SyncMap: &sync.Map{}},
		Limit: 2,
	}

	host := domain.Host{IP: net.IPv4(10, 0, 0, 1), Port: 6881}
	for i := 0; i < 5; i++ {
		assert.NoError(t, l.Append(events.KeepAlive{Host: host}))
	}
	assert.NoError(t, l.Append(events.PeerDisconnected{Host: host, Reason: "last"}))

	entries, err := l.Recent()
	assert.NoError(t, err)
	assert.Len(t, entries, 2)
	assert.Contains(t, entries[1].Text, "last")
}
