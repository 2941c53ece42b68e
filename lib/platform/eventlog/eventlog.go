package eventlog

import (
	"sync"
	"time"

	"example.com/peerwire/lib/core/adapter/persistentmetadata"
	"example.com/peerwire/lib/core/events"
)

const kEntries = "eventlog"

// Entry is the persisted form of a drained event. The hub itself never
// retains anything; keeping error events around for later inspection is
// this consumer's job.
type Entry struct {
	When     time.Time
	Category uint32
	Text     string
}

// EventLog stores the most recent Limit entries under one key in the
// metadata store.
type EventLog struct {
	Store persistentmetadata.PersistentMetadata
	Limit int

	mu sync.Mutex
}

func (l *EventLog) Append(evs ...events.Event) error {
	if len(evs) == 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	var entries []Entry
	// A missing key just means nothing logged yet.
	_ = l.Store.Get(kEntries, &entries)

	now := time.Now()
	for _, ev := range evs {
		entries = append(entries, Entry{
			When:     now,
			Category: uint32(ev.Category()),
			Text:     ev.Describe(),
		})
	}
	if l.Limit > 0 && len(entries) > l.Limit {
		entries = entries[len(entries)-l.Limit:]
	}
	return l.Store.Put(kEntries, entries)
}

func (l *EventLog) Recent() ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var entries []Entry
	if err := l.Store.Get(kEntries, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}
