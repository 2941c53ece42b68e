package mem

import (
	"encoding/json"
	"errors"
	"sync"

	"example.com/peerwire/lib/core/adapter/persistentmetadata"
)

// MemMetadata is an in-memory PersistentMetadata, mainly for tests and
// for running a session without a store on disk. Values round-trip
// through JSON so Get sees the same decode behavior a real store gives.
type MemMetadata struct {
	SyncMap *sync.Map
}

var _ persistentmetadata.PersistentMetadata = MemMetadata{}

func (m MemMetadata) Put(key string, value interface{}) error {
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.SyncMap.Store(key, b)
	return nil
}

func (m MemMetadata) Get(key string, value interface{}) error {
	v, ok := m.SyncMap.Load(key)
	if !ok {
		return errors.New("not found")
	}
	return json.Unmarshal(v.([]byte), value)
}
