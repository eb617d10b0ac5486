package session

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	data    Data
	expires time.Time
}

// MemoryStore keeps sessions in process. Sessions are lost on restart.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]memoryEntry), now: time.Now}
}

func (m *MemoryStore) Get(_ context.Context, id string) (Data, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return Data{}, ErrNotFound
	}
	if m.now().After(e.expires) {
		delete(m.entries, id)
		return Data{}, ErrNotFound
	}
	return cloneData(e.data), nil
}

func (m *MemoryStore) Save(_ context.Context, id string, d Data, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[id] = memoryEntry{data: cloneData(d), expires: m.now().Add(ttl)}
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, id)
	return nil
}

func cloneData(d Data) Data {
	out := Data{PilotID: d.PilotID}
	if len(d.Flashes) > 0 {
		out.Flashes = append([]string(nil), d.Flashes...)
	}
	return out
}
