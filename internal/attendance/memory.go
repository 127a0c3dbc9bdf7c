package attendance

import (
	"context"
	"sync"
)

type pair struct {
	studentKey string
	sessionID  string
}

// MemoryStore is the in-process record store. One mutex guards the whole
// store, which also covers every (student, session) pair.
type MemoryStore struct {
	mu      sync.Mutex
	records map[pair]Record
	order   []pair
}

// NewMemoryStore returns a store seeded with records. When the seed holds
// several records for one pair, the most recent wins.
func NewMemoryStore(seed []Record) *MemoryStore {
	m := &MemoryStore{}
	m.Restore(seed)
	return m
}

func (m *MemoryStore) InsertIfAbsent(_ context.Context, rec Record) (Record, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := pair{rec.StudentKey, rec.SessionID}
	if existing, ok := m.records[k]; ok {
		return existing, false, nil
	}
	m.put(k, rec)
	return rec, true, nil
}

func (m *MemoryStore) UpsertStatus(_ context.Context, rec Record) (Record, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := pair{rec.StudentKey, rec.SessionID}
	existing, ok := m.records[k]
	if !ok {
		m.put(k, rec)
		return rec, true, nil
	}
	if existing.Status == rec.Status {
		return existing, false, nil
	}
	existing.Status = rec.Status
	existing.Timestamp = rec.Timestamp
	m.records[k] = existing
	return existing, true, nil
}

func (m *MemoryStore) List(_ context.Context) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Record, 0, len(m.order))
	for _, k := range m.order {
		out = append(out, m.records[k])
	}
	return out, nil
}

func (m *MemoryStore) Reset(_ context.Context) error {
	m.Restore(nil)
	return nil
}

// Restore replaces the store contents.
func (m *MemoryStore) Restore(seed []Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = make(map[pair]Record, len(seed))
	m.order = m.order[:0]
	for _, rec := range seed {
		k := pair{rec.StudentKey, rec.SessionID}
		if existing, ok := m.records[k]; ok {
			if rec.Timestamp.After(existing.Timestamp) {
				m.records[k] = rec
			}
			continue
		}
		m.put(k, rec)
	}
}

func (m *MemoryStore) put(k pair, rec Record) {
	m.records[k] = rec
	m.order = append(m.order, k)
}
