package store

import (
	"sync"
	"time"

	"github.com/rastreogo/leadbot/internal/domain"
)

// memoryStore is the always-available fallback map. It owns one deep copy
// of every record it holds; callers get clones, never aliases. Records
// that only ever reach the memory tier are lost on process exit, which is
// the accepted degraded mode.
type memoryStore struct {
	mu      sync.RWMutex
	records map[string]*domain.Prospect
}

func newMemoryStore() *memoryStore {
	return &memoryStore{records: make(map[string]*domain.Prospect)}
}

func (m *memoryStore) get(phone string) (*domain.Prospect, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.records[phone]
	if !ok {
		return nil, false
	}
	return p.Clone(), true
}

func (m *memoryStore) put(p *domain.Prospect) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[p.PhoneNumber] = p.Clone()
}

func (m *memoryStore) findInactive(cutoff time.Time) []*domain.Prospect {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.Prospect
	for _, p := range m.records {
		if p.IsClosed() {
			continue
		}
		if p.LastInteraction.Before(cutoff) {
			out = append(out, p.Clone())
		}
	}
	return out
}

func (m *memoryStore) clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = make(map[string]*domain.Prospect)
}

func (m *memoryStore) len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}
