package db

import (
	"context"
	"sync"
	"time"
)

// DefaultMemoryCapacity bounds a MemoryStore created with a non-positive cap.
const DefaultMemoryCapacity = 10000

// MemoryStore keeps attack records in process. It holds at most capacity
// records and evicts the oldest first.
type MemoryStore struct {
	mu       sync.RWMutex
	logs     []AttackLog // oldest first
	byEvent  map[string]int64
	nextID   int64
	capacity int
	now      func() time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = DefaultMemoryCapacity
	}
	return &MemoryStore{
		byEvent:  make(map[string]int64),
		capacity: capacity,
		now:      time.Now,
	}
}

func (m *MemoryStore) InsertAttackLog(_ context.Context, l *AttackLog) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, dup := m.byEvent[l.EventID]; dup {
		return false, nil
	}
	m.nextID++
	l.ID = m.nextID
	if l.Timestamp.IsZero() {
		l.Timestamp = m.now()
	}
	m.logs = append(m.logs, *l)
	m.byEvent[l.EventID] = l.ID

	if over := len(m.logs) - m.capacity; over > 0 {
		for _, old := range m.logs[:over] {
			delete(m.byEvent, old.EventID)
		}
		m.logs = append(m.logs[:0:0], m.logs[over:]...)
	}
	return true, nil
}

func (m *MemoryStore) GetAttackLog(_ context.Context, eventID string) (*AttackLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byEvent[eventID]
	if !ok {
		return nil, ErrNotFound
	}
	for i := len(m.logs) - 1; i >= 0; i-- {
		if m.logs[i].ID == id {
			l := m.logs[i]
			return &l, nil
		}
	}
	return nil, ErrNotFound
}

// RecentAttackLogs orders by insertion, which matches timestamp order for
// records stamped on arrival.
func (m *MemoryStore) RecentAttackLogs(_ context.Context, limit int, attackType string) ([]AttackLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 {
		return []AttackLog{}, nil
	}
	out := make([]AttackLog, 0, min(limit, len(m.logs)))
	for i := len(m.logs) - 1; i >= 0 && len(out) < limit; i-- {
		if attackType != "" && m.logs[i].AttackType != attackType {
			continue
		}
		out = append(out, m.logs[i])
	}
	return out, nil
}

func (m *MemoryStore) AttackStats(_ context.Context) (*AttackStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := newAttackStats()
	for _, l := range m.logs {
		stats.add(l.AttackType, l.Severity, l.Blocked, 1)
	}
	return stats, nil
}

func (m *MemoryStore) PingContext(context.Context) error { return nil }

func (m *MemoryStore) Close() {}
