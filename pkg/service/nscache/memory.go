package nscache

import (
	"context"
	"sync"
	"time"

	"github.com/secmon-lab/argus/pkg/domain/types"
)

// Memory is a process local NamespaceCache
type Memory struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[types.NamespaceID]entry
}

func NewMemory(ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Memory{
		ttl:     ttl,
		entries: make(map[types.NamespaceID]entry),
	}
}

func (m *Memory) MarkCleared(_ context.Context, ns types.NamespaceID, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[ns] = entry{lastCleared: now, knownEmpty: true}
	return nil
}

func (m *Memory) MarkPopulated(_ context.Context, ns types.NamespaceID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.entries[ns]
	e.knownEmpty = false
	m.entries[ns] = e
	return nil
}

func (m *Memory) IsKnownEmpty(_ context.Context, ns types.NamespaceID, now time.Time) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[ns]
	if !ok || e.expired(now, m.ttl) {
		return false, nil
	}
	return e.knownEmpty, nil
}

func (m *Memory) Sweep(_ context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for ns, e := range m.entries {
		if e.expired(now, m.ttl) {
			delete(m.entries, ns)
			removed++
		}
	}
	return removed, nil
}
