package progress

import (
	"context"
	"sync"
	"time"

	"github.com/jgivc/mediafetch/internal/common"
	"github.com/jgivc/mediafetch/internal/entity"
)

type memoryItem struct {
	rec       entity.ProgressRecord
	expiresAt time.Time
}

// memoryStore keeps records in process. Expired records are dropped when read or by Expire.
type memoryStore struct {
	mu    sync.RWMutex
	items map[string]memoryItem
	now   func() time.Time
}

func NewMemoryStore() *memoryStore {
	return &memoryStore{
		items: make(map[string]memoryItem),
		now:   time.Now,
	}
}

func (m *memoryStore) Put(_ context.Context, id string, rec entity.ProgressRecord, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.items[id] = memoryItem{rec: rec, expiresAt: m.now().Add(ttl)}

	return nil
}

func (m *memoryStore) Get(_ context.Context, id string) (*entity.ProgressRecord, error) {
	m.mu.RLock()
	item, ok := m.items[id]
	m.mu.RUnlock()

	if !ok {
		return nil, common.ErrJobNotFound
	}

	if !m.now().Before(item.expiresAt) {
		m.mu.Lock()
		if cur, ok := m.items[id]; ok && cur.expiresAt.Equal(item.expiresAt) {
			delete(m.items, id)
		}
		m.mu.Unlock()

		return nil, common.ErrJobNotFound
	}

	rec := item.rec

	return &rec, nil
}

// Expire drops every record that has expired by now and returns how many were removed.
func (m *memoryStore) Expire(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int
	for id, item := range m.items {
		if !now.Before(item.expiresAt) {
			delete(m.items, id)
			n++
		}
	}

	return n
}
