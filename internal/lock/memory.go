package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store is the shared state behind in-memory lockers. Several Memory lockers (one per
// service instance) can share a Store to model instances sharing a lock backend.
type Store struct {
	mu    sync.Mutex
	locks map[string]Lock
	now   func() time.Time
}

func NewStore() *Store {
	return &Store{locks: make(map[string]Lock), now: time.Now}
}

// Memory is a Locker bound to one holder identity.
type Memory struct {
	store  *Store
	holder string
}

var _ Locker = (*Memory)(nil)

// NewMemory returns a locker with a fresh holder identity over store (nil → private store).
func NewMemory(store *Store) *Memory {
	if store == nil {
		store = NewStore()
	}
	return &Memory{store: store, holder: uuid.NewString()}
}

func (m *Memory) Acquire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	s := m.store
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if cur, ok := s.locks[key]; ok && now.Before(cur.ExpiresAt) {
		return false, nil
	}
	s.locks[key] = Lock{Key: key, Holder: m.holder, ExpiresAt: now.Add(ttl)}
	return true, nil
}

func (m *Memory) Release(_ context.Context, key string) error {
	s := m.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if cur, ok := s.locks[key]; ok && cur.Holder == m.holder {
		delete(s.locks, key)
	}
	return nil
}
