package session

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/openbk/tariff/internal/domain"
)

// MemoryStore is a thread-safe keyed store with per-entry TTL and LRU
// eviction, for single-node deployments. Expired entries are dropped
// lazily on read; a PENDING session whose TTL elapsed simply reads as
// absent.
type MemoryStore struct {
	mu      sync.Mutex
	maxSize int
	items   map[string]*list.Element
	order   *list.List
}

type memoryEntry struct {
	sessionID string
	state     *domain.DisambiguationState
	expiresAt time.Time
}

// NewMemoryStore creates a memory store with the given capacity.
func NewMemoryStore(maxSize int) *MemoryStore {
	if maxSize <= 0 {
		maxSize = 10000
	}
	return &MemoryStore{
		maxSize: maxSize,
		items:   make(map[string]*list.Element),
		order:   list.New(),
	}
}

// Get retrieves pending state for a session id.
func (s *MemoryStore) Get(ctx context.Context, sessionID string) (*domain.DisambiguationState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	elem, ok := s.items[sessionID]
	if !ok {
		return nil, domain.ErrSessionExpired
	}

	entry := elem.Value.(*memoryEntry)
	if time.Now().After(entry.expiresAt) {
		s.removeElement(elem)
		return nil, domain.ErrSessionExpired
	}

	s.order.MoveToFront(elem)
	return entry.state, nil
}

// Put stores pending state, overwriting any existing entry for the same
// session id (last write wins).
func (s *MemoryStore) Put(ctx context.Context, state *domain.DisambiguationState, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = domain.DefaultSessionTTL
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if elem, ok := s.items[state.SessionID]; ok {
		s.order.MoveToFront(elem)
		entry := elem.Value.(*memoryEntry)
		entry.state = state
		entry.expiresAt = time.Now().Add(ttl)
		return nil
	}

	entry := &memoryEntry{
		sessionID: state.SessionID,
		state:     state,
		expiresAt: time.Now().Add(ttl),
	}
	s.items[state.SessionID] = s.order.PushFront(entry)

	for s.order.Len() > s.maxSize {
		s.removeOldest()
	}
	return nil
}

// Delete removes pending state.
func (s *MemoryStore) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if elem, ok := s.items[sessionID]; ok {
		s.removeElement(elem)
	}
	return nil
}

// Ping checks store health.
func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

// Close drops all entries.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = make(map[string]*list.Element)
	s.order = list.New()
	return nil
}

func (s *MemoryStore) removeElement(elem *list.Element) {
	s.order.Remove(elem)
	delete(s.items, elem.Value.(*memoryEntry).sessionID)
}

func (s *MemoryStore) removeOldest() {
	if elem := s.order.Back(); elem != nil {
		s.removeElement(elem)
	}
}
