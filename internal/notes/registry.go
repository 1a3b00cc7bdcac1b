// Package notes provides the cached read path over the notes registry.
// Notes are immutable once published, so a short in-process TTL cache in
// front of the store is safe and keeps note-based resolutions off the
// database.
package notes

import (
	"context"
	"sync"
	"time"

	"github.com/openbk/tariff/internal/domain"
)

// Store is the persistence surface the registry needs.
type Store interface {
	GetNote(ctx context.Context, number int) (*domain.Note, error)
	UpsertNote(ctx context.Context, note *domain.Note) error
	ListNotes(ctx context.Context) ([]*domain.Note, error)
}

// Registry serves canonical note text with a per-entry TTL cache.
type Registry struct {
	store Store
	ttl   time.Duration

	mu      sync.RWMutex
	entries map[int]cachedNote
}

type cachedNote struct {
	note      *domain.Note
	expiresAt time.Time
}

// NewRegistry creates a registry over the given store. ttl <= 0 selects
// a 5 minute default.
func NewRegistry(store Store, ttl time.Duration) *Registry {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Registry{
		store:   store,
		ttl:     ttl,
		entries: make(map[int]cachedNote),
	}
}

// GetNote returns the note for a number, from cache when fresh.
func (r *Registry) GetNote(ctx context.Context, number int) (*domain.Note, error) {
	r.mu.RLock()
	entry, ok := r.entries[number]
	r.mu.RUnlock()
	if ok && time.Now().Before(entry.expiresAt) {
		return entry.note, nil
	}

	note, err := r.store.GetNote(ctx, number)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.entries[number] = cachedNote{note: note, expiresAt: time.Now().Add(r.ttl)}
	r.mu.Unlock()

	return note, nil
}

// UpsertNote writes through to the store and invalidates the cached
// entry so a re-import is visible immediately.
func (r *Registry) UpsertNote(ctx context.Context, note *domain.Note) error {
	if err := r.store.UpsertNote(ctx, note); err != nil {
		return err
	}

	r.mu.Lock()
	delete(r.entries, note.Number)
	r.mu.Unlock()

	return nil
}

// ListNotes returns all notes, bypassing the cache.
func (r *Registry) ListNotes(ctx context.Context) ([]*domain.Note, error) {
	return r.store.ListNotes(ctx)
}
