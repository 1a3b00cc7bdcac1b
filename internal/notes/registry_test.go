package notes

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/openbk/tariff/internal/domain"
)

type countingStore struct {
	notes map[int]*domain.Note
	gets  int
}

func (s *countingStore) GetNote(_ context.Context, number int) (*domain.Note, error) {
	s.gets++
	note, ok := s.notes[number]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return note, nil
}

func (s *countingStore) UpsertNote(_ context.Context, note *domain.Note) error {
	s.notes[note.Number] = note
	return nil
}

func (s *countingStore) ListNotes(_ context.Context) ([]*domain.Note, error) {
	var all []*domain.Note
	for _, note := range s.notes {
		all = append(all, note)
	}
	return all, nil
}

func newCountingStore() *countingStore {
	return &countingStore{notes: map[int]*domain.Note{
		7: {Number: 7, Text: "Waived for the first year for payroll account holders."},
	}}
}

func TestRegistryCaching(t *testing.T) {
	ctx := context.Background()

	t.Run("RepeatReadsHitCache", func(t *testing.T) {
		store := newCountingStore()
		reg := NewRegistry(store, time.Minute)

		for i := 0; i < 3; i++ {
			note, err := reg.GetNote(ctx, 7)
			if err != nil {
				t.Fatalf("GetNote failed: %v", err)
			}
			if note.Number != 7 {
				t.Errorf("got note %d", note.Number)
			}
		}
		if store.gets != 1 {
			t.Errorf("expected 1 store read, got %d", store.gets)
		}
	})

	t.Run("ExpiredEntryRefetches", func(t *testing.T) {
		store := newCountingStore()
		reg := NewRegistry(store, 10*time.Millisecond)

		if _, err := reg.GetNote(ctx, 7); err != nil {
			t.Fatalf("GetNote failed: %v", err)
		}
		time.Sleep(30 * time.Millisecond)
		if _, err := reg.GetNote(ctx, 7); err != nil {
			t.Fatalf("GetNote failed: %v", err)
		}
		if store.gets != 2 {
			t.Errorf("expected refetch after TTL, got %d store reads", store.gets)
		}
	})

	t.Run("UpsertInvalidates", func(t *testing.T) {
		store := newCountingStore()
		reg := NewRegistry(store, time.Minute)

		if _, err := reg.GetNote(ctx, 7); err != nil {
			t.Fatalf("GetNote failed: %v", err)
		}

		if err := reg.UpsertNote(ctx, &domain.Note{Number: 7, Text: "Waived for the first year."}); err != nil {
			t.Fatalf("UpsertNote failed: %v", err)
		}

		note, err := reg.GetNote(ctx, 7)
		if err != nil {
			t.Fatalf("GetNote failed: %v", err)
		}
		if note.Text != "Waived for the first year." {
			t.Errorf("stale cache entry served after upsert: %q", note.Text)
		}
	})

	t.Run("MissingNotePassesThrough", func(t *testing.T) {
		store := newCountingStore()
		reg := NewRegistry(store, time.Minute)

		_, err := reg.GetNote(ctx, 99)
		if !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}
