package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/openbk/tariff/internal/domain"
)

func testState(id string) *domain.DisambiguationState {
	return &domain.DisambiguationState{
		SessionID: id,
		Query: domain.Query{
			Family:     domain.FamilyCard,
			ChargeType: domain.ChargeIssuanceFee,
			Category:   "CREDIT",
			Network:    "VISA",
		},
		Options: []domain.Option{
			{Label: "Classic", Product: "Classic", ChargeContext: domain.ContextGeneral},
			{Label: "Gold", Product: "Gold", ChargeContext: domain.ContextGeneral},
		},
		PromptText: "More than one card product matches your query, please specify the card product: Classic, Gold.",
		CreatedAt:  time.Now().UTC(),
	}
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()

	t.Run("PutAndGet", func(t *testing.T) {
		store := NewMemoryStore(100)
		defer store.Close()

		if err := store.Put(ctx, testState("sess-1"), time.Minute); err != nil {
			t.Fatalf("Put failed: %v", err)
		}

		got, err := store.Get(ctx, "sess-1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got.PromptText != testState("sess-1").PromptText {
			t.Errorf("prompt text not preserved: %q", got.PromptText)
		}
		if len(got.Options) != 2 {
			t.Errorf("expected 2 options, got %d", len(got.Options))
		}
	})

	t.Run("UnknownSessionReadsAsExpired", func(t *testing.T) {
		store := NewMemoryStore(100)
		defer store.Close()

		_, err := store.Get(ctx, "never-created")
		if !errors.Is(err, domain.ErrSessionExpired) {
			t.Errorf("expected ErrSessionExpired, got %v", err)
		}
	})

	t.Run("TTLExpiry", func(t *testing.T) {
		store := NewMemoryStore(100)
		defer store.Close()

		if err := store.Put(ctx, testState("sess-ttl"), 10*time.Millisecond); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		time.Sleep(30 * time.Millisecond)

		_, err := store.Get(ctx, "sess-ttl")
		if !errors.Is(err, domain.ErrSessionExpired) {
			t.Errorf("expected ErrSessionExpired after TTL, got %v", err)
		}
	})

	t.Run("LastWriteWins", func(t *testing.T) {
		store := NewMemoryStore(100)
		defer store.Close()

		first := testState("sess-lww")
		if err := store.Put(ctx, first, time.Minute); err != nil {
			t.Fatalf("Put failed: %v", err)
		}

		second := testState("sess-lww")
		second.PromptText = "replacement prompt"
		if err := store.Put(ctx, second, time.Minute); err != nil {
			t.Fatalf("Put failed: %v", err)
		}

		got, err := store.Get(ctx, "sess-lww")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got.PromptText != "replacement prompt" {
			t.Errorf("expected last write to win, got %q", got.PromptText)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		store := NewMemoryStore(100)
		defer store.Close()

		if err := store.Put(ctx, testState("sess-del"), time.Minute); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		if err := store.Delete(ctx, "sess-del"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if _, err := store.Get(ctx, "sess-del"); !errors.Is(err, domain.ErrSessionExpired) {
			t.Errorf("expected ErrSessionExpired after delete, got %v", err)
		}
		// Deleting again is not an error.
		if err := store.Delete(ctx, "sess-del"); err != nil {
			t.Errorf("repeat delete failed: %v", err)
		}
	})

	t.Run("CapacityEviction", func(t *testing.T) {
		store := NewMemoryStore(2)
		defer store.Close()

		store.Put(ctx, testState("sess-a"), time.Minute)
		store.Put(ctx, testState("sess-b"), time.Minute)
		store.Put(ctx, testState("sess-c"), time.Minute)

		if _, err := store.Get(ctx, "sess-a"); !errors.Is(err, domain.ErrSessionExpired) {
			t.Errorf("expected oldest entry evicted, got %v", err)
		}
		if _, err := store.Get(ctx, "sess-c"); err != nil {
			t.Errorf("newest entry must survive: %v", err)
		}
	})
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	store, err := NewRedisStore(mr.Addr(), "", 0)
	if err != nil {
		t.Fatalf("failed to create redis store: %v", err)
	}
	defer store.Close()

	t.Run("PutAndGet", func(t *testing.T) {
		if err := store.Put(ctx, testState("sess-r1"), time.Minute); err != nil {
			t.Fatalf("Put failed: %v", err)
		}

		got, err := store.Get(ctx, "sess-r1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got.Query.ChargeType != domain.ChargeIssuanceFee {
			t.Errorf("query not preserved: %+v", got.Query)
		}
		if got.Options[1].Label != "Gold" {
			t.Errorf("options not preserved: %+v", got.Options)
		}
	})

	t.Run("TTLExpiry", func(t *testing.T) {
		if err := store.Put(ctx, testState("sess-r2"), time.Minute); err != nil {
			t.Fatalf("Put failed: %v", err)
		}

		mr.FastForward(2 * time.Minute)

		_, err := store.Get(ctx, "sess-r2")
		if !errors.Is(err, domain.ErrSessionExpired) {
			t.Errorf("expected ErrSessionExpired after TTL, got %v", err)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		if err := store.Put(ctx, testState("sess-r3"), time.Minute); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		if err := store.Delete(ctx, "sess-r3"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if _, err := store.Get(ctx, "sess-r3"); !errors.Is(err, domain.ErrSessionExpired) {
			t.Errorf("expected ErrSessionExpired after delete, got %v", err)
		}
	})

	t.Run("KeyNamespace", func(t *testing.T) {
		if err := store.Put(ctx, testState("sess-r4"), time.Minute); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		if !mr.Exists("tariff:session:sess-r4") {
			t.Errorf("expected key under tariff:session: namespace")
		}
	})
}
