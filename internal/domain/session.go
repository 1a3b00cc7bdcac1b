package domain

import (
	"context"
	"time"
)

// DefaultSessionTTL is how long a pending disambiguation survives without
// a follow-up turn.
const DefaultSessionTTL = 5 * time.Minute

// DisambiguationState is the pending half of a two-turn clarification.
// It stores the original query, the candidate options shown, and the
// exact prompt text, so a re-prompt can replay the prompt verbatim and a
// follow-up answer can be matched against the stored options.
//
// Lifecycle: created when Resolve reports NEEDS_DISAMBIGUATION, deleted
// once a follow-up resolves to exactly one rule, silently dropped when
// the TTL elapses.
type DisambiguationState struct {
	SessionID  string    `json:"sessionId"`
	Query      Query     `json:"query"`
	Options    []Option  `json:"options"`
	PromptText string    `json:"promptText"`
	CreatedAt  time.Time `json:"createdAt"`
}

// SessionStore is a TTL-capable keyed store for disambiguation state.
// Concurrent turns on one session id are serialized by the caller; the
// store itself is last write wins.
type SessionStore interface {
	// Get retrieves pending state. Returns ErrSessionExpired when the key
	// is absent or its TTL has elapsed.
	Get(ctx context.Context, sessionID string) (*DisambiguationState, error)

	// Put stores pending state under its session id with the given TTL.
	Put(ctx context.Context, state *DisambiguationState, ttl time.Duration) error

	// Delete removes pending state. Deleting an absent key is not an
	// error.
	Delete(ctx context.Context, sessionID string) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// SessionConfig holds configuration for session store initialization.
type SessionConfig struct {
	// Type is the store type: "memory" or "redis"
	Type string

	// TTL applied to pending disambiguations.
	TTL time.Duration

	// Memory store settings
	MaxEntries int

	// Redis settings
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}
