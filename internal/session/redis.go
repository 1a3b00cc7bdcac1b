package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/openbk/tariff/internal/domain"
	"github.com/redis/go-redis/v9"
)

// RedisStore implements the session store on Redis, relying on native
// key expiry for the session TTL.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a Redis-backed session store.
func NewRedisStore(addr, password string, db int) (*RedisStore, error) {
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisStore{client: client}, nil
}

// Get retrieves pending state for a session id.
func (s *RedisStore) Get(ctx context.Context, sessionID string) (*domain.DisambiguationState, error) {
	data, err := s.client.Get(ctx, makeKey(sessionID)).Bytes()
	if err == redis.Nil {
		return nil, domain.ErrSessionExpired
	}
	if err != nil {
		return nil, err
	}

	var state domain.DisambiguationState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("corrupt session state for %s: %w", sessionID, err)
	}
	return &state, nil
}

// Put stores pending state with the given TTL (last write wins).
func (s *RedisStore) Put(ctx context.Context, state *domain.DisambiguationState, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = domain.DefaultSessionTTL
	}

	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, makeKey(state.SessionID), data, ttl).Err()
}

// Delete removes pending state.
func (s *RedisStore) Delete(ctx context.Context, sessionID string) error {
	return s.client.Del(ctx, makeKey(sessionID)).Err()
}

// Ping checks Redis connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func makeKey(sessionID string) string {
	return "tariff:session:" + sessionID
}
