// Package session provides disambiguation session stores.
package session

import (
	"fmt"

	"github.com/openbk/tariff/internal/domain"
)

// New creates a session store based on configuration.
// Single-node deployments use the in-memory store; multi-node
// deployments use Redis so a follow-up turn can land on any node.
func New(cfg domain.SessionConfig) (domain.SessionStore, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryStore(cfg.MaxEntries), nil

	case "redis":
		return NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)

	default:
		return nil, fmt.Errorf("unsupported session store type: %s", cfg.Type)
	}
}
