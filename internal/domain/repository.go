package domain

import (
	"context"
	"time"
)

// RuleStore is the persistence boundary for fee rules and registry notes.
// The resolver only reads; writes come from the import tooling and are
// guarded by the no-overlap constraint.
type RuleStore interface {
	// SaveRule inserts a new rule version. Returns ErrRuleOverlap when an
	// ACTIVE rule with the same dimension key already covers part of the
	// new validity interval.
	SaveRule(ctx context.Context, rule *FeeRule) error

	// SupersedeRule closes the current open-ended version of a rule as of
	// the day before replacement.EffectiveFrom and inserts the
	// replacement, atomically.
	SupersedeRule(ctx context.Context, ruleID string, replacement *FeeRule) error

	// GetRule retrieves a rule by id.
	GetRule(ctx context.Context, id string) (*FeeRule, error)

	// FindRules returns all ACTIVE rules of the query's family and charge
	// type that are live at the as-of date and whose dimensions are
	// compatible with the supplied ones (exact value or wildcard).
	// Unsupplied query dimensions are not filtered.
	FindRules(ctx context.Context, q Query) ([]*FeeRule, error)

	// ListRules returns all ACTIVE rules of a family, ordered by charge
	// type then product.
	ListRules(ctx context.Context, family RuleFamily) ([]*FeeRule, error)

	// CountOverlaps returns the number of pairs of ACTIVE rules sharing a
	// dimension key with intersecting validity intervals. Zero is the
	// invariant; used by integrity audits.
	CountOverlaps(ctx context.Context) (int, error)

	// Notes registry.
	UpsertNote(ctx context.Context, note *Note) error
	GetNote(ctx context.Context, number int) (*Note, error)
	ListNotes(ctx context.Context) ([]*Note, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for rule store initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
