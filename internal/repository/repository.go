// Package repository provides the SQL-backed rule store and notes
// registry.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/openbk/tariff/internal/domain"
)

const dateLayout = "2006-01-02"

// SQLRuleStore implements domain.RuleStore using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRuleStore struct {
	db     *sql.DB
	driver string
}

// New creates a new rule store based on configuration.
func New(cfg domain.RepositoryConfig) (domain.RuleStore, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	store := &SQLRuleStore{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

func (s *SQLRuleStore) migrate() error {
	for _, schema := range AllSchemas(s.driver) {
		if _, err := s.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

const ruleColumns = `
	id, family, charge_type, category, network, product, charge_context,
	effective_from, effective_to,
	fee_value, fee_unit, fee_basis, currency, condition_type,
	tier1_threshold, tier1_rate, tier1_max_fee, tier2_rate, tier2_max_fee,
	min_fee, max_fee,
	answer_text, note_reference, remarks,
	priority, status, created_at, updated_at`

// SaveRule inserts a new rule version. The database trigger is the sole
// authority on the no-overlap invariant; its rejection surfaces as
// domain.ErrRuleOverlap.
func (s *SQLRuleStore) SaveRule(ctx context.Context, rule *domain.FeeRule) error {
	normalizeRule(rule)
	if err := rule.Validate(); err != nil {
		return err
	}

	now := time.Now().UTC()
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}
	rule.UpdatedAt = now

	query := `
		INSERT INTO fee_rules (` + ruleColumns + `
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, s.rebind(query),
		rule.ID, rule.Family, rule.ChargeType,
		rule.Category, rule.Network, rule.Product, rule.ChargeContext,
		rule.EffectiveFrom.Format(dateLayout), dateOrNil(rule.EffectiveTo),
		rule.FeeValue, rule.FeeUnit, rule.FeeBasis, rule.Currency, rule.Condition,
		rule.Tier1Threshold, rule.Tier1Rate, rule.Tier1MaxFee,
		rule.Tier2Rate, rule.Tier2MaxFee,
		rule.MinFee, rule.MaxFee,
		rule.AnswerText, rule.NoteReference, rule.Remarks,
		rule.Priority, rule.Status, rule.CreatedAt, rule.UpdatedAt,
	)
	if err != nil && strings.Contains(err.Error(), overlapGuardMessage) {
		return fmt.Errorf("%w: key %s from %s", domain.ErrRuleOverlap,
			rule.Key(), rule.EffectiveFrom.Format(dateLayout))
	}
	return err
}

// SupersedeRule closes the current version's validity the day before the
// replacement takes effect and inserts the replacement, in one
// transaction. The replacement inherits the old rule's dimension key.
func (s *SQLRuleStore) SupersedeRule(ctx context.Context, ruleID string, replacement *domain.FeeRule) error {
	old, err := s.GetRule(ctx, ruleID)
	if err != nil {
		return err
	}
	if replacement.EffectiveFrom.IsZero() {
		return fmt.Errorf("%w: replacement effectiveFrom is required", domain.ErrInvalidInput)
	}
	if !replacement.EffectiveFrom.After(old.EffectiveFrom) {
		return fmt.Errorf("%w: replacement must take effect after %s", domain.ErrInvalidInput,
			old.EffectiveFrom.Format(dateLayout))
	}

	// The update below may only shrink the old version's validity. A
	// closed historical version must never be re-extended: its successor
	// already occupies the interval, and the overlap trigger guards
	// inserts, not updates.
	closedTo := replacement.EffectiveFrom.AddDate(0, 0, -1)
	if old.EffectiveTo != nil && closedTo.After(*old.EffectiveTo) {
		return fmt.Errorf("%w: version %s is already closed at %s and cannot be extended",
			domain.ErrInvalidInput, ruleID, old.EffectiveTo.Format(dateLayout))
	}

	// Carry over the dimension key; version boundaries are the only change.
	replacement.Family = old.Family
	replacement.ChargeType = old.ChargeType
	replacement.Category = old.Category
	replacement.Network = old.Network
	replacement.Product = old.Product
	replacement.ChargeContext = old.ChargeContext
	normalizeRule(replacement)
	if err := replacement.Validate(); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().UTC()

	_, err = tx.ExecContext(ctx, s.rebind(`
		UPDATE fee_rules SET effective_to = ?, updated_at = ? WHERE id = ?
	`), closedTo.Format(dateLayout), now, ruleID)
	if err != nil {
		return err
	}

	replacement.CreatedAt = now
	replacement.UpdatedAt = now
	_, err = tx.ExecContext(ctx, s.rebind(`
		INSERT INTO fee_rules (`+ruleColumns+`
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`),
		replacement.ID, replacement.Family, replacement.ChargeType,
		replacement.Category, replacement.Network, replacement.Product, replacement.ChargeContext,
		replacement.EffectiveFrom.Format(dateLayout), dateOrNil(replacement.EffectiveTo),
		replacement.FeeValue, replacement.FeeUnit, replacement.FeeBasis, replacement.Currency, replacement.Condition,
		replacement.Tier1Threshold, replacement.Tier1Rate, replacement.Tier1MaxFee,
		replacement.Tier2Rate, replacement.Tier2MaxFee,
		replacement.MinFee, replacement.MaxFee,
		replacement.AnswerText, replacement.NoteReference, replacement.Remarks,
		replacement.Priority, replacement.Status, replacement.CreatedAt, replacement.UpdatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), overlapGuardMessage) {
			return fmt.Errorf("%w: key %s from %s", domain.ErrRuleOverlap,
				replacement.Key(), replacement.EffectiveFrom.Format(dateLayout))
		}
		return err
	}

	return tx.Commit()
}

// GetRule retrieves a rule by id.
func (s *SQLRuleStore) GetRule(ctx context.Context, id string) (*domain.FeeRule, error) {
	query := `SELECT ` + ruleColumns + ` FROM fee_rules WHERE id = ?`

	rule, err := scanRule(s.db.QueryRowContext(ctx, s.rebind(query), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return rule, err
}

// FindRules returns ACTIVE rules live at the as-of date whose dimensions
// are compatible with the supplied ones. A rule dimension is compatible
// when it equals the supplied value or carries the wildcard; charge
// context is an exact-match dimension with no wildcard. Unsupplied query
// dimensions are not filtered. Ordering is the defensive tie-break
// contract: effective_from DESC, priority DESC, fee_value DESC.
func (s *SQLRuleStore) FindRules(ctx context.Context, q domain.Query) ([]*domain.FeeRule, error) {
	if q.Family == "" || q.ChargeType == "" {
		return nil, fmt.Errorf("%w: family and chargeType are required", domain.ErrInvalidInput)
	}
	if q.AsOf.IsZero() {
		return nil, fmt.Errorf("%w: asOf date is required", domain.ErrInvalidInput)
	}

	asOf := q.AsOf.Format(dateLayout)
	query := `
		SELECT ` + ruleColumns + `
		FROM fee_rules
		WHERE family = ? AND charge_type = ? AND status = ?
		  AND effective_from <= ?
		  AND (effective_to IS NULL OR effective_to >= ?)`
	args := []any{q.Family, q.ChargeType, domain.StatusActive, asOf, asOf}

	if q.Category != "" {
		query += ` AND (category = ? OR category = ?)`
		args = append(args, q.Category, domain.Wildcard)
	}
	if q.Network != "" {
		query += ` AND (network = ? OR network = ?)`
		args = append(args, q.Network, domain.Wildcard)
	}
	if q.Product != "" {
		query += ` AND (product = ? OR product = ?)`
		args = append(args, q.Product, domain.Wildcard)
	}
	if q.ChargeContext != "" {
		query += ` AND charge_context = ?`
		args = append(args, q.ChargeContext)
	}

	query += ` ORDER BY effective_from DESC, priority DESC, fee_value DESC`

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []*domain.FeeRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// ListRules returns all ACTIVE rules of a family.
func (s *SQLRuleStore) ListRules(ctx context.Context, family domain.RuleFamily) ([]*domain.FeeRule, error) {
	query := `
		SELECT ` + ruleColumns + `
		FROM fee_rules
		WHERE family = ? AND status = ?
		ORDER BY charge_type, product, effective_from DESC`

	rows, err := s.db.QueryContext(ctx, s.rebind(query), family, domain.StatusActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []*domain.FeeRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// CountOverlaps returns the number of ACTIVE rule pairs sharing a
// dimension key with intersecting validity intervals. The trigger keeps
// this at zero; integrity audits verify it.
func (s *SQLRuleStore) CountOverlaps(ctx context.Context) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM fee_rules a
		JOIN fee_rules b ON a.id < b.id
		 AND a.family = b.family
		 AND a.charge_type = b.charge_type
		 AND a.charge_context = b.charge_context
		 AND a.category = b.category
		 AND a.network = b.network
		 AND a.product = b.product
		WHERE a.status = 'ACTIVE' AND b.status = 'ACTIVE'
		  AND a.effective_from <= COALESCE(b.effective_to, '9999-12-31')
		  AND COALESCE(a.effective_to, '9999-12-31') >= b.effective_from`

	var n int
	err := s.db.QueryRowContext(ctx, query).Scan(&n)
	return n, err
}

// UpsertNote inserts or replaces a registry note keyed by its number.
func (s *SQLRuleStore) UpsertNote(ctx context.Context, note *domain.Note) error {
	if note.Number <= 0 {
		return fmt.Errorf("%w: note number must be positive", domain.ErrInvalidInput)
	}
	if note.Text == "" {
		return fmt.Errorf("%w: note text is required", domain.ErrInvalidInput)
	}

	query := `
		INSERT INTO notes (note_number, note_text, source_file, effective_from)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(note_number) DO UPDATE SET
			note_text = excluded.note_text,
			source_file = excluded.source_file,
			effective_from = excluded.effective_from
	`

	_, err := s.db.ExecContext(ctx, s.rebind(query),
		note.Number, note.Text, note.SourceFile,
		note.EffectiveFrom.Format(dateLayout),
	)
	return err
}

// GetNote retrieves a registry note by number.
func (s *SQLRuleStore) GetNote(ctx context.Context, number int) (*domain.Note, error) {
	query := `
		SELECT note_number, note_text, source_file, effective_from
		FROM notes WHERE note_number = ?`

	var note domain.Note
	var from string
	err := s.db.QueryRowContext(ctx, s.rebind(query), number).Scan(
		&note.Number, &note.Text, &note.SourceFile, &from,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	note.EffectiveFrom, err = time.Parse(dateLayout, from)
	if err != nil {
		return nil, fmt.Errorf("bad effective_from for note %d: %w", number, err)
	}
	return &note, nil
}

// ListNotes returns all registry notes ordered by number.
func (s *SQLRuleStore) ListNotes(ctx context.Context) ([]*domain.Note, error) {
	query := `
		SELECT note_number, note_text, source_file, effective_from
		FROM notes ORDER BY note_number`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notes []*domain.Note
	for rows.Next() {
		var note domain.Note
		var from string
		if err := rows.Scan(&note.Number, &note.Text, &note.SourceFile, &from); err != nil {
			return nil, err
		}
		if note.EffectiveFrom, err = time.Parse(dateLayout, from); err != nil {
			return nil, fmt.Errorf("bad effective_from for note %d: %w", note.Number, err)
		}
		notes = append(notes, &note)
	}
	return notes, rows.Err()
}

// Ping checks database connectivity.
func (s *SQLRuleStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLRuleStore) Close() error {
	return s.db.Close()
}

// normalizeRule fills defaults so every row carries a complete dimension
// key for the overlap guard.
func normalizeRule(rule *domain.FeeRule) {
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	if rule.Category == "" {
		rule.Category = domain.Wildcard
	}
	if rule.Network == "" {
		rule.Network = domain.Wildcard
	}
	if rule.Product == "" {
		rule.Product = domain.Wildcard
	}
	if rule.ChargeContext == "" {
		rule.ChargeContext = domain.ContextGeneral
	}
	if rule.Currency == "" {
		rule.Currency = "BDT"
	}
	if rule.Condition == "" {
		rule.Condition = domain.ConditionNone
	}
	if rule.Status == "" {
		rule.Status = domain.StatusActive
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRule(row rowScanner) (*domain.FeeRule, error) {
	var rule domain.FeeRule
	var from string
	var to sql.NullString

	err := row.Scan(
		&rule.ID, &rule.Family, &rule.ChargeType,
		&rule.Category, &rule.Network, &rule.Product, &rule.ChargeContext,
		&from, &to,
		&rule.FeeValue, &rule.FeeUnit, &rule.FeeBasis, &rule.Currency, &rule.Condition,
		&rule.Tier1Threshold, &rule.Tier1Rate, &rule.Tier1MaxFee,
		&rule.Tier2Rate, &rule.Tier2MaxFee,
		&rule.MinFee, &rule.MaxFee,
		&rule.AnswerText, &rule.NoteReference, &rule.Remarks,
		&rule.Priority, &rule.Status, &rule.CreatedAt, &rule.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if rule.EffectiveFrom, err = time.Parse(dateLayout, from); err != nil {
		return nil, fmt.Errorf("bad effective_from for rule %s: %w", rule.ID, err)
	}
	if to.Valid {
		t, err := time.Parse(dateLayout, to.String)
		if err != nil {
			return nil, fmt.Errorf("bad effective_to for rule %s: %w", rule.ID, err)
		}
		rule.EffectiveTo = &t
	}
	return &rule, nil
}

func dateOrNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(dateLayout)
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (s *SQLRuleStore) rebind(query string) string {
	if s.driver != "postgres" {
		return query
	}

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
