package repository

// Schema definitions for the fee schedule database.
// Shared statements are compatible with both SQLite and PostgreSQL; the
// no-overlap guard needs dialect-specific trigger syntax.

const schemaFeeRules = `
CREATE TABLE IF NOT EXISTS fee_rules (
    id TEXT PRIMARY KEY,
    family TEXT NOT NULL,
    charge_type TEXT NOT NULL,
    category TEXT NOT NULL DEFAULT 'ANY',
    network TEXT NOT NULL DEFAULT 'ANY',
    product TEXT NOT NULL DEFAULT 'ANY',
    charge_context TEXT NOT NULL DEFAULT 'GENERAL',
    effective_from TEXT NOT NULL,
    effective_to TEXT,
    fee_value REAL NOT NULL DEFAULT 0,
    fee_unit TEXT NOT NULL,
    fee_basis TEXT NOT NULL,
    currency TEXT NOT NULL DEFAULT 'BDT',
    condition_type TEXT NOT NULL DEFAULT 'NONE',
    tier1_threshold REAL NOT NULL DEFAULT 0,
    tier1_rate REAL NOT NULL DEFAULT 0,
    tier1_max_fee REAL NOT NULL DEFAULT 0,
    tier2_rate REAL NOT NULL DEFAULT 0,
    tier2_max_fee REAL NOT NULL DEFAULT 0,
    min_fee REAL NOT NULL DEFAULT 0,
    max_fee REAL NOT NULL DEFAULT 0,
    answer_text TEXT NOT NULL DEFAULT '',
    note_reference INTEGER NOT NULL DEFAULT 0,
    remarks TEXT NOT NULL DEFAULT '',
    priority INTEGER NOT NULL DEFAULT 0,
    status TEXT NOT NULL DEFAULT 'ACTIVE',
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_fee_rules_lookup
    ON fee_rules(family, charge_type, status);
CREATE INDEX IF NOT EXISTS idx_fee_rules_product
    ON fee_rules(family, product);
CREATE INDEX IF NOT EXISTS idx_fee_rules_validity
    ON fee_rules(effective_from, effective_to);
`

const schemaNotes = `
CREATE TABLE IF NOT EXISTS notes (
    note_number INTEGER PRIMARY KEY,
    note_text TEXT NOT NULL,
    source_file TEXT NOT NULL DEFAULT '',
    effective_from TEXT NOT NULL
);
`

// overlapGuardMessage is raised by both dialects' triggers; SaveRule maps
// it to domain.ErrRuleOverlap.
const overlapGuardMessage = "overlapping active fee rule"

// schemaOverlapGuardSQLite rejects any insert that would give one
// dimension key two ACTIVE rules with intersecting validity intervals.
// Open-ended intervals compare as '9999-12-31'. The update path needs no
// guard because SupersedeRule rejects any close date that would extend
// an already-closed version; updates can only shrink effective_to.
const schemaOverlapGuardSQLite = `
CREATE TRIGGER IF NOT EXISTS trg_fee_rules_no_overlap
BEFORE INSERT ON fee_rules
WHEN NEW.status = 'ACTIVE' AND EXISTS (
    SELECT 1 FROM fee_rules r
    WHERE r.status = 'ACTIVE'
      AND r.family = NEW.family
      AND r.charge_type = NEW.charge_type
      AND r.charge_context = NEW.charge_context
      AND r.category = NEW.category
      AND r.network = NEW.network
      AND r.product = NEW.product
      AND r.effective_from <= COALESCE(NEW.effective_to, '9999-12-31')
      AND COALESCE(r.effective_to, '9999-12-31') >= NEW.effective_from
)
BEGIN
    SELECT RAISE(ABORT, 'overlapping active fee rule');
END;
`

const schemaOverlapGuardPostgres = `
CREATE OR REPLACE FUNCTION fee_rules_no_overlap() RETURNS trigger AS $$
BEGIN
    IF NEW.status = 'ACTIVE' AND EXISTS (
        SELECT 1 FROM fee_rules r
        WHERE r.status = 'ACTIVE'
          AND r.id <> NEW.id
          AND r.family = NEW.family
          AND r.charge_type = NEW.charge_type
          AND r.charge_context = NEW.charge_context
          AND r.category = NEW.category
          AND r.network = NEW.network
          AND r.product = NEW.product
          AND r.effective_from <= COALESCE(NEW.effective_to, '9999-12-31')
          AND COALESCE(r.effective_to, '9999-12-31') >= NEW.effective_from
    ) THEN
        RAISE EXCEPTION 'overlapping active fee rule';
    END IF;
    RETURN NEW;
END $$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS trg_fee_rules_no_overlap ON fee_rules;
CREATE TRIGGER trg_fee_rules_no_overlap
    BEFORE INSERT ON fee_rules
    FOR EACH ROW EXECUTE FUNCTION fee_rules_no_overlap();
`

// AllSchemas returns all schema statements for a driver, in order. The
// no-overlap guard is part of day-one schema, not a retrofit.
func AllSchemas(driver string) []string {
	schemas := []string{
		schemaFeeRules,
		schemaNotes,
	}
	if driver == "postgres" {
		return append(schemas, schemaOverlapGuardPostgres)
	}
	return append(schemas, schemaOverlapGuardSQLite)
}
