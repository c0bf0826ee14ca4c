package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// ErrMigrationFailed wraps every error returned by Migrate.
var ErrMigrationFailed = errors.New("postgres: migration failed")

// Migration is one forward-only schema step.
type Migration struct {
	Version int
	Name    string
	SQL     string
}

// GetMigrations returns the schema steps in version order.
func GetMigrations() []Migration {
	return []Migration{
		{Version: 1, Name: "create_block_counters", SQL: createBlockCounters},
		{Version: 2, Name: "create_issued_identifiers", SQL: createIssuedIdentifiers},
	}
}

// migrationDB is the part of the pool the migrator uses.
type migrationDB interface {
	Querier
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Migrator applies pending migrations and records them in schema_migrations.
type Migrator struct {
	db         migrationDB
	migrations []Migration
}

// NewMigrator creates a migrator for the registry schema.
func NewMigrator(db migrationDB) *Migrator {
	return &Migrator{db: db, migrations: GetMigrations()}
}

// Migrate applies every migration not yet recorded, each in its own
// transaction.
func (m *Migrator) Migrate(ctx context.Context) error {
	if _, err := m.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)
	`); err != nil {
		return fmt.Errorf("%w: create schema_migrations: %v", ErrMigrationFailed, err)
	}

	rows, err := m.db.Query(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return fmt.Errorf("%w: read applied versions: %v", ErrMigrationFailed, err)
	}
	versions, err := pgx.CollectRows(rows, pgx.RowTo[int])
	if err != nil {
		return fmt.Errorf("%w: scan applied versions: %v", ErrMigrationFailed, err)
	}
	applied := make(map[int]bool, len(versions))
	for _, v := range versions {
		applied[v] = true
	}

	for _, mig := range m.migrations {
		if applied[mig.Version] {
			continue
		}
		err := pgx.BeginFunc(ctx, m.db, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, mig.SQL); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`,
				mig.Version, mig.Name)
			return err
		})
		if err != nil {
			return fmt.Errorf("%w: %03d_%s: %v", ErrMigrationFailed, mig.Version, mig.Name, err)
		}
	}
	return nil
}

const createBlockCounters = `
CREATE TABLE IF NOT EXISTS block_counters (
    block CHAR(1) PRIMARY KEY,
    value INTEGER NOT NULL DEFAULT 0,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_block CHECK (block IN ('A', 'B', 'C', 'D')),
    CONSTRAINT valid_value CHECK (value >= 0)
);

INSERT INTO block_counters (block, value) VALUES
    ('A', 0), ('B', 0), ('C', 0), ('D', 0)
ON CONFLICT (block) DO NOTHING;
`

// identifier is not UNIQUE: after an administrative counter rollback the same
// text can legitimately be issued twice, and the audit log must keep both.
const createIssuedIdentifiers = `
CREATE TABLE IF NOT EXISTS issued_identifiers (
    id UUID PRIMARY KEY,
    identifier VARCHAR(32) NOT NULL,
    block CHAR(1) NOT NULL REFERENCES block_counters(block),
    year SMALLINT NOT NULL,
    sequence INTEGER NOT NULL,
    issued_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_issued_identifiers_identifier ON issued_identifiers(identifier);
CREATE INDEX IF NOT EXISTS idx_issued_identifiers_block_year ON issued_identifiers(block, year, issued_at DESC);
`
