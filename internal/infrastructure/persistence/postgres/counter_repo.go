package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/hostel-hub/hostel-registry/internal/domain/identifier"
)

// CounterRepo stores block counters and issued identifiers in PostgreSQL.
// It implements identifier.CounterStore and identifier.IssueLog.
type CounterRepo struct {
	db           Querier
	queryTimeout time.Duration
}

// NewCounterRepo creates a repository over db. A zero queryTimeout means no
// per-query timeout beyond the caller's context.
func NewCounterRepo(db Querier, queryTimeout time.Duration) *CounterRepo {
	return &CounterRepo{db: db, queryTimeout: queryTimeout}
}

var (
	_ identifier.CounterStore = (*CounterRepo)(nil)
	_ identifier.IssueLog     = (*CounterRepo)(nil)
)

func (r *CounterRepo) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.queryTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, r.queryTimeout)
}

// Load returns every stored block counter.
func (r *CounterRepo) Load(ctx context.Context) (identifier.Snapshot, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.Query(ctx, `SELECT block, value FROM block_counters`)
	if err != nil {
		return nil, fmt.Errorf("postgres: load counters: %w", err)
	}

	type row struct {
		Block string
		Value int
	}
	loaded, err := pgx.CollectRows(rows, pgx.RowToStructByPos[row])
	if err != nil {
		return nil, fmt.Errorf("postgres: scan counters: %w", err)
	}

	snap := make(identifier.Snapshot, len(loaded))
	for _, rw := range loaded {
		b, err := identifier.ParseBlock(rw.Block)
		if err != nil {
			// Guarded by the table's CHECK constraint.
			continue
		}
		snap[b] = rw.Value
	}
	return snap, nil
}

// Save overwrites a block counter.
func (r *CounterRepo) Save(ctx context.Context, block identifier.Block, value int) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	_, err := r.db.Exec(ctx, `
		INSERT INTO block_counters (block, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (block) DO UPDATE
		SET value = EXCLUDED.value, updated_at = NOW()
	`, block.String(), value)
	if err != nil {
		return fmt.Errorf("postgres: save counter %s: %w", block, err)
	}
	return nil
}

// Advance raises a block counter to value, never lowering it.
func (r *CounterRepo) Advance(ctx context.Context, block identifier.Block, value int) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	_, err := r.db.Exec(ctx, `
		INSERT INTO block_counters (block, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (block) DO UPDATE
		SET value = GREATEST(block_counters.value, EXCLUDED.value), updated_at = NOW()
	`, block.String(), value)
	if err != nil {
		return fmt.Errorf("postgres: advance counter %s: %w", block, err)
	}
	return nil
}

// Record appends an issued identifier to the audit log.
func (r *CounterRepo) Record(ctx context.Context, rec identifier.IssueRecord) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	id, err := uuid.Parse(rec.ID)
	if err != nil {
		id = uuid.New()
	}
	issuedAt := rec.IssuedAt
	if issuedAt.IsZero() {
		issuedAt = time.Now()
	}

	_, err = r.db.Exec(ctx, `
		INSERT INTO issued_identifiers (id, identifier, block, year, sequence, issued_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, id, rec.Identifier.String(), rec.Block.String(), rec.Year, rec.Sequence, issuedAt.UTC())
	if err != nil {
		if IsUniqueViolation(err) {
			return fmt.Errorf("postgres: issue record %s already exists: %w", id, err)
		}
		return fmt.Errorf("postgres: record %s: %w", rec.Identifier, err)
	}
	return nil
}

// ListIssued returns the most recent issued identifiers of a block and year,
// newest first.
func (r *CounterRepo) ListIssued(ctx context.Context, block identifier.Block, year, limit int) ([]identifier.IssueRecord, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.Query(ctx, `
		SELECT id, identifier, block, year, sequence, issued_at
		FROM issued_identifiers
		WHERE block = $1 AND year = $2
		ORDER BY issued_at DESC
		LIMIT $3
	`, block.String(), year, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list issued: %w", err)
	}
	defer rows.Close()

	var out []identifier.IssueRecord
	for rows.Next() {
		var (
			id       uuid.UUID
			text     string
			blk      string
			rec      identifier.IssueRecord
			issuedAt time.Time
		)
		if err := rows.Scan(&id, &text, &blk, &rec.Year, &rec.Sequence, &issuedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan issued: %w", err)
		}
		rec.ID = id.String()
		rec.Identifier = identifier.Identifier(text)
		rec.Block = identifier.Block(blk)
		rec.IssuedAt = issuedAt
		out = append(out, rec)
	}
	return out, rows.Err()
}
