package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/whatbraddidnext/optimus/internal/persistence"
)

// regimeRepo implements RegimeRepo interface for PostgreSQL
type regimeRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewRegimeRepo creates a new PostgreSQL regime repository
func NewRegimeRepo(db *sqlx.DB, timeout time.Duration) persistence.RegimeRepo {
	return &regimeRepo{
		db:      db,
		timeout: timeout,
	}
}

const regimeColumns = `id, cycle_id, ts, underlying, regime, previous, raw_regime, rule,
		       changed, tradeable, allocation, confirm_count, recovery_count, snapshot, created_at`

// Insert appends a regime decision
func (r *regimeRepo) Insert(ctx context.Context, rec persistence.RegimeRecord) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if rec.Underlying == "" {
		return fmt.Errorf("regime record missing underlying")
	}

	query := `
		INSERT INTO regime_decisions
		(cycle_id, ts, underlying, regime, previous, raw_regime, rule, changed,
		 tradeable, allocation, confirm_count, recovery_count, snapshot)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id, created_at`

	err := r.db.QueryRowxContext(ctx, query,
		rec.CycleID, rec.Timestamp, rec.Underlying, rec.Regime, rec.Previous,
		rec.RawRegime, rec.Rule, rec.Changed, rec.Tradeable, rec.Allocation,
		rec.ConfirmCount, rec.RecoveryCount, jsonb(rec.Snapshot, "{}")).
		Scan(&rec.ID, &rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert regime decision: %w", err)
	}

	return nil
}

// Latest returns the most recent decision for an underlying
func (r *regimeRepo) Latest(ctx context.Context, underlying string) (*persistence.RegimeRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT ` + regimeColumns + `
		FROM regime_decisions
		WHERE underlying = $1
		ORDER BY ts DESC
		LIMIT 1`

	var rec persistence.RegimeRecord
	if err := r.db.GetContext(ctx, &rec, query, underlying); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get latest regime: %w", err)
	}

	return &rec, nil
}

// ListRange retrieves an underlying's regime history within a window
func (r *regimeRepo) ListRange(ctx context.Context, underlying string, tr persistence.TimeRange) ([]persistence.RegimeRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT ` + regimeColumns + `
		FROM regime_decisions
		WHERE underlying = $1 AND ts >= $2 AND ts <= $3
		ORDER BY ts DESC`

	var recs []persistence.RegimeRecord
	if err := r.db.SelectContext(ctx, &recs, query, underlying, tr.From, tr.To); err != nil {
		return nil, fmt.Errorf("failed to query regime range: %w", err)
	}

	return recs, nil
}

// TransitionStats counts confirmed transitions by target regime
func (r *regimeRepo) TransitionStats(ctx context.Context, tr persistence.TimeRange) (map[string]int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT regime, COUNT(*)
		FROM regime_decisions
		WHERE changed AND ts >= $1 AND ts <= $2
		GROUP BY regime
		ORDER BY regime`

	return countBy(ctx, r.db, "regime transitions", query, tr.From, tr.To)
}
