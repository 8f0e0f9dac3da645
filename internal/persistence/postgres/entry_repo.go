package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/whatbraddidnext/optimus/internal/persistence"
)

// entryRepo implements EntryRepo interface for PostgreSQL
type entryRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewEntryRepo creates a new PostgreSQL entry decision repository
func NewEntryRepo(db *sqlx.DB, timeout time.Duration) persistence.EntryRepo {
	return &entryRepo{
		db:      db,
		timeout: timeout,
	}
}

// Insert appends an entry decision
func (r *entryRepo) Insert(ctx context.Context, rec persistence.EntryRecord) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if rec.Underlying == "" {
		return fmt.Errorf("entry record missing underlying")
	}
	if rec.Executed && !rec.Approved {
		return fmt.Errorf("entry record for %s executed without approval", rec.Underlying)
	}

	query := `
		INSERT INTO entry_decisions
		(cycle_id, ts, underlying, regime, triggered, first_failure, evaluations,
		 conviction, contracts, effective_risk_pct, total_max_loss, veto, approved,
		 executed, reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING id, created_at`

	err := r.db.QueryRowxContext(ctx, query,
		rec.CycleID, rec.Timestamp, rec.Underlying, rec.Regime, rec.Triggered,
		rec.FirstFailure, jsonb(rec.Evaluations, "[]"), rec.Conviction, rec.Contracts,
		rec.EffectiveRiskPct, rec.TotalMaxLoss, rec.Veto, rec.Approved,
		rec.Executed, rec.Reason).
		Scan(&rec.ID, &rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert entry decision: %w", err)
	}

	return nil
}

// ListByUnderlying retrieves entry decisions within a window, newest first
func (r *entryRepo) ListByUnderlying(ctx context.Context, underlying string, tr persistence.TimeRange, limit int) ([]persistence.EntryRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT id, cycle_id, ts, underlying, regime, triggered, first_failure, evaluations,
		       conviction, contracts, effective_risk_pct, total_max_loss, veto, approved,
		       executed, reason, created_at
		FROM entry_decisions
		WHERE underlying = $1 AND ts >= $2 AND ts <= $3
		ORDER BY ts DESC
		LIMIT $4`

	var recs []persistence.EntryRecord
	if err := r.db.SelectContext(ctx, &recs, query, underlying, tr.From, tr.To, limit); err != nil {
		return nil, fmt.Errorf("failed to query entry decisions: %w", err)
	}

	return recs, nil
}

// GateStats counts first failing gates within a window
func (r *entryRepo) GateStats(ctx context.Context, tr persistence.TimeRange) (map[string]int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT first_failure, COUNT(*)
		FROM entry_decisions
		WHERE first_failure IS NOT NULL AND ts >= $1 AND ts <= $2
		GROUP BY first_failure
		ORDER BY first_failure`

	return countBy(ctx, r.db, "gate stats", query, tr.From, tr.To)
}

// VetoStats counts governor verdicts for triggered signals
func (r *entryRepo) VetoStats(ctx context.Context, tr persistence.TimeRange) (map[string]int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT veto, COUNT(*)
		FROM entry_decisions
		WHERE triggered AND ts >= $1 AND ts <= $2
		GROUP BY veto
		ORDER BY veto`

	return countBy(ctx, r.db, "veto stats", query, tr.From, tr.To)
}
