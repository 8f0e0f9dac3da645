package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/whatbraddidnext/optimus/internal/persistence"
)

// exitRepo implements ExitRepo interface for PostgreSQL
type exitRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewExitRepo creates a new PostgreSQL exit decision repository
func NewExitRepo(db *sqlx.DB, timeout time.Duration) persistence.ExitRepo {
	return &exitRepo{
		db:      db,
		timeout: timeout,
	}
}

// Insert appends an exit decision
func (r *exitRepo) Insert(ctx context.Context, rec persistence.ExitRecord) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if rec.PositionID == "" {
		return fmt.Errorf("exit record missing position id")
	}

	query := `
		INSERT INTO exit_decisions
		(cycle_id, ts, position_id, underlying, reason, triggered_by, unrealized_pnl, dte, executed)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at`

	err := r.db.QueryRowxContext(ctx, query,
		rec.CycleID, rec.Timestamp, rec.PositionID, rec.Underlying, rec.Reason,
		rec.TriggeredBy, rec.UnrealizedPnL, rec.DTE, rec.Executed).
		Scan(&rec.ID, &rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert exit decision: %w", err)
	}

	return nil
}

// ListRange retrieves exits within a window, newest first
func (r *exitRepo) ListRange(ctx context.Context, tr persistence.TimeRange, limit int) ([]persistence.ExitRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT id, cycle_id, ts, position_id, underlying, reason, triggered_by,
		       unrealized_pnl, dte, executed, created_at
		FROM exit_decisions
		WHERE ts >= $1 AND ts <= $2
		ORDER BY ts DESC
		LIMIT $3`

	var recs []persistence.ExitRecord
	if err := r.db.SelectContext(ctx, &recs, query, tr.From, tr.To, limit); err != nil {
		return nil, fmt.Errorf("failed to query exit decisions: %w", err)
	}

	return recs, nil
}

// ReasonStats counts exits by reason
func (r *exitRepo) ReasonStats(ctx context.Context, tr persistence.TimeRange) (map[string]int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT reason, COUNT(*)
		FROM exit_decisions
		WHERE ts >= $1 AND ts <= $2
		GROUP BY reason
		ORDER BY reason`

	return countBy(ctx, r.db, "exit reasons", query, tr.From, tr.To)
}
