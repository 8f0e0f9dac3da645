package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Schema creates the decision audit tables. Every statement is idempotent.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS regime_decisions (
		id             BIGSERIAL PRIMARY KEY,
		cycle_id       TEXT        NOT NULL,
		ts             TIMESTAMPTZ NOT NULL,
		underlying     TEXT        NOT NULL,
		regime         TEXT        NOT NULL,
		previous       TEXT        NOT NULL,
		raw_regime     TEXT        NOT NULL,
		rule           TEXT        NOT NULL,
		changed        BOOLEAN     NOT NULL,
		tradeable      BOOLEAN     NOT NULL,
		allocation     DOUBLE PRECISION NOT NULL,
		confirm_count  INTEGER     NOT NULL,
		recovery_count INTEGER     NOT NULL,
		snapshot       JSONB       NOT NULL DEFAULT '{}',
		created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS regime_decisions_underlying_ts ON regime_decisions (underlying, ts DESC)`,
	`CREATE TABLE IF NOT EXISTS entry_decisions (
		id                 BIGSERIAL PRIMARY KEY,
		cycle_id           TEXT        NOT NULL,
		ts                 TIMESTAMPTZ NOT NULL,
		underlying         TEXT        NOT NULL,
		regime             TEXT        NOT NULL,
		triggered          BOOLEAN     NOT NULL,
		first_failure      TEXT,
		evaluations        JSONB       NOT NULL DEFAULT '[]',
		conviction         DOUBLE PRECISION,
		contracts          INTEGER     NOT NULL DEFAULT 0,
		effective_risk_pct DOUBLE PRECISION,
		total_max_loss     DOUBLE PRECISION NOT NULL DEFAULT 0,
		veto               TEXT        NOT NULL,
		approved           BOOLEAN     NOT NULL,
		executed           BOOLEAN     NOT NULL,
		reason             TEXT        NOT NULL,
		created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
		CHECK (approved OR NOT executed)
	)`,
	`CREATE INDEX IF NOT EXISTS entry_decisions_underlying_ts ON entry_decisions (underlying, ts DESC)`,
	`CREATE TABLE IF NOT EXISTS exit_decisions (
		id             BIGSERIAL PRIMARY KEY,
		cycle_id       TEXT        NOT NULL,
		ts             TIMESTAMPTZ NOT NULL,
		position_id    TEXT        NOT NULL,
		underlying     TEXT        NOT NULL,
		reason         TEXT        NOT NULL,
		triggered_by   TEXT        NOT NULL,
		unrealized_pnl DOUBLE PRECISION NOT NULL,
		dte            INTEGER     NOT NULL,
		executed       BOOLEAN     NOT NULL,
		created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS exit_decisions_ts ON exit_decisions (ts DESC)`,
}

// Migrate applies Schema in a single transaction.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin migration: %w", err)
	}
	for i, stmt := range Schema {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration statement %d: %w", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration: %w", err)
	}
	return nil
}

// countBy runs a two-column (label, count) aggregate query.
func countBy(ctx context.Context, db *sqlx.DB, what, query string, args ...interface{}) (map[string]int64, error) {
	rows, err := db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", what, err)
	}
	defer rows.Close()

	stats := make(map[string]int64)
	for rows.Next() {
		var label string
		var count int64
		if err := rows.Scan(&label, &count); err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", what, err)
		}
		stats[label] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating %s: %w", what, err)
	}

	return stats, nil
}

// jsonb returns raw, or the empty literal when raw is unset.
func jsonb(raw json.RawMessage, empty string) []byte {
	if len(raw) == 0 {
		return []byte(empty)
	}
	return raw
}
