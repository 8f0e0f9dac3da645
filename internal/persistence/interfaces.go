package persistence

import (
	"context"
	"encoding/json"
	"time"
)

// TimeRange represents a time window for decision queries
type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// Contains reports whether t falls inside the inclusive window.
func (tr TimeRange) Contains(t time.Time) bool {
	return !t.Before(tr.From) && !t.After(tr.To)
}

// RegimeRecord is one per-cycle regime decision for an underlying
type RegimeRecord struct {
	ID            int64           `json:"id" db:"id"`
	CycleID       string          `json:"cycle_id" db:"cycle_id"`
	Timestamp     time.Time       `json:"ts" db:"ts"`
	Underlying    string          `json:"underlying" db:"underlying"`
	Regime        string          `json:"regime" db:"regime"`
	Previous      string          `json:"previous" db:"previous"`
	RawRegime     string          `json:"raw_regime" db:"raw_regime"`
	Rule          string          `json:"rule" db:"rule"`
	Changed       bool            `json:"changed" db:"changed"`
	Tradeable     bool            `json:"tradeable" db:"tradeable"`
	Allocation    float64         `json:"allocation" db:"allocation"`
	ConfirmCount  int             `json:"confirm_count" db:"confirm_count"`
	RecoveryCount int             `json:"recovery_count" db:"recovery_count"`
	Snapshot      json.RawMessage `json:"snapshot,omitempty" db:"snapshot"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
}

// EntryRecord is the audit trail of one entry evaluation: gate results,
// conviction, sizing and the governor's verdict
type EntryRecord struct {
	ID         int64     `json:"id" db:"id"`
	CycleID    string    `json:"cycle_id" db:"cycle_id"`
	Timestamp  time.Time `json:"ts" db:"ts"`
	Underlying string    `json:"underlying" db:"underlying"`
	Regime     string    `json:"regime" db:"regime"`

	// Gate pipeline
	Triggered    bool            `json:"triggered" db:"triggered"`
	FirstFailure *string         `json:"first_failure,omitempty" db:"first_failure"`
	Evaluations  json.RawMessage `json:"evaluations" db:"evaluations"`

	// Conviction and sizing, present only when the pipeline triggered
	Conviction       *float64 `json:"conviction,omitempty" db:"conviction"`
	Contracts        int      `json:"contracts" db:"contracts"`
	EffectiveRiskPct *float64 `json:"effective_risk_pct,omitempty" db:"effective_risk_pct"`
	TotalMaxLoss     float64  `json:"total_max_loss" db:"total_max_loss"`

	// Governor verdict and execution
	Veto      string    `json:"veto" db:"veto"`
	Approved  bool      `json:"approved" db:"approved"`
	Executed  bool      `json:"executed" db:"executed"`
	Reason    string    `json:"reason" db:"reason"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// ExitRecord is one exit decision that closed (or tried to close) a position
type ExitRecord struct {
	ID            int64     `json:"id" db:"id"`
	CycleID       string    `json:"cycle_id" db:"cycle_id"`
	Timestamp     time.Time `json:"ts" db:"ts"`
	PositionID    string    `json:"position_id" db:"position_id"`
	Underlying    string    `json:"underlying" db:"underlying"`
	Reason        string    `json:"reason" db:"reason"`
	TriggeredBy   string    `json:"triggered_by" db:"triggered_by"`
	UnrealizedPnL float64   `json:"unrealized_pnl" db:"unrealized_pnl"`
	DTE           int       `json:"dte" db:"dte"`
	Executed      bool      `json:"executed" db:"executed"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

// RegimeRepo provides regime decision persistence
type RegimeRepo interface {
	// Insert appends a regime decision
	Insert(ctx context.Context, rec RegimeRecord) error

	// Latest returns the most recent decision for an underlying, nil if none
	Latest(ctx context.Context, underlying string) (*RegimeRecord, error)

	// ListRange retrieves an underlying's regime history within a window
	ListRange(ctx context.Context, underlying string, tr TimeRange) ([]RegimeRecord, error)

	// TransitionStats counts confirmed transitions by target regime
	TransitionStats(ctx context.Context, tr TimeRange) (map[string]int64, error)
}

// EntryRepo provides entry decision persistence
type EntryRepo interface {
	// Insert appends an entry decision
	Insert(ctx context.Context, rec EntryRecord) error

	// ListByUnderlying retrieves entry decisions within a window, newest first
	ListByUnderlying(ctx context.Context, underlying string, tr TimeRange, limit int) ([]EntryRecord, error)

	// GateStats counts first failing gates within a window
	GateStats(ctx context.Context, tr TimeRange) (map[string]int64, error)

	// VetoStats counts governor verdicts for triggered signals
	VetoStats(ctx context.Context, tr TimeRange) (map[string]int64, error)
}

// ExitRepo provides exit decision persistence
type ExitRepo interface {
	// Insert appends an exit decision
	Insert(ctx context.Context, rec ExitRecord) error

	// ListRange retrieves exits within a window, newest first
	ListRange(ctx context.Context, tr TimeRange, limit int) ([]ExitRecord, error)

	// ReasonStats counts exits by reason
	ReasonStats(ctx context.Context, tr TimeRange) (map[string]int64, error)
}

// Repository aggregates all persistence interfaces
type Repository struct {
	Regimes RegimeRepo
	Entries EntryRepo
	Exits   ExitRepo
}

// HealthCheck represents repository health status
type HealthCheck struct {
	Healthy        bool           `json:"healthy"`
	Errors         []string       `json:"errors,omitempty"`
	ConnectionPool map[string]int `json:"connection_pool"`
	LastCheck      time.Time      `json:"last_check"`
	ResponseTimeMS int64          `json:"response_time_ms"`
}

// RepositoryHealth provides health monitoring for persistence layer
type RepositoryHealth interface {
	// Health returns current repository health status
	Health(ctx context.Context) HealthCheck

	// Ping tests basic connectivity to database
	Ping(ctx context.Context) error

	// Stats returns connection pool and query statistics
	Stats(ctx context.Context) map[string]interface{}
}
