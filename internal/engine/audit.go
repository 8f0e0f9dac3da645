package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/whatbraddidnext/optimus/internal/persistence"
	"github.com/whatbraddidnext/optimus/internal/regime"
)

// Auditor receives every decision the engine makes. Errors are recorded in
// the cycle report and never change a decision.
type Auditor interface {
	RegimeDecided(ctx context.Context, cycleID string, asOf time.Time, res regime.Result) error
	EntryEvaluated(ctx context.Context, cycleID string, asOf time.Time, ur UnderlyingReport) error
	ExitDecided(ctx context.Context, cycleID string, er ExitReport) error
}

// NopAuditor discards every decision.
type NopAuditor struct{}

func (NopAuditor) RegimeDecided(context.Context, string, time.Time, regime.Result) error {
	return nil
}

func (NopAuditor) EntryEvaluated(context.Context, string, time.Time, UnderlyingReport) error {
	return nil
}

func (NopAuditor) ExitDecided(context.Context, string, ExitReport) error {
	return nil
}

// RepositoryAuditor writes decisions to the audit tables.
type RepositoryAuditor struct {
	repo *persistence.Repository
}

// NewRepositoryAuditor returns an auditor over repo. A nil repo, as returned
// by a disabled database manager, yields a NopAuditor.
func NewRepositoryAuditor(repo *persistence.Repository) Auditor {
	if repo == nil {
		return NopAuditor{}
	}
	return &RepositoryAuditor{repo: repo}
}

func (a *RepositoryAuditor) RegimeDecided(ctx context.Context, cycleID string, asOf time.Time, res regime.Result) error {
	snap, err := json.Marshal(res.Snapshot)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return a.repo.Regimes.Insert(ctx, persistence.RegimeRecord{
		CycleID:       cycleID,
		Timestamp:     asOf,
		Underlying:    res.Underlying,
		Regime:        res.Current.String(),
		Previous:      res.Previous.String(),
		RawRegime:     res.Raw.Regime.String(),
		Rule:          string(res.Raw.Rule),
		Changed:       res.Changed,
		Tradeable:     res.Tradeable,
		Allocation:    res.AllocationMultiplier,
		ConfirmCount:  res.ConfirmCount,
		RecoveryCount: res.RecoveryCount,
		Snapshot:      snap,
	})
}

// EntryRecord flattens an underlying's scan trail into an audit row.
func EntryRecord(cycleID string, asOf time.Time, ur UnderlyingReport) (persistence.EntryRecord, error) {
	evals, err := json.Marshal(ur.Signal.Evaluations)
	if err != nil {
		return persistence.EntryRecord{}, fmt.Errorf("encode evaluations: %w", err)
	}
	rec := persistence.EntryRecord{
		CycleID:     cycleID,
		Timestamp:   asOf,
		Underlying:  ur.Underlying,
		Regime:      ur.Regime.Current.String(),
		Triggered:   ur.Signal.Triggered,
		Evaluations: evals,
		Executed:    ur.Executed,
	}
	if ur.Signal.FirstFailure != "" {
		gate := string(ur.Signal.FirstFailure)
		rec.FirstFailure = &gate
		rec.Veto = "gate_failed"
		if f, ok := ur.Signal.Failure(); ok {
			rec.Reason = f.Description
		}
	}
	if ur.Conviction != nil {
		m := ur.Conviction.Multiplier
		rec.Conviction = &m
	}
	if ur.Sizing != nil {
		pct := ur.Sizing.EffectiveRiskPct
		rec.Contracts = ur.Sizing.Contracts
		rec.EffectiveRiskPct = &pct
		rec.TotalMaxLoss = ur.Sizing.TotalMaxLoss
	}
	if ur.Decision != nil {
		rec.Veto = ur.Decision.Veto.String()
		rec.Approved = ur.Decision.Approved
		rec.Reason = ur.Decision.Reason
	}
	return rec, nil
}

func (a *RepositoryAuditor) EntryEvaluated(ctx context.Context, cycleID string, asOf time.Time, ur UnderlyingReport) error {
	rec, err := EntryRecord(cycleID, asOf, ur)
	if err != nil {
		return err
	}
	return a.repo.Entries.Insert(ctx, rec)
}

func (a *RepositoryAuditor) ExitDecided(ctx context.Context, cycleID string, er ExitReport) error {
	return a.repo.Exits.Insert(ctx, persistence.ExitRecord{
		CycleID:       cycleID,
		Timestamp:     er.Result.Timestamp,
		PositionID:    er.Result.PositionID,
		Underlying:    er.Result.Underlying,
		Reason:        er.Result.ExitReason.String(),
		TriggeredBy:   er.Result.TriggeredBy,
		UnrealizedPnL: er.Result.UnrealizedPnL,
		DTE:           er.Result.DTE,
		Executed:      er.Executed,
	})
}
