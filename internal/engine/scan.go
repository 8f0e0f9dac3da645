package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/whatbraddidnext/optimus/internal/conviction"
	"github.com/whatbraddidnext/optimus/internal/execution"
	"github.com/whatbraddidnext/optimus/internal/gates"
	"github.com/whatbraddidnext/optimus/internal/ledger"
	"github.com/whatbraddidnext/optimus/internal/market"
	"github.com/whatbraddidnext/optimus/internal/metrics"
	"github.com/whatbraddidnext/optimus/internal/regime"
	"github.com/whatbraddidnext/optimus/internal/risk"
	"github.com/whatbraddidnext/optimus/internal/sizing"
	"github.com/whatbraddidnext/optimus/internal/strikes"
)

// ScanInput is one scan tick's pre-fetched data.
type ScanInput struct {
	AsOf       time.Time                     `json:"as_of" yaml:"as_of"`
	Equity     float64                       `json:"equity" yaml:"equity"`
	PeakEquity float64                       `json:"peak_equity" yaml:"peak_equity"`
	Snapshots  map[string]market.Snapshot    `json:"snapshots" yaml:"snapshots"`
	Chains     map[string]*market.ChainQuote `json:"chains" yaml:"chains"` // nil: no eligible instrument
}

// UnderlyingReport is the full decision trail for one underlying.
type UnderlyingReport struct {
	Underlying string              `json:"underlying"`
	Skipped    string              `json:"skipped,omitempty"`
	Regime     regime.Result       `json:"regime"`
	Deltas     *strikes.Targets    `json:"delta_targets,omitempty"`
	Signal     gates.EntrySignal   `json:"signal"`
	Conviction *conviction.Score   `json:"conviction,omitempty"`
	Sizing     *sizing.Decision    `json:"sizing,omitempty"`
	Decision   *risk.EntryDecision `json:"decision,omitempty"`
	Executed   bool                `json:"executed"`
	Position   *ledger.Position    `json:"position,omitempty"`
	Quote      *market.ChainQuote  `json:"quote,omitempty"`
}

// ScanReport is the result of one scan cycle.
type ScanReport struct {
	CycleID       string                   `json:"cycle_id"`
	AsOf          time.Time                `json:"as_of"`
	Underlyings   []UnderlyingReport       `json:"underlyings"`
	Entries       int                      `json:"entries"`
	TotalDuration time.Duration            `json:"total_duration"`
	StepDurations map[string]time.Duration `json:"step_durations"`
	Errors        []CycleError             `json:"errors"`
}

// Scan runs regime update, gates, conviction, sizing, approval and execution
// for every configured underlying in order. An approval consumes shared risk
// budget before the next underlying is evaluated. The returned error is set
// only when the cycle could not complete; per-underlying failures are
// recorded in the report.
func (e *Engine) Scan(ctx context.Context, in ScanInput) (*ScanReport, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	e.metrics.BeginCycle("scan")
	defer e.metrics.EndCycle()

	report := &ScanReport{
		CycleID:       uuid.NewString(),
		AsOf:          in.AsOf,
		StepDurations: make(map[string]time.Duration),
		Errors:        []CycleError{},
	}

	for _, u := range e.underlyings {
		if err := ctx.Err(); err != nil {
			return report, fmt.Errorf("scan cancelled before %s: %w", u.name, err)
		}
		ur, err := e.scanUnderlying(ctx, u, in, report)
		report.Underlyings = append(report.Underlyings, ur)
		if err != nil {
			return report, err
		}
		if ur.Executed {
			report.Entries++
		}
	}

	e.publishPortfolio(in.AsOf)
	if err := e.persist(ctx); err != nil {
		e.recordError(&report.Errors, StepPersist, "", err)
	}

	report.TotalDuration = time.Since(start)
	log.Info().
		Str("cycle", report.CycleID).
		Int("underlyings", len(report.Underlyings)).
		Int("entries", report.Entries).
		Int("errors", len(report.Errors)).
		Dur("total_duration", report.TotalDuration).
		Msg("Scan cycle completed")

	return report, nil
}

func (e *Engine) step(report *ScanReport, name string, fn func() string) {
	t := time.Now()
	timer := e.metrics.StartStepTimer(name)
	timer.Stop(fn())
	report.StepDurations[name] += time.Since(t)
}

func (e *Engine) scanUnderlying(ctx context.Context, u *underlying, in ScanInput, report *ScanReport) (UnderlyingReport, error) {
	ur := UnderlyingReport{Underlying: u.name}

	snap, ok := in.Snapshots[u.name]
	if !ok {
		ur.Skipped = "no market snapshot"
		e.metrics.StartStepTimer(StepRegime).Stop(metrics.ResultSkipped)
		log.Warn().Str("underlying", u.name).Msg("No market snapshot, underlying skipped")
		return ur, nil
	}
	if snap.Underlying == "" {
		snap.Underlying = u.name
	}
	if snap.AsOf.IsZero() {
		snap.AsOf = in.AsOf
	}

	e.step(report, StepRegime, func() string {
		ur.Regime = u.tracker.Update(snap)
		return metrics.ResultSuccess
	})
	if ur.Regime.Changed {
		e.pendingRegimes = append(e.pendingRegimes, ur.Regime)
	}
	e.metrics.RecordRegime(u.name, ur.Regime.Previous.String(), ur.Regime.Current.String(),
		int(ur.Regime.Current), ur.Regime.Changed)
	if err := e.auditor.RegimeDecided(ctx, report.CycleID, in.AsOf, ur.Regime); err != nil {
		e.recordError(&report.Errors, StepAudit, u.name, err)
	}

	deltas := strikes.DeltaTargets(u.strikes, snap)
	ur.Deltas = &deltas

	chain := in.Chains[u.name]
	ur.Quote = chain
	e.step(report, StepGates, func() string {
		ur.Signal = u.pipeline.Evaluate(gates.Input{
			Underlying: u.name,
			AsOf:       in.AsOf,
			Regime:     ur.Regime,
			Snapshot:   snap,
			Chain:      chain,
			Ledger:     e.book,
			Risk:       e.governor,
			Calendar:   e.calendar,
		})
		return metrics.ResultSuccess
	})
	e.metrics.RecordSignal(u.name, ur.Signal.Triggered, string(ur.Signal.FirstFailure))

	if !ur.Signal.Triggered {
		e.audit(ctx, report, in.AsOf, ur)
		return ur, nil
	}

	e.step(report, StepConviction, func() string {
		score := e.scorer.Score(snap, e.book)
		ur.Conviction = &score
		return metrics.ResultSuccess
	})
	e.metrics.RecordConviction(u.name, ur.Conviction.Multiplier)

	quote := market.ChainQuote{}
	if chain != nil {
		quote = *chain
	}
	e.step(report, StepSizing, func() string {
		d := e.sizer.Size(sizing.Request{
			Equity:             in.Equity,
			DrawdownPct:        sizing.DrawdownPct(in.Equity, in.PeakEquity),
			Conviction:         ur.Conviction.Multiplier,
			RegimeMultiplier:   ur.Regime.AllocationMultiplier,
			MaxLossPerContract: quote.MaxLossPerContract,
			CommittedMaxLoss:   e.book.Heat(),
		})
		ur.Sizing = &d
		if d.Contracts == 0 {
			return metrics.ResultSkipped
		}
		return metrics.ResultSuccess
	})

	e.step(report, StepApprove, func() string {
		d := e.governor.ApproveEntry(risk.EntryRequest{
			Underlying: u.name,
			AsOf:       in.AsOf,
			Equity:     in.Equity,
			Sizing:     *ur.Sizing,
			Ledger:     e.book,
			Regime:     u.tracker,
		})
		ur.Decision = &d
		return metrics.ResultSuccess
	})
	e.metrics.RecordEntryDecision(u.name, ur.Decision.Veto.String())

	if !ur.Decision.Approved {
		e.audit(ctx, report, in.AsOf, ur)
		return ur, nil
	}

	var commitErr error
	e.step(report, StepExecute, func() string {
		order := execution.OpenOrder{Underlying: u.name, AsOf: in.AsOf, Quote: quote, Sizing: *ur.Sizing, Deltas: deltas}
		if err := e.gateway.Open(ctx, order); err != nil {
			e.metrics.RecordExecutionError("open")
			e.recordError(&report.Errors, StepExecute, u.name, err)
			return metrics.ResultError
		}
		pos, err := e.book.Open(positionFor(u.name, in.AsOf, quote, *ur.Sizing))
		if err != nil {
			commitErr = fmt.Errorf("order for %s filled but ledger commit failed: %w", u.name, err)
			return metrics.ResultError
		}
		ur.Executed = true
		ur.Position = &pos
		return metrics.ResultSuccess
	})

	e.audit(ctx, report, in.AsOf, ur)
	if commitErr != nil {
		e.recordError(&report.Errors, StepExecute, u.name, commitErr)
		return ur, commitErr
	}

	if ur.Executed {
		log.Info().
			Str("underlying", u.name).
			Str("position", ur.Position.ID).
			Str("symbol", ur.Position.Symbol).
			Int("contracts", ur.Position.Contracts).
			Float64("max_loss", ur.Position.MaxLoss).
			Msg("Entry committed")
	}
	return ur, nil
}

func (e *Engine) audit(ctx context.Context, report *ScanReport, asOf time.Time, ur UnderlyingReport) {
	if err := e.auditor.EntryEvaluated(ctx, report.CycleID, asOf, ur); err != nil {
		e.recordError(&report.Errors, StepAudit, ur.Underlying, err)
	}
}

// positionFor builds the ledger record for a filled entry. Money fields are
// totals across all contracts.
func positionFor(underlying string, asOf time.Time, q market.ChainQuote, d sizing.Decision) ledger.Position {
	n := float64(d.Contracts)
	return ledger.Position{
		Underlying:  underlying,
		Symbol:      q.Symbol,
		Contracts:   d.Contracts,
		EntryDate:   asOf,
		Expiry:      q.Expiry,
		EntryCredit: q.Credit * n,
		MaxLoss:     d.TotalMaxLoss,
		Mark:        q.Credit * n,
		DTE:         q.DTE,
		Delta:       q.SpreadDelta * n,
		Status:      ledger.Open,
	}
}
