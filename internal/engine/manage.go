package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/whatbraddidnext/optimus/internal/execution"
	"github.com/whatbraddidnext/optimus/internal/exits"
	"github.com/whatbraddidnext/optimus/internal/ledger"
	"github.com/whatbraddidnext/optimus/internal/market"
	"github.com/whatbraddidnext/optimus/internal/metrics"
	"github.com/whatbraddidnext/optimus/internal/risk"
)

// Mark is the current cost to close one position, its remaining days to
// expiry and, when the chain provides it, its signed position delta.
type Mark = ledger.MarkUpdate

// ManageInput is one management tick's pre-fetched data.
type ManageInput struct {
	AsOf      time.Time                  `json:"as_of" yaml:"as_of"`
	Equity    float64                    `json:"equity" yaml:"equity"`
	Snapshots map[string]market.Snapshot `json:"snapshots" yaml:"snapshots"`
	Marks     map[string]Mark            `json:"marks" yaml:"marks"` // by position id
}

// ExitReport is one exit decision and whether the close went through.
type ExitReport struct {
	Result   exits.ExitResult `json:"result"`
	Executed bool             `json:"executed"`
	Realized float64          `json:"realized_pnl,omitempty"`
}

// ManageReport is the result of one management tick.
type ManageReport struct {
	CycleID       string                   `json:"cycle_id"`
	AsOf          time.Time                `json:"as_of"`
	Exits         []ExitReport             `json:"exits"`
	Realized      float64                  `json:"realized_pnl"`
	Unrealized    float64                  `json:"unrealized_pnl"`
	Halt          risk.HaltState           `json:"halt"`
	Governor      risk.State               `json:"governor"`
	TotalDuration time.Duration            `json:"total_duration"`
	StepDurations map[string]time.Duration `json:"step_durations"`
	Errors        []CycleError             `json:"errors"`
}

// Manage marks the book, closes every position an exit rule selects and then
// advances the halt state machine from the tick's P&L change. A failed close
// leaves the position open for the next tick.
func (e *Engine) Manage(ctx context.Context, in ManageInput) (*ManageReport, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	e.metrics.BeginCycle("manage")
	defer e.metrics.EndCycle()

	report := &ManageReport{
		CycleID:       uuid.NewString(),
		AsOf:          in.AsOf,
		Exits:         []ExitReport{},
		StepDurations: make(map[string]time.Duration),
		Errors:        []CycleError{},
	}

	steps := []struct {
		name string
		fn   func(ctx context.Context, in ManageInput, report *ManageReport) error
	}{
		{StepMark, e.markStep},
		{StepExits, e.exitsStep},
		{StepHalt, e.haltStep},
	}

	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return report, fmt.Errorf("manage cancelled before %s: %w", step.name, err)
		}
		stepStart := time.Now()
		timer := e.metrics.StartStepTimer(step.name)

		err := step.fn(ctx, in, report)
		report.StepDurations[step.name] = time.Since(stepStart)

		if err != nil {
			timer.Stop(metrics.ResultError)
			e.recordError(&report.Errors, step.name, "", err)
			return report, fmt.Errorf("manage failed at step %s: %w", step.name, err)
		}
		timer.Stop(metrics.ResultSuccess)
	}

	report.Governor = e.governor.Snapshot()
	e.publishPortfolio(in.AsOf)
	if err := e.persist(ctx); err != nil {
		e.recordError(&report.Errors, StepPersist, "", err)
	}

	report.TotalDuration = time.Since(start)
	log.Info().
		Str("cycle", report.CycleID).
		Int("exits", len(report.Exits)).
		Float64("realized", report.Realized).
		Float64("unrealized", report.Unrealized).
		Str("halt", report.Halt.String()).
		Dur("total_duration", report.TotalDuration).
		Msg("Management tick completed")

	return report, nil
}

// markStep applies fresh marks. Unknown or already-closed ids are reported
// but do not stop the tick.
func (e *Engine) markStep(_ context.Context, in ManageInput, report *ManageReport) error {
	for id, m := range in.Marks {
		if err := e.book.Mark(id, m); err != nil {
			e.recordError(&report.Errors, StepMark, "", err)
		}
	}
	return nil
}

func (e *Engine) exitsStep(ctx context.Context, in ManageInput, report *ManageReport) error {
	results := e.governor.EvaluateExits(risk.ExitRequest{
		AsOf:      in.AsOf,
		Positions: e.book.OpenPositions(),
		Snapshots: in.Snapshots,
		Regimes:   e.pendingRegimes,
	})
	e.pendingRegimes = nil

	byID := make(map[string]ledger.Position)
	for _, p := range e.book.OpenPositions() {
		byID[p.ID] = p
	}

	for _, res := range results {
		if !res.ShouldExit {
			continue
		}
		pos := byID[res.PositionID]
		er := ExitReport{Result: res}

		err := e.gateway.Close(ctx, execution.CloseOrder{Position: pos, Reason: res.ExitReason, AsOf: in.AsOf})
		if err != nil {
			e.metrics.RecordExecutionError("close")
			e.recordError(&report.Errors, StepExits, pos.Underlying, err)
		} else {
			closed, err := e.book.Close(pos.ID, in.AsOf, pos.Mark, res.ExitReason.String())
			if err != nil {
				return fmt.Errorf("position %s closed at the gateway but not in the ledger: %w", pos.ID, err)
			}
			er.Executed = true
			er.Realized = closed.RealizedPnL
			report.Realized += closed.RealizedPnL
			e.governor.RecordExit(res.ExitReason, in.AsOf)
			e.metrics.RecordExit(res.ExitReason.String())

			log.Info().
				Str("position", pos.ID).
				Str("underlying", pos.Underlying).
				Str("reason", res.ExitReason.String()).
				Str("triggered_by", res.TriggeredBy).
				Float64("realized", closed.RealizedPnL).
				Msg("Position closed")
		}

		report.Exits = append(report.Exits, er)
		if err := e.auditor.ExitDecided(ctx, report.CycleID, er); err != nil {
			e.recordError(&report.Errors, StepAudit, pos.Underlying, err)
		}
	}
	return nil
}

func (e *Engine) haltStep(_ context.Context, in ManageInput, report *ManageReport) error {
	for _, p := range e.book.OpenPositions() {
		report.Unrealized += p.UnrealizedPnL()
	}
	report.Halt = e.governor.EvaluateHaltState(risk.HaltInput{
		AsOf:       in.AsOf,
		Equity:     in.Equity,
		Realized:   report.Realized,
		Unrealized: report.Unrealized,
	})
	return nil
}
