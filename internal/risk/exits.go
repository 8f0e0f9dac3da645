package risk

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/whatbraddidnext/optimus/internal/exits"
	"github.com/whatbraddidnext/optimus/internal/ledger"
	"github.com/whatbraddidnext/optimus/internal/market"
	"github.com/whatbraddidnext/optimus/internal/regime"
)

// ExitRequest is one management tick's view of the book.
type ExitRequest struct {
	AsOf      time.Time
	Positions []ledger.Position
	Snapshots map[string]market.Snapshot
	Regimes   []regime.Result // this cycle's regime updates, if any
}

// EvaluateExits returns an exit for every open position that must close.
// A regime transition into a non-tradeable state closes the whole book and
// overrides the per-position rules.
func (g *Governor) EvaluateExits(req ExitRequest) []exits.ExitResult {
	open := make([]ledger.Position, 0, len(req.Positions))
	for _, p := range req.Positions {
		if p.Status == ledger.Open {
			open = append(open, p)
		}
	}

	if shift, ok := regimeShift(req.Regimes); ok {
		out := make([]exits.ExitResult, 0, len(open))
		trigger := fmt.Sprintf("Regime on %s shifted %s -> %s, closing all positions",
			shift.Underlying, shift.Previous, shift.Current)
		for _, p := range open {
			out = append(out, exits.ExitResult{
				PositionID:    p.ID,
				Underlying:    p.Underlying,
				Timestamp:     req.AsOf,
				ShouldExit:    true,
				ExitReason:    exits.RegimeShift,
				TriggeredBy:   trigger,
				UnrealizedPnL: p.UnrealizedPnL(),
				DTE:           p.DTE,
			})
		}
		log.Warn().
			Str("underlying", shift.Underlying).
			Str("regime", shift.Current.String()).
			Int("positions", len(out)).
			Msg("Regime forced exit")
		return out
	}

	halt := g.HaltState()
	mode := exits.HaltMode{TightenTarget: halt.Partial(), ForceClose: halt == MonthHalt}

	var out []exits.ExitResult
	for _, p := range open {
		result := g.evaluator(p.Underlying).EvaluateExit(p, req.Snapshots[p.Underlying], mode, req.AsOf)
		if !result.ShouldExit {
			continue
		}
		log.Info().
			Str("position", p.ID).
			Str("underlying", p.Underlying).
			Str("reason", result.ExitReason.String()).
			Str("trigger", result.TriggeredBy).
			Msg("Exit triggered")
		out = append(out, result)
	}
	return out
}

func regimeShift(results []regime.Result) (regime.Result, bool) {
	for _, r := range results {
		if r.Changed && !r.Tradeable {
			return r, true
		}
	}
	return regime.Result{}, false
}
