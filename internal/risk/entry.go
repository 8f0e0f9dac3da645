package risk

import (
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/whatbraddidnext/optimus/internal/ledger"
	"github.com/whatbraddidnext/optimus/internal/sizing"
)

// Veto is the outcome of the final entry check. Approved is the only
// non-veto value.
type Veto int

const (
	Approved Veto = iota
	CircuitBreakerVeto
	NoContractsVeto
	HeatCeilingVeto
	DirectionalExposureVeto
	RegimeNotTradeableVeto
)

func (v Veto) String() string {
	switch v {
	case Approved:
		return "approved"
	case CircuitBreakerVeto:
		return "circuit_breaker"
	case NoContractsVeto:
		return "no_contracts"
	case HeatCeilingVeto:
		return "heat_ceiling"
	case DirectionalExposureVeto:
		return "directional_exposure"
	case RegimeNotTradeableVeto:
		return "regime_not_tradeable"
	default:
		return "unknown"
	}
}

func (v Veto) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// RegimeCheck re-reads tradeability at approval time.
type RegimeCheck interface {
	Tradeable() bool
}

// EntryRequest is everything ApproveEntry needs about one sized signal.
type EntryRequest struct {
	Underlying string
	AsOf       time.Time
	Equity     float64
	Sizing     sizing.Decision
	Ledger     ledger.View
	Regime     RegimeCheck
}

// EntryDecision is the governor's answer. A veto carries a reason; approval
// is explicit.
type EntryDecision struct {
	Underlying            string    `json:"underlying"`
	AsOf                  time.Time `json:"as_of"`
	Approved              bool      `json:"approved"`
	Veto                  Veto      `json:"veto"`
	Reason                string    `json:"reason"`
	ProjectedHeat         float64   `json:"projected_heat_pct"`
	Exposure              float64   `json:"directional_exposure"`
	Contracts             int       `json:"contracts"`
	TotalMaxLoss          float64   `json:"total_max_loss"`
	BreakerUntil          time.Time `json:"breaker_until,omitempty"`
	ConsecutiveHardLosses int       `json:"consecutive_hard_losses,omitempty"`
}

// ApproveEntry runs the veto checks in order: circuit breaker, contract
// count, portfolio heat, directional exposure and regime tradeability. An
// expired breaker is cleared here as a side effect.
func (g *Governor) ApproveEntry(req EntryRequest) EntryDecision {
	g.mu.Lock()
	defer g.mu.Unlock()

	d := EntryDecision{
		Underlying:   req.Underlying,
		AsOf:         req.AsOf,
		Contracts:    req.Sizing.Contracts,
		TotalMaxLoss: req.Sizing.TotalMaxLoss,
	}

	veto := func(v Veto, reason string) EntryDecision {
		d.Veto, d.Reason = v, reason
		log.Info().
			Str("underlying", req.Underlying).
			Str("veto", v.String()).
			Str("reason", reason).
			Msg("Entry vetoed")
		return d
	}

	g.expireBreaker(req.AsOf)
	if st := &g.state; st.BreakerActive {
		d.BreakerUntil, d.ConsecutiveHardLosses = st.BreakerUntil, st.ConsecutiveHardLosses
		return veto(CircuitBreakerVeto, fmt.Sprintf("circuit breaker active until %s (%d consecutive hard losses)",
			st.BreakerUntil.Format(time.DateOnly), st.ConsecutiveHardLosses))
	}

	if req.Sizing.Contracts <= 0 {
		reason := "position size is 0 contracts"
		if req.Sizing.Reason != "" {
			reason += ": " + req.Sizing.Reason
		}
		return veto(NoContractsVeto, reason)
	}

	var heat, exposure float64
	if req.Ledger != nil {
		heat = req.Ledger.Heat()
		exposure = req.Ledger.DirectionalExposure()
	}

	if req.Equity <= 0 {
		return veto(HeatCeilingVeto, fmt.Sprintf("non-positive equity %.2f", req.Equity))
	}
	projected := decimal.NewFromFloat(heat).
		Add(decimal.NewFromFloat(req.Sizing.TotalMaxLoss)).
		Mul(decimal.NewFromInt(100)).
		Div(decimal.NewFromFloat(req.Equity))
	d.ProjectedHeat = projected.InexactFloat64()
	if projected.GreaterThan(decimal.NewFromFloat(g.config.MaxHeatPct)) {
		return veto(HeatCeilingVeto, fmt.Sprintf("portfolio heat would be %s%% (limit %.2f%%)",
			projected.StringFixed(2), g.config.MaxHeatPct))
	}

	d.Exposure = exposure
	if math.Abs(exposure) > g.config.MaxDirectionalExposure {
		return veto(DirectionalExposureVeto, fmt.Sprintf("aggregate directional exposure %.2f already exceeds %.2f",
			exposure, g.config.MaxDirectionalExposure))
	}

	if req.Regime != nil && !req.Regime.Tradeable() {
		return veto(RegimeNotTradeableVeto, "regime became non-tradeable since signal evaluation")
	}

	d.Approved, d.Veto, d.Reason = true, Approved, "all risk checks passed"
	log.Info().
		Str("underlying", req.Underlying).
		Int("contracts", d.Contracts).
		Float64("projected_heat_pct", d.ProjectedHeat).
		Msg("Entry approved")
	return d
}
