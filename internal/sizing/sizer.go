package sizing

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/shopspring/decimal"
)

// Cap identifies what limited the contract count.
type Cap int

const (
	NoCap Cap = iota
	BudgetCap
	PerTradeCap
	AggregateCap
	InvalidInput
)

func (c Cap) String() string {
	switch c {
	case NoCap:
		return "none"
	case BudgetCap:
		return "budget"
	case PerTradeCap:
		return "per_trade_cap"
	case AggregateCap:
		return "aggregate_cap"
	case InvalidInput:
		return "invalid_input"
	default:
		return "unknown"
	}
}

func (c Cap) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// Tier reduces risk once drawdown from peak equity reaches DrawdownPct.
type Tier struct {
	DrawdownPct float64 `yaml:"drawdown_pct" validate:"gt=0,lt=100"`
	RiskPct     float64 `yaml:"risk_pct" validate:"gt=0"`
}

// Config holds risk percentages, all expressed in percent of equity.
type Config struct {
	BaseRiskPct     float64 `yaml:"base_risk_pct" validate:"gt=0,lte=100"`     // Default: 2.0
	Tiers           []Tier  `yaml:"drawdown_tiers" validate:"dive"`            // Default: 10% -> 1.5, 20% -> 1.0
	PerTradeCapPct  float64 `yaml:"per_trade_cap_pct" validate:"gt=0,lte=100"` // Default: 3.0
	AggregateCapPct float64 `yaml:"aggregate_cap_pct" validate:"gt=0,lte=100"` // Default: 15.0
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		BaseRiskPct: 2.0,
		Tiers: []Tier{
			{DrawdownPct: 10, RiskPct: 1.5},
			{DrawdownPct: 20, RiskPct: 1.0},
		},
		PerTradeCapPct:  3.0,
		AggregateCapPct: 15.0,
	}
}

// Validate checks tiers step risk down as drawdown deepens.
func (c Config) Validate() error {
	var errs []error
	tiers := append([]Tier(nil), c.Tiers...)
	sort.Slice(tiers, func(i, j int) bool { return tiers[i].DrawdownPct < tiers[j].DrawdownPct })
	prev := c.BaseRiskPct
	for _, t := range tiers {
		if t.RiskPct > prev {
			errs = append(errs, fmt.Errorf("tier at %.1f%% drawdown raises risk to %.2f%%", t.DrawdownPct, t.RiskPct))
		}
		prev = t.RiskPct
	}
	return errors.Join(errs...)
}

// Request carries the inputs for one sizing decision.
type Request struct {
	Equity             float64
	DrawdownPct        float64 // decline from peak equity, percent
	Conviction         float64
	RegimeMultiplier   float64
	MaxLossPerContract float64
	CommittedMaxLoss   float64 // existing heat across open positions
}

// Decision is the sizing outcome. Contracts is never negative and a zero
// count always carries a Reason.
type Decision struct {
	Contracts          int     `json:"contracts"`
	TierRiskPct        float64 `json:"tier_risk_pct"`
	EffectiveRiskPct   float64 `json:"effective_risk_pct"`
	Budget             float64 `json:"budget"`
	MaxLossPerContract float64 `json:"max_loss_per_contract"`
	TotalMaxLoss       float64 `json:"total_max_loss"`
	RawContracts       int     `json:"raw_contracts"`
	PerTradeCap        int     `json:"per_trade_cap"`
	AggregateRemaining int     `json:"aggregate_remaining"`
	BindingCap         Cap     `json:"binding_cap"`
	Reason             string  `json:"reason,omitempty"`
}

// Sizer converts a risk budget into a contract count.
type Sizer struct {
	config Config
	tiers  []Tier
}

// NewSizer validates the config and orders tiers deepest first.
func NewSizer(config Config) (*Sizer, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("sizing config: %w", err)
	}
	tiers := append([]Tier(nil), config.Tiers...)
	sort.Slice(tiers, func(i, j int) bool { return tiers[i].DrawdownPct > tiers[j].DrawdownPct })
	return &Sizer{config: config, tiers: tiers}, nil
}

// TierRisk returns the risk percent for a drawdown.
func (s *Sizer) TierRisk(drawdownPct float64) float64 {
	for _, t := range s.tiers {
		if drawdownPct >= t.DrawdownPct {
			return t.RiskPct
		}
	}
	return s.config.BaseRiskPct
}

// Size computes the contract count. Invalid inputs yield zero contracts with
// an explicit reason rather than an error.
func (s *Sizer) Size(req Request) Decision {
	d := Decision{MaxLossPerContract: req.MaxLossPerContract}

	if reason := invalid(req); reason != "" {
		d.BindingCap = InvalidInput
		d.Reason = reason
		return d
	}

	hundred := decimal.NewFromInt(100)
	equity := decimal.NewFromFloat(req.Equity)
	mlpc := decimal.NewFromFloat(req.MaxLossPerContract)

	d.TierRiskPct = s.TierRisk(req.DrawdownPct)
	effective := decimal.NewFromFloat(d.TierRiskPct).
		Mul(decimal.NewFromFloat(req.Conviction)).
		Mul(decimal.NewFromFloat(req.RegimeMultiplier))
	budget := equity.Mul(effective).Div(hundred)

	d.EffectiveRiskPct = effective.InexactFloat64()
	d.Budget = budget.Round(2).InexactFloat64()

	raw := contracts(budget, mlpc)
	perTrade := contracts(equity.Mul(decimal.NewFromFloat(s.config.PerTradeCapPct)).Div(hundred), mlpc)
	remaining := equity.Mul(decimal.NewFromFloat(s.config.AggregateCapPct)).Div(hundred).
		Sub(decimal.NewFromFloat(req.CommittedMaxLoss))
	aggregate := contracts(remaining, mlpc)

	d.RawContracts, d.PerTradeCap, d.AggregateRemaining = raw, perTrade, aggregate

	d.Contracts, d.BindingCap = raw, BudgetCap
	if perTrade < d.Contracts {
		d.Contracts, d.BindingCap = perTrade, PerTradeCap
	}
	if aggregate < d.Contracts {
		d.Contracts, d.BindingCap = aggregate, AggregateCap
	}
	if d.BindingCap == BudgetCap && d.Contracts > 0 {
		d.BindingCap = NoCap
	}

	d.TotalMaxLoss = mlpc.Mul(decimal.NewFromInt(int64(d.Contracts))).InexactFloat64()

	if d.Contracts == 0 {
		switch d.BindingCap {
		case PerTradeCap:
			d.Reason = fmt.Sprintf("per-trade cap %.2f%% of equity is below one contract at $%.2f",
				s.config.PerTradeCapPct, req.MaxLossPerContract)
		case AggregateCap:
			d.Reason = fmt.Sprintf("aggregate cap %.2f%% exhausted, $%s remaining",
				s.config.AggregateCapPct, remaining.StringFixed(2))
		default:
			d.Reason = fmt.Sprintf("budget $%.2f below one contract at $%.2f", d.Budget, req.MaxLossPerContract)
		}
	}
	return d
}

// contracts floors amount/perContract, never below zero.
func contracts(amount, perContract decimal.Decimal) int {
	if amount.Sign() <= 0 {
		return 0
	}
	return int(amount.Div(perContract).Floor().IntPart())
}

func invalid(req Request) string {
	fields := []struct {
		name string
		v    float64
	}{
		{"equity", req.Equity},
		{"drawdown", req.DrawdownPct},
		{"conviction", req.Conviction},
		{"regime multiplier", req.RegimeMultiplier},
		{"max loss per contract", req.MaxLossPerContract},
		{"committed max loss", req.CommittedMaxLoss},
	}
	for _, f := range fields {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) {
			return fmt.Sprintf("%s is not a finite number", f.name)
		}
	}
	switch {
	case req.Equity <= 0:
		return fmt.Sprintf("non-positive equity %.2f", req.Equity)
	case req.MaxLossPerContract <= 0:
		return fmt.Sprintf("non-positive max loss per contract %.2f", req.MaxLossPerContract)
	case req.Conviction < 0:
		return fmt.Sprintf("negative conviction %.3f", req.Conviction)
	case req.RegimeMultiplier < 0:
		return fmt.Sprintf("negative regime multiplier %.3f", req.RegimeMultiplier)
	}
	return ""
}

// DrawdownPct returns the percent decline of equity from peak.
func DrawdownPct(equity, peak float64) float64 {
	if peak <= 0 || equity >= peak {
		return 0
	}
	return (peak - equity) / peak * 100
}
