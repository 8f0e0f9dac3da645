package conviction

import (
	"errors"
	"fmt"
	"math"

	"github.com/rs/zerolog/log"

	"github.com/whatbraddidnext/optimus/internal/ledger"
	"github.com/whatbraddidnext/optimus/internal/market"
)

// Factor identifies one conviction input.
type Factor string

const (
	IVRankFactor        Factor = "iv_rank"
	TermStructureFactor Factor = "term_structure"
	TrendStrengthFactor Factor = "trend_strength"
	BandDepthFactor     Factor = "band_depth"
	ProxyFactor         Factor = "risk_off_proxy"
	WinRateFactor       Factor = "win_rate"
)

// Contribution is one factor's signed adjustment.
type Contribution struct {
	Factor     Factor  `json:"factor"`
	Adjustment float64 `json:"adjustment"`
	Detail     string  `json:"detail"`
}

// Score is the bounded multiplier with its audit trail.
type Score struct {
	Multiplier      float64        `json:"multiplier"`
	TotalAdjustment float64        `json:"total_adjustment"`
	Clamped         bool           `json:"clamped"`
	Factors         []Contribution `json:"factors"`
}

// Step is one breakpoint and the adjustment applied once it is reached.
type Step struct {
	At         float64 `yaml:"at"`
	Adjustment float64 `yaml:"adjustment"`
}

// IVRankConfig rewards rich premium and penalises ranks near the gate floor.
type IVRankConfig struct {
	High     Step `yaml:"high"`     // rank >= At, Default: 70 / +0.15
	Moderate Step `yaml:"moderate"` // rank >= At, Default: 60 / +0.05
	Low      Step `yaml:"low"`      // rank <= At, Default: 55 / -0.10
}

// TermConfig scores the front/back volatility ratio.
type TermConfig struct {
	Strong         Step    `yaml:"strong"`          // ratio < At, Default: 0.95 / +0.10
	Mild           Step    `yaml:"mild"`            // ratio < At, Default: 1.0 / +0.05
	FlatAdjustment float64 `yaml:"flat_adjustment"` // Default: -0.05
}

// TrendConfig scores the distance above the trend reference, in percent.
type TrendConfig struct {
	Strong           Step    `yaml:"strong"`            // dist >= At, Default: 5 / +0.10
	Moderate         Step    `yaml:"moderate"`          // dist >= At, Default: 2 / +0.05
	BarelyAdjustment float64 `yaml:"barely_adjustment"` // 0 < dist, Default: -0.05
	BelowAdjustment  float64 `yaml:"below_adjustment"`  // dist <= 0, Default: -0.15
}

// BandConfig scores pullback depth as a fraction of band width.
type BandConfig struct {
	Deep     Step `yaml:"deep"`     // depth > At, Default: 0.8 / +0.10
	Moderate Step `yaml:"moderate"` // depth > At, Default: 0.5 / +0.05
}

// WinRateConfig scores the recent win rate, in percent.
type WinRateConfig struct {
	High Step `yaml:"high"` // rate >= At, Default: 80 / +0.10
	Good Step `yaml:"good"` // rate >= At, Default: 70 / +0.05
	Low  Step `yaml:"low"`  // rate < At, Default: 60 / -0.10
}

// CorrelationConfig shrinks the proxy factor unless the proxy and the
// primary asset have been moving inversely. Correlations above WeakInverse
// get WeakWeight, those above StrongInverse get PartialWeight.
type CorrelationConfig struct {
	WeakInverse   float64 `yaml:"weak_inverse" validate:"lte=0"`         // Default: -0.1
	StrongInverse float64 `yaml:"strong_inverse" validate:"lte=0"`       // Default: -0.3
	WeakWeight    float64 `yaml:"weak_weight" validate:"gte=0,lte=1"`    // Default: 0.3
	PartialWeight float64 `yaml:"partial_weight" validate:"gte=0,lte=1"` // Default: 0.7
}

// Config holds the base, bounds and per-factor thresholds.
type Config struct {
	Base float64 `yaml:"base" validate:"gt=0"` // Default: 1.0
	Min  float64 `yaml:"min" validate:"gt=0"`  // Default: 0.5
	Max  float64 `yaml:"max" validate:"gt=0"`  // Default: 1.5

	IVRank  IVRankConfig  `yaml:"iv_rank"`
	Term    TermConfig    `yaml:"term_structure"`
	Trend   TrendConfig   `yaml:"trend"`
	Band    BandConfig    `yaml:"band_depth"`
	WinRate WinRateConfig `yaml:"win_rate"`

	WinRateLookback   int `yaml:"win_rate_lookback" validate:"gte=1"`    // Default: 10
	WinRateMinHistory int `yaml:"win_rate_min_history" validate:"gte=1"` // Default: 5

	ProxySurgePct      float64           `yaml:"proxy_surge_pct" validate:"gt=0"` // Default: 1.5
	ProxyRisePct       float64           `yaml:"proxy_rise_pct" validate:"gte=0"` // Default: 0.3
	ProxySeverePenalty float64           `yaml:"proxy_severe_penalty"`            // Default: -0.30
	ProxyMildPenalty   float64           `yaml:"proxy_mild_penalty"`              // Default: -0.15
	ProxyBoost         float64           `yaml:"proxy_boost"`                     // Default: 0.20
	ProxyCorrelation   CorrelationConfig `yaml:"proxy_correlation"`
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Base: 1.0,
		Min:  0.5,
		Max:  1.5,
		IVRank: IVRankConfig{
			High:     Step{At: 70, Adjustment: 0.15},
			Moderate: Step{At: 60, Adjustment: 0.05},
			Low:      Step{At: 55, Adjustment: -0.10},
		},
		Term: TermConfig{
			Strong:         Step{At: 0.95, Adjustment: 0.10},
			Mild:           Step{At: 1.0, Adjustment: 0.05},
			FlatAdjustment: -0.05,
		},
		Trend: TrendConfig{
			Strong:           Step{At: 5, Adjustment: 0.10},
			Moderate:         Step{At: 2, Adjustment: 0.05},
			BarelyAdjustment: -0.05,
			BelowAdjustment:  -0.15,
		},
		Band: BandConfig{
			Deep:     Step{At: 0.8, Adjustment: 0.10},
			Moderate: Step{At: 0.5, Adjustment: 0.05},
		},
		WinRate: WinRateConfig{
			High: Step{At: 80, Adjustment: 0.10},
			Good: Step{At: 70, Adjustment: 0.05},
			Low:  Step{At: 60, Adjustment: -0.10},
		},
		WinRateLookback:    10,
		WinRateMinHistory:  5,
		ProxySurgePct:      1.5,
		ProxyRisePct:       0.3,
		ProxySeverePenalty: -0.30,
		ProxyMildPenalty:   -0.15,
		ProxyBoost:         0.20,
		ProxyCorrelation: CorrelationConfig{
			WeakInverse:   -0.1,
			StrongInverse: -0.3,
			WeakWeight:    0.3,
			PartialWeight: 0.7,
		},
	}
}

// Validate checks the bounds are ordered around the base and every factor's
// breakpoints are ordered.
func (c Config) Validate() error {
	var errs []error
	if !(c.Min <= c.Base && c.Base <= c.Max) {
		errs = append(errs, fmt.Errorf("conviction bounds must satisfy min <= base <= max, got %.2f/%.2f/%.2f", c.Min, c.Base, c.Max))
	}
	if !(c.IVRank.Low.At < c.IVRank.Moderate.At && c.IVRank.Moderate.At <= c.IVRank.High.At) {
		errs = append(errs, fmt.Errorf("iv rank steps must satisfy low < moderate <= high, got %.1f/%.1f/%.1f",
			c.IVRank.Low.At, c.IVRank.Moderate.At, c.IVRank.High.At))
	}
	if c.Term.Strong.At > c.Term.Mild.At {
		errs = append(errs, fmt.Errorf("term structure strong %.3f exceeds mild %.3f", c.Term.Strong.At, c.Term.Mild.At))
	}
	if c.Trend.Moderate.At <= 0 || c.Trend.Moderate.At > c.Trend.Strong.At {
		errs = append(errs, fmt.Errorf("trend steps must satisfy 0 < moderate <= strong, got %.2f/%.2f",
			c.Trend.Moderate.At, c.Trend.Strong.At))
	}
	if c.Band.Moderate.At > c.Band.Deep.At {
		errs = append(errs, fmt.Errorf("band depth moderate %.2f exceeds deep %.2f", c.Band.Moderate.At, c.Band.Deep.At))
	}
	if !(c.WinRate.Low.At <= c.WinRate.Good.At && c.WinRate.Good.At <= c.WinRate.High.At) {
		errs = append(errs, fmt.Errorf("win rate steps must satisfy low <= good <= high, got %.0f/%.0f/%.0f",
			c.WinRate.Low.At, c.WinRate.Good.At, c.WinRate.High.At))
	}
	if c.ProxyCorrelation.StrongInverse > c.ProxyCorrelation.WeakInverse {
		errs = append(errs, fmt.Errorf("proxy correlation strong inverse %.2f above weak inverse %.2f",
			c.ProxyCorrelation.StrongInverse, c.ProxyCorrelation.WeakInverse))
	}
	return errors.Join(errs...)
}

// Scorer computes conviction from the snapshot and recent trade history.
type Scorer struct {
	config Config
}

// NewScorer falls back to defaults when the config is invalid.
func NewScorer(config Config) *Scorer {
	if err := config.Validate(); err != nil {
		log.Warn().Err(err).Msg("Invalid conviction config, using defaults")
		config = DefaultConfig()
	}
	return &Scorer{config: config}
}

// Score sums the factor adjustments and clamps the result.
func (s *Scorer) Score(snap market.Snapshot, history ledger.View) Score {
	var stats ledger.Stats
	if history != nil {
		stats = history.RecentStats(s.config.WinRateLookback)
	}

	factors := []Contribution{
		s.ivRank(snap.IVRank),
		s.termStructure(snap.TermRatio),
		s.trendStrength(snap.TrendDistancePct()),
		s.bandDepth(snap.BandDepth()),
		s.proxy(snap),
		s.winRate(stats),
	}

	total := 0.0
	for _, f := range factors {
		total += f.Adjustment
	}
	raw := s.config.Base + total
	multiplier := math.Max(s.config.Min, math.Min(s.config.Max, raw))

	return Score{
		Multiplier:      round3(multiplier),
		TotalAdjustment: round3(total),
		Clamped:         multiplier != raw,
		Factors:         factors,
	}
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

func (s *Scorer) ivRank(iv market.Reading) Contribution {
	c := Contribution{Factor: IVRankFactor}
	t := s.config.IVRank
	switch {
	case !iv.Valid:
		c.Detail = "IV rank unavailable"
	case iv.Value >= t.High.At:
		c.Adjustment, c.Detail = t.High.Adjustment, fmt.Sprintf("IV rank %.0f high", iv.Value)
	case iv.Value >= t.Moderate.At:
		c.Adjustment, c.Detail = t.Moderate.Adjustment, fmt.Sprintf("IV rank %.0f moderate", iv.Value)
	case iv.Value <= t.Low.At:
		c.Adjustment, c.Detail = t.Low.Adjustment, fmt.Sprintf("IV rank %.0f near threshold", iv.Value)
	default:
		c.Detail = fmt.Sprintf("IV rank %.0f", iv.Value)
	}
	return c
}

func (s *Scorer) termStructure(ratio market.Reading) Contribution {
	c := Contribution{Factor: TermStructureFactor}
	t := s.config.Term
	switch {
	case !ratio.Valid:
		c.Detail = "term structure unavailable"
	case ratio.Value < t.Strong.At:
		c.Adjustment, c.Detail = t.Strong.Adjustment, fmt.Sprintf("strong contango %.3f", ratio.Value)
	case ratio.Value < t.Mild.At:
		c.Adjustment, c.Detail = t.Mild.Adjustment, fmt.Sprintf("mild contango %.3f", ratio.Value)
	default:
		c.Adjustment, c.Detail = t.FlatAdjustment, fmt.Sprintf("flat or backwardated %.3f", ratio.Value)
	}
	return c
}

func (s *Scorer) trendStrength(dist market.Reading) Contribution {
	c := Contribution{Factor: TrendStrengthFactor}
	t := s.config.Trend
	switch {
	case !dist.Valid:
		c.Detail = "trend reference unavailable"
	case dist.Value >= t.Strong.At:
		c.Adjustment, c.Detail = t.Strong.Adjustment, fmt.Sprintf("%+.1f%% above trend, strong", dist.Value)
	case dist.Value >= t.Moderate.At:
		c.Adjustment, c.Detail = t.Moderate.Adjustment, fmt.Sprintf("%+.1f%% above trend", dist.Value)
	case dist.Value > 0:
		c.Adjustment, c.Detail = t.BarelyAdjustment, fmt.Sprintf("%+.1f%% above trend, barely", dist.Value)
	default:
		c.Adjustment, c.Detail = t.BelowAdjustment, fmt.Sprintf("%+.1f%% below trend", dist.Value)
	}
	return c
}

func (s *Scorer) bandDepth(depth market.Reading) Contribution {
	c := Contribution{Factor: BandDepthFactor}
	t := s.config.Band
	switch {
	case !depth.Valid:
		c.Detail = "band data unavailable"
	case depth.Value > t.Deep.At:
		c.Adjustment, c.Detail = t.Deep.Adjustment, fmt.Sprintf("deep pullback %.2f of band width", depth.Value)
	case depth.Value > t.Moderate.At:
		c.Adjustment, c.Detail = t.Moderate.Adjustment, fmt.Sprintf("moderate pullback %.2f", depth.Value)
	default:
		c.Detail = fmt.Sprintf("shallow pullback %.2f", depth.Value)
	}
	return c
}

func (s *Scorer) correlationWeight(corr market.Reading) float64 {
	t := s.config.ProxyCorrelation
	switch {
	case !corr.Valid:
		return 1.0
	case corr.Value > t.WeakInverse:
		return t.WeakWeight
	case corr.Value > t.StrongInverse:
		return t.PartialWeight
	default:
		return 1.0
	}
}

func (s *Scorer) proxy(snap market.Snapshot) Contribution {
	c := Contribution{Factor: ProxyFactor}
	ret := snap.ProxyReturnPct
	if !ret.Valid {
		c.Detail = "proxy data unavailable"
		return c
	}

	weight := s.correlationWeight(snap.ProxyCorrelation)
	recovering, _ := snap.PrimaryRecovering()

	switch {
	case ret.Value >= s.config.ProxySurgePct && !recovering:
		c.Adjustment = s.config.ProxySeverePenalty * weight
		c.Detail = fmt.Sprintf("proxy surging %+.1f%% while primary falls", ret.Value)
	case ret.Value > s.config.ProxyRisePct && recovering:
		c.Adjustment = s.config.ProxyMildPenalty * weight
		c.Detail = fmt.Sprintf("proxy rising %+.1f%% during bounce", ret.Value)
	case ret.Value < -s.config.ProxyRisePct && recovering:
		c.Adjustment = s.config.ProxyBoost * weight
		c.Detail = fmt.Sprintf("proxy falling %+.1f%% during bounce, risk-on", ret.Value)
	default:
		c.Detail = fmt.Sprintf("proxy %+.1f%%, no signal", ret.Value)
	}
	if c.Adjustment != 0 {
		c.Detail += fmt.Sprintf(" (weight %.1f)", weight)
	}
	return c
}

func (s *Scorer) winRate(stats ledger.Stats) Contribution {
	c := Contribution{Factor: WinRateFactor}
	t := s.config.WinRate
	switch {
	case stats.Trades < s.config.WinRateMinHistory:
		c.Detail = fmt.Sprintf("insufficient history (%d trades)", stats.Trades)
	case stats.WinRate >= t.High.At:
		c.Adjustment, c.Detail = t.High.Adjustment, fmt.Sprintf("win rate %.0f%% over %d", stats.WinRate, stats.Trades)
	case stats.WinRate >= t.Good.At:
		c.Adjustment, c.Detail = t.Good.Adjustment, fmt.Sprintf("win rate %.0f%%", stats.WinRate)
	case stats.WinRate < t.Low.At:
		c.Adjustment, c.Detail = t.Low.Adjustment, fmt.Sprintf("win rate %.0f%% below target", stats.WinRate)
	default:
		c.Detail = fmt.Sprintf("win rate %.0f%%", stats.WinRate)
	}
	return c
}
