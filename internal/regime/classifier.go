package regime

import (
	"math"

	"github.com/whatbraddidnext/optimus/internal/market"
)

// Rule names the classification branch that produced a raw regime.
type Rule string

const (
	RuleCrisisVol        Rule = "crisis_vol_level"
	RuleBackwardation    Rule = "backwardation"
	RuleProxySurge       Rule = "proxy_surge"
	RuleRealizedVolSpike Rule = "realized_vol_spike"
	RuleSessionMove      Rule = "session_move"
	RuleHighVolLevel     Rule = "high_vol_level"
	RuleTrending         Rule = "trending"
	RuleCompression      Rule = "compression"
	RuleElevatedVol      Rule = "elevated_vol_level"
	RuleVolUnavailable   Rule = "vol_unavailable"
	RuleDefault          Rule = "default"
)

// Classification is the stateless raw result for one snapshot.
type Classification struct {
	Regime    Regime `json:"regime"`
	Rule      Rule   `json:"rule"`
	ProxyBias int    `json:"proxy_bias"`
	Nudged    bool   `json:"nudged"`
}

// Classifier maps a snapshot onto a raw regime in strict priority order.
type Classifier struct {
	config Config
}

// NewClassifier creates a classifier. The config must already be validated.
func NewClassifier(config Config) *Classifier {
	return &Classifier{config: config}
}

// Classify evaluates Crisis, HighVol, Trending and Compression in that order,
// falls back to the permissive default, then applies the proxy nudge.
func (c *Classifier) Classify(s market.Snapshot) Classification {
	bias := c.proxyBias(s)
	regime, rule := c.strict(s)
	out := Classification{Regime: regime, Rule: rule, ProxyBias: bias}

	if bias > 0 && s.VolLevel.Valid && c.inNudgeBand(s.VolLevel.Value) {
		switch regime {
		case Calm, Compression, ElevatedVol:
			out.Regime = moreCautious(regime)
			out.Nudged = true
		}
	}
	return out
}

func (c *Classifier) strict(s market.Snapshot) (Regime, Rule) {
	cfg := c.config
	vol := s.VolLevel

	// Crisis
	if vol.Valid && vol.Value >= cfg.CrisisVolLevel {
		return Crisis, RuleCrisisVol
	}
	if s.TermRatio.Valid && s.TermRatio.Value >= cfg.BackwardationRatio {
		return Crisis, RuleBackwardation
	}
	if vol.Valid && vol.Value >= cfg.HighVolLevel &&
		s.ProxyReturnPct.Valid && s.ProxyReturnPct.Value >= cfg.ProxySurgePct {
		return Crisis, RuleProxySurge
	}

	// High volatility
	if s.RealizedVolShort.Valid && s.RealizedVolExtended.Valid && s.RealizedVolExtended.Value > 0 &&
		s.RealizedVolShort.Value > cfg.RealizedVolMultiplier*s.RealizedVolExtended.Value {
		return HighVol, RuleRealizedVolSpike
	}
	if move := s.SessionMove(); move.Valid && math.Abs(move.Value) > cfg.SessionMovePct {
		return HighVol, RuleSessionMove
	}
	if vol.Valid && vol.Value >= cfg.HighVolLevel {
		return HighVol, RuleHighVolLevel
	}

	// Trending
	strength := s.DirectionalStrength
	if disp := s.TrendDisplacementATR(); strength.Valid && disp.Valid &&
		strength.Value >= cfg.TrendingStrength && disp.Value > cfg.TrendDistanceATR {
		return Trending, RuleTrending
	}

	// Compression
	if strength.Valid && s.CompressionPercentile.Valid &&
		strength.Value < cfg.CompressionStrength && s.CompressionPercentile.Value < cfg.CompressionPercentile {
		return Compression, RuleCompression
	}

	switch {
	case !vol.Valid:
		return ElevatedVol, RuleVolUnavailable
	case vol.Value >= cfg.ElevatedVolLevel:
		return ElevatedVol, RuleElevatedVol
	default:
		return Calm, RuleDefault
	}
}

// proxyBias is +1 when the risk-off proxy signals flight to safety, -1 when
// it is being sold, 0 otherwise.
func (c *Classifier) proxyBias(s market.Snapshot) int {
	ret := s.ProxyReturnPct
	if !ret.Valid {
		return 0
	}
	if ret.Value >= c.config.ProxySurgePct {
		return 1
	}
	aboveTrend := s.ProxyTrendPct.Valid && s.ProxyTrendPct.Value > 0
	if ret.Value > c.config.ProxyRisePct && aboveTrend {
		return 1
	}
	if ret.Value < -c.config.ProxyRisePct {
		return -1
	}
	return 0
}

func (c *Classifier) inNudgeBand(vol float64) bool {
	for _, b := range c.config.NudgeBands {
		if b.contains(vol) {
			return true
		}
	}
	return false
}

// referenceVol is the long-window measure tracked by the recovery rule.
func (c *Classifier) referenceVol(s market.Snapshot) market.Reading {
	if c.config.RecoveryMeasure == RecoveryVolLevel {
		return s.VolLevel
	}
	return s.RealizedVolLong
}
