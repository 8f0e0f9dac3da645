package conviction

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whatbraddidnext/optimus/internal/ledger"
	"github.com/whatbraddidnext/optimus/internal/market"
)

// statsView only answers RecentStats.
type statsView struct {
	ledger.View
	stats ledger.Stats
}

func (v statsView) RecentStats(int) ledger.Stats { return v.stats }

func bullish() market.Snapshot {
	return market.Snapshot{
		IVRank:           market.Of(75),
		TermRatio:        market.Of(0.90),
		Price:            market.Of(5300),
		PrevClose:        market.Of(5250),
		TrendReference:   market.Of(5000),
		LowerBand:        market.Of(5000),
		MiddleBand:       market.Of(5400),
		ProxyReturnPct:   market.Of(-0.8),
		ProxyCorrelation: market.Of(-0.5),
	}
}

func bearish() market.Snapshot {
	return market.Snapshot{
		IVRank:           market.Of(52),
		TermRatio:        market.Of(1.02),
		Price:            market.Of(4900),
		PrevClose:        market.Of(4950),
		TrendReference:   market.Of(5000),
		LowerBand:        market.Of(4800),
		MiddleBand:       market.Of(5000),
		ProxyReturnPct:   market.Of(2.0),
		ProxyCorrelation: market.Of(-0.6),
	}
}

func factor(s Score, f Factor) Contribution {
	for _, c := range s.Factors {
		if c.Factor == f {
			return c
		}
	}
	return Contribution{}
}

func TestScore_AllPositiveClampsToMax(t *testing.T) {
	s := NewScorer(DefaultConfig())
	score := s.Score(bullish(), statsView{stats: ledger.Stats{Trades: 10, Wins: 9, WinRate: 90}})

	// 0.15 + 0.10 + 0.10 + 0 (shallow pullback) + 0.20 + 0.10
	assert.InDelta(t, 0.65, score.TotalAdjustment, 1e-9)
	assert.Equal(t, 1.5, score.Multiplier)
	assert.True(t, score.Clamped)
	require.Len(t, score.Factors, 6)
	assert.Equal(t, IVRankFactor, score.Factors[0].Factor)
	assert.Equal(t, WinRateFactor, score.Factors[5].Factor)
}

func TestScore_AllNegativeClampsToMin(t *testing.T) {
	s := NewScorer(DefaultConfig())
	score := s.Score(bearish(), statsView{stats: ledger.Stats{Trades: 10, Wins: 4, WinRate: 40}})

	// -0.10 - 0.05 - 0.15 + 0 (depth exactly 0.5) - 0.30 - 0.10
	assert.InDelta(t, -0.70, score.TotalAdjustment, 1e-9)
	assert.Equal(t, 0.5, score.Multiplier)
	assert.True(t, score.Clamped)
}

func TestScore_BoundedForEveryCombination(t *testing.T) {
	cfg := DefaultConfig()
	s := NewScorer(cfg)

	ivs := []market.Reading{market.Unavailable(), market.Of(40), market.Of(58), market.Of(65), market.Of(90)}
	ratios := []market.Reading{market.Unavailable(), market.Of(0.9), market.Of(0.97), market.Of(1.2)}
	prices := []float64{4700, 4900, 5050, 5200, 5400}
	proxies := []market.Reading{market.Unavailable(), market.Of(-1), market.Of(0.5), market.Of(2)}
	stats := []ledger.Stats{{}, {Trades: 10, WinRate: 95}, {Trades: 10, WinRate: 65}, {Trades: 10, WinRate: 10}}

	for _, iv := range ivs {
		for _, ratio := range ratios {
			for _, price := range prices {
				for _, proxy := range proxies {
					for _, st := range stats {
						snap := market.Snapshot{
							IVRank:         iv,
							TermRatio:      ratio,
							Price:          market.Of(price),
							PrevClose:      market.Of(5000),
							TrendReference: market.Of(5000),
							LowerBand:      market.Of(4800),
							MiddleBand:     market.Of(5100),
							ProxyReturnPct: proxy,
						}
						score := s.Score(snap, statsView{stats: st})
						assert.GreaterOrEqual(t, score.Multiplier, cfg.Min)
						assert.LessOrEqual(t, score.Multiplier, cfg.Max)
					}
				}
			}
		}
	}
}

func TestScore_Factors(t *testing.T) {
	s := NewScorer(DefaultConfig())

	t.Run("neutral when everything is missing", func(t *testing.T) {
		score := s.Score(market.Snapshot{}, nil)
		assert.Equal(t, 1.0, score.Multiplier)
		assert.False(t, score.Clamped)
		for _, c := range score.Factors {
			assert.Zero(t, c.Adjustment, "factor %s", c.Factor)
			assert.NotEmpty(t, c.Detail)
		}
	})

	t.Run("band depth", func(t *testing.T) {
		snap := market.Snapshot{Price: market.Of(4820), LowerBand: market.Of(4800), MiddleBand: market.Of(5000)}
		assert.Equal(t, 0.10, factor(s.Score(snap, nil), BandDepthFactor).Adjustment)
		snap.Price = market.Of(4880)
		assert.Equal(t, 0.05, factor(s.Score(snap, nil), BandDepthFactor).Adjustment)
	})

	t.Run("proxy correlation weight dampens", func(t *testing.T) {
		snap := bearish()
		snap.ProxyCorrelation = market.Of(0.2)
		assert.InDelta(t, -0.09, factor(s.Score(snap, nil), ProxyFactor).Adjustment, 1e-9)
		snap.ProxyCorrelation = market.Of(-0.2)
		assert.InDelta(t, -0.21, factor(s.Score(snap, nil), ProxyFactor).Adjustment, 1e-9)
	})

	t.Run("proxy rising into a bounce", func(t *testing.T) {
		snap := bullish()
		snap.ProxyReturnPct = market.Of(0.6)
		assert.InDelta(t, -0.15, factor(s.Score(snap, nil), ProxyFactor).Adjustment, 1e-9)
	})

	t.Run("win rate needs history", func(t *testing.T) {
		score := s.Score(market.Snapshot{}, statsView{stats: ledger.Stats{Trades: 4, WinRate: 100}})
		assert.Zero(t, factor(score, WinRateFactor).Adjustment)
		score = s.Score(market.Snapshot{}, statsView{stats: ledger.Stats{Trades: 5, WinRate: 70}})
		assert.Equal(t, 0.05, factor(score, WinRateFactor).Adjustment)
	})
}

func TestNewScorer_InvalidConfigFallsBack(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Min, cfg.Max = 2, 1
	s := NewScorer(cfg)
	score := s.Score(bullish(), nil)
	assert.LessOrEqual(t, score.Multiplier, DefaultConfig().Max)
}

func TestScore_ConfiguredBreakpoints(t *testing.T) {
	cfg := DefaultConfig()
	cfg.IVRank.High.At = 80
	cfg.Term.Strong.At = 0.85
	cfg.WinRate.High.At = 95
	cfg.ProxyCorrelation.WeakWeight = 0
	s := NewScorer(cfg)

	score := s.Score(bullish(), statsView{stats: ledger.Stats{Trades: 10, Wins: 9, WinRate: 90}})
	assert.Equal(t, 0.05, factor(score, IVRankFactor).Adjustment)
	assert.Equal(t, 0.05, factor(score, TermStructureFactor).Adjustment)
	assert.Equal(t, 0.05, factor(score, WinRateFactor).Adjustment)

	snap := bearish()
	snap.ProxyCorrelation = market.Of(0.2)
	assert.Zero(t, factor(s.Score(snap, nil), ProxyFactor).Adjustment)
}

func TestConfig_ValidateBreakpoints(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"iv rank", func(c *Config) { c.IVRank.Low.At = 65 }, "iv rank steps"},
		{"term structure", func(c *Config) { c.Term.Strong.At = 1.1 }, "term structure strong"},
		{"trend", func(c *Config) { c.Trend.Moderate.At = 0 }, "trend steps"},
		{"band depth", func(c *Config) { c.Band.Moderate.At = 0.9 }, "band depth moderate"},
		{"win rate", func(c *Config) { c.WinRate.Good.At = 85 }, "win rate steps"},
		{"correlation", func(c *Config) { c.ProxyCorrelation.StrongInverse = 0 }, "proxy correlation"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}
}
