// Package strikes maps the trend score to short-strike delta targets for the
// external chain selector.
package strikes

import (
	"errors"
	"fmt"
	"math"

	"github.com/whatbraddidnext/optimus/internal/market"
)

// Config holds the per-underlying delta band. Deltas are absolute values.
type Config struct {
	DefaultShortDelta float64 `yaml:"default_short_delta" validate:"gt=0,lt=1"` // Default: 0.16
	MinSkewDelta      float64 `yaml:"min_skew_delta" validate:"gt=0,lt=1"`      // Default: 0.10
	MaxSkewDelta      float64 `yaml:"max_skew_delta" validate:"gt=0,lt=1"`      // Default: 0.25
	SymmetricBand     float64 `yaml:"symmetric_band" validate:"gte=0,lt=1"`     // |trend| at or below stays symmetric, Default: 0.3
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		DefaultShortDelta: 0.16,
		MinSkewDelta:      0.10,
		MaxSkewDelta:      0.25,
		SymmetricBand:     0.3,
	}
}

// Validate checks the band brackets the default delta.
func (c Config) Validate() error {
	var errs []error
	if c.MinSkewDelta <= 0 || c.MaxSkewDelta >= 1 {
		errs = append(errs, fmt.Errorf("skew deltas %.2f..%.2f must lie in (0, 1)", c.MinSkewDelta, c.MaxSkewDelta))
	}
	if c.MinSkewDelta > c.DefaultShortDelta || c.DefaultShortDelta > c.MaxSkewDelta {
		errs = append(errs, fmt.Errorf("default short delta %.2f outside skew band %.2f..%.2f",
			c.DefaultShortDelta, c.MinSkewDelta, c.MaxSkewDelta))
	}
	if c.SymmetricBand < 0 || c.SymmetricBand >= 1 {
		errs = append(errs, fmt.Errorf("symmetric band %.2f must lie in [0, 1)", c.SymmetricBand))
	}
	return errors.Join(errs...)
}

// Targets are the call and put short-strike deltas for one underlying.
type Targets struct {
	Call       float64 `json:"call_delta"`
	Put        float64 `json:"put_delta"`
	TrendScore float64 `json:"trend_score"`
	Skewed     bool    `json:"skewed"`
}

// DeltaTargets skews the short deltas with the trend. In an uptrend the call
// side moves out toward MinSkewDelta and the put side in toward MaxSkewDelta;
// a downtrend mirrors it. A missing trend score is treated as flat.
func DeltaTargets(c Config, snap market.Snapshot) Targets {
	score := 0.0
	if snap.TrendScore.Valid {
		score = math.Max(-1, math.Min(1, snap.TrendScore.Value))
	}
	t := Targets{Call: c.DefaultShortDelta, Put: c.DefaultShortDelta, TrendScore: score}
	if math.Abs(score) <= c.SymmetricBand {
		return t
	}

	skew := (math.Abs(score) - c.SymmetricBand) / (1 - c.SymmetricBand)
	wider := c.DefaultShortDelta - skew*(c.DefaultShortDelta-c.MinSkewDelta)
	tighter := c.DefaultShortDelta + skew*(c.MaxSkewDelta-c.DefaultShortDelta)
	if score > 0 {
		t.Call, t.Put = wider, tighter
	} else {
		t.Call, t.Put = tighter, wider
	}
	t.Call = c.clamp(t.Call)
	t.Put = c.clamp(t.Put)
	t.Skewed = true
	return t
}

func (c Config) clamp(delta float64) float64 {
	delta = math.Round(delta*10000) / 10000
	return math.Max(c.MinSkewDelta, math.Min(c.MaxSkewDelta, delta))
}
