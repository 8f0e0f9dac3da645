package regime

import (
	"errors"
	"fmt"
)

// Band is a half-open [Low, High) range of the primary volatility level.
type Band struct {
	Low  float64 `yaml:"low" json:"low"`
	High float64 `yaml:"high" json:"high" validate:"gtfield=Low"`
}

func (b Band) contains(v float64) bool {
	return v >= b.Low && v < b.High
}

// Long-window volatility measures usable by the recovery rule.
const (
	RecoveryRealizedLong = "realized_long"
	RecoveryVolLevel     = "vol_level"
)

// Config holds the classifier thresholds and hysteresis settings for one
// underlying.
type Config struct {
	CrisisVolLevel     float64 `yaml:"crisis_vol_level" validate:"gt=0"`    // Default: 35
	HighVolLevel       float64 `yaml:"high_vol_level" validate:"gt=0"`      // Default: 25
	ElevatedVolLevel   float64 `yaml:"elevated_vol_level" validate:"gt=0"`  // Default: 18
	BackwardationRatio float64 `yaml:"backwardation_ratio" validate:"gt=0"` // Default: 1.05

	ProxySurgePct float64 `yaml:"proxy_surge_pct" validate:"gt=0"` // Default: 1.5
	ProxyRisePct  float64 `yaml:"proxy_rise_pct" validate:"gte=0"` // Default: 0.3
	NudgeBands    []Band  `yaml:"nudge_bands" validate:"dive"`

	RealizedVolMultiplier float64 `yaml:"realized_vol_multiplier" validate:"gt=0"` // Default: 1.5
	SessionMovePct        float64 `yaml:"session_move_pct" validate:"gt=0"`        // Default: 2.0

	TrendingStrength      float64 `yaml:"trending_strength" validate:"gt=0"`      // Default: 25
	TrendDistanceATR      float64 `yaml:"trend_distance_atr" validate:"gt=0"`     // Default: 2.0
	CompressionStrength   float64 `yaml:"compression_strength" validate:"gt=0"`   // Default: 20
	CompressionPercentile float64 `yaml:"compression_percentile" validate:"gt=0"` // Default: 20

	ConfirmationCycles int    `yaml:"confirmation_cycles" validate:"gte=1"` // Default: 2
	RecoveryCycles     int    `yaml:"recovery_cycles" validate:"gte=1"`     // Default: 3
	RecoveryMeasure    string `yaml:"recovery_measure" validate:"oneof=realized_long vol_level"`

	Permissive []string           `yaml:"permissive"`
	Caution    []string           `yaml:"caution"`
	Tradeable  []string           `yaml:"tradeable"`
	Allocation map[string]float64 `yaml:"allocation"`
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		CrisisVolLevel:        35,
		HighVolLevel:          25,
		ElevatedVolLevel:      18,
		BackwardationRatio:    1.05,
		ProxySurgePct:         1.5,
		ProxyRisePct:          0.3,
		NudgeBands:            []Band{{Low: 0, High: 18}, {Low: 18, High: 25}},
		RealizedVolMultiplier: 1.5,
		SessionMovePct:        2.0,
		TrendingStrength:      25,
		TrendDistanceATR:      2.0,
		CompressionStrength:   20,
		CompressionPercentile: 20,
		ConfirmationCycles:    2,
		RecoveryCycles:        3,
		RecoveryMeasure:       RecoveryRealizedLong,
		Permissive:            []string{"calm", "elevated_vol", "compression"},
		Caution:               []string{"trending", "high_vol", "crisis"},
		Tradeable:             []string{"calm", "elevated_vol", "compression", "high_vol"},
		Allocation: map[string]float64{
			"calm":         1.0,
			"elevated_vol": 1.0,
			"compression":  0.8,
			"high_vol":     0.625,
			"trending":     0,
			"crisis":       0,
		},
	}
}

// Validate checks relationships the struct tags cannot express.
func (c Config) Validate() error {
	var errs []error
	if !(c.ElevatedVolLevel <= c.HighVolLevel && c.HighVolLevel <= c.CrisisVolLevel) {
		errs = append(errs, fmt.Errorf("vol levels must satisfy elevated <= high <= crisis, got %.2f/%.2f/%.2f",
			c.ElevatedVolLevel, c.HighVolLevel, c.CrisisVolLevel))
	}
	if c.RecoveryCycles <= c.ConfirmationCycles {
		errs = append(errs, fmt.Errorf("recovery_cycles (%d) must exceed confirmation_cycles (%d)",
			c.RecoveryCycles, c.ConfirmationCycles))
	}
	if _, err := c.compile(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

type compiled struct {
	permissive set
	caution    set
	tradeable  set
	allocation map[Regime]float64
}

func (c Config) compile() (compiled, error) {
	var out compiled
	var err error
	if out.permissive, err = parseSet(c.Permissive); err != nil {
		return out, fmt.Errorf("permissive: %w", err)
	}
	if out.caution, err = parseSet(c.Caution); err != nil {
		return out, fmt.Errorf("caution: %w", err)
	}
	if out.tradeable, err = parseSet(c.Tradeable); err != nil {
		return out, fmt.Errorf("tradeable: %w", err)
	}
	for r := range out.permissive {
		if out.caution.has(r) {
			return out, fmt.Errorf("regime %s is both permissive and caution", r)
		}
	}
	if out.tradeable.has(Crisis) {
		return out, errors.New("crisis cannot be tradeable")
	}

	out.allocation = make(map[Regime]float64, len(c.Allocation))
	for label, m := range c.Allocation {
		r, err := ParseRegime(label)
		if err != nil {
			return out, fmt.Errorf("allocation: %w", err)
		}
		if m < 0 || m > 1 {
			return out, fmt.Errorf("allocation for %s must be within [0, 1], got %.3f", r, m)
		}
		out.allocation[r] = m
	}
	return out, nil
}
