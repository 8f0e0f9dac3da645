package gates

import (
	"errors"
	"fmt"
)

// Config holds per-underlying gate thresholds and evaluation order.
type Config struct {
	Order []string `yaml:"order"`

	IVRankMin float64 `yaml:"iv_rank_min" validate:"gte=0,lte=100"` // Default: 50
	IVRankMax float64 `yaml:"iv_rank_max" validate:"gte=0,lte=100"` // Default: 100

	TermStructureMax      float64 `yaml:"term_structure_max" validate:"gt=0"` // Default: 1.05
	TermStructureOptional bool    `yaml:"term_structure_optional"`            // pass open when the ratio is unavailable

	BandTouchLookback int     `yaml:"band_touch_lookback" validate:"gte=1"` // Default: 5 bars
	MinUpCloses       int     `yaml:"min_up_closes" validate:"gte=0"`       // Default: 1
	OscillatorFloor   float64 `yaml:"oscillator_floor"`                     // Default: 30

	MinDTE       int     `yaml:"min_dte" validate:"gte=0"`           // Default: 30
	MaxDTE       int     `yaml:"max_dte" validate:"gtefield=MinDTE"` // Default: 60
	MaxSpreadPct float64 `yaml:"max_spread_pct" validate:"gt=0"`     // Default: 20

	MaxPerUnderlying int `yaml:"max_per_underlying" validate:"gte=1"` // Default: 3
	MaxTotal         int `yaml:"max_total" validate:"gte=1"`          // Default: 8

	MinSpacingDays int `yaml:"min_spacing_days" validate:"gte=0"` // business days, Default: 3
	MinStaggerDays int `yaml:"min_stagger_days" validate:"gte=0"` // calendar days, Default: 7

	SkewTrendScore float64 `yaml:"skew_trend_score" validate:"gt=0,lte=1"` // Default: 0.9
	SkewIVRank     float64 `yaml:"skew_iv_rank" validate:"gte=0,lte=100"`  // Default: 30
}

// DefaultConfig returns the production defaults with the full catalogue.
func DefaultConfig() Config {
	order := make([]string, len(Catalogue))
	for i, n := range Catalogue {
		order[i] = string(n)
	}
	return Config{
		Order:                 order,
		IVRankMin:             50,
		IVRankMax:             100,
		TermStructureMax:      1.05,
		TermStructureOptional: true,
		BandTouchLookback:     5,
		MinUpCloses:           1,
		OscillatorFloor:       30,
		MinDTE:                30,
		MaxDTE:                60,
		MaxSpreadPct:          20,
		MaxPerUnderlying:      3,
		MaxTotal:              8,
		MinSpacingDays:        3,
		MinStaggerDays:        7,
		SkewTrendScore:        0.9,
		SkewIVRank:            30,
	}
}

// Validate checks the order list and cross-field bounds.
func (c Config) Validate() error {
	var errs []error
	if c.IVRankMin > c.IVRankMax {
		errs = append(errs, fmt.Errorf("iv_rank_min %.1f exceeds iv_rank_max %.1f", c.IVRankMin, c.IVRankMax))
	}
	if c.MaxPerUnderlying > c.MaxTotal {
		errs = append(errs, fmt.Errorf("max_per_underlying %d exceeds max_total %d", c.MaxPerUnderlying, c.MaxTotal))
	}
	if _, err := c.names(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (c Config) names() ([]Name, error) {
	if len(c.Order) == 0 {
		return nil, fmt.Errorf("%w: empty gate order", ErrInvalidConfiguration)
	}
	seen := make(map[Name]bool, len(c.Order))
	out := make([]Name, 0, len(c.Order))
	for _, raw := range c.Order {
		n := Name(raw)
		if _, ok := lookup(n); !ok {
			return nil, fmt.Errorf("%w: unknown gate %q", ErrInvalidConfiguration, raw)
		}
		if seen[n] {
			return nil, fmt.Errorf("%w: duplicate gate %q", ErrInvalidConfiguration, raw)
		}
		seen[n] = true
		out = append(out, n)
	}
	return out, nil
}
