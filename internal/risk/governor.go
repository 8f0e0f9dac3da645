package risk

import (
	"errors"
	"fmt"
	"sync"

	"github.com/whatbraddidnext/optimus/internal/calendar"
	"github.com/whatbraddidnext/optimus/internal/exits"
)

// Config holds the portfolio-wide risk limits.
type Config struct {
	MaxHeatPct             float64 `yaml:"max_heat_pct" validate:"gt=0,lte=100"`           // Default: 15
	MaxDirectionalExposure float64 `yaml:"max_directional_exposure" validate:"gt=0"`       // Default: 0.50
	BreakerCount           int     `yaml:"circuit_breaker_count" validate:"gte=1"`         // Default: 3
	BreakerCooldownDays    int     `yaml:"circuit_breaker_cooldown_days" validate:"gte=1"` // Default: 5 business days
	DayHaltPct             float64 `yaml:"day_halt_pct" validate:"gt=0"`                   // Default: 2
	WeekHaltPct            float64 `yaml:"week_halt_pct" validate:"gt=0"`                  // Default: 4
	MonthHaltPct           float64 `yaml:"month_halt_pct" validate:"gt=0"`                 // Default: 8
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		MaxHeatPct:             15,
		MaxDirectionalExposure: 0.50,
		BreakerCount:           3,
		BreakerCooldownDays:    5,
		DayHaltPct:             2,
		WeekHaltPct:            4,
		MonthHaltPct:           8,
	}
}

// Validate checks limits are positive and halt thresholds widen with the
// period length.
func (c Config) Validate() error {
	var errs []error
	if c.MaxHeatPct <= 0 {
		errs = append(errs, fmt.Errorf("max heat %.2f%% must be positive", c.MaxHeatPct))
	}
	if c.MaxDirectionalExposure <= 0 {
		errs = append(errs, fmt.Errorf("max directional exposure %.2f must be positive", c.MaxDirectionalExposure))
	}
	if c.BreakerCount < 1 || c.BreakerCooldownDays < 1 {
		errs = append(errs, fmt.Errorf("circuit breaker count %d and cooldown %d must be at least 1",
			c.BreakerCount, c.BreakerCooldownDays))
	}
	if c.DayHaltPct <= 0 || c.WeekHaltPct < c.DayHaltPct || c.MonthHaltPct < c.WeekHaltPct {
		errs = append(errs, fmt.Errorf("halt thresholds must satisfy 0 < day <= week <= month, got %.2f/%.2f/%.2f",
			c.DayHaltPct, c.WeekHaltPct, c.MonthHaltPct))
	}
	return errors.Join(errs...)
}

// Governor is the final entry veto, the exit scanner and the owner of the
// halt and circuit-breaker state. Mutations are expected from one goroutine
// per cycle; the lock exists for concurrent readers such as the monitor.
type Governor struct {
	mu       sync.RWMutex
	config   Config
	calendar *calendar.Calendar
	exits    map[string]*exits.ExitEvaluator
	fallback *exits.ExitEvaluator
	state    State
}

// NewGovernor builds a governor. perUnderlying supplies exit rules by
// underlying; anything not listed uses fallback.
func NewGovernor(config Config, cal *calendar.Calendar, fallback exits.ExitConfig, perUnderlying map[string]exits.ExitConfig) (*Governor, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("risk config: %w", err)
	}
	if cal == nil {
		cal = calendar.UTC()
	}
	def, err := exits.NewExitEvaluator(fallback)
	if err != nil {
		return nil, err
	}
	evaluators := make(map[string]*exits.ExitEvaluator, len(perUnderlying))
	for u, ec := range perUnderlying {
		ee, err := exits.NewExitEvaluator(ec)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", u, err)
		}
		evaluators[u] = ee
	}
	return &Governor{
		config:   config,
		calendar: cal,
		exits:    evaluators,
		fallback: def,
	}, nil
}

// Config returns the governor's limits.
func (g *Governor) Config() Config {
	return g.config
}

// Snapshot returns a copy of the current state.
func (g *Governor) Snapshot() State {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.state
}

// Restore replaces the state, e.g. from the state store at startup.
func (g *Governor) Restore(s State) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state = s
}

// HaltState returns the current halt level.
func (g *Governor) HaltState() HaltState {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.state.Halt
}

func (g *Governor) evaluator(underlying string) *exits.ExitEvaluator {
	if ee, ok := g.exits[underlying]; ok {
		return ee
	}
	return g.fallback
}
