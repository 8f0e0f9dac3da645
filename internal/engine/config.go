package engine

import (
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/whatbraddidnext/optimus/internal/conviction"
	"github.com/whatbraddidnext/optimus/internal/execution"
	"github.com/whatbraddidnext/optimus/internal/exits"
	"github.com/whatbraddidnext/optimus/internal/gates"
	"github.com/whatbraddidnext/optimus/internal/regime"
	"github.com/whatbraddidnext/optimus/internal/risk"
	"github.com/whatbraddidnext/optimus/internal/sizing"
	"github.com/whatbraddidnext/optimus/internal/strikes"
)

// UnderlyingConfig holds the per-underlying thresholds. Exits, when set,
// replaces the portfolio exit rules for this underlying.
type UnderlyingConfig struct {
	Name    string            `yaml:"name" validate:"required"`
	Regime  regime.Config     `yaml:"regime"`
	Gates   gates.Config      `yaml:"gates"`
	Strikes strikes.Config    `yaml:"strikes"`
	Exits   *exits.ExitConfig `yaml:"exits,omitempty"`
}

// DefaultUnderlying returns production defaults for one underlying.
func DefaultUnderlying(name string) UnderlyingConfig {
	return UnderlyingConfig{
		Name:    name,
		Regime:  regime.DefaultConfig(),
		Gates:   gates.DefaultConfig(),
		Strikes: strikes.DefaultConfig(),
	}
}

// UnmarshalYAML decodes over the defaults so a document only needs to name
// the thresholds it changes.
func (u *UnderlyingConfig) UnmarshalYAML(node *yaml.Node) error {
	type plain UnderlyingConfig
	p := plain(DefaultUnderlying(""))
	if node.Kind == yaml.MappingNode {
		for i := 0; i+1 < len(node.Content); i += 2 {
			if node.Content[i].Value == "exits" {
				ex := exits.DefaultExitConfig()
				p.Exits = &ex
			}
		}
	}
	if err := node.Decode(&p); err != nil {
		return err
	}
	*u = UnderlyingConfig(p)
	return nil
}

// CalendarConfig names the exchange time zone and holidays.
type CalendarConfig struct {
	Zone     string   `yaml:"zone" default:"America/New_York"` // Default: America/New_York
	Holidays []string `yaml:"holidays"`
}

// Config is the full decision-core configuration. Underlyings are evaluated
// in list order.
type Config struct {
	Underlyings []UnderlyingConfig    `yaml:"underlyings" validate:"required,min=1,dive"`
	Calendar    CalendarConfig        `yaml:"calendar"`
	Conviction  conviction.Config     `yaml:"conviction"`
	Sizing      sizing.Config         `yaml:"sizing"`
	Risk        risk.Config           `yaml:"risk"`
	Exits       exits.ExitConfig      `yaml:"exits"`
	Execution   execution.GuardConfig `yaml:"execution"`
}

// DefaultConfig returns a single-underlying production configuration.
func DefaultConfig() Config {
	return Config{
		Underlyings: []UnderlyingConfig{DefaultUnderlying("SPX")},
		Calendar:    CalendarConfig{Zone: "America/New_York"},
		Conviction:  conviction.DefaultConfig(),
		Sizing:      sizing.DefaultConfig(),
		Risk:        risk.DefaultConfig(),
		Exits:       exits.DefaultExitConfig(),
		Execution:   execution.DefaultGuardConfig(),
	}
}

// Validate runs every component's semantic checks.
func (c Config) Validate() error {
	var errs []error
	if len(c.Underlyings) == 0 {
		errs = append(errs, errors.New("at least one underlying is required"))
	}
	seen := make(map[string]bool, len(c.Underlyings))
	for _, u := range c.Underlyings {
		if u.Name == "" {
			errs = append(errs, errors.New("underlying name is required"))
			continue
		}
		if seen[u.Name] {
			errs = append(errs, fmt.Errorf("duplicate underlying %s", u.Name))
		}
		seen[u.Name] = true
		if err := u.Regime.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("%s regime: %w", u.Name, err))
		}
		if err := u.Gates.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("%s gates: %w", u.Name, err))
		}
		if err := u.Strikes.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("%s strikes: %w", u.Name, err))
		}
		if u.Exits != nil {
			if err := u.Exits.Validate(); err != nil {
				errs = append(errs, fmt.Errorf("%s exits: %w", u.Name, err))
			}
		}
	}
	if err := c.Conviction.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("conviction: %w", err))
	}
	if err := c.Sizing.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("sizing: %w", err))
	}
	if err := c.Risk.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("risk: %w", err))
	}
	if err := c.Exits.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("exits: %w", err))
	}
	return errors.Join(errs...)
}

// Names returns the underlyings in evaluation order.
func (c Config) Names() []string {
	names := make([]string, len(c.Underlyings))
	for i, u := range c.Underlyings {
		names[i] = u.Name
	}
	return names
}
