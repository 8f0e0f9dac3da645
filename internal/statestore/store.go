package statestore

import (
	"context"
	"sync"
	"time"

	"github.com/whatbraddidnext/optimus/internal/ledger"
	"github.com/whatbraddidnext/optimus/internal/regime"
	"github.com/whatbraddidnext/optimus/internal/risk"
)

// Store persists the mutable decision state between cycles: per-underlying
// regime hysteresis, the governor's breaker and halt state, and the book.
// Loads report found=false when nothing has been saved yet.
type Store interface {
	LoadRegime(ctx context.Context, underlying string) (regime.State, bool, error)
	SaveRegime(ctx context.Context, underlying string, state regime.State) error
	LoadGovernor(ctx context.Context) (risk.State, bool, error)
	SaveGovernor(ctx context.Context, state risk.State) error
	LoadPositions(ctx context.Context) ([]ledger.Position, bool, error)
	SavePositions(ctx context.Context, positions []ledger.Position) error
	Close() error
}

// Config selects and configures the state backend.
type Config struct {
	Backend  string        `yaml:"backend" default:"memory" validate:"oneof=memory redis"` // Default: memory
	Addr     string        `yaml:"addr" validate:"required_if=Backend redis"`              // env OPTIMUS_REDIS_ADDR
	Password string        `yaml:"password"`
	DB       int           `yaml:"db" validate:"gte=0"`
	Prefix   string        `yaml:"prefix" default:"optimus"` // Default: optimus
	TTL      time.Duration `yaml:"ttl" default:"720h"`       // Default: 30 days
	Timeout  time.Duration `yaml:"timeout" default:"3s"`     // Default: 3s
}

// DefaultConfig returns the in-process backend.
func DefaultConfig() Config {
	return Config{
		Backend: "memory",
		Prefix:  "optimus",
		TTL:     30 * 24 * time.Hour,
		Timeout: 3 * time.Second,
	}
}

// Open returns the configured backend.
func Open(ctx context.Context, config Config) (Store, error) {
	if config.Backend == "redis" {
		return NewRedis(ctx, config)
	}
	return NewMemory(), nil
}

// Memory keeps state in process. Values are copied on save and load.
type Memory struct {
	mu        sync.RWMutex
	regimes   map[string]regime.State
	governor  *risk.State
	positions []ledger.Position
}

// NewMemory returns an empty in-process store.
func NewMemory() *Memory {
	return &Memory{regimes: make(map[string]regime.State)}
}

func (m *Memory) LoadRegime(_ context.Context, underlying string) (regime.State, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.regimes[underlying]
	return s, ok, nil
}

func (m *Memory) SaveRegime(_ context.Context, underlying string, state regime.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.regimes[underlying] = state
	return nil
}

func (m *Memory) LoadGovernor(context.Context) (risk.State, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.governor == nil {
		return risk.State{}, false, nil
	}
	return *m.governor, true, nil
}

func (m *Memory) SaveGovernor(_ context.Context, state risk.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.governor = &state
	return nil
}

func (m *Memory) LoadPositions(context.Context) ([]ledger.Position, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.positions == nil {
		return nil, false, nil
	}
	return append([]ledger.Position(nil), m.positions...), true, nil
}

func (m *Memory) SavePositions(_ context.Context, positions []ledger.Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positions = append(make([]ledger.Position, 0, len(positions)), positions...)
	return nil
}

func (m *Memory) Close() error { return nil }
