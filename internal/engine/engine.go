package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/whatbraddidnext/optimus/internal/calendar"
	"github.com/whatbraddidnext/optimus/internal/conviction"
	"github.com/whatbraddidnext/optimus/internal/execution"
	"github.com/whatbraddidnext/optimus/internal/exits"
	"github.com/whatbraddidnext/optimus/internal/gates"
	"github.com/whatbraddidnext/optimus/internal/ledger"
	"github.com/whatbraddidnext/optimus/internal/metrics"
	"github.com/whatbraddidnext/optimus/internal/regime"
	"github.com/whatbraddidnext/optimus/internal/risk"
	"github.com/whatbraddidnext/optimus/internal/sizing"
	"github.com/whatbraddidnext/optimus/internal/statestore"
	"github.com/whatbraddidnext/optimus/internal/strikes"
)

// Cycle step names used for timing and error attribution.
const (
	StepRegime     = "regime"
	StepGates      = "gates"
	StepConviction = "conviction"
	StepSizing     = "sizing"
	StepApprove    = "approve"
	StepExecute    = "execute"
	StepMark       = "mark"
	StepExits      = "exits"
	StepHalt       = "halt"
	StepAudit      = "audit"
	StepPersist    = "persist"
)

// underlying bundles the per-underlying state machines.
type underlying struct {
	name     string
	tracker  *regime.Tracker
	pipeline *gates.Pipeline
	strikes  strikes.Config
}

// Engine runs scan and management cycles over a fixed, ordered list of
// underlyings. Cycles are serialised: the governor state is shared across
// underlyings and must see every mutation in order.
type Engine struct {
	mu sync.Mutex

	config      Config
	underlyings []*underlying
	calendar    *calendar.Calendar
	scorer      *conviction.Scorer
	sizer       *sizing.Sizer
	governor    *risk.Governor
	book        ledger.Book
	gateway     execution.Gateway

	metrics *metrics.Registry
	auditor Auditor
	store   statestore.Store

	// regime transitions seen since the last management tick
	pendingRegimes []regime.Result
}

// Option customises an Engine.
type Option func(*Engine)

// WithMetrics records step timings and decisions on m.
func WithMetrics(m *metrics.Registry) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithAuditor emits every decision to a.
func WithAuditor(a Auditor) Option {
	return func(e *Engine) { e.auditor = a }
}

// WithStore persists regime and governor state after every cycle.
func WithStore(s statestore.Store) Option {
	return func(e *Engine) { e.store = s }
}

// New validates the config and builds every component.
func New(config Config, book ledger.Book, gateway execution.Gateway, opts ...Option) (*Engine, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("engine config: %w", err)
	}
	if book == nil || gateway == nil {
		return nil, fmt.Errorf("engine requires a ledger and an execution gateway")
	}

	cal, err := calendar.New(config.Calendar.Zone, config.Calendar.Holidays)
	if err != nil {
		return nil, fmt.Errorf("engine calendar: %w", err)
	}

	sizer, err := sizing.NewSizer(config.Sizing)
	if err != nil {
		return nil, err
	}

	perUnderlying := make(map[string]exits.ExitConfig)
	e := &Engine{
		config:   config,
		calendar: cal,
		scorer:   conviction.NewScorer(config.Conviction),
		sizer:    sizer,
		book:     book,
		gateway:  gateway,
		auditor:  NopAuditor{},
	}

	for _, uc := range config.Underlyings {
		tracker, err := regime.NewTracker(uc.Name, uc.Regime)
		if err != nil {
			return nil, err
		}
		pipeline, err := gates.NewPipeline(uc.Gates)
		if err != nil {
			return nil, fmt.Errorf("gates for %s: %w", uc.Name, err)
		}
		if uc.Exits != nil {
			perUnderlying[uc.Name] = *uc.Exits
		}
		e.underlyings = append(e.underlyings, &underlying{name: uc.Name, tracker: tracker, pipeline: pipeline, strikes: uc.Strikes})
	}

	e.governor, err = risk.NewGovernor(config.Risk, cal, config.Exits, perUnderlying)
	if err != nil {
		return nil, err
	}

	for _, opt := range opts {
		opt(e)
	}
	if e.metrics == nil {
		e.metrics = metrics.NewRegistry(nil)
	}
	if e.auditor == nil {
		e.auditor = NopAuditor{}
	}

	log.Info().
		Strs("underlyings", config.Names()).
		Str("zone", cal.Location().String()).
		Msg("Decision engine initialized")

	return e, nil
}

// Restore loads regime and governor state from the store, if one is set.
func (e *Engine) Restore(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.store == nil {
		return nil
	}
	for _, u := range e.underlyings {
		s, found, err := e.store.LoadRegime(ctx, u.name)
		if err != nil {
			return fmt.Errorf("restore regime %s: %w", u.name, err)
		}
		if found {
			u.tracker.Restore(s)
		}
	}
	gs, found, err := e.store.LoadGovernor(ctx)
	if err != nil {
		return fmt.Errorf("restore governor: %w", err)
	}
	if found {
		e.governor.Restore(gs)
	}
	log.Info().Bool("governor_found", found).Msg("Decision state restored")
	return nil
}

// Governor exposes the risk governor for read-only status reporting.
func (e *Engine) Governor() *risk.Governor {
	return e.governor
}

// Status is the monitor's view of the engine.
type Status struct {
	AsOf        time.Time               `json:"as_of"`
	Governor    risk.State              `json:"governor"`
	Regimes     map[string]regime.State `json:"regimes"`
	Underlyings []string                `json:"underlyings"`
	OpenCount   int                     `json:"open_positions"`
	Heat        float64                 `json:"heat"`
	Exposure    float64                 `json:"directional_exposure"`
}

// Status snapshots the engine state at the current wall-clock time.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	regimes := make(map[string]regime.State, len(e.underlyings))
	for _, u := range e.underlyings {
		regimes[u.name] = u.tracker.State()
	}
	asOf := time.Now().UTC()
	governor := e.governor.Snapshot()
	// a breaker past its cooldown reads as inactive before the next tick clears it
	governor.BreakerActive = e.governor.BreakerActive(asOf)
	return Status{
		AsOf:        asOf,
		Governor:    governor,
		Regimes:     regimes,
		Underlyings: e.config.Names(),
		OpenCount:   e.book.OpenCount(),
		Heat:        e.book.Heat(),
		Exposure:    e.book.DirectionalExposure(),
	}
}

// allPositions is implemented by books that can enumerate closed positions.
type allPositions interface {
	All() []ledger.Position
}

// persist saves regime and governor state and, when the book supports it,
// every position.
func (e *Engine) persist(ctx context.Context) error {
	if e.store == nil {
		return nil
	}
	timer := e.metrics.StartStepTimer(StepPersist)
	for _, u := range e.underlyings {
		if err := e.store.SaveRegime(ctx, u.name, u.tracker.State()); err != nil {
			timer.Stop(metrics.ResultError)
			return fmt.Errorf("persist regime %s: %w", u.name, err)
		}
	}
	if err := e.store.SaveGovernor(ctx, e.governor.Snapshot()); err != nil {
		timer.Stop(metrics.ResultError)
		return fmt.Errorf("persist governor: %w", err)
	}
	if b, ok := e.book.(allPositions); ok {
		if err := e.store.SavePositions(ctx, b.All()); err != nil {
			timer.Stop(metrics.ResultError)
			return fmt.Errorf("persist positions: %w", err)
		}
	}
	timer.Stop(metrics.ResultSuccess)
	return nil
}

// publishPortfolio mirrors the governor and book onto the gauges.
func (e *Engine) publishPortfolio(asOf time.Time) {
	st := e.governor.Snapshot()
	e.metrics.RecordPortfolio(int(st.Halt), e.governor.BreakerActive(asOf), e.book.Heat(),
		st.PnL.Day, st.PnL.Week, st.PnL.Month)
}

// CycleError is a non-fatal failure recorded in a cycle report.
type CycleError struct {
	Step       string `json:"step"`
	Underlying string `json:"underlying,omitempty"`
	Message    string `json:"message"`
}

func (e *Engine) recordError(errs *[]CycleError, step, underlying string, err error) {
	e.metrics.RecordStepError(step, "execution_error")
	*errs = append(*errs, CycleError{Step: step, Underlying: underlying, Message: err.Error()})
	log.Error().
		Str("step", step).
		Str("underlying", underlying).
		Err(err).
		Msg("Cycle step failed")
}
