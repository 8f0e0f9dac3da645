package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Step results recorded on StepDuration and Steps.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultSkipped = "skipped"
)

// Registry holds all Prometheus metrics for the decision engine.
type Registry struct {
	registry *prometheus.Registry

	// Step duration metrics
	StepDuration *prometheus.HistogramVec
	Steps        *prometheus.CounterVec
	StepErrors   *prometheus.CounterVec

	// Cycle metrics
	Cycles       *prometheus.CounterVec
	ActiveCycles prometheus.Gauge

	// Regime metrics
	RegimeSwitches *prometheus.CounterVec
	ActiveRegime   *prometheus.GaugeVec

	// Entry metrics
	GateFailures   *prometheus.CounterVec
	Signals        *prometheus.CounterVec
	EntryDecisions *prometheus.CounterVec
	Conviction     *prometheus.GaugeVec

	// Portfolio metrics
	Exits           *prometheus.CounterVec
	HaltState       prometheus.Gauge
	BreakerActive   prometheus.Gauge
	Heat            prometheus.Gauge
	PeriodPnL       *prometheus.GaugeVec
	ExecutionErrors *prometheus.CounterVec
}

// NewRegistry creates every metric and registers it on reg. A nil reg gets
// a fresh private registry.
func NewRegistry(reg *prometheus.Registry) *Registry {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Registry{
		registry: reg,

		StepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "optimus_step_duration_seconds",
				Help:    "Duration of each cycle step in seconds",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
			},
			[]string{"step", "result"},
		),

		Steps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "optimus_steps_total",
				Help: "Total number of cycle steps executed",
			},
			[]string{"step", "result"},
		),

		StepErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "optimus_step_errors_total",
				Help: "Total number of cycle step errors by step",
			},
			[]string{"step", "error_type"},
		),

		Cycles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "optimus_cycles_total",
				Help: "Total number of decision cycles by kind",
			},
			[]string{"kind"},
		),

		ActiveCycles: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "optimus_active_cycles",
				Help: "Number of decision cycles currently running",
			},
		),

		RegimeSwitches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "optimus_regime_switches_total",
				Help: "Confirmed regime transitions by underlying",
			},
			[]string{"underlying", "from", "to"},
		),

		ActiveRegime: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "optimus_active_regime",
				Help: "Current confirmed regime by underlying (enum ordinal)",
			},
			[]string{"underlying"},
		),

		GateFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "optimus_gate_failures_total",
				Help: "First failing gate per entry evaluation",
			},
			[]string{"underlying", "gate"},
		),

		Signals: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "optimus_entry_signals_total",
				Help: "Entry pipeline outcomes by underlying",
			},
			[]string{"underlying", "outcome"},
		),

		EntryDecisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "optimus_entry_decisions_total",
				Help: "Risk governor entry decisions by veto",
			},
			[]string{"underlying", "veto"},
		),

		Conviction: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "optimus_conviction_multiplier",
				Help: "Last conviction multiplier by underlying",
			},
			[]string{"underlying"},
		),

		Exits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "optimus_exits_total",
				Help: "Positions closed by exit reason",
			},
			[]string{"reason"},
		),

		HaltState: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "optimus_halt_state",
				Help: "Portfolio halt state (0=normal 1=day 2=week 3=month)",
			},
		),

		BreakerActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "optimus_circuit_breaker_active",
				Help: "1 when the consecutive-loss breaker blocks entries",
			},
		),

		Heat: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "optimus_portfolio_heat_dollars",
				Help: "Sum of max loss across open positions",
			},
		),

		PeriodPnL: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "optimus_period_pnl_dollars",
				Help: "Accumulated P&L by calendar period",
			},
			[]string{"period"},
		),

		ExecutionErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "optimus_execution_errors_total",
				Help: "Execution gateway failures by operation",
			},
			[]string{"op"},
		),
	}

	reg.MustRegister(
		m.StepDuration,
		m.Steps,
		m.StepErrors,
		m.Cycles,
		m.ActiveCycles,
		m.RegimeSwitches,
		m.ActiveRegime,
		m.GateFailures,
		m.Signals,
		m.EntryDecisions,
		m.Conviction,
		m.Exits,
		m.HaltState,
		m.BreakerActive,
		m.Heat,
		m.PeriodPnL,
		m.ExecutionErrors,
	)

	return m
}

// StepTimer tracks execution time for cycle steps
type StepTimer struct {
	metrics *Registry
	step    string
	start   time.Time
}

// StartStepTimer begins timing a cycle step
func (m *Registry) StartStepTimer(step string) *StepTimer {
	return &StepTimer{
		metrics: m,
		step:    step,
		start:   time.Now(),
	}
}

// Stop completes the step timing and records the metric
func (st *StepTimer) Stop(result string) {
	duration := time.Since(st.start)
	st.metrics.StepDuration.WithLabelValues(st.step, result).Observe(duration.Seconds())
	st.metrics.Steps.WithLabelValues(st.step, result).Inc()

	log.Debug().
		Str("step", st.step).
		Str("result", result).
		Dur("duration", duration).
		Msg("Cycle step completed")
}

// RecordStepError records a step failure
func (m *Registry) RecordStepError(step, errorType string) {
	m.StepErrors.WithLabelValues(step, errorType).Inc()
	log.Warn().
		Str("step", step).
		Str("error_type", errorType).
		Msg("Cycle step error recorded")
}

// BeginCycle increments the active and total cycle counters.
func (m *Registry) BeginCycle(kind string) {
	m.ActiveCycles.Inc()
	m.Cycles.WithLabelValues(kind).Inc()
}

// EndCycle decrements the active cycle gauge.
func (m *Registry) EndCycle() {
	m.ActiveCycles.Dec()
}

// RecordRegime sets the active regime and counts confirmed transitions.
func (m *Registry) RecordRegime(underlying, from, to string, ordinal int, changed bool) {
	m.ActiveRegime.WithLabelValues(underlying).Set(float64(ordinal))
	if changed {
		m.RegimeSwitches.WithLabelValues(underlying, from, to).Inc()
	}
}

// RecordSignal counts a pipeline outcome; failedGate is empty when every
// gate passed.
func (m *Registry) RecordSignal(underlying string, triggered bool, failedGate string) {
	if triggered {
		m.Signals.WithLabelValues(underlying, "triggered").Inc()
		return
	}
	m.Signals.WithLabelValues(underlying, "blocked").Inc()
	if failedGate != "" {
		m.GateFailures.WithLabelValues(underlying, failedGate).Inc()
	}
}

func (m *Registry) RecordConviction(underlying string, multiplier float64) {
	m.Conviction.WithLabelValues(underlying).Set(multiplier)
}

func (m *Registry) RecordEntryDecision(underlying, veto string) {
	m.EntryDecisions.WithLabelValues(underlying, veto).Inc()
}

func (m *Registry) RecordExit(reason string) {
	m.Exits.WithLabelValues(reason).Inc()
}

func (m *Registry) RecordExecutionError(op string) {
	m.ExecutionErrors.WithLabelValues(op).Inc()
}

// RecordPortfolio publishes the governor snapshot.
func (m *Registry) RecordPortfolio(halt int, breaker bool, heat, day, week, month float64) {
	m.HaltState.Set(float64(halt))
	if breaker {
		m.BreakerActive.Set(1)
	} else {
		m.BreakerActive.Set(0)
	}
	m.Heat.Set(heat)
	m.PeriodPnL.WithLabelValues("day").Set(day)
	m.PeriodPnL.WithLabelValues("week").Set(week)
	m.PeriodPnL.WithLabelValues("month").Set(month)
}

// Gatherer exposes the underlying registry.
func (m *Registry) Gatherer() prometheus.Gatherer {
	return m.registry
}

// Handler returns an HTTP handler for Prometheus metrics
func (m *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
