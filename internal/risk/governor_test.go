package risk

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whatbraddidnext/optimus/internal/calendar"
	"github.com/whatbraddidnext/optimus/internal/exits"
	"github.com/whatbraddidnext/optimus/internal/ledger"
	"github.com/whatbraddidnext/optimus/internal/market"
	"github.com/whatbraddidnext/optimus/internal/regime"
	"github.com/whatbraddidnext/optimus/internal/sizing"
)

// Tuesday
var tuesday = time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)

type fixedRegime bool

func (f fixedRegime) Tradeable() bool { return bool(f) }

func newGovernor(t *testing.T) *Governor {
	t.Helper()
	g, err := NewGovernor(DefaultConfig(), calendar.UTC(), exits.DefaultExitConfig(), nil)
	require.NoError(t, err)
	return g
}

func entry(asOf time.Time, book ledger.View, totalMaxLoss float64) EntryRequest {
	return EntryRequest{
		Underlying: "SPX",
		AsOf:       asOf,
		Equity:     100000,
		Sizing:     sizing.Decision{Contracts: 1, TotalMaxLoss: totalMaxLoss},
		Ledger:     book,
		Regime:     fixedRegime(true),
	}
}

func TestApproveEntry_CircuitBreakerScenario(t *testing.T) {
	g := newGovernor(t)
	book := ledger.NewMemory()

	for i := 0; i < 3; i++ {
		g.RecordExit(exits.HardLoss, tuesday)
	}

	d := g.ApproveEntry(entry(tuesday.Add(time.Hour), book, 1500))
	assert.False(t, d.Approved)
	assert.Equal(t, CircuitBreakerVeto, d.Veto)
	assert.Contains(t, d.Reason, "circuit breaker")
	assert.Equal(t, 3, d.ConsecutiveHardLosses)

	// five business days later is Tuesday the 17th
	until := time.Date(2026, 3, 17, 0, 0, 0, 0, time.UTC)
	assert.True(t, d.BreakerUntil.Equal(until))

	blocked, reason := g.EntryBlocked(time.Date(2026, 3, 16, 20, 0, 0, 0, time.UTC))
	assert.True(t, blocked)
	assert.Contains(t, reason, "circuit breaker")

	d = g.ApproveEntry(entry(time.Date(2026, 3, 16, 20, 0, 0, 0, time.UTC), book, 1500))
	assert.Equal(t, CircuitBreakerVeto, d.Veto)

	d = g.ApproveEntry(entry(time.Date(2026, 3, 17, 9, 30, 0, 0, time.UTC), book, 1500))
	assert.True(t, d.Approved)
	assert.Equal(t, Approved, d.Veto)

	st := g.Snapshot()
	assert.False(t, st.BreakerActive)
	assert.Zero(t, st.ConsecutiveHardLosses)
}

func TestRecordExit_StreakResets(t *testing.T) {
	g := newGovernor(t)
	g.RecordExit(exits.HardLoss, tuesday)
	g.RecordExit(exits.HardLoss, tuesday)
	g.RecordExit(exits.ProfitTarget, tuesday)
	g.RecordExit(exits.HardLoss, tuesday)

	st := g.Snapshot()
	assert.False(t, st.BreakerActive)
	assert.Equal(t, 1, st.ConsecutiveHardLosses)
	assert.False(t, g.BreakerActive(tuesday))
}

func TestRecordExit_CooldownIsMonotonic(t *testing.T) {
	g := newGovernor(t)
	later := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	g.Restore(State{BreakerActive: true, BreakerUntil: later, ConsecutiveHardLosses: 3})

	g.RecordExit(exits.HardLoss, tuesday)
	st := g.Snapshot()
	assert.True(t, st.BreakerUntil.Equal(later))
	assert.Equal(t, 4, st.ConsecutiveHardLosses)
}

func TestRecordExit_HardLossAfterCooldownStartsNewStreak(t *testing.T) {
	g := newGovernor(t)
	for i := 0; i < 3; i++ {
		g.RecordExit(exits.HardLoss, tuesday)
	}
	require.True(t, g.BreakerActive(tuesday))

	// cooldown ends on the 17th; no entry is attempted before the next loss
	wednesday := time.Date(2026, 3, 18, 15, 0, 0, 0, time.UTC)
	blocked, _ := g.EntryBlocked(wednesday)
	assert.False(t, blocked)

	g.RecordExit(exits.HardLoss, wednesday)
	st := g.Snapshot()
	assert.False(t, st.BreakerActive)
	assert.Equal(t, 1, st.ConsecutiveHardLosses)

	blocked, _ = g.EntryBlocked(wednesday)
	assert.False(t, blocked)
	d := g.ApproveEntry(entry(wednesday, ledger.NewMemory(), 1500))
	assert.True(t, d.Approved, d.Reason)

	// the breaker needs a full new streak to re-arm
	g.RecordExit(exits.HardLoss, wednesday)
	assert.False(t, g.BreakerActive(wednesday))
	g.RecordExit(exits.HardLoss, wednesday)
	assert.True(t, g.BreakerActive(wednesday))
	assert.Equal(t, 3, g.Snapshot().ConsecutiveHardLosses)
}

func TestEvaluateHaltState_ClearsExpiredBreaker(t *testing.T) {
	g := newGovernor(t)
	for i := 0; i < 3; i++ {
		g.RecordExit(exits.HardLoss, tuesday)
	}

	g.EvaluateHaltState(HaltInput{AsOf: time.Date(2026, 3, 16, 20, 0, 0, 0, time.UTC), Equity: 100000})
	assert.True(t, g.Snapshot().BreakerActive)

	g.EvaluateHaltState(HaltInput{AsOf: time.Date(2026, 3, 17, 9, 30, 0, 0, time.UTC), Equity: 100000})
	st := g.Snapshot()
	assert.False(t, st.BreakerActive)
	assert.Zero(t, st.ConsecutiveHardLosses)
}

func TestApproveEntry_Vetoes(t *testing.T) {
	g := newGovernor(t)

	t.Run("heat at the ceiling passes", func(t *testing.T) {
		book := ledger.NewMemory(ledger.Position{Underlying: "SPX", Contracts: 9, MaxLoss: 13500})
		d := g.ApproveEntry(entry(tuesday, book, 1500))
		assert.True(t, d.Approved)
		assert.Equal(t, 15.0, d.ProjectedHeat)
	})

	t.Run("heat above the ceiling is vetoed", func(t *testing.T) {
		book := ledger.NewMemory(ledger.Position{Underlying: "SPX", Contracts: 9, MaxLoss: 13500})
		d := g.ApproveEntry(entry(tuesday, book, 1501))
		assert.False(t, d.Approved)
		assert.Equal(t, HeatCeilingVeto, d.Veto)
		assert.Contains(t, d.Reason, "heat")
	})

	t.Run("zero contracts", func(t *testing.T) {
		req := entry(tuesday, ledger.NewMemory(), 0)
		req.Sizing = sizing.Decision{Reason: "budget $100.00 below one contract at $1500.00"}
		d := g.ApproveEntry(req)
		assert.Equal(t, NoContractsVeto, d.Veto)
		assert.Contains(t, d.Reason, "budget")
	})

	t.Run("directional exposure", func(t *testing.T) {
		book := ledger.NewMemory(
			ledger.Position{Underlying: "SPX", Contracts: 1, MaxLoss: 1000, Delta: -0.35},
			ledger.Position{Underlying: "NDX", Contracts: 1, MaxLoss: 1000, Delta: -0.30},
		)
		d := g.ApproveEntry(entry(tuesday, book, 1000))
		assert.Equal(t, DirectionalExposureVeto, d.Veto)
	})

	t.Run("regime re-check", func(t *testing.T) {
		req := entry(tuesday, ledger.NewMemory(), 1000)
		req.Regime = fixedRegime(false)
		d := g.ApproveEntry(req)
		assert.Equal(t, RegimeNotTradeableVeto, d.Veto)
	})

	t.Run("non-positive equity", func(t *testing.T) {
		req := entry(tuesday, ledger.NewMemory(), 1000)
		req.Equity = 0
		d := g.ApproveEntry(req)
		assert.Equal(t, HeatCeilingVeto, d.Veto)
	})

	t.Run("breaker outranks every other veto", func(t *testing.T) {
		g := newGovernor(t)
		for i := 0; i < 3; i++ {
			g.RecordExit(exits.HardLoss, tuesday)
		}
		req := entry(tuesday, ledger.NewMemory(), 0)
		req.Sizing = sizing.Decision{}
		req.Regime = fixedRegime(false)
		assert.Equal(t, CircuitBreakerVeto, g.ApproveEntry(req).Veto)
	})
}

func TestEvaluateHaltState(t *testing.T) {
	t.Run("simultaneous breaches resolve to month halt", func(t *testing.T) {
		g := newGovernor(t)
		state := g.EvaluateHaltState(HaltInput{AsOf: tuesday, Equity: 100000, Realized: -9000})
		assert.Equal(t, MonthHalt, state)

		blocked, reason := g.EntryBlocked(tuesday)
		assert.True(t, blocked)
		assert.Contains(t, reason, "MONTH_HALT")
	})

	t.Run("day halt latches until the day rolls", func(t *testing.T) {
		g := newGovernor(t)
		assert.Equal(t, Normal, g.EvaluateHaltState(HaltInput{AsOf: tuesday, Equity: 100000}))
		assert.Equal(t, DayHalt, g.EvaluateHaltState(HaltInput{AsOf: tuesday.Add(time.Hour), Equity: 100000, Unrealized: -2000}))
		assert.Equal(t, DayHalt, g.EvaluateHaltState(HaltInput{AsOf: tuesday.Add(2 * time.Hour), Equity: 100000, Unrealized: -500}))

		next := tuesday.AddDate(0, 0, 1)
		assert.Equal(t, Normal, g.EvaluateHaltState(HaltInput{AsOf: next, Equity: 100000, Unrealized: -500}))
		st := g.Snapshot()
		assert.Zero(t, st.PnL.Day)
		assert.Equal(t, -500.0, st.PnL.Week)
	})

	t.Run("week halt survives the day rollover", func(t *testing.T) {
		g := newGovernor(t)
		monday := time.Date(2026, 3, 9, 15, 0, 0, 0, time.UTC)
		assert.Equal(t, DayHalt, g.EvaluateHaltState(HaltInput{AsOf: monday, Equity: 100000, Realized: -2500}))
		assert.Equal(t, WeekHalt, g.EvaluateHaltState(HaltInput{AsOf: tuesday, Equity: 100000, Realized: -2000}))

		wednesday := tuesday.AddDate(0, 0, 1)
		assert.Equal(t, WeekHalt, g.EvaluateHaltState(HaltInput{AsOf: wednesday, Equity: 100000}))

		nextMonday := monday.AddDate(0, 0, 7)
		assert.Equal(t, Normal, g.EvaluateHaltState(HaltInput{AsOf: nextMonday, Equity: 100000}))
		assert.Equal(t, -4500.0, g.Snapshot().PnL.Month)
	})

	t.Run("month rollover clears month halt", func(t *testing.T) {
		g := newGovernor(t)
		assert.Equal(t, MonthHalt, g.EvaluateHaltState(HaltInput{AsOf: tuesday, Equity: 100000, Realized: -8000}))
		april := time.Date(2026, 4, 1, 15, 0, 0, 0, time.UTC)
		assert.Equal(t, Normal, g.EvaluateHaltState(HaltInput{AsOf: april, Equity: 100000}))
	})

	t.Run("gains never halt", func(t *testing.T) {
		g := newGovernor(t)
		assert.Equal(t, Normal, g.EvaluateHaltState(HaltInput{AsOf: tuesday, Equity: 100000, Realized: 20000}))
	})
}

func TestEvaluateExits(t *testing.T) {
	positions := []ledger.Position{
		{ID: "a", Underlying: "SPX", EntryCredit: 500, MaxLoss: 2000, Mark: 200, DTE: 40},
		{ID: "b", Underlying: "SPX", EntryCredit: 500, MaxLoss: 2000, Mark: 450, DTE: 40},
		{ID: "c", Underlying: "NDX", EntryCredit: 500, MaxLoss: 2000, Mark: 280, DTE: 40},
		{ID: "d", Underlying: "NDX", EntryCredit: 500, MaxLoss: 2000, Mark: 100, DTE: 40, Status: ledger.Closed},
	}

	t.Run("per position", func(t *testing.T) {
		g := newGovernor(t)
		out := g.EvaluateExits(ExitRequest{AsOf: tuesday, Positions: positions})
		require.Len(t, out, 1)
		assert.Equal(t, "a", out[0].PositionID)
		assert.Equal(t, exits.ProfitTarget, out[0].ExitReason)
	})

	t.Run("partial halt tightens targets", func(t *testing.T) {
		g := newGovernor(t)
		g.Restore(State{Halt: WeekHalt, Initialized: true})
		out := g.EvaluateExits(ExitRequest{AsOf: tuesday, Positions: positions})
		require.Len(t, out, 2)
		assert.Equal(t, "c", out[1].PositionID)
		assert.Equal(t, exits.ProfitTarget, out[1].ExitReason)
	})

	t.Run("month halt forces the rest closed", func(t *testing.T) {
		g := newGovernor(t)
		g.Restore(State{Halt: MonthHalt, Initialized: true})
		out := g.EvaluateExits(ExitRequest{AsOf: tuesday, Positions: positions})
		require.Len(t, out, 3)
		assert.Equal(t, exits.ProfitTarget, out[0].ExitReason)
		assert.Equal(t, exits.ForcedClose, out[1].ExitReason)
		assert.Equal(t, exits.ForcedClose, out[2].ExitReason)
	})

	t.Run("regime shift closes the book", func(t *testing.T) {
		g := newGovernor(t)
		shift := regime.Result{Underlying: "NDX", Previous: regime.Calm, Current: regime.Crisis, Changed: true}
		steady := regime.Result{Underlying: "SPX", Previous: regime.Calm, Current: regime.Calm, Tradeable: true}
		out := g.EvaluateExits(ExitRequest{AsOf: tuesday, Positions: positions, Regimes: []regime.Result{steady, shift}})
		require.Len(t, out, 3)
		for _, r := range out {
			assert.Equal(t, exits.RegimeShift, r.ExitReason)
			assert.Contains(t, r.TriggeredBy, "crisis")
		}
	})

	t.Run("catastrophic uses the underlying's snapshot", func(t *testing.T) {
		g := newGovernor(t)
		snaps := map[string]market.Snapshot{
			"NDX": {Price: market.Of(17000), SessionOpen: market.Of(18000), ATR: market.Of(250)},
		}
		out := g.EvaluateExits(ExitRequest{AsOf: tuesday, Positions: positions, Snapshots: snaps})
		require.Len(t, out, 2)
		assert.Equal(t, exits.Catastrophic, out[1].ExitReason)
		assert.Equal(t, "c", out[1].PositionID)
	})

	t.Run("per-underlying rules", func(t *testing.T) {
		strict := exits.DefaultExitConfig()
		strict.ProfitTargetPct, strict.TightenedTargetPct = 10, 10
		g, err := NewGovernor(DefaultConfig(), calendar.UTC(), exits.DefaultExitConfig(), map[string]exits.ExitConfig{"SPX": strict})
		require.NoError(t, err)
		out := g.EvaluateExits(ExitRequest{AsOf: tuesday, Positions: positions})
		require.Len(t, out, 2)
		assert.Equal(t, "b", out[1].PositionID)
	})
}

func TestState_JSONRoundTrip(t *testing.T) {
	g := newGovernor(t)
	for i := 0; i < 3; i++ {
		g.RecordExit(exits.HardLoss, tuesday)
	}
	g.EvaluateHaltState(HaltInput{AsOf: tuesday, Equity: 100000, Realized: -2500})

	raw, err := json.Marshal(g.Snapshot())
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"halt":"DAY_HALT"`)

	var restored State
	require.NoError(t, json.Unmarshal(raw, &restored))
	other := newGovernor(t)
	other.Restore(restored)

	assert.Equal(t, DayHalt, other.HaltState())
	assert.True(t, other.BreakerActive(tuesday))
	assert.Equal(t, g.Snapshot().PnL, other.Snapshot().PnL)
}

func TestConfig_Validate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.WeekHaltPct = 1
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.BreakerCount = 0
	_, err := NewGovernor(cfg, nil, exits.DefaultExitConfig(), nil)
	assert.Error(t, err)
}
