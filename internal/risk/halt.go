package risk

import (
	"time"

	"github.com/rs/zerolog/log"
)

// HaltInput carries one tick's P&L. Realized is P&L booked since the previous
// tick; Unrealized is the current open P&L across the book.
type HaltInput struct {
	AsOf       time.Time
	Equity     float64
	Realized   float64
	Unrealized float64
}

// EvaluateHaltState rolls the period buckets, accumulates this tick's P&L
// change and recomputes the halt level, most severe first. A halt latches
// until its own period rolls over. An expired circuit breaker is cleared on
// the same tick.
func (g *Governor) EvaluateHaltState(in HaltInput) HaltState {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.expireBreaker(in.AsOf)
	st := &g.state
	prior := st.Halt
	periods := g.calendar.PeriodsOf(in.AsOf)

	if !st.Initialized {
		st.Periods = periods
		st.LastUnrealized = in.Unrealized
		st.Initialized = true
	}

	if periods.Month != st.Periods.Month {
		st.PnL.Month = 0
		if st.Halt == MonthHalt {
			st.Halt = Normal
		}
	}
	if periods.Week != st.Periods.Week {
		st.PnL.Week = 0
		if st.Halt == WeekHalt {
			st.Halt = Normal
		}
	}
	if periods.Day != st.Periods.Day {
		st.PnL.Day = 0
		if st.Halt == DayHalt {
			st.Halt = Normal
		}
	}
	st.Periods = periods

	delta := in.Realized + (in.Unrealized - st.LastUnrealized)
	st.LastUnrealized = in.Unrealized
	st.PnL.Day += delta
	st.PnL.Week += delta
	st.PnL.Month += delta

	if in.Equity > 0 {
		if computed := g.compute(in.Equity); computed > st.Halt {
			st.Halt = computed
		}
	} else {
		log.Warn().Float64("equity", in.Equity).Msg("Skipping halt thresholds, non-positive equity")
	}
	st.UpdatedAt = in.AsOf

	if st.Halt != prior {
		ev := log.Warn()
		if st.Halt == Normal {
			ev = log.Info()
		}
		ev.Str("from", prior.String()).
			Str("to", st.Halt.String()).
			Float64("day_pnl", st.PnL.Day).
			Float64("week_pnl", st.PnL.Week).
			Float64("month_pnl", st.PnL.Month).
			Msg("Halt state changed")
	}
	return st.Halt
}

func (g *Governor) compute(equity float64) HaltState {
	loss := func(pnl float64) float64 { return -pnl * 100 / equity }
	switch {
	case loss(g.state.PnL.Month) >= g.config.MonthHaltPct:
		return MonthHalt
	case loss(g.state.PnL.Week) >= g.config.WeekHaltPct:
		return WeekHalt
	case loss(g.state.PnL.Day) >= g.config.DayHaltPct:
		return DayHalt
	default:
		return Normal
	}
}
