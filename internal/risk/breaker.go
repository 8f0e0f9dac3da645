package risk

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/whatbraddidnext/optimus/internal/exits"
)

// RecordExit feeds a closed position's exit reason into the circuit breaker.
// Hard-loss exits count up; any other reason resets the streak. A breaker
// whose cooldown has passed is cleared before the exit is counted.
func (g *Governor) RecordExit(reason exits.ExitReason, asOf time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.expireBreaker(asOf)
	st := &g.state
	if reason != exits.HardLoss {
		st.ConsecutiveHardLosses = 0
		return
	}

	st.ConsecutiveHardLosses++
	if st.ConsecutiveHardLosses < g.config.BreakerCount {
		log.Warn().
			Int("consecutive", st.ConsecutiveHardLosses).
			Int("threshold", g.config.BreakerCount).
			Msg("Hard loss recorded")
		return
	}

	until := g.calendar.AddBusinessDays(asOf, g.config.BreakerCooldownDays)
	if until.Before(st.BreakerUntil) {
		until = st.BreakerUntil
	}
	st.BreakerActive = true
	st.BreakerUntil = until
	log.Warn().
		Int("consecutive", st.ConsecutiveHardLosses).
		Str("until", until.Format(time.DateOnly)).
		Msg("Circuit breaker activated")
}

// BreakerActive reports whether entries are blocked by the breaker at asOf,
// without clearing it.
func (g *Governor) BreakerActive(asOf time.Time) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.breakerBlocks(asOf)
}

func (g *Governor) breakerBlocks(asOf time.Time) bool {
	return g.state.BreakerActive && g.calendar.Date(asOf).Before(g.state.BreakerUntil)
}

// expireBreaker clears an active breaker once asOf reaches its cooldown date.
func (g *Governor) expireBreaker(asOf time.Time) {
	if g.state.BreakerActive && !g.breakerBlocks(asOf) {
		g.clearBreaker(asOf)
	}
}

// clearBreaker keeps BreakerUntil so later activations stay monotonic.
func (g *Governor) clearBreaker(asOf time.Time) {
	g.state.BreakerActive = false
	g.state.ConsecutiveHardLosses = 0
	log.Info().
		Str("as_of", asOf.Format(time.DateOnly)).
		Msg("Circuit breaker cooldown expired")
}

// EntryBlocked is the read-only check behind the risk_state gate.
func (g *Governor) EntryBlocked(asOf time.Time) (bool, string) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.breakerBlocks(asOf) {
		return true, "circuit breaker active until " + g.state.BreakerUntil.Format(time.DateOnly)
	}
	if g.state.Halt != Normal {
		return true, "portfolio in " + g.state.Halt.String()
	}
	return false, ""
}
