package regime

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/whatbraddidnext/optimus/internal/market"
)

// State is the hysteresis memory for one underlying.
type State struct {
	Current       Regime         `json:"current"`
	Previous      Regime         `json:"previous"`
	Pending       Regime         `json:"pending"`
	ConfirmCount  int            `json:"confirm_count"`
	RecoveryCount int            `json:"recovery_count"`
	LastRefVol    market.Reading `json:"last_ref_vol"`
}

func (s *State) clearPending() {
	s.Pending = None
	s.ConfirmCount = 0
}

// Result is the per-cycle output of Tracker.Update.
type Result struct {
	Underlying           string          `json:"underlying"`
	Current              Regime          `json:"current"`
	Previous             Regime          `json:"previous"`
	Raw                  Classification  `json:"raw"`
	Changed              bool            `json:"changed"`
	Tradeable            bool            `json:"tradeable"`
	AllocationMultiplier float64         `json:"allocation_multiplier"`
	Pending              Regime          `json:"pending"`
	ConfirmCount         int             `json:"confirm_count"`
	RecoveryCount        int             `json:"recovery_count"`
	Snapshot             market.Snapshot `json:"snapshot"`
}

// Tracker owns the regime state of one underlying and applies hysteresis on
// top of raw classification.
type Tracker struct {
	underlying string
	config     Config
	sets       compiled
	classifier *Classifier
	state      State
}

// NewTracker validates the config and returns a tracker with empty state.
func NewTracker(underlying string, config Config) (*Tracker, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("regime config for %s: %w", underlying, err)
	}
	sets, err := config.compile()
	if err != nil {
		return nil, fmt.Errorf("regime config for %s: %w", underlying, err)
	}
	return &Tracker{
		underlying: underlying,
		config:     config,
		sets:       sets,
		classifier: NewClassifier(config),
	}, nil
}

// Update classifies the snapshot and advances the hysteresis state machine.
func (t *Tracker) Update(s market.Snapshot) Result {
	raw := t.classifier.Classify(s)
	ref := t.classifier.referenceVol(s)
	st := &t.state
	prior := st.Current

	switch {
	case prior == None:
		st.Current = raw.Regime
		st.clearPending()
		st.RecoveryCount = 0

	case raw.Regime == Crisis:
		st.Current = Crisis
		st.clearPending()
		st.RecoveryCount = 0

	case raw.Regime == st.Current:
		st.clearPending()
		st.RecoveryCount = 0

	case t.sets.caution.has(st.Current) && t.sets.permissive.has(raw.Regime):
		st.clearPending()
		if ref.Valid && st.LastRefVol.Valid && ref.Value < st.LastRefVol.Value {
			st.RecoveryCount++
		} else {
			st.RecoveryCount = 0
		}
		if st.RecoveryCount >= t.config.RecoveryCycles {
			st.Current = raw.Regime
			st.RecoveryCount = 0
		}

	default:
		st.RecoveryCount = 0
		if raw.Regime == st.Pending {
			st.ConfirmCount++
		} else {
			st.Pending = raw.Regime
			st.ConfirmCount = 1
		}
		if st.ConfirmCount >= t.config.ConfirmationCycles {
			st.Current = raw.Regime
			st.clearPending()
		}
	}

	st.Previous = prior
	st.LastRefVol = ref

	res := Result{
		Underlying:           t.underlying,
		Current:              st.Current,
		Previous:             prior,
		Raw:                  raw,
		Changed:              prior != None && prior != st.Current,
		Tradeable:            t.sets.tradeable.has(st.Current),
		AllocationMultiplier: t.sets.allocation[st.Current],
		Pending:              st.Pending,
		ConfirmCount:         st.ConfirmCount,
		RecoveryCount:        st.RecoveryCount,
		Snapshot:             s,
	}

	if res.Changed {
		log.Info().
			Str("underlying", t.underlying).
			Str("from", prior.String()).
			Str("to", st.Current.String()).
			Str("rule", string(raw.Rule)).
			Bool("tradeable", res.Tradeable).
			Msg("Regime changed")
	} else {
		log.Debug().
			Str("underlying", t.underlying).
			Str("current", st.Current.String()).
			Str("raw", raw.Regime.String()).
			Int("confirm", st.ConfirmCount).
			Int("recovery", st.RecoveryCount).
			Msg("Regime evaluated")
	}
	return res
}

// Tradeable reports whether the current regime is in the tradeable set.
func (t *Tracker) Tradeable() bool {
	return t.sets.tradeable.has(t.state.Current)
}

// IsTradeable reports whether r is in the tradeable set.
func (t *Tracker) IsTradeable(r Regime) bool {
	return t.sets.tradeable.has(r)
}

// Underlying returns the instrument this tracker belongs to.
func (t *Tracker) Underlying() string {
	return t.underlying
}

// State returns a copy of the hysteresis state.
func (t *Tracker) State() State {
	return t.state
}

// Restore replaces the hysteresis state, e.g. after a process restart.
func (t *Tracker) Restore(s State) {
	t.state = s
}
