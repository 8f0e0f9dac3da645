package regime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whatbraddidnext/optimus/internal/market"
)

func volSnap(vol, realizedLong float64) market.Snapshot {
	return market.Snapshot{
		Underlying:      "SPX",
		VolLevel:        market.Of(vol),
		RealizedVolLong: market.Of(realizedLong),
	}
}

const (
	calmVol   = 14
	highVol   = 27
	crisisVol = 40
)

func newTracker(t *testing.T) *Tracker {
	t.Helper()
	tr, err := NewTracker("SPX", DefaultConfig())
	require.NoError(t, err)
	return tr
}

func TestTracker_ConfirmationScenario(t *testing.T) {
	tr := newTracker(t)

	r1 := tr.Update(volSnap(calmVol, 12))
	assert.Equal(t, Calm, r1.Current)
	assert.False(t, r1.Changed)

	r2 := tr.Update(volSnap(highVol, 12))
	assert.Equal(t, HighVol, r2.Raw.Regime)
	assert.Equal(t, Calm, r2.Current, "one confirming cycle is not enough")
	assert.Equal(t, HighVol, r2.Pending)
	assert.Equal(t, 1, r2.ConfirmCount)

	r3 := tr.Update(volSnap(highVol, 12))
	assert.Equal(t, HighVol, r3.Current)
	assert.Equal(t, Calm, r3.Previous)
	assert.True(t, r3.Changed)
	assert.Equal(t, None, r3.Pending)
	assert.Equal(t, 0, r3.ConfirmCount)
	assert.True(t, r3.Tradeable)
	assert.Equal(t, 0.625, r3.AllocationMultiplier)
}

func TestTracker_DisagreeingCycleResetsCandidate(t *testing.T) {
	tr := newTracker(t)
	tr.Update(volSnap(calmVol, 12))

	r := tr.Update(volSnap(highVol, 12))
	assert.Equal(t, 1, r.ConfirmCount)

	// Elevated (vol 20) disagrees with the HighVol candidate.
	r = tr.Update(volSnap(20, 12))
	assert.Equal(t, Calm, r.Current)
	assert.Equal(t, ElevatedVol, r.Pending)
	assert.Equal(t, 1, r.ConfirmCount)

	r = tr.Update(volSnap(highVol, 12))
	assert.Equal(t, Calm, r.Current)
	assert.Equal(t, HighVol, r.Pending)
	assert.Equal(t, 1, r.ConfirmCount)

	// Back to stable clears everything.
	r = tr.Update(volSnap(calmVol, 12))
	assert.Equal(t, None, r.Pending)
	assert.Equal(t, 0, r.ConfirmCount)
}

func TestTracker_CrisisIsImmediate(t *testing.T) {
	tr := newTracker(t)
	tr.Update(volSnap(calmVol, 12))
	tr.Update(volSnap(highVol, 12)) // pending HighVol

	r := tr.Update(volSnap(crisisVol, 12))
	assert.Equal(t, Crisis, r.Current)
	assert.True(t, r.Changed)
	assert.False(t, r.Tradeable)
	assert.Equal(t, 0.0, r.AllocationMultiplier)
	assert.Equal(t, None, r.Pending)
	assert.Equal(t, 0, r.ConfirmCount)
	assert.Equal(t, 0, r.RecoveryCount)

	t.Run("backwardation alone", func(t *testing.T) {
		tr := newTracker(t)
		tr.Update(volSnap(calmVol, 12))
		s := volSnap(calmVol, 12)
		s.TermRatio = market.Of(1.12)
		r := tr.Update(s)
		assert.Equal(t, Crisis, r.Current)
		assert.Equal(t, RuleBackwardation, r.Raw.Rule)
	})
}

func TestTracker_RecoveryRule(t *testing.T) {
	tr := newTracker(t)
	tr.Update(volSnap(calmVol, 20))
	tr.Update(volSnap(highVol, 20))
	r := tr.Update(volSnap(highVol, 20))
	require.Equal(t, HighVol, r.Current)

	steps := []struct {
		rv       float64
		recovery int
		current  Regime
	}{
		{19, 1, HighVol},
		{18, 2, HighVol},
		{18, 0, HighVol}, // flat is not a decline
		{17, 1, HighVol},
		{16, 2, HighVol},
		{15, 0, Calm}, // third decline switches and resets tracking
	}
	for i, step := range steps {
		r = tr.Update(volSnap(calmVol, step.rv))
		assert.Equal(t, step.current, r.Current, "step %d", i)
		assert.Equal(t, step.recovery, r.RecoveryCount, "step %d", i)
		assert.Equal(t, 0, r.ConfirmCount, "step %d", i)
	}
	assert.True(t, r.Changed)
	assert.Equal(t, HighVol, r.Previous)
}

func TestTracker_RecoveryNeedsReading(t *testing.T) {
	tr := newTracker(t)
	tr.Update(volSnap(calmVol, 20))
	tr.Update(volSnap(highVol, 20))
	tr.Update(volSnap(highVol, 20))

	r := tr.Update(volSnap(calmVol, 19))
	assert.Equal(t, 1, r.RecoveryCount)

	missing := volSnap(calmVol, 0)
	missing.RealizedVolLong = market.Unavailable()
	r = tr.Update(missing)
	assert.Equal(t, 0, r.RecoveryCount)

	// The previous reading was unavailable, so the next decline cannot count.
	r = tr.Update(volSnap(calmVol, 18))
	assert.Equal(t, 0, r.RecoveryCount)
}

func TestTracker_VolLevelRecoveryMeasure(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RecoveryMeasure = RecoveryVolLevel
	cfg.RecoveryCycles = 3
	tr, err := NewTracker("SPX", cfg)
	require.NoError(t, err)

	tr.Update(volSnap(highVol, 10))
	for _, v := range []float64{17, 16, 15} {
		tr.Update(volSnap(v, 10))
	}
	assert.Equal(t, Calm, tr.State().Current)
}

func TestTracker_RestoreState(t *testing.T) {
	tr := newTracker(t)
	tr.Restore(State{Current: HighVol, Previous: Calm, LastRefVol: market.Of(20)})

	r := tr.Update(volSnap(calmVol, 19))
	assert.Equal(t, HighVol, r.Current)
	assert.Equal(t, 1, r.RecoveryCount)
	assert.Equal(t, "SPX", tr.Underlying())
	assert.True(t, tr.Tradeable())
	assert.False(t, tr.IsTradeable(Crisis))
}

func TestNewTracker_InvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RecoveryCycles = cfg.ConfirmationCycles
	_, err := NewTracker("SPX", cfg)
	assert.Error(t, err)

	cfg = DefaultConfig()
	cfg.Tradeable = append(cfg.Tradeable, "crisis")
	_, err = NewTracker("SPX", cfg)
	assert.Error(t, err)

	cfg = DefaultConfig()
	cfg.Allocation["calm"] = 1.5
	_, err = NewTracker("SPX", cfg)
	assert.Error(t, err)

	cfg = DefaultConfig()
	cfg.Permissive = []string{"bogus"}
	_, err = NewTracker("SPX", cfg)
	assert.Error(t, err)
}
