package exits

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whatbraddidnext/optimus/internal/ledger"
	"github.com/whatbraddidnext/optimus/internal/market"
)

var now = time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)

func newEvaluator(t *testing.T, mutate func(*ExitConfig)) *ExitEvaluator {
	t.Helper()
	cfg := DefaultExitConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	ee, err := NewExitEvaluator(cfg)
	require.NoError(t, err)
	return ee
}

// position with $500 credit, $2000 max loss and 40 DTE
func position(mark float64, dte int) ledger.Position {
	return ledger.Position{
		ID:          "p1",
		Underlying:  "SPX",
		Contracts:   1,
		EntryCredit: 500,
		MaxLoss:     2000,
		Mark:        mark,
		DTE:         dte,
	}
}

func quiet() market.Snapshot {
	return market.Snapshot{Price: market.Of(5010), SessionOpen: market.Of(5000), ATR: market.Of(50)}
}

func TestExitEvaluator_NoExit(t *testing.T) {
	ee := newEvaluator(t, nil)
	result := ee.EvaluateExit(position(400, 40), quiet(), HaltMode{}, now)

	assert.False(t, result.ShouldExit)
	assert.Equal(t, NoExit, result.ExitReason)
	assert.Equal(t, 100.0, result.UnrealizedPnL)
	assert.Contains(t, result.GetExitSummary(), "HOLD")
}

func TestExitEvaluator_EachRule(t *testing.T) {
	ee := newEvaluator(t, nil)
	crash := market.Snapshot{Price: market.Of(4800), SessionOpen: market.Of(5000), ATR: market.Of(50)}

	tests := []struct {
		name   string
		pos    ledger.Position
		snap   market.Snapshot
		mode   HaltMode
		reason ExitReason
	}{
		{"catastrophic move", position(400, 40), crash, HaltMode{}, Catastrophic},
		{"exactly 3 ATR does not fire", position(400, 40),
			market.Snapshot{Price: market.Of(4850), SessionOpen: market.Of(5000), ATR: market.Of(50)}, HaltMode{}, NoExit},
		{"hard loss at 50% of max loss", position(1500, 40), quiet(), HaltMode{}, HardLoss},
		{"loss short of the limit", position(1499, 40), quiet(), HaltMode{}, NoExit},
		{"profit target at 50% of credit", position(250, 40), quiet(), HaltMode{}, ProfitTarget},
		{"tightened target in partial halt", position(300, 40), quiet(), HaltMode{TightenTarget: true}, ProfitTarget},
		{"normal target not reached at 40%", position(300, 40), quiet(), HaltMode{}, NoExit},
		{"time stop at threshold", position(400, 21), quiet(), HaltMode{}, TimeStop},
		{"forced close beyond time stop", position(400, 40), quiet(), HaltMode{ForceClose: true}, ForcedClose},
		{"missing ATR skips catastrophic", position(400, 40), market.Snapshot{}, HaltMode{}, NoExit},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ee.EvaluateExit(tt.pos, tt.snap, tt.mode, now)
			assert.Equal(t, tt.reason, result.ExitReason)
			assert.Equal(t, tt.reason != NoExit, result.ShouldExit)
			if result.ShouldExit {
				assert.NotEmpty(t, result.TriggeredBy)
			}
		})
	}
}

func TestExitEvaluator_Precedence(t *testing.T) {
	ee := newEvaluator(t, nil)
	crash := market.Snapshot{Price: market.Of(4700), SessionOpen: market.Of(5000), ATR: market.Of(50)}

	t.Run("catastrophic beats hard loss", func(t *testing.T) {
		result := ee.EvaluateExit(position(1800, 10), crash, HaltMode{ForceClose: true}, now)
		assert.Equal(t, Catastrophic, result.ExitReason)
	})

	t.Run("hard loss beats time stop", func(t *testing.T) {
		result := ee.EvaluateExit(position(1800, 10), quiet(), HaltMode{}, now)
		assert.Equal(t, HardLoss, result.ExitReason)
	})

	t.Run("profit target beats time stop", func(t *testing.T) {
		result := ee.EvaluateExit(position(100, 10), quiet(), HaltMode{}, now)
		assert.Equal(t, ProfitTarget, result.ExitReason)
	})

	t.Run("time stop beats forced close", func(t *testing.T) {
		result := ee.EvaluateExit(position(400, 5), quiet(), HaltMode{ForceClose: true}, now)
		assert.Equal(t, TimeStop, result.ExitReason)
	})
}

func TestExitEvaluator_CreditMultipleConvention(t *testing.T) {
	ee := newEvaluator(t, func(c *ExitConfig) { c.LossConvention = CreditMultiple })

	result := ee.EvaluateExit(position(999, 40), quiet(), HaltMode{}, now)
	assert.Equal(t, NoExit, result.ExitReason)

	result = ee.EvaluateExit(position(1000, 40), quiet(), HaltMode{}, now)
	assert.Equal(t, HardLoss, result.ExitReason)
	assert.Contains(t, result.TriggeredBy, "2.0x credit")
}

func TestNewExitEvaluator_InvalidConfig(t *testing.T) {
	tests := map[string]func(*ExitConfig){
		"unknown convention":  func(c *ExitConfig) { c.LossConvention = "percent" },
		"tight target looser": func(c *ExitConfig) { c.TightenedTargetPct = 60 },
		"zero loss limit":     func(c *ExitConfig) { c.LossLimitPct = 0 },
		"negative time stop":  func(c *ExitConfig) { c.TimeStopDTE = -1 },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultExitConfig()
			mutate(&cfg)
			_, err := NewExitEvaluator(cfg)
			assert.Error(t, err)
		})
	}
}

func TestExitReason_TextRoundTrip(t *testing.T) {
	for r := NoExit; r <= RegimeShift; r++ {
		b, err := r.MarshalText()
		require.NoError(t, err)
		var got ExitReason
		require.NoError(t, got.UnmarshalText(b))
		assert.Equal(t, r, got)
	}
	var bad ExitReason
	assert.Error(t, bad.UnmarshalText([]byte("panic")))
}
