package strikes

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/whatbraddidnext/optimus/internal/market"
)

func TestDeltaTargets(t *testing.T) {
	tests := []struct {
		name   string
		trend  market.Reading
		call   float64
		put    float64
		skewed bool
	}{
		{"flat", market.Of(0), 0.16, 0.16, false},
		{"inside symmetric band", market.Of(0.2), 0.16, 0.16, false},
		{"band edge stays symmetric", market.Of(-0.3), 0.16, 0.16, false},
		{"missing trend is flat", market.Unavailable(), 0.16, 0.16, false},
		{"uptrend widens calls", market.Of(0.65), 0.13, 0.205, true},
		{"downtrend widens puts", market.Of(-0.65), 0.205, 0.13, true},
		{"full uptrend hits band limits", market.Of(1), 0.10, 0.25, true},
		{"score beyond range is clipped", market.Of(-1.5), 0.25, 0.10, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DeltaTargets(DefaultConfig(), market.Snapshot{TrendScore: tt.trend})
			assert.InDelta(t, tt.call, got.Call, 1e-9)
			assert.InDelta(t, tt.put, got.Put, 1e-9)
			assert.Equal(t, tt.skewed, got.Skewed)
		})
	}
}

func TestDeltaTargets_StayInsideBand(t *testing.T) {
	c := DefaultConfig()
	for score := -1.0; score <= 1.0; score += 0.05 {
		got := DeltaTargets(c, market.Snapshot{TrendScore: market.Of(score)})
		assert.GreaterOrEqual(t, got.Call, c.MinSkewDelta)
		assert.LessOrEqual(t, got.Call, c.MaxSkewDelta)
		assert.GreaterOrEqual(t, got.Put, c.MinSkewDelta)
		assert.LessOrEqual(t, got.Put, c.MaxSkewDelta)
	}
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	bad := DefaultConfig()
	bad.DefaultShortDelta = 0.30
	assert.ErrorContains(t, bad.Validate(), "outside skew band")

	bad = DefaultConfig()
	bad.SymmetricBand = 1
	assert.ErrorContains(t, bad.Validate(), "symmetric band")
}
