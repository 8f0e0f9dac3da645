package persistence

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimeRange_Contains(t *testing.T) {
	tr := TimeRange{
		From: time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC),
		To:   time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC),
	}

	tests := []struct {
		name string
		ts   time.Time
		want bool
	}{
		{"start_inclusive", tr.From, true},
		{"end_inclusive", tr.To, true},
		{"inside", tr.From.Add(30 * time.Minute), true},
		{"before", tr.From.Add(-time.Second), false},
		{"after", tr.To.Add(time.Second), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tr.Contains(tt.ts))
		})
	}
}

func TestEntryRecord_JSON(t *testing.T) {
	gate := "iv_rank"
	rec := EntryRecord{
		CycleID:      "c1",
		Timestamp:    time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC),
		Underlying:   "SPX",
		Regime:       "calm",
		FirstFailure: &gate,
		Evaluations:  json.RawMessage(`[{"gate":"regime","passed":true}]`),
		Veto:         "approved",
	}

	data, err := json.Marshal(rec)
	require.NoError(t, err)

	var fields map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &fields))
	assert.Equal(t, "iv_rank", fields["first_failure"])
	assert.NotContains(t, fields, "conviction")
	assert.NotContains(t, fields, "effective_risk_pct")
	assert.IsType(t, []interface{}{}, fields["evaluations"])
}

func TestHealthCheck_Structure(t *testing.T) {
	healthCheck := HealthCheck{
		Healthy: true,
		ConnectionPool: map[string]int{
			"open": 2,
			"idle": 1,
		},
		LastCheck:      time.Now(),
		ResponseTimeMS: 3,
	}

	data, err := json.Marshal(healthCheck)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "errors")
	assert.Contains(t, string(data), `"open":2`)
}
