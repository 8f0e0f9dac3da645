package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfig = `
underlyings:
  - name: SPX
calendar:
  zone: UTC
conviction:
  min: 1
  max: 1
`

const testCycle = `
positions:
  - id: rut-1
    underlying: RUT
    symbol: RUT 260417P02000
    contracts: 1
    entry_date: "2026-02-20T15:30:00Z"
    expiry: "2026-04-17T00:00:00Z"
    entry_credit: 150
    max_loss: 2000
    mark: 150
    dte: 38
    status: open
scan:
  as_of: "2026-03-10T15:30:00Z"
  equity: 100000
  peak_equity: 100000
  snapshots:
    SPX:
      vol_level: 13
      iv_rank: 65
      term_ratio: 0.92
      price: 5000
      trend_reference: 4800
      lower_band: 4900
      band_touch_bars_ago: 2
      up_closes: 2
      oscillator: 42
      oscillator_prev: 38
      trend_score: 0.3
      atr: null
  chains:
    SPX:
      available: true
      symbol: SPX 260424P04700
      expiry: "2026-04-24T00:00:00Z"
      dte: 45
      spread_pct: 5
      credit: 150
      max_loss_per_contract: 2000
manage:
  as_of: "2026-03-10T20:00:00Z"
  equity: 100000
  marks:
    rut-1:
      mark: 60
      dte: 38
`

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestReadCycle_YAML(t *testing.T) {
	cycle, err := readCycle(writeFile(t, "cycle.yaml", testCycle))
	require.NoError(t, err)

	require.Len(t, cycle.Positions, 1)
	assert.Equal(t, "rut-1", cycle.Positions[0].ID)
	assert.Equal(t, 2000.0, cycle.Positions[0].MaxLoss)

	require.NotNil(t, cycle.Scan)
	snap := cycle.Scan.Snapshots["SPX"]
	assert.True(t, snap.VolLevel.Valid)
	assert.Equal(t, 13.0, snap.VolLevel.Value)
	assert.False(t, snap.ATR.Valid)
	assert.False(t, snap.RealizedVolLong.Valid)
	assert.Equal(t, 45, cycle.Scan.Chains["SPX"].DTE)

	require.NotNil(t, cycle.Manage)
	assert.Equal(t, 60.0, cycle.Manage.Marks["rut-1"].Mark)
}

func TestReadCycle_Errors(t *testing.T) {
	_, err := readCycle(writeFile(t, "cycle.csv", "a,b"))
	assert.ErrorContains(t, err, "unsupported cycle format")

	_, err = readCycle(writeFile(t, "cycle.json", `{"positions": []}`))
	assert.ErrorContains(t, err, "neither scan nor manage")

	_, err = readCycle(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestEvaluate(t *testing.T) {
	cfg := writeFile(t, "optimus.yaml", testConfig)
	cycle := writeFile(t, "cycle.yaml", testCycle)

	out, err := run(t, "evaluate", "--config", cfg, "--cycle", cycle, "--compact")
	require.NoError(t, err, out)

	var got struct {
		Scan struct {
			Entries     int `json:"entries"`
			Underlyings []struct {
				Underlying string `json:"underlying"`
				Executed   bool   `json:"executed"`
			} `json:"underlyings"`
		} `json:"scan"`
		Manage struct {
			Exits []struct {
				Executed bool `json:"executed"`
				Result   struct {
					PositionID string `json:"position_id"`
					ExitReason string `json:"exit_reason"`
				} `json:"result"`
			} `json:"exits"`
			Realized float64 `json:"realized_pnl"`
		} `json:"manage"`
		Status struct {
			OpenCount int `json:"open_positions"`
		} `json:"status"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got), out)

	assert.Equal(t, 1, got.Scan.Entries)
	require.Len(t, got.Scan.Underlyings, 1)
	assert.True(t, got.Scan.Underlyings[0].Executed)

	require.Len(t, got.Manage.Exits, 1)
	assert.Equal(t, "rut-1", got.Manage.Exits[0].Result.PositionID)
	assert.Equal(t, "profit_target", got.Manage.Exits[0].Result.ExitReason)
	assert.True(t, got.Manage.Exits[0].Executed)
	assert.InDelta(t, 90.0, got.Manage.Realized, 1e-9)
	assert.Equal(t, 1, got.Status.OpenCount)
}

func TestConfigValidate(t *testing.T) {
	out, err := run(t, "config", "validate", "--config", writeFile(t, "optimus.yaml", testConfig))
	require.NoError(t, err)
	assert.Contains(t, out, "configuration valid: 1 underlyings [SPX]")

	_, err = run(t, "config", "validate", "--config", writeFile(t, "bad.yaml", "underlyings: []\n"))
	assert.Error(t, err)
}

func TestDBMigrateRequiresDatabase(t *testing.T) {
	_, err := run(t, "db", "migrate", "--config", writeFile(t, "optimus.yaml", testConfig))
	assert.ErrorContains(t, err, "database is disabled")
}
