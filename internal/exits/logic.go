package exits

import (
	"errors"
	"fmt"
	"time"

	"github.com/whatbraddidnext/optimus/internal/ledger"
	"github.com/whatbraddidnext/optimus/internal/market"
)

// ExitReason represents the reason for exit with precedence
type ExitReason int

const (
	NoExit       ExitReason = iota
	Catastrophic            // Highest precedence: session move beyond ATR multiple
	HardLoss                // Loss limit reached
	ProfitTarget            // Credit capture target reached
	TimeStop                // Days-to-expiry at or below the time stop
	ForcedClose             // Most severe halt, position still far from expiry
	RegimeShift             // Portfolio-wide close on a non-tradeable regime transition
)

func (er ExitReason) String() string {
	switch er {
	case NoExit:
		return "no_exit"
	case Catastrophic:
		return "catastrophic"
	case HardLoss:
		return "hard_loss"
	case ProfitTarget:
		return "profit_target"
	case TimeStop:
		return "time_stop"
	case ForcedClose:
		return "forced_close"
	case RegimeShift:
		return "regime_shift"
	default:
		return "unknown"
	}
}

func (er ExitReason) MarshalText() ([]byte, error) {
	return []byte(er.String()), nil
}

// ParseExitReason is the inverse of String.
func ParseExitReason(s string) (ExitReason, error) {
	for r := NoExit; r <= RegimeShift; r++ {
		if r.String() == s {
			return r, nil
		}
	}
	return NoExit, fmt.Errorf("unknown exit reason %q", s)
}

func (er *ExitReason) UnmarshalText(b []byte) error {
	r, err := ParseExitReason(string(b))
	if err != nil {
		return err
	}
	*er = r
	return nil
}

// Loss conventions
const (
	MaxLossPct     = "max_loss_pct"
	CreditMultiple = "credit_multiple"
)

// ExitResult contains the exit evaluation outcome
type ExitResult struct {
	PositionID    string     `json:"position_id"`
	Underlying    string     `json:"underlying"`
	Timestamp     time.Time  `json:"timestamp"`
	ShouldExit    bool       `json:"should_exit"`
	ExitReason    ExitReason `json:"exit_reason"`
	TriggeredBy   string     `json:"triggered_by"`
	UnrealizedPnL float64    `json:"unrealized_pnl"` // dollars
	DTE           int        `json:"dte"`
}

// HaltMode carries the governor's halt posture into exit evaluation.
type HaltMode struct {
	TightenTarget bool // partial halt: use the tighter profit target
	ForceClose    bool // most severe halt
}

// ExitConfig contains exit rule configuration for one underlying
type ExitConfig struct {
	CatastrophicATR float64 `yaml:"catastrophic_atr" validate:"gt=0"` // Default: 3.0

	LossConvention string  `yaml:"loss_convention" validate:"oneof=max_loss_pct credit_multiple"` // Default: max_loss_pct
	LossLimitPct   float64 `yaml:"loss_limit_pct" validate:"gt=0,lte=100"`                        // Default: 50 (% of max loss)
	CreditMultiple float64 `yaml:"credit_multiple" validate:"gt=1"`                               // Default: 2.0 (mark vs entry credit)

	ProfitTargetPct    float64 `yaml:"profit_target_pct" validate:"gt=0,lte=100"`    // Default: 50 (% of credit)
	TightenedTargetPct float64 `yaml:"tightened_target_pct" validate:"gt=0,lte=100"` // Default: 40

	TimeStopDTE int `yaml:"time_stop_dte" validate:"gte=0"` // Default: 21
}

// DefaultExitConfig returns production-ready exit configuration
func DefaultExitConfig() ExitConfig {
	return ExitConfig{
		CatastrophicATR:    3.0,
		LossConvention:     MaxLossPct,
		LossLimitPct:       50,
		CreditMultiple:     2.0,
		ProfitTargetPct:    50,
		TightenedTargetPct: 40,
		TimeStopDTE:        21,
	}
}

// Validate checks the fields the struct tags cannot relate to each other.
func (c ExitConfig) Validate() error {
	switch c.LossConvention {
	case MaxLossPct, CreditMultiple:
	default:
		return fmt.Errorf("unknown loss convention %q", c.LossConvention)
	}
	if c.CatastrophicATR <= 0 || c.LossLimitPct <= 0 || c.ProfitTargetPct <= 0 || c.TightenedTargetPct <= 0 {
		return errors.New("exit thresholds must be positive")
	}
	if c.LossConvention == CreditMultiple && c.CreditMultiple <= 1 {
		return fmt.Errorf("credit multiple %.2f must exceed 1", c.CreditMultiple)
	}
	if c.TightenedTargetPct > c.ProfitTargetPct {
		return fmt.Errorf("tightened target %.0f%% is looser than the normal target %.0f%%",
			c.TightenedTargetPct, c.ProfitTargetPct)
	}
	if c.TimeStopDTE < 0 {
		return fmt.Errorf("negative time stop %d", c.TimeStopDTE)
	}
	return nil
}

// ExitEvaluator evaluates exit conditions with proper precedence
type ExitEvaluator struct {
	config ExitConfig
}

// NewExitEvaluator creates a new exit evaluator
func NewExitEvaluator(config ExitConfig) (*ExitEvaluator, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("exit config: %w", err)
	}
	return &ExitEvaluator{config: config}, nil
}

// Config returns the evaluator's thresholds.
func (ee *ExitEvaluator) Config() ExitConfig {
	return ee.config
}

// EvaluateExit performs exit evaluation with proper precedence. The first
// matching rule wins.
func (ee *ExitEvaluator) EvaluateExit(pos ledger.Position, snap market.Snapshot, mode HaltMode, now time.Time) ExitResult {
	result := ExitResult{
		PositionID:    pos.ID,
		Underlying:    pos.Underlying,
		Timestamp:     now,
		ExitReason:    NoExit,
		UnrealizedPnL: pos.UnrealizedPnL(),
		DTE:           pos.DTE,
	}

	checks := []func(ledger.Position, market.Snapshot, HaltMode) (ExitReason, string){
		ee.evaluateCatastrophic,
		ee.evaluateHardLoss,
		ee.evaluateProfitTarget,
		ee.evaluateTimeStop,
		ee.evaluateForcedClose,
	}
	for _, check := range checks {
		if reason, trigger := check(pos, snap, mode); reason != NoExit {
			result.ShouldExit = true
			result.ExitReason = reason
			result.TriggeredBy = trigger
			break
		}
	}
	return result
}

// evaluateCatastrophic checks the session move against the ATR multiple.
// Without ATR or session data the rule cannot fire.
func (ee *ExitEvaluator) evaluateCatastrophic(_ ledger.Position, snap market.Snapshot, _ HaltMode) (ExitReason, string) {
	move := snap.SessionMoveATR()
	if !move.Valid || move.Value <= ee.config.CatastrophicATR {
		return NoExit, ""
	}
	return Catastrophic, fmt.Sprintf("Session move %.2f ATR > %.2f ATR", move.Value, ee.config.CatastrophicATR)
}

func (ee *ExitEvaluator) evaluateHardLoss(pos ledger.Position, _ market.Snapshot, _ HaltMode) (ExitReason, string) {
	switch ee.config.LossConvention {
	case CreditMultiple:
		if pos.EntryCredit <= 0 {
			return NoExit, ""
		}
		limit := pos.EntryCredit * ee.config.CreditMultiple
		if pos.Mark >= limit {
			return HardLoss, fmt.Sprintf("Mark $%.2f ≥ %.1fx credit $%.2f", pos.Mark, ee.config.CreditMultiple, pos.EntryCredit)
		}
	default:
		if pos.MaxLoss <= 0 {
			return NoExit, ""
		}
		limit := -pos.MaxLoss * ee.config.LossLimitPct / 100
		if pnl := pos.UnrealizedPnL(); pnl <= limit {
			return HardLoss, fmt.Sprintf("P&L $%.2f ≤ %.0f%% of max loss ($%.2f)", pnl, ee.config.LossLimitPct, limit)
		}
	}
	return NoExit, ""
}

func (ee *ExitEvaluator) evaluateProfitTarget(pos ledger.Position, _ market.Snapshot, mode HaltMode) (ExitReason, string) {
	if pos.EntryCredit <= 0 {
		return NoExit, ""
	}
	pct := ee.config.ProfitTargetPct
	if mode.TightenTarget {
		pct = ee.config.TightenedTargetPct
	}
	target := pos.EntryCredit * pct / 100
	if pnl := pos.UnrealizedPnL(); pnl >= target {
		return ProfitTarget, fmt.Sprintf("P&L $%.2f ≥ %.0f%% of credit ($%.2f)", pnl, pct, target)
	}
	return NoExit, ""
}

func (ee *ExitEvaluator) evaluateTimeStop(pos ledger.Position, _ market.Snapshot, _ HaltMode) (ExitReason, string) {
	if pos.DTE <= ee.config.TimeStopDTE {
		return TimeStop, fmt.Sprintf("DTE %d ≤ %d", pos.DTE, ee.config.TimeStopDTE)
	}
	return NoExit, ""
}

// evaluateForcedClose applies only under the most severe halt.
func (ee *ExitEvaluator) evaluateForcedClose(pos ledger.Position, _ market.Snapshot, mode HaltMode) (ExitReason, string) {
	if mode.ForceClose && pos.DTE > ee.config.TimeStopDTE {
		return ForcedClose, fmt.Sprintf("Monthly halt, DTE %d > %d", pos.DTE, ee.config.TimeStopDTE)
	}
	return NoExit, ""
}

// GetExitSummary returns a concise exit evaluation summary
func (er ExitResult) GetExitSummary() string {
	if er.ShouldExit {
		return fmt.Sprintf("EXIT %s %s: %s (P&L $%.2f, %d DTE)",
			er.Underlying, er.PositionID, er.ExitReason, er.UnrealizedPnL, er.DTE)
	}
	return fmt.Sprintf("HOLD %s %s: P&L $%.2f, %d DTE", er.Underlying, er.PositionID, er.UnrealizedPnL, er.DTE)
}
