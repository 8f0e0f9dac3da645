package gates

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/whatbraddidnext/optimus/internal/calendar"
	"github.com/whatbraddidnext/optimus/internal/ledger"
	"github.com/whatbraddidnext/optimus/internal/market"
	"github.com/whatbraddidnext/optimus/internal/regime"
)

// ErrInvalidConfiguration marks a pipeline that cannot be built.
var ErrInvalidConfiguration = errors.New("invalid gate configuration")

// Name identifies a gate in the catalogue.
type Name string

const (
	RegimeGate          Name = "regime"
	IVRankGate          Name = "iv_rank"
	TermStructureGate   Name = "term_structure"
	TrendGate           Name = "trend"
	MeanReversionGate   Name = "mean_reversion"
	MomentumGate        Name = "momentum"
	LiquidityGate       Name = "liquidity"
	CapacityGate        Name = "capacity"
	SpacingGate         Name = "spacing"
	RiskStateGate       Name = "risk_state"
	StaggerGate         Name = "stagger"
	DirectionalSkewGate Name = "directional_skew"
)

// Catalogue is every known gate in default evaluation order.
var Catalogue = []Name{
	RegimeGate, IVRankGate, TermStructureGate, TrendGate, MeanReversionGate, MomentumGate,
	LiquidityGate, CapacityGate, SpacingGate, RiskStateGate, StaggerGate, DirectionalSkewGate,
}

// HaltChecker is the read-only view of the risk governor used by the
// risk_state gate.
type HaltChecker interface {
	EntryBlocked(asOf time.Time) (bool, string)
}

// Input is everything a gate may read. Gates never mutate it.
type Input struct {
	Underlying string
	AsOf       time.Time
	Regime     regime.Result
	Snapshot   market.Snapshot
	Chain      *market.ChainQuote
	Ledger     ledger.View
	Risk       HaltChecker
	Calendar   *calendar.Calendar
}

// Evaluation is one gate's outcome.
type Evaluation struct {
	Gate        Name        `json:"gate"`
	Passed      bool        `json:"passed"`
	PassedOpen  bool        `json:"passed_open,omitempty"` // passed because optional input was unavailable
	Value       interface{} `json:"value"`
	Threshold   interface{} `json:"threshold"`
	Description string      `json:"description"`
}

// EntrySignal is the ordered record of one pipeline run.
type EntrySignal struct {
	Underlying   string       `json:"underlying"`
	AsOf         time.Time    `json:"as_of"`
	Evaluations  []Evaluation `json:"evaluations"`
	Triggered    bool         `json:"triggered"`
	FirstFailure Name         `json:"first_failure,omitempty"`
	Configured   int          `json:"configured"`
}

// Failure returns the failing evaluation, if any.
func (s EntrySignal) Failure() (Evaluation, bool) {
	if s.FirstFailure == "" || len(s.Evaluations) == 0 {
		return Evaluation{}, false
	}
	return s.Evaluations[len(s.Evaluations)-1], true
}

// Summary returns a one-line summary of the run.
func (s EntrySignal) Summary() string {
	if s.Triggered {
		return fmt.Sprintf("ENTRY SIGNAL %s (%d/%d gates passed)", s.Underlying, len(s.Evaluations), s.Configured)
	}
	if f, ok := s.Failure(); ok {
		return fmt.Sprintf("NO ENTRY %s: %s failed (%s)", s.Underlying, f.Gate, f.Description)
	}
	return fmt.Sprintf("NO ENTRY %s", s.Underlying)
}

// Report renders every evaluated gate, one per line.
func (s EntrySignal) Report() string {
	var b strings.Builder
	b.WriteString(s.Summary())
	b.WriteString("\n")
	for i, e := range s.Evaluations {
		mark := "PASS"
		if !e.Passed {
			mark = "FAIL"
		} else if e.PassedOpen {
			mark = "OPEN"
		}
		fmt.Fprintf(&b, "  %2d. [%s] %s: %s\n", i+1, mark, e.Gate, e.Description)
	}
	if skipped := s.Configured - len(s.Evaluations); skipped > 0 && !s.Triggered {
		fmt.Fprintf(&b, "  (%d gates not evaluated)\n", skipped)
	}
	return b.String()
}
