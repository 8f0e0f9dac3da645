package risk

import (
	"fmt"
	"time"

	"github.com/whatbraddidnext/optimus/internal/calendar"
)

// HaltState is the portfolio halt level, ordered by severity.
type HaltState int

const (
	Normal HaltState = iota
	DayHalt
	WeekHalt
	MonthHalt
)

func (h HaltState) String() string {
	switch h {
	case Normal:
		return "NORMAL"
	case DayHalt:
		return "DAY_HALT"
	case WeekHalt:
		return "WEEK_HALT"
	case MonthHalt:
		return "MONTH_HALT"
	default:
		return "UNKNOWN"
	}
}

func (h HaltState) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

func (h *HaltState) UnmarshalText(b []byte) error {
	for s := Normal; s <= MonthHalt; s++ {
		if s.String() == string(b) {
			*h = s
			return nil
		}
	}
	return fmt.Errorf("unknown halt state %q", b)
}

// Partial reports whether profit targets should be tightened.
func (h HaltState) Partial() bool {
	return h == DayHalt || h == WeekHalt
}

// Buckets are the rolling P&L accumulators, in dollars.
type Buckets struct {
	Day   float64 `json:"day"`
	Week  float64 `json:"week"`
	Month float64 `json:"month"`
}

// State is everything the governor carries between cycles. It round-trips
// through JSON for the state store.
type State struct {
	BreakerActive         bool             `json:"breaker_active"`
	BreakerUntil          time.Time        `json:"breaker_until,omitempty"`
	ConsecutiveHardLosses int              `json:"consecutive_hard_losses"`
	Halt                  HaltState        `json:"halt"`
	PnL                   Buckets          `json:"pnl"`
	Periods               calendar.Periods `json:"periods"`
	LastUnrealized        float64          `json:"last_unrealized"`
	Initialized           bool             `json:"initialized"`
	UpdatedAt             time.Time        `json:"updated_at,omitempty"`
}
