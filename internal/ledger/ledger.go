package ledger

import (
	"errors"
	"fmt"
	"time"
)

// Status is the lifecycle state of a position.
type Status int

const (
	Open Status = iota
	Closed
)

func (s Status) String() string {
	switch s {
	case Open:
		return "open"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// MarshalText renders the status label.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(b []byte) error {
	switch string(b) {
	case "open":
		*s = Open
	case "closed":
		*s = Closed
	default:
		return fmt.Errorf("unknown position status %q", b)
	}
	return nil
}

// Position is the read-only projection of one spread the core needs for
// sizing, veto and exit decisions. Money fields are totals across all
// contracts, in dollars.
type Position struct {
	ID          string    `json:"id"`
	Underlying  string    `json:"underlying"`
	Symbol      string    `json:"symbol"`
	Contracts   int       `json:"contracts"`
	EntryDate   time.Time `json:"entry_date"`
	Expiry      time.Time `json:"expiry"`
	EntryCredit float64   `json:"entry_credit"`
	MaxLoss     float64   `json:"max_loss"`
	Mark        float64   `json:"mark"` // current cost to close
	DTE         int       `json:"dte"`
	Delta       float64   `json:"delta"` // position delta, signed
	Status      Status    `json:"status"`
	ExitDate    time.Time `json:"exit_date,omitempty"`
	RealizedPnL float64   `json:"realized_pnl,omitempty"`
	ExitReason  string    `json:"exit_reason,omitempty"`
}

// UnrealizedPnL is entry credit less the cost to close.
func (p Position) UnrealizedPnL() float64 {
	return p.EntryCredit - p.Mark
}

// MarkUpdate is a fresh valuation of one open position. Delta is the signed
// position delta across all contracts; nil keeps the last known value.
type MarkUpdate struct {
	Mark  float64  `json:"mark" yaml:"mark"`
	DTE   int      `json:"dte" yaml:"dte"`
	Delta *float64 `json:"delta,omitempty" yaml:"delta,omitempty"`
}

// Stats summarises recent closed trades.
type Stats struct {
	Trades  int     `json:"trades"`
	Wins    int     `json:"wins"`
	WinRate float64 `json:"win_rate"` // percent
}

// View is the read-only projection surface consumed by gates, the scorer
// and the governor.
type View interface {
	OpenCount() int
	OpenCountFor(underlying string) int
	LastEntryDate(underlying string) (time.Time, bool)
	YoungestEntryDate(underlying string) (time.Time, bool)
	Heat() float64
	DirectionalExposure() float64
	OpenPositions() []Position
	RecentStats(n int) Stats
}

// Book is a View the engine can commit to after the execution gateway
// reports success.
type Book interface {
	View
	Open(p Position) (Position, error)
	Mark(id string, u MarkUpdate) error
	Close(id string, at time.Time, mark float64, reason string) (Position, error)
}

var (
	ErrNotFound      = errors.New("position not found")
	ErrAlreadyClosed = errors.New("position already closed")
	ErrInvalid       = errors.New("invalid position")
)
