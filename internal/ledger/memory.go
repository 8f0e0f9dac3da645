package ledger

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is an in-process Book. Positions are kept in insertion order.
type Memory struct {
	mu        sync.RWMutex
	positions []*Position
	index     map[string]*Position
}

// NewMemory returns an empty book seeded with the given positions.
func NewMemory(seed ...Position) *Memory {
	m := &Memory{index: make(map[string]*Position)}
	for _, p := range seed {
		if p.ID == "" {
			p.ID = uuid.NewString()
		}
		cp := p
		m.positions = append(m.positions, &cp)
		m.index[cp.ID] = &cp
	}
	return m
}

func (m *Memory) Open(p Position) (Position, error) {
	if p.Underlying == "" || p.Contracts <= 0 || p.MaxLoss <= 0 {
		return Position{}, fmt.Errorf("%w: underlying=%q contracts=%d max_loss=%.2f",
			ErrInvalid, p.Underlying, p.Contracts, p.MaxLoss)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if _, exists := m.index[p.ID]; exists {
		return Position{}, fmt.Errorf("%w: duplicate id %s", ErrInvalid, p.ID)
	}
	p.Status = Open
	cp := p
	m.positions = append(m.positions, &cp)
	m.index[cp.ID] = &cp
	return cp, nil
}

func (m *Memory) Mark(id string, u MarkUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.index[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if p.Status == Closed {
		return fmt.Errorf("%w: %s", ErrAlreadyClosed, id)
	}
	p.Mark = u.Mark
	p.DTE = u.DTE
	if u.Delta != nil {
		p.Delta = *u.Delta
	}
	return nil
}

func (m *Memory) Close(id string, at time.Time, mark float64, reason string) (Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.index[id]
	if !ok {
		return Position{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if p.Status == Closed {
		return Position{}, fmt.Errorf("%w: %s", ErrAlreadyClosed, id)
	}
	p.Mark = mark
	p.Status = Closed
	p.ExitDate = at
	p.ExitReason = reason
	p.RealizedPnL = p.EntryCredit - mark
	return *p, nil
}

func (m *Memory) OpenCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, p := range m.positions {
		if p.Status == Open {
			n++
		}
	}
	return n
}

func (m *Memory) OpenCountFor(underlying string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, p := range m.positions {
		if p.Status == Open && p.Underlying == underlying {
			n++
		}
	}
	return n
}

// LastEntryDate includes closed positions: spacing counts from the last
// entry, not the last open one.
func (m *Memory) LastEntryDate(underlying string) (time.Time, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var last time.Time
	found := false
	for _, p := range m.positions {
		if p.Underlying == underlying && (!found || p.EntryDate.After(last)) {
			last, found = p.EntryDate, true
		}
	}
	return last, found
}

func (m *Memory) YoungestEntryDate(underlying string) (time.Time, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var youngest time.Time
	found := false
	for _, p := range m.positions {
		if p.Status != Open || p.Underlying != underlying {
			continue
		}
		if !found || p.EntryDate.After(youngest) {
			youngest, found = p.EntryDate, true
		}
	}
	return youngest, found
}

func (m *Memory) Heat() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	total := 0.0
	for _, p := range m.positions {
		if p.Status == Open {
			total += p.MaxLoss
		}
	}
	return total
}

func (m *Memory) DirectionalExposure() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	total := 0.0
	for _, p := range m.positions {
		if p.Status == Open {
			total += p.Delta
		}
	}
	return total
}

func (m *Memory) OpenPositions() []Position {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Position, 0, len(m.positions))
	for _, p := range m.positions {
		if p.Status == Open {
			out = append(out, *p)
		}
	}
	return out
}

// All returns every position, open and closed, in insertion order.
func (m *Memory) All() []Position {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Position, 0, len(m.positions))
	for _, p := range m.positions {
		out = append(out, *p)
	}
	return out
}

// RecentStats covers the last n closed trades by exit date.
func (m *Memory) RecentStats(n int) Stats {
	m.mu.RLock()
	closed := make([]Position, 0, len(m.positions))
	for _, p := range m.positions {
		if p.Status == Closed {
			closed = append(closed, *p)
		}
	}
	m.mu.RUnlock()

	sort.SliceStable(closed, func(i, j int) bool {
		return closed[i].ExitDate.Before(closed[j].ExitDate)
	})
	if n > 0 && len(closed) > n {
		closed = closed[len(closed)-n:]
	}

	var s Stats
	for _, p := range closed {
		s.Trades++
		if p.RealizedPnL > 0 {
			s.Wins++
		}
	}
	if s.Trades > 0 {
		s.WinRate = float64(s.Wins) / float64(s.Trades) * 100
	}
	return s
}
