package execution

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/whatbraddidnext/optimus/internal/ledger"
)

// Paper accepts every well-formed order and only logs it.
type Paper struct {
	mu     sync.Mutex
	opens  []OpenOrder
	closes []CloseOrder
}

// NewPaper returns an empty paper gateway.
func NewPaper() *Paper {
	return &Paper{}
}

func (p *Paper) Open(ctx context.Context, order OpenOrder) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !order.Quote.Available || order.Quote.Symbol == "" {
		return fmt.Errorf("%w: no instrument for %s", ErrRejected, order.Underlying)
	}
	if order.Sizing.Contracts <= 0 {
		return fmt.Errorf("%w: %d contracts", ErrRejected, order.Sizing.Contracts)
	}

	p.mu.Lock()
	p.opens = append(p.opens, order)
	p.mu.Unlock()

	log.Info().
		Str("underlying", order.Underlying).
		Str("symbol", order.Quote.Symbol).
		Int("contracts", order.Sizing.Contracts).
		Float64("credit", order.Quote.Credit).
		Msg("Paper open")
	return nil
}

func (p *Paper) Close(ctx context.Context, order CloseOrder) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if order.Position.Status != ledger.Open {
		return fmt.Errorf("%w: position %s is not open", ErrRejected, order.Position.ID)
	}

	p.mu.Lock()
	p.closes = append(p.closes, order)
	p.mu.Unlock()

	log.Info().
		Str("position", order.Position.ID).
		Str("underlying", order.Position.Underlying).
		Str("reason", order.Reason.String()).
		Float64("mark", order.Position.Mark).
		Msg("Paper close")
	return nil
}

// Opens returns the accepted entry orders.
func (p *Paper) Opens() []OpenOrder {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]OpenOrder(nil), p.opens...)
}

// Closes returns the accepted close orders.
func (p *Paper) Closes() []CloseOrder {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]CloseOrder(nil), p.closes...)
}
