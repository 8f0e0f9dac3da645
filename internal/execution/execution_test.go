package execution

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whatbraddidnext/optimus/internal/exits"
	"github.com/whatbraddidnext/optimus/internal/ledger"
	"github.com/whatbraddidnext/optimus/internal/market"
	"github.com/whatbraddidnext/optimus/internal/sizing"
)

// mockGateway returns err from every call and counts calls.
type mockGateway struct {
	err   error
	calls int
}

func (m *mockGateway) Open(context.Context, OpenOrder) error {
	m.calls++
	return m.err
}

func (m *mockGateway) Close(context.Context, CloseOrder) error {
	m.calls++
	return m.err
}

func testGuard() GuardConfig {
	cfg := DefaultGuardConfig()
	cfg.RPS, cfg.Burst = 1000, 100
	cfg.Timeout = time.Minute
	return cfg
}

func order() OpenOrder {
	return OpenOrder{
		Underlying: "SPX",
		Quote:      market.ChainQuote{Available: true, Symbol: "SPX 260417P05000", Credit: 350},
		Sizing:     sizing.Decision{Contracts: 2},
	}
}

func TestGuarded_TripsAfterConsecutiveFailures(t *testing.T) {
	inner := &mockGateway{err: errors.New("broker timeout")}
	g := NewGuarded(inner, testGuard())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		err := g.Open(ctx, order())
		require.Error(t, err)
		assert.False(t, errors.Is(err, ErrUnavailable))
	}
	assert.Equal(t, "open", g.State())

	err := g.Open(ctx, order())
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, 3, inner.calls)
}

func TestGuarded_RejectionsDoNotTrip(t *testing.T) {
	inner := &mockGateway{err: ErrRejected}
	g := NewGuarded(inner, testGuard())

	for i := 0; i < 5; i++ {
		assert.ErrorIs(t, g.Close(context.Background(), CloseOrder{}), ErrRejected)
	}
	assert.Equal(t, "closed", g.State())
	assert.Equal(t, 5, inner.calls)
}

func TestGuarded_PassesThroughSuccess(t *testing.T) {
	inner := &mockGateway{}
	g := NewGuarded(inner, testGuard())
	require.NoError(t, g.Open(context.Background(), order()))
	assert.Equal(t, 1, inner.calls)
}

func TestGuarded_CancelledWhileThrottled(t *testing.T) {
	cfg := testGuard()
	cfg.RPS, cfg.Burst = 0.001, 1
	g := NewGuarded(&mockGateway{}, cfg)

	require.NoError(t, g.Open(context.Background(), order()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, g.Open(ctx, order()), ErrUnavailable)
}

func TestPaper(t *testing.T) {
	p := NewPaper()
	ctx := context.Background()

	require.NoError(t, p.Open(ctx, order()))

	bad := order()
	bad.Quote.Available = false
	assert.ErrorIs(t, p.Open(ctx, bad), ErrRejected)

	zero := order()
	zero.Sizing.Contracts = 0
	assert.ErrorIs(t, p.Open(ctx, zero), ErrRejected)

	require.NoError(t, p.Close(ctx, CloseOrder{Position: ledger.Position{ID: "a"}, Reason: exits.TimeStop}))
	assert.ErrorIs(t, p.Close(ctx, CloseOrder{Position: ledger.Position{ID: "b", Status: ledger.Closed}}), ErrRejected)

	assert.Len(t, p.Opens(), 1)
	require.Len(t, p.Closes(), 1)
	assert.Equal(t, exits.TimeStop, p.Closes()[0].Reason)
}
