package execution

import (
	"context"
	"errors"
	"time"

	"github.com/whatbraddidnext/optimus/internal/exits"
	"github.com/whatbraddidnext/optimus/internal/ledger"
	"github.com/whatbraddidnext/optimus/internal/market"
	"github.com/whatbraddidnext/optimus/internal/sizing"
	"github.com/whatbraddidnext/optimus/internal/strikes"
)

var (
	// ErrRejected means the gateway refused the order; nothing was placed.
	ErrRejected = errors.New("order rejected")
	// ErrUnavailable means the gateway is tripped or throttled.
	ErrUnavailable = errors.New("gateway unavailable")
)

// OpenOrder is an approved, sized entry.
type OpenOrder struct {
	Underlying string            `json:"underlying"`
	AsOf       time.Time         `json:"as_of"`
	Quote      market.ChainQuote `json:"quote"`
	Sizing     sizing.Decision   `json:"sizing"`
	Deltas     strikes.Targets   `json:"delta_targets"`
}

// CloseOrder asks the gateway to close an open position.
type CloseOrder struct {
	Position ledger.Position  `json:"position"`
	Reason   exits.ExitReason `json:"reason"`
	AsOf     time.Time        `json:"as_of"`
}

// Gateway places orders. A nil error is success; any error means the
// position must not be committed or closed in the ledger.
type Gateway interface {
	Open(ctx context.Context, order OpenOrder) error
	Close(ctx context.Context, order CloseOrder) error
}
