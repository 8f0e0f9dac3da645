package execution

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// GuardConfig configures the breaker and throttle in front of a gateway.
type GuardConfig struct {
	Name                string        `yaml:"name"`                                  // Default: gateway
	RPS                 float64       `yaml:"rps" validate:"gt=0"`                   // Default: 2
	Burst               int           `yaml:"burst" validate:"gte=1"`                // Default: 4
	MaxRequests         uint32        `yaml:"max_requests" validate:"gte=1"`         // Default: 1
	Interval            time.Duration `yaml:"interval"`                              // Default: 60s
	Timeout             time.Duration `yaml:"timeout" validate:"gt=0"`               // Default: 30s
	ConsecutiveFailures uint32        `yaml:"consecutive_failures" validate:"gte=1"` // Default: 3
}

// DefaultGuardConfig returns the production defaults.
func DefaultGuardConfig() GuardConfig {
	return GuardConfig{
		Name:                "gateway",
		RPS:                 2,
		Burst:               4,
		MaxRequests:         1,
		Interval:            60 * time.Second,
		Timeout:             30 * time.Second,
		ConsecutiveFailures: 3,
	}
}

// Guarded wraps a gateway with a token bucket and a circuit breaker. Order
// rejections do not count as breaker failures.
type Guarded struct {
	inner   Gateway
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
}

// NewGuarded wraps inner.
func NewGuarded(inner Gateway, config GuardConfig) *Guarded {
	settings := gobreaker.Settings{
		Name:        config.Name,
		MaxRequests: config.MaxRequests,
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= config.ConsecutiveFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrRejected)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			ev := log.Warn()
			if to == gobreaker.StateClosed {
				ev = log.Info()
			}
			ev.Str("gateway", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Gateway circuit breaker changed")
		},
	}
	return &Guarded{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(config.RPS), config.Burst),
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

func (g *Guarded) Open(ctx context.Context, order OpenOrder) error {
	return g.execute(ctx, "open", func() error { return g.inner.Open(ctx, order) })
}

func (g *Guarded) Close(ctx context.Context, order CloseOrder) error {
	return g.execute(ctx, "close", func() error { return g.inner.Close(ctx, order) })
}

// State reports the breaker state for the monitor.
func (g *Guarded) State() string {
	return g.breaker.State().String()
}

func (g *Guarded) execute(ctx context.Context, op string, fn func() error) error {
	if err := g.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %s throttled: %v", ErrUnavailable, op, err)
	}
	_, err := g.breaker.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %s: %v", ErrUnavailable, op, err)
	}
	return err
}
