package statestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/whatbraddidnext/optimus/internal/ledger"
	"github.com/whatbraddidnext/optimus/internal/regime"
	"github.com/whatbraddidnext/optimus/internal/risk"
)

// Redis stores state as JSON documents under prefixed keys.
type Redis struct {
	client  *redis.Client
	prefix  string
	ttl     time.Duration
	timeout time.Duration
}

// NewRedis connects to the configured server and pings it.
func NewRedis(ctx context.Context, config Config) (*Redis, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		PoolSize:     4,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		IdleTimeout:  5 * time.Minute,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return NewRedisWithClient(rdb, config), nil
}

// NewRedisWithClient wraps an existing client.
func NewRedisWithClient(client *redis.Client, config Config) *Redis {
	prefix := config.Prefix
	if prefix == "" {
		prefix = "optimus"
	}
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Redis{client: client, prefix: prefix, ttl: config.TTL, timeout: timeout}
}

// RegimeKey is the key holding an underlying's hysteresis state.
func (r *Redis) RegimeKey(underlying string) string {
	return fmt.Sprintf("%s:state:regime:%s", r.prefix, underlying)
}

// GovernorKey is the key holding the risk governor state.
func (r *Redis) GovernorKey() string {
	return r.prefix + ":state:governor"
}

// PositionsKey is the key holding the book.
func (r *Redis) PositionsKey() string {
	return r.prefix + ":state:positions"
}

func (r *Redis) LoadRegime(ctx context.Context, underlying string) (regime.State, bool, error) {
	var s regime.State
	found, err := r.load(ctx, r.RegimeKey(underlying), &s)
	return s, found, err
}

func (r *Redis) SaveRegime(ctx context.Context, underlying string, state regime.State) error {
	return r.save(ctx, r.RegimeKey(underlying), state)
}

func (r *Redis) LoadGovernor(ctx context.Context) (risk.State, bool, error) {
	var s risk.State
	found, err := r.load(ctx, r.GovernorKey(), &s)
	return s, found, err
}

func (r *Redis) SaveGovernor(ctx context.Context, state risk.State) error {
	return r.save(ctx, r.GovernorKey(), state)
}

func (r *Redis) LoadPositions(ctx context.Context) ([]ledger.Position, bool, error) {
	var ps []ledger.Position
	found, err := r.load(ctx, r.PositionsKey(), &ps)
	return ps, found, err
}

func (r *Redis) SavePositions(ctx context.Context, positions []ledger.Position) error {
	if positions == nil {
		positions = []ledger.Position{}
	}
	return r.save(ctx, r.PositionsKey(), positions)
}

func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) load(ctx context.Context, key string, into interface{}) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	val, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("redis get %s: %w", key, err)
	}
	if err := json.Unmarshal(val, into); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func (r *Redis) save(ctx context.Context, key string, value interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := r.client.Set(ctx, key, string(data), r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}
