package db

import (
	"errors"
	"os"
	"strconv"
	"time"
)

// Config holds database connection configuration
type Config struct {
	Enabled         bool          `yaml:"enabled"`                                      // Default: false
	DSN             string        `yaml:"dsn" validate:"required_if=Enabled true"`      // env OPTIMUS_PG_DSN
	MaxOpenConns    int           `yaml:"max_open_conns" default:"10" validate:"gte=1"` // Default: 10
	MaxIdleConns    int           `yaml:"max_idle_conns" default:"5" validate:"gte=0"`  // Default: 5
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" default:"30m"`              // Default: 30m
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" default:"5m"`              // Default: 5m
	QueryTimeout    time.Duration `yaml:"query_timeout" default:"30s" validate:"gt=0"`  // Default: 30s
	Migrate         bool          `yaml:"migrate"`                                      // apply schema on connect
}

// DefaultConfig returns reasonable defaults for database connections
func DefaultConfig() Config {
	return Config{
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
		ConnMaxIdleTime: 5 * time.Minute,
		QueryTimeout:    30 * time.Second,
		Enabled:         false,
	}
}

// Validate checks pool settings that the struct tags cannot express
func (c Config) Validate() error {
	if c.Enabled && c.DSN == "" {
		return errors.New("database DSN is required when database is enabled")
	}
	if c.MaxOpenConns <= 0 {
		return errors.New("max_open_conns must be positive")
	}
	if c.MaxIdleConns < 0 {
		return errors.New("max_idle_conns cannot be negative")
	}
	if c.MaxIdleConns > c.MaxOpenConns {
		return errors.New("max_idle_conns cannot exceed max_open_conns")
	}
	if c.QueryTimeout <= 0 {
		return errors.New("query_timeout must be positive")
	}
	return nil
}

// ApplyEnv applies environment variable overrides to database config
func (c *Config) ApplyEnv() {
	if dsn := os.Getenv("OPTIMUS_PG_DSN"); dsn != "" {
		c.DSN = dsn
		c.Enabled = true
	}

	if enabled := os.Getenv("OPTIMUS_PG_ENABLED"); enabled != "" {
		if val, err := strconv.ParseBool(enabled); err == nil {
			c.Enabled = val
		}
	}

	if maxOpen := os.Getenv("OPTIMUS_PG_MAX_OPEN_CONNS"); maxOpen != "" {
		if val, err := strconv.Atoi(maxOpen); err == nil {
			c.MaxOpenConns = val
		}
	}

	if queryTimeout := os.Getenv("OPTIMUS_PG_QUERY_TIMEOUT"); queryTimeout != "" {
		if val, err := time.ParseDuration(queryTimeout); err == nil {
			c.QueryTimeout = val
		}
	}
}
