package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/whatbraddidnext/optimus/internal/engine"
	"github.com/whatbraddidnext/optimus/internal/infrastructure/db"
	"github.com/whatbraddidnext/optimus/internal/statestore"
)

// ErrInvalid wraps every validation failure returned by Load.
var ErrInvalid = errors.New("invalid configuration")

// ServerConfig configures the monitor endpoint.
type ServerConfig struct {
	Addr string `yaml:"addr" default:":8080"` // Default: :8080, env OPTIMUS_SERVER_ADDR
}

// LogConfig configures the global zerolog logger.
type LogConfig struct {
	Level   string `yaml:"level" default:"info" validate:"oneof=trace debug info warn error"` // Default: info, env OPTIMUS_LOG_LEVEL
	Console bool   `yaml:"console"`                                                           // force console output when not a TTY
}

// ZerologLevel parses Level, falling back to info.
func (l LogConfig) ZerologLevel() zerolog.Level {
	lvl, err := zerolog.ParseLevel(l.Level)
	if err != nil || l.Level == "" {
		return zerolog.InfoLevel
	}
	return lvl
}

// Config is the complete process configuration. The engine settings sit at
// the document root.
type Config struct {
	Engine   engine.Config     `yaml:",inline"`
	Database db.Config         `yaml:"database"`
	State    statestore.Config `yaml:"state"`
	Server   ServerConfig      `yaml:"server"`
	Log      LogConfig         `yaml:"log"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Engine:   engine.DefaultConfig(),
		Database: db.DefaultConfig(),
		State:    statestore.DefaultConfig(),
		Server:   ServerConfig{Addr: ":8080"},
		Log:      LogConfig{Level: "info"},
	}
}

// Load reads a YAML or TOML document over the defaults, applies environment
// overrides and validates the result. An empty path loads the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := Decode(data, filepath.Ext(path), &cfg); err != nil {
			return nil, err
		}
	}

	if err := defaults.Set(&cfg); err != nil {
		return nil, fmt.Errorf("failed to apply config defaults: %w", err)
	}
	cfg.ApplyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Decode parses data into cfg. TOML documents are re-encoded as YAML so both
// formats share one set of field names and decode hooks.
func Decode(data []byte, ext string, cfg *Config) error {
	switch strings.ToLower(ext) {
	case ".toml":
		var doc map[string]interface{}
		if err := toml.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("failed to parse TOML config: %w", err)
		}
		converted, err := yaml.Marshal(doc)
		if err != nil {
			return fmt.Errorf("failed to convert TOML config: %w", err)
		}
		data = converted
	case ".yaml", ".yml", "":
	default:
		return fmt.Errorf("unsupported config format %q", ext)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return nil
}

// ApplyEnv applies environment variable overrides.
func (c *Config) ApplyEnv() {
	c.Database.ApplyEnv()

	if addr := os.Getenv("OPTIMUS_REDIS_ADDR"); addr != "" {
		c.State.Backend = "redis"
		c.State.Addr = addr
	}
	if pw := os.Getenv("OPTIMUS_REDIS_PASSWORD"); pw != "" {
		c.State.Password = pw
	}
	if addr := os.Getenv("OPTIMUS_SERVER_ADDR"); addr != "" {
		c.Server.Addr = addr
	}
	if level := os.Getenv("OPTIMUS_LOG_LEVEL"); level != "" {
		c.Log.Level = strings.ToLower(level)
	}
}

// Validate runs the struct tag checks and then every semantic check.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	var errs []error
	if err := c.Engine.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Database.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("database: %w", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}
