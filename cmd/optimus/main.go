package main

import (
	"fmt"
	"os"
	"time"
	_ "time/tzdata"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/whatbraddidnext/optimus/internal/config"
)

const (
	appName = "optimus"
	version = "v0.4.0"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	logLevel   string
	console    bool
}

func (g *globalFlags) register(fs *pflag.FlagSet) {
	fs.StringVarP(&g.configPath, "config", "c", "", "Config file (.yaml, .yml or .toml); defaults when empty")
	fs.StringVar(&g.logLevel, "log-level", "", "Override log level (trace|debug|info|warn|error)")
	fs.BoolVar(&g.console, "console", false, "Force human-readable console logs")
}

// load reads the config and configures the global logger from it.
func (g *globalFlags) load() (*config.Config, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, err
	}
	if g.logLevel != "" {
		cfg.Log.Level = g.logLevel
	}
	if g.console {
		cfg.Log.Console = true
	}
	setupLogging(cfg.Log)
	return cfg, nil
}

func setupLogging(cfg config.LogConfig) {
	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.SetGlobalLevel(cfg.ZerologLevel())
	if cfg.Console || term.IsTerminal(int(os.Stderr.Fd())) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
		return
	}
	log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Decision core for a defined-risk premium-selling strategy",
		Version: version,
		Long: `Optimus classifies each underlying's volatility regime, runs the entry
gate pipeline, scores conviction, sizes positions and applies the portfolio
risk governor. Market data arrives pre-computed in cycle files; orders go to
the paper gateway.`,
		SilenceUsage: true,
	}
	flags.register(rootCmd.PersistentFlags())

	rootCmd.AddCommand(
		newEvaluateCmd(flags),
		newServeCmd(flags),
		newConfigCmd(flags),
		newDBCmd(flags),
	)
	return rootCmd
}

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
