package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/whatbraddidnext/optimus/internal/infrastructure/db"
)

func newConfigCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Load and validate the configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "configuration valid: %d underlyings %v\n",
				len(cfg.Engine.Underlyings), cfg.Engine.Names())
			return nil
		},
	}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			cfg.Database.DSN = redact(cfg.Database.DSN)
			cfg.State.Password = redact(cfg.State.Password)
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(cfg)
		},
	}

	cmd.AddCommand(validateCmd, showCmd)
	return cmd
}

func redact(secret string) string {
	if secret == "" {
		return ""
	}
	return "[REDACTED]"
}

func newDBCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Decision audit database commands",
	}

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create the decision audit tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			if !cfg.Database.Enabled {
				return errors.New("database is disabled; set database.enabled or OPTIMUS_PG_DSN")
			}
			cfg.Database.Migrate = true

			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()

			m, err := db.NewManager(ctx, cfg.Database)
			if err != nil {
				return err
			}
			defer m.Close()

			log.Info().Msg("Database migration completed")
			return nil
		},
	}

	cmd.AddCommand(migrateCmd)
	return cmd
}
