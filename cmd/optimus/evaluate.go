package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/whatbraddidnext/optimus/internal/engine"
	"github.com/whatbraddidnext/optimus/internal/ledger"
)

// cycleFile is one pre-fetched evaluation: optional open positions, a scan
// tick and a management tick. Either tick may be omitted.
type cycleFile struct {
	Positions []ledger.Position   `json:"positions"`
	Scan      *engine.ScanInput   `json:"scan"`
	Manage    *engine.ManageInput `json:"manage"`
}

// evaluateOutput is printed to stdout.
type evaluateOutput struct {
	Scan   *engine.ScanReport   `json:"scan,omitempty"`
	Manage *engine.ManageReport `json:"manage,omitempty"`
	Status engine.Status        `json:"status"`
}

// readCycle accepts JSON or YAML. YAML is decoded generically and re-encoded
// as JSON so both formats share the JSON field names and Reading codec.
func readCycle(path string) (*cycleFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read cycle file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
	case ".yaml", ".yml":
		var doc interface{}
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse cycle YAML: %w", err)
		}
		if data, err = json.Marshal(doc); err != nil {
			return nil, fmt.Errorf("failed to convert cycle YAML: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported cycle format %q", filepath.Ext(path))
	}

	var cycle cycleFile
	if err := json.Unmarshal(data, &cycle); err != nil {
		return nil, fmt.Errorf("failed to decode cycle: %w", err)
	}
	if cycle.Scan == nil && cycle.Manage == nil {
		return nil, fmt.Errorf("cycle file %s has neither scan nor manage input", path)
	}
	return &cycle, nil
}

func newEvaluateCmd(flags *globalFlags) *cobra.Command {
	var (
		cyclePath string
		timeout   time.Duration
		compact   bool
	)

	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Run one scan and management tick over a cycle file",
		Long: `Loads open positions, snapshots, option chains and marks from a cycle
file, runs the scan cycle and then the management tick against the paper
gateway, and prints both reports with the resulting engine status as JSON.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			cycle, err := readCycle(cyclePath)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			a, err := newApp(ctx, cfg, cycle.Positions)
			if err != nil {
				return err
			}
			defer a.Close()

			out := evaluateOutput{}
			if cycle.Scan != nil {
				if out.Scan, err = a.engine.Scan(ctx, *cycle.Scan); err != nil {
					return fmt.Errorf("scan failed: %w", err)
				}
			}
			if cycle.Manage != nil {
				if out.Manage, err = a.engine.Manage(ctx, *cycle.Manage); err != nil {
					return fmt.Errorf("manage failed: %w", err)
				}
			}
			out.Status = a.engine.Status()

			enc := json.NewEncoder(cmd.OutOrStdout())
			if !compact {
				enc.SetIndent("", "  ")
			}
			if err := enc.Encode(out); err != nil {
				return fmt.Errorf("failed to write report: %w", err)
			}

			log.Info().
				Str("cycle", cyclePath).
				Int("open_positions", out.Status.OpenCount).
				Str("halt", out.Status.Governor.Halt.String()).
				Msg("Evaluation completed")
			return nil
		},
	}

	cmd.Flags().StringVar(&cyclePath, "cycle", "", "Cycle file (.json, .yaml or .yml)")
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "Overall evaluation timeout")
	cmd.Flags().BoolVar(&compact, "compact", false, "Print single-line JSON")
	_ = cmd.MarkFlagRequired("cycle")
	return cmd
}
