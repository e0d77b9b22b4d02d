package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"aegis-hq/firewall/pkg/cli"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration",
	Long: `Load the configuration file and check everything the server would build
from it: claim and safety patterns, the policy pack and startup mode, the
integrity schedules and the learning parameters. No storage is opened.

Examples:
  aegis validate --config /etc/aegis/config.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()

	if _, err := buildEngine(cfg); err != nil {
		return err
	}
	store, err := buildPolicyStore(cfg)
	if err != nil {
		return err
	}
	if err := integrityConfig(cfg).Validate(); err != nil {
		return cli.NewConfigError("audit.integrity", err.Error())
	}
	if err := learnerConfig(cfg).Validate(); err != nil {
		return cli.NewConfigError("learning", err.Error())
	}

	if verbose {
		fmt.Fprintf(w, "  config:    %s\n", cfgFile)
		fmt.Fprintf(w, "  mode:      %s\n", store.Snapshot().Mode)
		fmt.Fprintf(w, "  modes:     %d\n", len(store.Modes()))
		if cfg.Policy.PackPath != "" {
			fmt.Fprintf(w, "  pack:      %s\n", cfg.Policy.PackPath)
		}
		fmt.Fprintf(w, "  audit:     %s\n", auditBackend(cfg.Audit.Backend))
		fmt.Fprintf(w, "  learning:  %t\n", cfg.Learning.IsEnabled())
	}
	fmt.Fprintln(w, "✓ Configuration valid")
	return nil
}

func auditBackend(b string) string {
	if b == "" {
		return "sqlite"
	}
	return b
}
