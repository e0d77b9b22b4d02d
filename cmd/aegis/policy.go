package main

import (
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"aegis-hq/firewall/pkg/cli"
	"aegis-hq/firewall/pkg/policy"
	"aegis-hq/firewall/pkg/server/types"
)

var policySetFlags struct {
	server string
}

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Inspect and validate policy modes",
	Long: `Inspect the effective policy modes and validate policy pack files.

A policy pack is a YAML file that overrides thresholds, action impacts and
mandatory review actions of the built-in modes, or defines new modes.`,
}

var policyShowCmd = &cobra.Command{
	Use:   "show [MODE]",
	Short: "Show the effective configuration of a mode",
	Long: `Show the effective configuration of a policy mode. Without an argument the
configured startup mode is shown.

Examples:
  aegis policy show
  aegis policy show financial-services -o json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPolicyShow,
}

var policyModesCmd = &cobra.Command{
	Use:   "modes",
	Short: "List the available policy modes",
	RunE:  runPolicyModes,
}

var policySetCmd = &cobra.Command{
	Use:   "set MODE",
	Short: "Switch the active mode of a running server",
	Long: `Switch the active policy mode of a running server. Evaluations already in
flight finish under the previous mode.

Examples:
  aegis policy set HEALTHCARE
  aegis policy set legal --server http://10.0.0.5:8700`,
	Args: cobra.ExactArgs(1),
	RunE: runPolicySet,
}

var policyValidateCmd = &cobra.Command{
	Use:   "validate FILE",
	Short: "Validate a policy pack",
	Long: `Validate a policy pack against the built-in catalog and the configured
threshold bounds. Every mode the pack touches is checked.

Examples:
  aegis policy validate policies.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runPolicyValidate,
}

func init() {
	rootCmd.AddCommand(policyCmd)
	policyCmd.AddCommand(policyShowCmd, policyModesCmd, policySetCmd, policyValidateCmd)

	policySetCmd.Flags().StringVar(&policySetFlags.server, "server", "", "server base URL (default: from server.listen_address)")
}

func runPolicyShow(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseOutputFormat(output)
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := buildPolicyStore(cfg)
	if err != nil {
		return err
	}

	mode := store.Snapshot().Mode
	if len(args) == 1 {
		mode = policy.ParseMode(args[0])
	}
	pc, err := store.Lookup(mode)
	if err != nil {
		return cli.NewConfigError("mode", err.Error())
	}

	if format == cli.FormatJSON {
		return cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), pc)
	}
	return cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), policyTable{pc})
}

func runPolicyModes(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseOutputFormat(output)
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := buildPolicyStore(cfg)
	if err != nil {
		return err
	}

	modes := store.Modes()
	if format == cli.FormatJSON {
		return cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), modes)
	}
	return cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), modeList{modes: modes, active: store.Snapshot().Mode})
}

func runPolicySet(cmd *cobra.Command, args []string) error {
	base, err := serverBase(policySetFlags.server)
	if err != nil {
		return err
	}

	var pc policy.Config
	err = callServer(cmd.Context(), "policy set", "mode", http.MethodPut, base+"/v1/policy/mode",
		types.SetModeRequest{Mode: args[0]}, &pc)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Active mode is now %s (policy %s)\n", pc.Mode, pc.Version)
	return nil
}

func runPolicyValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	catalog, err := policy.LoadCatalog(args[0], nil, thresholdBounds(cfg))
	if err != nil {
		return cli.NewConfigError(args[0], err.Error())
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ %s is valid (%d modes)\n", args[0], len(catalog.Modes()))
	return nil
}

// policyTable renders one mode as FIELD/VALUE rows.
type policyTable struct {
	c *policy.Config
}

func (p policyTable) Header() []string {
	return []string{"FIELD", "VALUE"}
}

func (p policyTable) Rows() [][]string {
	c := p.c
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', 3, 64) }

	review := make([]string, 0, len(c.MandatoryReviewActions))
	for _, a := range c.MandatoryReviewActions {
		review = append(review, string(a))
	}
	impacts := make([]string, 0, len(c.ActionImpact))
	for a, w := range c.ActionImpact {
		impacts = append(impacts, string(a)+"="+f(w))
	}
	sort.Strings(impacts)

	return [][]string{
		{"mode", string(c.Mode)},
		{"description", c.Description},
		{"version", c.Version},
		{"tuned", strconv.FormatBool(c.Tuned)},
		{"evidence_confidence", f(c.Thresholds.EvidenceConfidence)},
		{"risk_medium", f(c.Thresholds.RiskMedium)},
		{"risk_high", f(c.Thresholds.RiskHigh)},
		{"weights", fmt.Sprintf("impact=%s confidence=%s evidence=%s",
			f(c.Weights.Impact), f(c.Weights.Confidence), f(c.Weights.Evidence))},
		{"mandatory_review", strings.Join(review, ", ")},
		{"action_impact", strings.Join(impacts, ", ")},
		{"default_impact", f(c.DefaultImpact)},
	}
}

// modeList renders the catalog, marking the active mode.
type modeList struct {
	modes  []*policy.Config
	active policy.Mode
}

func (m modeList) Header() []string {
	return []string{"MODE", "ACTIVE", "RISK_MEDIUM", "RISK_HIGH", "DESCRIPTION"}
}

func (m modeList) Rows() [][]string {
	rows := make([][]string, 0, len(m.modes))
	for _, c := range m.modes {
		active := ""
		if c.Mode == m.active {
			active = "*"
		}
		rows = append(rows, []string{
			string(c.Mode),
			active,
			strconv.FormatFloat(c.Thresholds.RiskMedium, 'f', 2, 64),
			strconv.FormatFloat(c.Thresholds.RiskHigh, 'f', 2, 64),
			c.Description,
		})
	}
	return rows
}
