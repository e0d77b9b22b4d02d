package main

import (
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"aegis-hq/firewall/pkg/cli"
	"aegis-hq/firewall/pkg/learning"
	"aegis-hq/firewall/pkg/policy"
)

var learningFlags struct {
	limit  int
	server string
}

var learningCmd = &cobra.Command{
	Use:   "learning",
	Short: "Inspect outcome learning history",
	Long: `Inspect the persisted outcome learning history: the human decisions reported
for past evaluations and the threshold adjustments made from them.

Live counters are served by the API at /v1/learning/stats.`,
}

var learningStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize reported outcomes per mode and check",
	RunE:  runLearningStats,
}

var learningAdjustmentsCmd = &cobra.Command{
	Use:   "adjustments",
	Short: "List threshold adjustments",
	RunE:  runLearningAdjustments,
}

var learningOutcomesCmd = &cobra.Command{
	Use:   "outcomes",
	Short: "List reported outcomes",
	RunE:  runLearningOutcomes,
}

var learningResetCmd = &cobra.Command{
	Use:   "reset MODE",
	Short: "Discard the learned thresholds of a mode on a running server",
	Long: `Discard the thresholds a running server has learned for a mode and return
to the mode's configured values. Pending outcome counters for the mode are
cleared. The reset is recorded in the learning history, so a restart does not
bring the old thresholds back.

Examples:
  aegis learning reset HEALTHCARE
  aegis learning reset general-ai --server http://10.0.0.5:8700`,
	Args: cobra.ExactArgs(1),
	RunE: runLearningReset,
}

func init() {
	rootCmd.AddCommand(learningCmd)
	learningCmd.AddCommand(learningStatsCmd, learningAdjustmentsCmd, learningOutcomesCmd, learningResetCmd)
	learningCmd.PersistentFlags().IntVar(&learningFlags.limit, "limit", 50, "most recent entries to show (0 for all)")
	learningResetCmd.Flags().StringVar(&learningFlags.server, "server", "", "server base URL (default: from server.listen_address)")
}

func runLearningReset(cmd *cobra.Command, args []string) error {
	base, err := serverBase(learningFlags.server)
	if err != nil {
		return err
	}

	var pc policy.Config
	err = callServer(cmd.Context(), "learning reset", "mode", http.MethodDelete,
		base+"/v1/learning/thresholds/"+url.PathEscape(args[0]), nil, &pc)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Learned thresholds for %s discarded (policy %s)\n", pc.Mode, pc.Version)
	return nil
}

func openLearningHistory() (learning.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return openLearningStore(cfg)
}

func runLearningAdjustments(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseOutputFormat(output)
	if err != nil {
		return err
	}
	store, err := openLearningHistory()
	if err != nil {
		return err
	}
	defer store.Close()

	adjustments, err := store.Adjustments(cmd.Context(), learningFlags.limit)
	if err != nil {
		return cli.NewCommandError("learning adjustments", err)
	}
	if format == cli.FormatJSON {
		return cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), adjustments)
	}
	return cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), adjustmentTable(adjustments))
}

func runLearningOutcomes(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseOutputFormat(output)
	if err != nil {
		return err
	}
	store, err := openLearningHistory()
	if err != nil {
		return err
	}
	defer store.Close()

	outcomes, err := store.Outcomes(cmd.Context(), learningFlags.limit)
	if err != nil {
		return cli.NewCommandError("learning outcomes", err)
	}
	if format == cli.FormatJSON {
		return cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), outcomes)
	}
	return cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), outcomeTable(outcomes))
}

func runLearningStats(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseOutputFormat(output)
	if err != nil {
		return err
	}
	store, err := openLearningHistory()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := cmd.Context()
	outcomes, err := store.Outcomes(ctx, learningFlags.limit)
	if err != nil {
		return cli.NewCommandError("learning stats", err)
	}
	adjustments, err := store.Adjustments(ctx, 0)
	if err != nil {
		return cli.NewCommandError("learning stats", err)
	}

	summary := summarizeOutcomes(outcomes)
	if format == cli.FormatJSON {
		return cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), map[string]any{
			"outcomes":    len(outcomes),
			"adjustments": len(adjustments),
			"checks":      summary,
		})
	}
	return cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), summary)
}

// outcomeSummary counts classifications for one mode and check.
type outcomeSummary struct {
	Mode           string `json:"mode"`
	Check          string `json:"check"`
	Reports        int    `json:"reports"`
	FalsePositives int    `json:"false_positives"`
	FalseNegatives int    `json:"false_negatives"`
	Confirmed      int    `json:"confirmed"`
}

type summaryTable []outcomeSummary

func summarizeOutcomes(outcomes []learning.OutcomeRecord) summaryTable {
	index := make(map[[2]string]*outcomeSummary)
	for _, o := range outcomes {
		key := [2]string{string(o.Mode), string(o.Check)}
		s, ok := index[key]
		if !ok {
			s = &outcomeSummary{Mode: key[0], Check: key[1]}
			index[key] = s
		}
		s.Reports++
		switch o.Classification {
		case learning.FalsePositive:
			s.FalsePositives++
		case learning.FalseNegative:
			s.FalseNegatives++
		case learning.Confirmed:
			s.Confirmed++
		}
	}

	out := make(summaryTable, 0, len(index))
	for _, s := range index {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Mode != out[j].Mode {
			return out[i].Mode < out[j].Mode
		}
		return out[i].Check < out[j].Check
	})
	return out
}

func (t summaryTable) Header() []string {
	return []string{"MODE", "CHECK", "REPORTS", "FALSE_POSITIVES", "FALSE_NEGATIVES", "CONFIRMED"}
}

func (t summaryTable) Rows() [][]string {
	rows := make([][]string, 0, len(t))
	for _, s := range t {
		rows = append(rows, []string{
			s.Mode,
			s.Check,
			strconv.Itoa(s.Reports),
			strconv.Itoa(s.FalsePositives),
			strconv.Itoa(s.FalseNegatives),
			strconv.Itoa(s.Confirmed),
		})
	}
	return rows
}

type adjustmentTable []learning.Adjustment

func (t adjustmentTable) Header() []string {
	return []string{"TIMESTAMP", "MODE", "CHECK", "DIRECTION", "EVIDENCE", "RISK_MEDIUM", "RISK_HIGH", "REASON"}
}

func (t adjustmentTable) Rows() [][]string {
	f := func(from, to float64) string {
		return strconv.FormatFloat(from, 'f', 3, 64) + " -> " + strconv.FormatFloat(to, 'f', 3, 64)
	}
	rows := make([][]string, 0, len(t))
	for _, a := range t {
		rows = append(rows, []string{
			a.Timestamp.Format(time.RFC3339),
			string(a.Mode),
			string(a.Check),
			a.Direction,
			f(a.Old.EvidenceConfidence, a.New.EvidenceConfidence),
			f(a.Old.RiskMedium, a.New.RiskMedium),
			f(a.Old.RiskHigh, a.New.RiskHigh),
			a.Reason,
		})
	}
	return rows
}

type outcomeTable []learning.OutcomeRecord

func (t outcomeTable) Header() []string {
	return []string{"TIMESTAMP", "EVALUATION_ID", "MODE", "VERDICT", "DECISION", "CHECK", "CLASSIFICATION"}
}

func (t outcomeTable) Rows() [][]string {
	rows := make([][]string, 0, len(t))
	for _, o := range t {
		rows = append(rows, []string{
			o.Timestamp.Format(time.RFC3339),
			o.EvaluationID,
			string(o.Mode),
			string(o.OriginalVerdict),
			string(o.HumanDecision),
			string(o.Check),
			string(o.Classification),
		})
	}
	return rows
}
