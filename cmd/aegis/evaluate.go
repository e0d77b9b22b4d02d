package main

import (
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"aegis-hq/firewall/pkg/cli"
	"aegis-hq/firewall/pkg/firewall"
	"aegis-hq/firewall/pkg/policy"
)

var evaluateFlags struct {
	text       string
	file       string
	confidence float64
	action     string
	sources    []string
	mode       string
	failOn     string
}

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Evaluate one AI output offline",
	Long: `Evaluate a single AI output against a policy mode without starting the
server. Nothing is written to the audit trail.

The output text is read from --text, from --file, or from stdin when --file
is "-". With --fail-on the command exits with status 3 when the verdict is at
least as strict as the given level, which makes it usable as a CI gate.

Examples:
  # Ungrounded factual claim
  aegis evaluate --text "Apple was founded in 1976" --confidence 0.92 --action answer

  # Grounded answer in healthcare mode, JSON output
  aegis evaluate --mode HEALTHCARE --file answer.txt --confidence 0.6 \
    --action medical --source https://example.org/guideline -o json

  # Fail the pipeline on anything stricter than ALLOW
  generate | aegis evaluate --file - --confidence 0.8 --action email --fail-on REQUIRE_EVIDENCE`,
	RunE: runEvaluate,
}

func init() {
	rootCmd.AddCommand(evaluateCmd)

	evaluateCmd.Flags().StringVar(&evaluateFlags.text, "text", "", "output text to evaluate")
	evaluateCmd.Flags().StringVarP(&evaluateFlags.file, "file", "f", "", "read output text from file (- for stdin)")
	evaluateCmd.Flags().Float64Var(&evaluateFlags.confidence, "confidence", math.NaN(), "model confidence in [0,1] (required)")
	evaluateCmd.Flags().StringVarP(&evaluateFlags.action, "action", "a", string(firewall.ActionAnswer), "intended action")
	evaluateCmd.Flags().StringArrayVarP(&evaluateFlags.sources, "source", "s", nil, "supporting source (repeatable)")
	evaluateCmd.Flags().StringVarP(&evaluateFlags.mode, "mode", "m", "", "policy mode (defaults to the configured mode)")
	evaluateCmd.Flags().StringVar(&evaluateFlags.failOn, "fail-on", "", "exit 3 when the verdict is at least this strict")
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseOutputFormat(output)
	if err != nil {
		return err
	}

	var failOn firewall.Verdict
	if evaluateFlags.failOn != "" {
		v, ok := firewall.ParseVerdict(evaluateFlags.failOn)
		if !ok {
			return cli.NewConfigError("fail-on", fmt.Sprintf("unknown verdict %q", evaluateFlags.failOn))
		}
		failOn = v
	}

	text, err := readOutputText(cmd.InOrStdin())
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	eng, err := buildEngine(cfg)
	if err != nil {
		return err
	}
	store, err := buildPolicyStore(cfg)
	if err != nil {
		return err
	}

	snapshot := store.Snapshot()
	if evaluateFlags.mode != "" {
		snapshot, err = store.Lookup(policy.ParseMode(evaluateFlags.mode))
		if err != nil {
			return cli.NewConfigError("mode", err.Error())
		}
	}

	req := &firewall.Request{
		OutputText: text,
		Confidence: evaluateFlags.confidence,
		Action:     firewall.NormalizeAction(evaluateFlags.action),
		Sources:    evaluateFlags.sources,
	}
	result, err := eng.Evaluate(req, snapshot)
	if err != nil {
		return cli.NewCommandError("evaluate", err)
	}

	if err := writeResult(cmd.OutOrStdout(), format, result); err != nil {
		return err
	}

	if failOn != "" && result.Verdict.Severity() >= failOn.Severity() {
		return &cli.VerdictError{Verdict: string(result.Verdict), Reason: result.Reason}
	}
	return nil
}

func readOutputText(stdin io.Reader) (string, error) {
	switch {
	case evaluateFlags.file == "-":
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read stdin: %w", err)
		}
		return string(data), nil
	case evaluateFlags.file != "":
		data, err := os.ReadFile(evaluateFlags.file)
		if err != nil {
			return "", fmt.Errorf("failed to read %s: %w", evaluateFlags.file, err)
		}
		return string(data), nil
	default:
		return evaluateFlags.text, nil
	}
}

// verdictTable renders a verdict as FIELD/VALUE rows.
type verdictTable firewall.VerdictResult

func (v verdictTable) Header() []string {
	return []string{"FIELD", "VALUE"}
}

func (v verdictTable) Rows() [][]string {
	rows := [][]string{
		{"verdict", string(v.Verdict)},
		{"reason", v.Reason},
		{"risk_score", strconv.FormatFloat(v.RiskScore, 'f', 3, 64)},
		{"risk_level", string(v.Details.RiskLevel)},
		{"mode", v.Details.Mode},
		{"policy_version", v.Details.PolicyVersion},
		{"decisive_rule", v.Details.DecisiveRule},
		{"claims", fmt.Sprintf("%d (%d factual)", v.Details.ClaimCount, v.Details.FactualClaimCount)},
	}
	if v.ConfidenceAlignment != nil {
		rows = append(rows, []string{"confidence_aligned", strconv.FormatBool(*v.ConfidenceAlignment)})
	}
	if len(v.FailedChecks) > 0 {
		rows = append(rows, []string{"failed_checks", strings.Join(v.FailedChecks, ", ")})
	}
	if v.EscalationReason != "" {
		rows = append(rows, []string{"escalation", v.EscalationReason})
	}
	if len(v.AppliedPolicies) > 0 {
		rows = append(rows, []string{"applied_policies", strings.Join(v.AppliedPolicies, ", ")})
	}
	rows = append(rows, []string{"explanation", v.Explanation})
	return rows
}

func writeResult(w io.Writer, format cli.OutputFormat, result firewall.VerdictResult) error {
	switch format {
	case cli.FormatJSON:
		return cli.NewFormatter(format).FormatTo(w, result)
	case cli.FormatJUnit:
		return cli.NewConfigError("output", "junit output is only supported by the benchmark command")
	default:
		return cli.NewFormatter(format).FormatTo(w, verdictTable(result))
	}
}
