package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"aegis-hq/firewall/pkg/benchmark"
	"aegis-hq/firewall/pkg/cli"
	"aegis-hq/firewall/pkg/firewall"
	"aegis-hq/firewall/pkg/policy"
)

var benchmarkFlags struct {
	mode      string
	cases     string
	failBelow float64
	progress  bool
}

var benchmarkCmd = &cobra.Command{
	Use:   "benchmark",
	Short: "Run the hallucination benchmark offline",
	Long: `Run a suite of known-hallucinated and known-grounded outputs through the
engine and report detection and false positive rates. Nothing is written to
the audit trail and learning is not affected.

A hallucination counts as detected when it is blocked or sent to human
review. A grounded output counts as correct only when allowed.

Examples:
  # Built-in suite against the configured mode
  aegis benchmark

  # Custom suite, JUnit report for CI
  aegis benchmark --cases cases.json --mode FINANCIAL_SERVICES -o junit > report.xml

  # Fail when fewer than 90% of hallucinations are caught
  aegis benchmark --fail-below 0.9`,
	RunE: runBenchmark,
}

func init() {
	rootCmd.AddCommand(benchmarkCmd)

	benchmarkCmd.Flags().StringVarP(&benchmarkFlags.mode, "mode", "m", "", "policy mode (defaults to the configured mode)")
	benchmarkCmd.Flags().StringVar(&benchmarkFlags.cases, "cases", "", "JSON file with benchmark cases (default: built-in suite)")
	benchmarkCmd.Flags().Float64Var(&benchmarkFlags.failBelow, "fail-below", 0, "exit non-zero when the detection rate is below this value")
	benchmarkCmd.Flags().BoolVar(&benchmarkFlags.progress, "progress", false, "show progress on stderr")
}

func runBenchmark(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseOutputFormat(output)
	if err != nil {
		return err
	}

	cases := benchmark.Suite()
	if benchmarkFlags.cases != "" {
		cases, err = loadCases(benchmarkFlags.cases)
		if err != nil {
			return cli.NewConfigError("cases", err.Error())
		}
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
	if benchmarkFlags.mode != "" {
		snapshot, err = store.Lookup(policy.ParseMode(benchmarkFlags.mode))
		if err != nil {
			return cli.NewConfigError("mode", err.Error())
		}
	}

	eval := func(_ context.Context, req *firewall.Request) (firewall.VerdictResult, error) {
		req.Action = firewall.NormalizeAction(string(req.Action))
		return eng.Evaluate(req, snapshot)
	}

	var onCase func(int)
	if benchmarkFlags.progress {
		progress := cli.NewProgressReporter(cmd.ErrOrStderr(), "Benchmark", "cases")
		progress.Start(int64(len(cases)))
		defer progress.Finish()
		onCase = func(done int) { progress.Update(int64(done)) }
	}

	report, err := benchmark.Run(cmd.Context(), eval, cases, onCase)
	if err != nil {
		return cli.NewCommandError("benchmark", err)
	}

	if err := cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), report); err != nil {
		return err
	}
	if format == cli.FormatText {
		fmt.Fprintf(cmd.OutOrStdout(), "\nMode %s: detection %.1f%%, false positives %.1f%%, accuracy %.1f%% (%d cases)\n",
			report.Mode, report.DetectionRate*100, report.FalsePositiveRate*100, report.Accuracy*100, report.Total)
	}

	if benchmarkFlags.failBelow > 0 && report.DetectionRate < benchmarkFlags.failBelow {
		return cli.NewCommandError("benchmark",
			fmt.Errorf("detection rate %.3f is below %.3f", report.DetectionRate, benchmarkFlags.failBelow))
	}
	return nil
}

func loadCases(path string) ([]benchmark.Case, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cases []benchmark.Case
	if err := json.Unmarshal(data, &cases); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if len(cases) == 0 {
		return nil, fmt.Errorf("%s contains no cases", path)
	}
	for i, c := range cases {
		if c.Name == "" {
			return nil, fmt.Errorf("case %d: name is required", i)
		}
	}
	return cases, nil
}
