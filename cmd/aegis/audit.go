package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"aegis-hq/firewall/pkg/audit"
	"aegis-hq/firewall/pkg/audit/export"
	"aegis-hq/firewall/pkg/cli"
	"aegis-hq/firewall/pkg/policy"
)

var auditFlags struct {
	timeRange    string
	evaluationID string
	verdict      string
	action       string
	mode         string
	minRisk      float64
	after        int64
	limit        int
	offset       int
	order        string

	format   string
	file     string
	pretty   bool
	progress bool
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Query and verify the audit trail",
	Long: `Query, summarize, verify and export the tamper-evident audit trail.

Every evaluation is recorded with a SHA-256 hash chained to its predecessor,
so any modified or missing record is detected by "aegis audit verify".

Time Range Format:
  RFC3339 interval format: "start/end"
  Example: "2026-03-01T00:00:00Z/2026-03-02T00:00:00Z"`,
}

var auditQueryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query audit records",
	Long: `Query audit records with filters, newest first by default.

Examples:
  # Blocked outputs in healthcare mode
  aegis audit query --verdict BLOCK --mode HEALTHCARE

  # High-risk trades over one day
  aegis audit query --action trade --min-risk 0.7 \
    --time-range "2026-03-01T00:00:00Z/2026-03-02T00:00:00Z"

  # One evaluation as JSON
  aegis audit query --evaluation-id 6f1c... -o json`,
	RunE: runAuditQuery,
}

var auditStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize audit records",
	RunE:  runAuditStats,
}

var auditVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify the audit hash chain",
	Long: `Recompute every record hash and check the chain links. Exits non-zero when
the chain is broken.`,
	RunE: runAuditVerify,
}

var auditExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export audit records",
	Long: `Export audit records as JSON, JSON lines or CSV, oldest first.

Examples:
  # Full archive as JSON lines
  aegis audit export --format jsonl --file audit.jsonl

  # Blocked outputs as CSV on stdout
  aegis audit export --format csv --verdict BLOCK`,
	RunE: runAuditExport,
}

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditQueryCmd, auditStatsCmd, auditVerifyCmd, auditExportCmd)

	for _, c := range []*cobra.Command{auditQueryCmd, auditStatsCmd, auditExportCmd} {
		c.Flags().StringVar(&auditFlags.timeRange, "time-range", "", "time range (RFC3339 interval: start/end)")
		c.Flags().StringVar(&auditFlags.verdict, "verdict", "", "filter by verdict")
		c.Flags().StringVar(&auditFlags.action, "action", "", "filter by intended action")
		c.Flags().StringVar(&auditFlags.mode, "mode", "", "filter by policy mode")
		c.Flags().Float64Var(&auditFlags.minRisk, "min-risk", 0, "minimum risk score")
	}

	auditQueryCmd.Flags().StringVar(&auditFlags.evaluationID, "evaluation-id", "", "filter by evaluation ID")
	auditQueryCmd.Flags().Int64Var(&auditFlags.after, "after", 0, "only records after this sequence")
	auditQueryCmd.Flags().IntVar(&auditFlags.limit, "limit", 100, "max results")
	auditQueryCmd.Flags().IntVar(&auditFlags.offset, "offset", 0, "pagination offset")
	auditQueryCmd.Flags().StringVar(&auditFlags.order, "order", "desc", "sort order by sequence: asc, desc")

	auditExportCmd.Flags().StringVar(&auditFlags.format, "format", "jsonl", "export format: json, jsonl, csv")
	auditExportCmd.Flags().StringVar(&auditFlags.file, "file", "", "output file (default: stdout)")
	auditExportCmd.Flags().BoolVar(&auditFlags.pretty, "pretty", false, "indent JSON output")
	auditExportCmd.Flags().BoolVar(&auditFlags.progress, "progress", false, "show progress on stderr")
}

// buildAuditQuery turns the filter flags into a validated query.
func buildAuditQuery() (*audit.Query, error) {
	q := &audit.Query{
		EvaluationID:  auditFlags.evaluationID,
		Verdict:       auditFlags.verdict,
		Action:        auditFlags.action,
		AfterSequence: auditFlags.after,
		Limit:         auditFlags.limit,
		Offset:        auditFlags.offset,
		Order:         auditFlags.order,
	}
	if auditFlags.mode != "" {
		q.Mode = string(policy.ParseMode(auditFlags.mode))
	}
	if auditFlags.minRisk > 0 {
		minRisk := auditFlags.minRisk
		q.MinRisk = &minRisk
	}
	if auditFlags.timeRange != "" {
		start, end, err := parseTimeRange(auditFlags.timeRange)
		if err != nil {
			return nil, cli.NewConfigError("time-range", err.Error())
		}
		q.StartTime, q.EndTime = &start, &end
	}
	if err := q.Validate(); err != nil {
		return nil, cli.NewConfigError("query", err.Error())
	}
	return q, nil
}

func parseTimeRange(s string) (time.Time, time.Time, error) {
	startStr, endStr, ok := strings.Cut(s, "/")
	if !ok {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid time range format (expected: start/end)")
	}
	start, err := time.Parse(time.RFC3339, startStr)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid start time: %w", err)
	}
	end, err := time.Parse(time.RFC3339, endStr)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid end time: %w", err)
	}
	return start, end, nil
}

// withAuditStore opens the configured audit store for the duration of fn.
func withAuditStore(cmd *cobra.Command, fn func(ctx context.Context, store audit.Storage) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openAuditStorage(cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(cmd.Context(), store)
}

func runAuditQuery(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseOutputFormat(output)
	if err != nil {
		return err
	}
	q, err := buildAuditQuery()
	if err != nil {
		return err
	}

	return withAuditStore(cmd, func(ctx context.Context, store audit.Storage) error {
		records, err := store.Query(ctx, q)
		if err != nil {
			return cli.NewCommandError("audit query", err)
		}
		if format == cli.FormatJSON {
			return cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), map[string]any{
				"count":   len(records),
				"records": records,
			})
		}
		return cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), recordTable(records))
	})
}

func runAuditStats(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseOutputFormat(output)
	if err != nil {
		return err
	}
	auditFlags.limit, auditFlags.offset = 0, 0
	q, err := buildAuditQuery()
	if err != nil {
		return err
	}

	return withAuditStore(cmd, func(ctx context.Context, store audit.Storage) error {
		st, err := store.Stats(ctx, q)
		if err != nil {
			return cli.NewCommandError("audit stats", err)
		}
		if format == cli.FormatJSON {
			return cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), st)
		}
		return cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), statsTable{st})
	})
}

func runAuditVerify(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseOutputFormat(output)
	if err != nil {
		return err
	}
	return withAuditStore(cmd, func(ctx context.Context, store audit.Storage) error {
		report, err := audit.Verify(ctx, store)
		if err != nil {
			return cli.NewCommandError("audit verify", err)
		}
		if format == cli.FormatJSON {
			if err := cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), report); err != nil {
				return err
			}
		} else if report.Valid {
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Audit chain valid (%d records)\n", report.Checked)
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "✗ Audit chain broken at sequence %d: %s\n", report.BrokenAt, report.Reason)
		}
		if err := report.Err(); err != nil {
			return cli.NewCommandError("audit verify", err)
		}
		return nil
	})
}

func runAuditExport(cmd *cobra.Command, args []string) error {
	exporter, err := export.New(auditFlags.format, auditFlags.pretty)
	if err != nil {
		return cli.NewConfigError("format", err.Error())
	}
	auditFlags.limit, auditFlags.offset, auditFlags.order = 0, 0, "asc"
	q, err := buildAuditQuery()
	if err != nil {
		return err
	}

	var w io.Writer = cmd.OutOrStdout()
	if auditFlags.file != "" {
		f, err := os.Create(auditFlags.file)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", auditFlags.file, err)
		}
		defer f.Close()
		w = f
	}

	return withAuditStore(cmd, func(ctx context.Context, store audit.Storage) error {
		var progress cli.ProgressReporter
		if auditFlags.progress {
			total, err := store.Count(ctx, q)
			if err != nil {
				return cli.NewCommandError("audit export", err)
			}
			progress = cli.NewProgressReporter(cmd.ErrOrStderr(), "Exporting", "records")
			progress.Start(total)
		}

		records, errCh, err := store.QueryStream(ctx, q)
		if err != nil {
			return cli.NewCommandError("audit export", err)
		}
		if progress != nil {
			records = countRecords(records, progress.Update)
		}

		if err := exporter.ExportStream(ctx, records, w); err != nil {
			if progress != nil {
				progress.Error(err)
			}
			return cli.NewCommandError("audit export", err)
		}
		if err := <-errCh; err != nil {
			return cli.NewCommandError("audit export", err)
		}
		if progress != nil {
			progress.Finish()
		}
		return nil
	})
}

// countRecords relays records, reporting the running count.
func countRecords(in <-chan *audit.Record, update func(int64)) <-chan *audit.Record {
	out := make(chan *audit.Record)
	go func() {
		defer close(out)
		var n int64
		for r := range in {
			out <- r
			n++
			update(n)
		}
	}()
	return out
}

type recordTable []*audit.Record

func (t recordTable) Header() []string {
	return []string{"SEQ", "TIMESTAMP", "EVALUATION_ID", "MODE", "ACTION", "VERDICT", "RISK", "RULE"}
}

func (t recordTable) Rows() [][]string {
	rows := make([][]string, 0, len(t))
	for _, r := range t {
		rows = append(rows, []string{
			strconv.FormatInt(r.Sequence, 10),
			r.Timestamp.Format(time.RFC3339),
			r.EvaluationID,
			r.Mode,
			r.Action,
			string(r.Result.Verdict),
			strconv.FormatFloat(r.Result.RiskScore, 'f', 3, 64),
			r.Result.Details.DecisiveRule,
		})
	}
	return rows
}

type statsTable struct {
	st *audit.Stats
}

func (t statsTable) Header() []string {
	return []string{"METRIC", "VALUE"}
}

func (t statsTable) Rows() [][]string {
	st := t.st
	rows := [][]string{
		{"total", strconv.FormatInt(st.Total, 10)},
		{"hallucination_blocks", strconv.FormatInt(st.HallucinationBlocks, 10)},
		{"avg_risk", strconv.FormatFloat(st.AvgRisk, 'f', 3, 64)},
		{"min_risk", strconv.FormatFloat(st.MinRisk, 'f', 3, 64)},
		{"max_risk", strconv.FormatFloat(st.MaxRisk, 'f', 3, 64)},
	}
	for _, group := range []struct {
		prefix string
		counts map[string]int64
	}{
		{"verdict", st.ByVerdict},
		{"action", st.ByAction},
		{"mode", st.ByMode},
	} {
		keys := make([]string, 0, len(group.counts))
		for k := range group.counts {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			rows = append(rows, []string{group.prefix + "." + k, strconv.FormatInt(group.counts[k], 10)})
		}
	}
	if st.FirstTimestamp != nil && st.LastTimestamp != nil {
		rows = append(rows,
			[]string{"first", st.FirstTimestamp.Format(time.RFC3339)},
			[]string{"last", st.LastTimestamp.Format(time.RFC3339)},
		)
	}
	return rows
}
