package export

import (
	"context"
	"encoding/csv"
	"io"
	"strconv"
	"strings"
	"time"

	"aegis-hq/firewall/pkg/audit"
)

// CSVExporter exports audit records to CSV. Nested verdict details are
// flattened; use JSON or JSONL for a lossless export.
type CSVExporter struct {
	// IncludeHeader includes a header row with column names.
	IncludeHeader bool
}

// NewCSVExporter creates a new CSV exporter.
func NewCSVExporter(includeHeader bool) *CSVExporter {
	return &CSVExporter{IncludeHeader: includeHeader}
}

// Export writes audit records in CSV format.
func (e *CSVExporter) Export(ctx context.Context, records []*audit.Record, w io.Writer) error {
	writer := csv.NewWriter(w)

	if e.IncludeHeader {
		if err := writer.Write(headerRow); err != nil {
			return audit.NewExportError("csv", len(records), err)
		}
	}
	for _, record := range records {
		if err := writer.Write(recordToRow(record)); err != nil {
			return audit.NewExportError("csv", len(records), err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return audit.NewExportError("csv", len(records), err)
	}
	return nil
}

// ExportStream exports audit records from a channel in CSV format, flushing
// every 100 rows.
func (e *CSVExporter) ExportStream(ctx context.Context, recordsCh <-chan *audit.Record, w io.Writer) error {
	writer := csv.NewWriter(w)

	if e.IncludeHeader {
		if err := writer.Write(headerRow); err != nil {
			return audit.NewExportError("csv", 0, err)
		}
	}

	recordCount := 0
	for {
		select {
		case <-ctx.Done():
			writer.Flush()
			return ctx.Err()

		case record, ok := <-recordsCh:
			if !ok {
				writer.Flush()
				if err := writer.Error(); err != nil {
					return audit.NewExportError("csv", recordCount, err)
				}
				return nil
			}

			if err := writer.Write(recordToRow(record)); err != nil {
				return audit.NewExportError("csv", recordCount, err)
			}
			recordCount++

			if recordCount%100 == 0 {
				writer.Flush()
				if err := writer.Error(); err != nil {
					return audit.NewExportError("csv", recordCount, err)
				}
			}
		}
	}
}

var headerRow = []string{
	"sequence",
	"evaluation_id",
	"timestamp",
	"mode",
	"policy_version",
	"action",
	"confidence",
	"source_count",
	"verdict",
	"risk_score",
	"decisive_rule",
	"failed_checks",
	"applied_policies",
	"escalation_reason",
	"reason",
	"output_hash",
	"prev_hash",
	"hash",
}

func recordToRow(r *audit.Record) []string {
	return []string{
		strconv.FormatInt(r.Sequence, 10),
		r.EvaluationID,
		r.Timestamp.UTC().Format(time.RFC3339Nano),
		r.Mode,
		r.PolicyVersion,
		r.Action,
		strconv.FormatFloat(r.Confidence, 'f', -1, 64),
		strconv.Itoa(r.SourceCount),
		string(r.Result.Verdict),
		strconv.FormatFloat(r.Result.RiskScore, 'f', -1, 64),
		r.Result.Details.DecisiveRule,
		strings.Join(r.Result.FailedChecks, ";"),
		strings.Join(r.Result.AppliedPolicies, ";"),
		r.Result.EscalationReason,
		r.Result.Reason,
		r.OutputHash,
		r.PrevHash,
		r.Hash,
	}
}
