package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"aegis-hq/firewall/pkg/audit"
	"aegis-hq/firewall/pkg/firewall"
)

func sealedRecords(t *testing.T, n int) []*audit.Record {
	t.Helper()
	var out []*audit.Record
	prevSeq, prevHash := int64(0), audit.GenesisHash
	for i := 1; i <= n; i++ {
		r := &audit.Record{
			EvaluationID: fmt.Sprintf("eval-%d", i),
			Timestamp:    time.Date(2026, 4, 1, 9, 0, i, 0, time.UTC),
			Mode:         "LEGAL",
			Action:       "legal",
			Confidence:   0.8,
			Result: firewall.VerdictResult{
				Verdict:         firewall.VerdictRequireHumanReview,
				Reason:          "review, required",
				RiskScore:       0.6,
				AppliedPolicies: []string{"policy_mode:LEGAL", "rule:mandatory_governance_review"},
				FailedChecks:    []string{firewall.CheckGovernance},
			},
		}
		if err := audit.Seal(r, prevSeq, prevHash); err != nil {
			t.Fatal(err)
		}
		prevSeq, prevHash = r.Sequence, r.Hash
		out = append(out, r)
	}
	return out
}

func stream(records []*audit.Record) <-chan *audit.Record {
	ch := make(chan *audit.Record, len(records))
	for _, r := range records {
		ch <- r
	}
	close(ch)
	return ch
}

func TestJSONExporter(t *testing.T) {
	ctx := context.Background()
	records := sealedRecords(t, 3)

	for _, pretty := range []bool{false, true} {
		t.Run(fmt.Sprintf("pretty=%v", pretty), func(t *testing.T) {
			e := NewJSONExporter(pretty)

			var buf bytes.Buffer
			if err := e.Export(ctx, records, &buf); err != nil {
				t.Fatalf("Export() failed: %v", err)
			}
			var decoded []audit.Record
			if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
				t.Fatalf("invalid JSON: %v", err)
			}
			if len(decoded) != 3 || decoded[2].Hash != records[2].Hash {
				t.Errorf("decoded %d records", len(decoded))
			}

			var sbuf bytes.Buffer
			if err := e.ExportStream(ctx, stream(records), &sbuf); err != nil {
				t.Fatalf("ExportStream() failed: %v", err)
			}
			decoded = nil
			if err := json.Unmarshal(sbuf.Bytes(), &decoded); err != nil {
				t.Fatalf("invalid streamed JSON: %v\n%s", err, sbuf.String())
			}
			if len(decoded) != 3 {
				t.Errorf("streamed %d records", len(decoded))
			}
		})
	}

	var empty bytes.Buffer
	if err := NewJSONExporter(false).Export(ctx, nil, &empty); err != nil || empty.String() != "[]" {
		t.Errorf("empty export = %q, %v", empty.String(), err)
	}
}

func TestJSONLExporter_RoundTripVerifies(t *testing.T) {
	ctx := context.Background()
	records := sealedRecords(t, 4)

	var buf bytes.Buffer
	if err := NewJSONLExporter().ExportStream(ctx, stream(records), &buf); err != nil {
		t.Fatalf("ExportStream() failed: %v", err)
	}
	if lines := strings.Count(buf.String(), "\n"); lines != 4 {
		t.Errorf("lines = %d, want 4", lines)
	}

	back, err := ReadJSONL(&buf)
	if err != nil {
		t.Fatalf("ReadJSONL() failed: %v", err)
	}
	report := audit.VerifyRecords(back)
	if !report.Valid || report.Checked != 4 {
		t.Errorf("archive does not verify: %+v", report)
	}
}

func TestCSVExporter(t *testing.T) {
	ctx := context.Background()
	records := sealedRecords(t, 2)

	var buf bytes.Buffer
	if err := NewCSVExporter(true).Export(ctx, records, &buf); err != nil {
		t.Fatalf("Export() failed: %v", err)
	}

	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("invalid CSV: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want 3", len(rows))
	}
	if rows[0][0] != "sequence" || len(rows[0]) != len(rows[1]) {
		t.Errorf("header = %v", rows[0])
	}
	if rows[1][8] != "REQUIRE_HUMAN_REVIEW" || rows[1][14] != "review, required" {
		t.Errorf("row = %v", rows[1])
	}
	if rows[2][12] != "policy_mode:LEGAL;rule:mandatory_governance_review" {
		t.Errorf("applied_policies = %q", rows[2][12])
	}

	var sbuf bytes.Buffer
	if err := NewCSVExporter(false).ExportStream(ctx, stream(records), &sbuf); err != nil {
		t.Fatalf("ExportStream() failed: %v", err)
	}
	rows, _ = csv.NewReader(&sbuf).ReadAll()
	if len(rows) != 2 {
		t.Errorf("streamed rows = %d, want 2", len(rows))
	}
}

func TestNew(t *testing.T) {
	for _, f := range []string{"json", "JSONL", "ndjson", "csv"} {
		if _, err := New(f, false); err != nil {
			t.Errorf("New(%q) error = %v", f, err)
		}
	}
	if _, err := New("xml", false); err == nil {
		t.Error("New(xml) succeeded")
	}
	if ContentType("csv") != "text/csv" || ContentType("json") != "application/json" {
		t.Error("unexpected content types")
	}
}

func TestExportStream_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ch := make(chan *audit.Record)
	var buf bytes.Buffer
	if err := NewJSONLExporter().ExportStream(ctx, ch, &buf); err != context.Canceled {
		t.Errorf("ExportStream() error = %v, want context.Canceled", err)
	}
}
