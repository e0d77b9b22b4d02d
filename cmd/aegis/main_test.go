package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"aegis-hq/firewall/pkg/audit"
	"aegis-hq/firewall/pkg/cli"
	"aegis-hq/firewall/pkg/config"
	"aegis-hq/firewall/pkg/firewall"
	"aegis-hq/firewall/pkg/learning"
	"aegis-hq/firewall/pkg/policy"
	"aegis-hq/firewall/pkg/service"
)

// useConfig installs a default configuration with storage under a temp
// directory and resets every command flag.
func useConfig(t *testing.T, mutate func(cfg *config.Config)) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfgFile = filepath.Join(dir, "missing.yaml")
	if err := config.Initialize(cfgFile); err != nil {
		t.Fatalf("Initialize() failed: %v", err)
	}

	cfg := config.NewDefaultConfig()
	cfg.Audit.SQLite.Path = filepath.Join(dir, "audit.db")
	cfg.Learning.StorePath = filepath.Join(dir, "learning.db")
	if mutate != nil {
		mutate(cfg)
	}
	config.SetConfig(cfg)

	output = "text"
	verbose = false
	evaluateFlags.text, evaluateFlags.file, evaluateFlags.sources = "", "", nil
	evaluateFlags.confidence, evaluateFlags.action = math.NaN(), string(firewall.ActionAnswer)
	evaluateFlags.mode, evaluateFlags.failOn = "", ""
	auditFlags.timeRange, auditFlags.evaluationID, auditFlags.verdict = "", "", ""
	auditFlags.action, auditFlags.mode, auditFlags.minRisk = "", "", 0
	auditFlags.after, auditFlags.limit, auditFlags.offset, auditFlags.order = 0, 100, 0, "desc"
	auditFlags.format, auditFlags.file, auditFlags.pretty, auditFlags.progress = "jsonl", "", false, false
	benchmarkFlags.mode, benchmarkFlags.cases, benchmarkFlags.failBelow, benchmarkFlags.progress = "", "", 0, false
	learningFlags.limit, learningFlags.server = 50, ""
	return cfg
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetIn(strings.NewReader(""))
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

func TestEvaluateCommand(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		contains []string
		exit     int
	}{
		{
			name:     "ungrounded claim is blocked",
			args:     []string{"evaluate", "--text", "Apple was founded in 1976", "--confidence", "0.92"},
			contains: []string{"verdict", "BLOCK"},
		},
		{
			name:     "grounded opinion is allowed",
			args:     []string{"evaluate", "--text", "I think this approach is elegant", "--confidence", "0.3", "-s", "x"},
			contains: []string{"ALLOW"},
		},
		{
			name: "fail-on trips at block",
			args: []string{"evaluate", "--text", "Apple was founded in 1976", "--confidence", "0.92", "--fail-on", "REQUIRE_EVIDENCE"},
			exit: 3,
		},
		{
			name: "missing confidence",
			args: []string{"evaluate", "--text", "hello"},
			exit: 1,
		},
		{
			name: "unknown fail-on",
			args: []string{"evaluate", "--text", "hello", "--confidence", "0.5", "--fail-on", "MAYBE"},
			exit: 2,
		},
		{
			name: "unknown mode",
			args: []string{"evaluate", "--text", "hello", "--confidence", "0.5", "--mode", "nope"},
			exit: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			useConfig(t, nil)
			out, err := execute(t, tt.args...)
			if got := cli.ExitCode(err); err != nil && got != tt.exit || err == nil && tt.exit != 0 {
				t.Fatalf("exit code = %d (err %v), want %d", got, err, tt.exit)
			}
			for _, s := range tt.contains {
				if !strings.Contains(out, s) {
					t.Errorf("output missing %q:\n%s", s, out)
				}
			}
		})
	}
}

func TestEvaluateCommand_JSONFromFile(t *testing.T) {
	useConfig(t, nil)
	path := filepath.Join(t.TempDir(), "answer.txt")
	if err := os.WriteFile(path, []byte("Apple was founded in 1976"), 0o600); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, "evaluate", "-f", path, "--confidence", "0.92", "-o", "json")
	if err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}
	var result firewall.VerdictResult
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("invalid JSON output: %v\n%s", err, out)
	}
	if result.Verdict != firewall.VerdictBlock {
		t.Errorf("Verdict = %s, want BLOCK", result.Verdict)
	}
	if result.Details.Mode != string(policy.ModeGeneralAI) {
		t.Errorf("Mode = %s, want %s", result.Details.Mode, policy.ModeGeneralAI)
	}
}

func TestPolicyCommands(t *testing.T) {
	t.Run("modes", func(t *testing.T) {
		useConfig(t, nil)
		out, err := execute(t, "policy", "modes")
		if err != nil {
			t.Fatalf("policy modes failed: %v", err)
		}
		for _, m := range []string{"GENERAL_AI", "FINANCIAL_SERVICES", "HEALTHCARE", "LEGAL"} {
			if !strings.Contains(out, m) {
				t.Errorf("output missing %s:\n%s", m, out)
			}
		}
	})

	t.Run("show", func(t *testing.T) {
		useConfig(t, nil)
		out, err := execute(t, "policy", "show", "healthcare", "-o", "json")
		if err != nil {
			t.Fatalf("policy show failed: %v", err)
		}
		var pc policy.Config
		if err := json.Unmarshal([]byte(out), &pc); err != nil {
			t.Fatalf("invalid JSON output: %v", err)
		}
		if pc.Mode != policy.ModeHealthcare {
			t.Errorf("Mode = %s, want HEALTHCARE", pc.Mode)
		}
	})

	t.Run("validate missing file", func(t *testing.T) {
		useConfig(t, nil)
		_, err := execute(t, "policy", "validate", filepath.Join(t.TempDir(), "none.yaml"))
		if cli.ExitCode(err) != 2 {
			t.Errorf("exit code = %d, want 2 (err %v)", cli.ExitCode(err), err)
		}
	})
}

func TestBenchmarkCommand(t *testing.T) {
	useConfig(t, nil)
	out, err := execute(t, "benchmark", "-o", "json")
	if err != nil {
		t.Fatalf("benchmark failed: %v", err)
	}
	var report struct {
		Total         int     `json:"total_tests"`
		DetectionRate float64 `json:"detection_rate"`
	}
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("invalid JSON output: %v", err)
	}
	if report.Total == 0 {
		t.Error("expected benchmark cases")
	}

	useConfig(t, nil)
	_, err = execute(t, "benchmark", "--fail-below", "1.1")
	if err == nil {
		t.Error("expected failure when detection rate is below threshold")
	}
}

func TestBenchmarkCommand_CustomCases(t *testing.T) {
	useConfig(t, nil)
	path := filepath.Join(t.TempDir(), "cases.json")
	cases := `[{"name":"opinion","request":{"output_text":"I think this approach is elegant","confidence":0.3,"intended_action":"ANSWER","sources":["x"]}}]`
	if err := os.WriteFile(path, []byte(cases), 0o600); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, "benchmark", "--cases", path, "-o", "csv")
	if err != nil {
		t.Fatalf("benchmark failed: %v", err)
	}
	if !strings.Contains(out, "opinion") || !strings.Contains(out, "ALLOW") {
		t.Errorf("unexpected output:\n%s", out)
	}
}

// seedAudit appends n sealed records to the configured audit store.
func seedAudit(t *testing.T, cfg *config.Config, n int) {
	t.Helper()
	store, err := openAuditStorage(cfg)
	if err != nil {
		t.Fatalf("openAuditStorage() failed: %v", err)
	}
	defer store.Close()

	prevSeq, prevHash := int64(0), audit.GenesisHash
	for i := 1; i <= n; i++ {
		verdict := firewall.VerdictAllow
		if i%2 == 0 {
			verdict = firewall.VerdictBlock
		}
		r := &audit.Record{
			EvaluationID: fmt.Sprintf("eval-%d", i),
			Timestamp:    time.Date(2026, 3, 1, 0, 0, i, 0, time.UTC),
			Mode:         "GENERAL_AI",
			Action:       "answer",
			Confidence:   0.5,
			Result: firewall.VerdictResult{
				Verdict:      verdict,
				RiskScore:    0.25,
				FailedChecks: []string{},
			},
		}
		if err := audit.Seal(r, prevSeq, prevHash); err != nil {
			t.Fatalf("Seal() failed: %v", err)
		}
		if err := store.Append(context.Background(), r); err != nil {
			t.Fatalf("Append() failed: %v", err)
		}
		prevSeq, prevHash = r.Sequence, r.Hash
	}
}

func TestAuditCommands(t *testing.T) {
	t.Run("query", func(t *testing.T) {
		cfg := useConfig(t, nil)
		seedAudit(t, cfg, 4)
		out, err := execute(t, "audit", "query", "--verdict", "BLOCK", "-o", "json")
		if err != nil {
			t.Fatalf("audit query failed: %v", err)
		}
		var resp struct {
			Count   int             `json:"count"`
			Records []*audit.Record `json:"records"`
		}
		if err := json.Unmarshal([]byte(out), &resp); err != nil {
			t.Fatalf("invalid JSON output: %v", err)
		}
		if resp.Count != 2 || resp.Records[0].EvaluationID != "eval-4" {
			t.Errorf("unexpected result: count=%d first=%s", resp.Count, resp.Records[0].EvaluationID)
		}
	})

	t.Run("query invalid time range", func(t *testing.T) {
		useConfig(t, nil)
		_, err := execute(t, "audit", "query", "--time-range", "yesterday")
		if cli.ExitCode(err) != 2 {
			t.Errorf("exit code = %d, want 2", cli.ExitCode(err))
		}
	})

	t.Run("stats", func(t *testing.T) {
		cfg := useConfig(t, nil)
		seedAudit(t, cfg, 3)
		out, err := execute(t, "audit", "stats")
		if err != nil {
			t.Fatalf("audit stats failed: %v", err)
		}
		if !strings.Contains(out, "verdict.ALLOW") || !strings.Contains(out, "total") {
			t.Errorf("unexpected output:\n%s", out)
		}
	})

	t.Run("verify", func(t *testing.T) {
		cfg := useConfig(t, nil)
		seedAudit(t, cfg, 3)
		out, err := execute(t, "audit", "verify")
		if err != nil {
			t.Fatalf("audit verify failed: %v", err)
		}
		if !strings.Contains(out, "valid (3 records)") {
			t.Errorf("unexpected output:\n%s", out)
		}
	})

	t.Run("export", func(t *testing.T) {
		cfg := useConfig(t, nil)
		seedAudit(t, cfg, 3)
		path := filepath.Join(t.TempDir(), "audit.jsonl")
		if _, err := execute(t, "audit", "export", "--file", path, "--progress"); err != nil {
			t.Fatalf("audit export failed: %v", err)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatal(err)
		}
		lines := strings.Split(strings.TrimSpace(string(data)), "\n")
		if len(lines) != 3 {
			t.Fatalf("exported %d lines, want 3", len(lines))
		}
		if !strings.Contains(lines[0], `"eval-1"`) {
			t.Errorf("export not oldest first: %s", lines[0])
		}
	})

	t.Run("export unknown format", func(t *testing.T) {
		useConfig(t, nil)
		_, err := execute(t, "audit", "export", "--format", "xml")
		if cli.ExitCode(err) != 2 {
			t.Errorf("exit code = %d, want 2", cli.ExitCode(err))
		}
	})
}

func TestLearningCommands(t *testing.T) {
	cfg := useConfig(t, nil)

	store, err := openLearningStore(cfg)
	if err != nil {
		t.Fatalf("openLearningStore() failed: %v", err)
	}
	ctx := context.Background()
	adj := learning.Adjustment{
		Mode:      policy.ModeGeneralAI,
		Check:     learning.CheckRiskHigh,
		Direction: "relax",
		Old:       policy.Thresholds{EvidenceConfidence: 0.7, RiskMedium: 0.4, RiskHigh: 0.7},
		New:       policy.Thresholds{EvidenceConfidence: 0.7, RiskMedium: 0.4, RiskHigh: 0.72},
		Reason:    "false positive rate above sensitivity",
		Timestamp: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}
	if err := store.RecordAdjustment(ctx, adj); err != nil {
		t.Fatalf("RecordAdjustment() failed: %v", err)
	}
	for i, c := range []learning.Classification{learning.FalsePositive, learning.FalsePositive, learning.Confirmed} {
		rec := learning.OutcomeRecord{
			EvaluationID:    fmt.Sprintf("eval-%d", i),
			Mode:            policy.ModeGeneralAI,
			OriginalVerdict: firewall.VerdictRequireHumanReview,
			DecisiveRule:    "risk_high",
			HumanDecision:   learning.DecisionAllow,
			Check:           learning.CheckRiskHigh,
			Classification:  c,
			Timestamp:       time.Date(2026, 3, 1, 0, 0, i, 0, time.UTC),
		}
		if err := store.RecordOutcome(ctx, rec); err != nil {
			t.Fatalf("RecordOutcome() failed: %v", err)
		}
	}
	store.Close()

	out, err := execute(t, "learning", "adjustments")
	if err != nil {
		t.Fatalf("learning adjustments failed: %v", err)
	}
	if !strings.Contains(out, "0.700 -> 0.720") {
		t.Errorf("unexpected output:\n%s", out)
	}

	out, err = execute(t, "learning", "outcomes", "-o", "json")
	if err != nil {
		t.Fatalf("learning outcomes failed: %v", err)
	}
	var outcomes []learning.OutcomeRecord
	if err := json.Unmarshal([]byte(out), &outcomes); err != nil || len(outcomes) != 3 {
		t.Fatalf("outcomes = %d (err %v), want 3", len(outcomes), err)
	}

	out, err = execute(t, "learning", "stats", "-o", "json")
	if err != nil {
		t.Fatalf("learning stats failed: %v", err)
	}
	var stats struct {
		Adjustments int              `json:"adjustments"`
		Checks      []outcomeSummary `json:"checks"`
	}
	if err := json.Unmarshal([]byte(out), &stats); err != nil {
		t.Fatalf("invalid JSON output: %v", err)
	}
	if stats.Adjustments != 1 || len(stats.Checks) != 1 || stats.Checks[0].FalsePositives != 2 || stats.Checks[0].Confirmed != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestValidateCommand(t *testing.T) {
	useConfig(t, nil)
	out, err := execute(t, "validate", "-v")
	if err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	if !strings.Contains(out, "Configuration valid") || !strings.Contains(out, "GENERAL_AI") {
		t.Errorf("unexpected output:\n%s", out)
	}

	useConfig(t, func(cfg *config.Config) {
		cfg.Audit.Integrity.VerifySchedule = "every now and then"
	})
	_, err = execute(t, "validate")
	var cfgErr *cli.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Errorf("expected ConfigError, got %v", err)
	}
}

func TestRunDryRun(t *testing.T) {
	useConfig(t, nil)
	runFlags.dryRun, runFlags.mode = true, "legal"
	defer func() { runFlags.dryRun, runFlags.mode = false, "" }()

	out, err := execute(t, "run", "--dry-run")
	if err != nil {
		t.Fatalf("run --dry-run failed: %v", err)
	}
	if !strings.Contains(out, "mode LEGAL") {
		t.Errorf("unexpected output:\n%s", out)
	}
}

func TestPolicySetCommand(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != "/v1/policy/mode" {
			http.NotFound(w, r)
			return
		}
		var body struct {
			Mode string `json:"mode"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		got = body.Mode
		if body.Mode == "nope" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":{"message":"unknown policy mode NOPE","type":"invalid_request_error","code":"unknown_mode"}}`))
			return
		}
		_ = json.NewEncoder(w).Encode(policy.Config{Mode: policy.ModeHealthcare, Version: "abc"})
	}))
	defer srv.Close()

	useConfig(t, nil)
	defer func() { policySetFlags.server = "" }()

	out, err := execute(t, "policy", "set", "healthcare", "--server", srv.URL)
	if err != nil {
		t.Fatalf("policy set failed: %v", err)
	}
	if got != "healthcare" || !strings.Contains(out, "HEALTHCARE") {
		t.Errorf("sent %q, output:\n%s", got, out)
	}

	_, err = execute(t, "policy", "set", "nope", "--server", srv.URL)
	if cli.ExitCode(err) != 2 || !strings.Contains(err.Error(), "unknown policy mode") {
		t.Errorf("expected config error, got %v", err)
	}
}

func TestLearningResetCommand(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			http.NotFound(w, r)
			return
		}
		paths = append(paths, r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/v1/learning/thresholds/healthcare":
			_ = json.NewEncoder(w).Encode(policy.Config{Mode: policy.ModeHealthcare, Version: "def"})
		case "/v1/learning/thresholds/legal":
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":{"message":"outcome learning is not configured","type":"service_unavailable","code":"learning_disabled"}}`))
		default:
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":{"message":"unknown policy mode NOPE","type":"invalid_request_error","code":"unknown_mode"}}`))
		}
	}))
	defer srv.Close()

	useConfig(t, nil)

	out, err := execute(t, "learning", "reset", "healthcare", "--server", srv.URL)
	if err != nil {
		t.Fatalf("learning reset failed: %v", err)
	}
	if !strings.Contains(out, "HEALTHCARE") || !strings.Contains(out, "discarded") {
		t.Errorf("output:\n%s", out)
	}

	_, err = execute(t, "learning", "reset", "nope", "--server", srv.URL)
	if cli.ExitCode(err) != 2 || !strings.Contains(err.Error(), "unknown policy mode") {
		t.Errorf("expected config error, got %v", err)
	}

	_, err = execute(t, "learning", "reset", "legal", "--server", srv.URL)
	if cli.ExitCode(err) != 1 || !strings.Contains(err.Error(), "not configured") {
		t.Errorf("expected command error, got %v", err)
	}
	if len(paths) != 3 {
		t.Errorf("requests = %v", paths)
	}
}

func TestReloadConfig(t *testing.T) {
	cfg := useConfig(t, nil)
	eng, err := buildEngine(cfg)
	if err != nil {
		t.Fatal(err)
	}
	store, err := buildPolicyStore(cfg)
	if err != nil {
		t.Fatal(err)
	}
	svc, err := service.New(service.Options{Engine: eng, Policy: store})
	if err != nil {
		t.Fatal(err)
	}

	cfgFile = filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(cfgFile, []byte("policy:\n  mode: \"HEALTHCARE\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := reloadConfig(svc, nil); err != nil {
		t.Fatalf("reloadConfig() error = %v", err)
	}
	if got := svc.GetPolicyMode().Mode; got != policy.ModeHealthcare {
		t.Errorf("mode after reload = %s, want HEALTHCARE", got)
	}
	if got := config.GetConfig().Policy.Mode; got != "HEALTHCARE" {
		t.Errorf("installed config mode = %q", got)
	}

	if err := os.WriteFile(cfgFile, []byte("learning:\n  step: 3\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := reloadConfig(svc, nil); err == nil {
		t.Fatal("reloadConfig() with invalid file error = nil")
	}
	if got := svc.GetPolicyMode().Mode; got != policy.ModeHealthcare {
		t.Errorf("failed reload changed mode to %s", got)
	}
}
