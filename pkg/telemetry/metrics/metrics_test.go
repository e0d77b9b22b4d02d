package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"aegis-hq/firewall/pkg/config"
)

func testConfig() *config.MetricsConfig {
	return &config.MetricsConfig{
		Enabled:   true,
		Namespace: "test",
		Subsystem: "fw",
	}
}

func TestCollector_NewCollectorDefaults(t *testing.T) {
	cfg := &config.MetricsConfig{Enabled: true}
	c := NewCollector(cfg, nil)

	if c.Registry() == nil {
		t.Fatal("expected a registry")
	}
	if cfg.Namespace != "aegis" || cfg.Subsystem != "firewall" {
		t.Errorf("defaults not applied: %s/%s", cfg.Namespace, cfg.Subsystem)
	}
	if len(cfg.EvaluationDurationBuckets) == 0 || len(cfg.RiskScoreBuckets) != 10 {
		t.Errorf("bucket defaults not applied: %v %v", cfg.EvaluationDurationBuckets, cfg.RiskScoreBuckets)
	}
}

func TestCollector_RecordEvaluation(t *testing.T) {
	c := NewCollector(testConfig(), prometheus.NewRegistry())

	c.RecordEvaluation("GENERAL_AI", "answer", "ALLOW", "default_allow", nil, 0.2, false, time.Millisecond)
	c.RecordEvaluation("GENERAL_AI", "answer", "BLOCK", "ungrounded_factual_claim",
		[]string{"evidence_sufficiency", "confidence_alignment"}, 0.7, true, time.Millisecond)
	c.RecordEvaluation("GENERAL_AI", "trade", "REQUIRE_HUMAN_REVIEW", "mandatory_governance_review", nil, 0.5, false, time.Millisecond)

	if got := testutil.ToFloat64(c.evaluations.evaluationsTotal.WithLabelValues("GENERAL_AI", "answer", "BLOCK")); got != 1 {
		t.Errorf("BLOCK evaluations = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(c.evaluations.evaluationsTotal); got != 3 {
		t.Errorf("evaluation series = %d, want 3", got)
	}
	if got := testutil.ToFloat64(c.evaluations.failedChecks.WithLabelValues("GENERAL_AI", "evidence_sufficiency")); got != 1 {
		t.Errorf("failed evidence checks = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.evaluations.hallucinations.WithLabelValues("GENERAL_AI")); got != 1 {
		t.Errorf("hallucination blocks = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.evaluations.decisiveRules.WithLabelValues("GENERAL_AI", "mandatory_governance_review")); got != 1 {
		t.Errorf("governance decisions = %v, want 1", got)
	}
}

func TestCollector_ActionCardinality(t *testing.T) {
	c := NewCollector(testConfig(), prometheus.NewRegistry())
	c.actionLimiter = NewCardinalityLimiter(1)

	c.RecordEvaluation("LEGAL", "answer", "ALLOW", "default_allow", nil, 0.1, false, 0)
	c.RecordEvaluation("LEGAL", "wire_transfer", "ALLOW", "default_allow", nil, 0.1, false, 0)

	if got := testutil.ToFloat64(c.evaluations.evaluationsTotal.WithLabelValues("LEGAL", "other", "ALLOW")); got != 1 {
		t.Errorf("overflow action not folded into other: %v", got)
	}
}

func TestCollector_Disabled(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false
	c := NewCollector(cfg, prometheus.NewRegistry())

	c.RecordEvaluation("GENERAL_AI", "answer", "ALLOW", "default_allow", nil, 0.1, false, 0)
	c.RecordAuditFailure()
	if err := c.RegisterGaugeFunc("x", "x", func() float64 { return 1 }); err != nil {
		t.Fatal(err)
	}

	if got := testutil.CollectAndCount(c.evaluations.evaluationsTotal); got != 0 {
		t.Errorf("disabled collector recorded %d series", got)
	}
	if got := testutil.ToFloat64(c.audit.failures); got != 0 {
		t.Errorf("disabled collector recorded audit failures: %v", got)
	}

	var nilCollector *Collector
	nilCollector.RecordValidationError("confidence")
}

func TestCollector_Audit(t *testing.T) {
	c := NewCollector(testConfig(), prometheus.NewRegistry())

	c.RecordAuditAppend()
	c.RecordAuditAppend()
	c.RecordAuditFailure()
	c.SetAuditPending(7)
	c.RecordChainVerification(true, 42)
	c.RecordChainVerification(false, 10)

	if got := testutil.ToFloat64(c.audit.appended); got != 2 {
		t.Errorf("appended = %v", got)
	}
	if got := testutil.ToFloat64(c.audit.pending); got != 7 {
		t.Errorf("pending = %v", got)
	}
	if got := testutil.ToFloat64(c.audit.verifications.WithLabelValues("broken")); got != 1 {
		t.Errorf("broken verifications = %v", got)
	}
	if got := testutil.ToFloat64(c.audit.verified); got != 10 {
		t.Errorf("verified records = %v", got)
	}
}

func TestCollector_LearningAndPolicy(t *testing.T) {
	c := NewCollector(testConfig(), prometheus.NewRegistry())

	c.RecordOutcome("HEALTHCARE", "risk_medium", "false_positive")
	c.RecordAdjustment("HEALTHCARE", "risk_medium", "relax", 0.8, 0.35, 0.5)
	c.SetActiveMode("LEGAL", []string{"GENERAL_AI", "LEGAL"})
	c.SetActiveMode("GENERAL_AI", []string{"GENERAL_AI", "LEGAL"})
	c.RecordModeChange("LEGAL", "GENERAL_AI")
	c.RecordPolicyReload(true)
	c.RecordPolicyReload(false)

	if got := testutil.ToFloat64(c.learning.thresholds.WithLabelValues("HEALTHCARE", "risk_medium")); got != 0.35 {
		t.Errorf("risk_medium threshold = %v", got)
	}
	if got := testutil.ToFloat64(c.learning.adjustments.WithLabelValues("HEALTHCARE", "risk_medium", "relax")); got != 1 {
		t.Errorf("adjustments = %v", got)
	}
	if got := testutil.ToFloat64(c.policy.activeMode.WithLabelValues("LEGAL")); got != 0 {
		t.Errorf("LEGAL active = %v, want 0", got)
	}
	if got := testutil.ToFloat64(c.policy.activeMode.WithLabelValues("GENERAL_AI")); got != 1 {
		t.Errorf("GENERAL_AI active = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.policy.reloads.WithLabelValues("error")); got != 1 {
		t.Errorf("failed reloads = %v", got)
	}
}

func TestCollector_HandlerExposesMetrics(t *testing.T) {
	c := NewCollector(testConfig(), prometheus.NewRegistry())
	c.RecordHTTPRequest("/v1/evaluate", http.MethodPost, http.StatusOK, 3*time.Millisecond)
	c.RecordRateLimited()
	pending := 3.0
	if err := c.RegisterGaugeFunc("learner_tracked", "Tracked evaluations", func() float64 { return pending }); err != nil {
		t.Fatal(err)
	}

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		`test_fw_http_requests_total{method="POST",route="/v1/evaluate",status="200"} 1`,
		"test_fw_http_rate_limited_total 1",
		"test_fw_learner_tracked 3",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestCardinalityLimiter(t *testing.T) {
	cl := NewCardinalityLimiter(2)
	if !cl.Allow("a") || !cl.Allow("b") {
		t.Fatal("expected first two label sets to be allowed")
	}
	if cl.Allow("c") {
		t.Error("third label set should be rejected")
	}
	if !cl.Allow("a") {
		t.Error("known label set should stay allowed")
	}
	if cl.Count() != 2 {
		t.Errorf("Count() = %d", cl.Count())
	}
}
