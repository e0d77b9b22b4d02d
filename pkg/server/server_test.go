package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"aegis-hq/firewall/pkg/audit"
	"aegis-hq/firewall/pkg/audit/sink"
	"aegis-hq/firewall/pkg/audit/storage"
	"aegis-hq/firewall/pkg/benchmark"
	"aegis-hq/firewall/pkg/config"
	"aegis-hq/firewall/pkg/firewall"
	"aegis-hq/firewall/pkg/firewall/engine"
	"aegis-hq/firewall/pkg/learning"
	"aegis-hq/firewall/pkg/policy"
	"aegis-hq/firewall/pkg/server/types"
	"aegis-hq/firewall/pkg/service"
	"aegis-hq/firewall/pkg/telemetry/metrics"
)

type testServer struct {
	srv     *Server
	svc     *service.Service
	storage *storage.MemoryStorage
	sink    *sink.Sink
}

type serverOptions struct {
	learner   bool
	audit     bool
	rateLimit bool
}

func newTestServer(t *testing.T, o serverOptions) *testServer {
	t.Helper()

	store, err := policy.NewStore(nil, policy.ModeGeneralAI, policy.DefaultThresholdBounds())
	if err != nil {
		t.Fatalf("NewStore() failed: %v", err)
	}

	opts := service.Options{
		Engine: engine.MustNew(engine.DefaultConfig()),
		Policy: store,
	}

	ts := &testServer{}
	if o.audit {
		ts.storage = storage.NewMemoryStorage()
		ts.sink, err = sink.New(context.Background(), ts.storage, sink.Config{InitialInterval: time.Millisecond})
		if err != nil {
			t.Fatalf("sink.New() failed: %v", err)
		}
		t.Cleanup(func() { ts.sink.Close() })
		opts.Sink = ts.sink
		opts.Audit = ts.storage
	}
	if o.learner {
		l, err := learning.New(learning.DefaultConfig(), store, nil)
		if err != nil {
			t.Fatalf("learning.New() failed: %v", err)
		}
		t.Cleanup(func() { l.Close() })
		opts.Learner = l
	}

	collector := metrics.NewCollector(&config.MetricsConfig{Enabled: true, Namespace: "test", Subsystem: "fw"}, prometheus.NewRegistry())
	opts.Metrics = collector

	n := 0
	opts.NewID = func() string {
		n++
		return fmt.Sprintf("eval-%d", n)
	}
	ts.svc, err = service.New(opts)
	if err != nil {
		t.Fatalf("service.New() failed: %v", err)
	}

	cfg := config.ServerConfig{
		ListenAddress:   "127.0.0.1:0",
		ShutdownTimeout: time.Second,
		MaxBodyBytes:    4096,
	}
	if o.rateLimit {
		cfg.RateLimit = config.RateLimitConfig{Enabled: true, RequestsPerSecond: 1, Burst: 1}
	}

	srvOpts := Options{Service: ts.svc, Metrics: collector, Version: "1.2.3"}
	if o.audit {
		srvOpts.Audit = ts.storage
	}
	ts.srv, err = New(cfg, srvOpts)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	return ts
}

func (ts *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, path, nil)
	} else {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	ts.srv.Handler().ServeHTTP(w, r)
	return w
}

func (ts *testServer) flush(t *testing.T) {
	t.Helper()
	if err := ts.sink.Flush(context.Background()); err != nil {
		t.Fatalf("Flush() failed: %v", err)
	}
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, w.Body.String())
	}
	return v
}

const (
	ungroundedBody = `{"output_text":"Apple was founded in 1976","confidence":0.92,"intended_action":"answer"}`
	groundedBody   = `{"output_text":"I think this approach is elegant","confidence":0.3,"intended_action":"answer","sources":["x"]}`
)

func TestNew_RequiresService(t *testing.T) {
	if _, err := New(config.ServerConfig{}, Options{}); err == nil {
		t.Error("New() without service succeeded")
	}
}

func TestEvaluate(t *testing.T) {
	ts := newTestServer(t, serverOptions{audit: true})

	w := ts.do(t, http.MethodPost, "/v1/evaluate", ungroundedBody)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID header")
	}

	ev := decode[service.Evaluation](t, w)
	if ev.EvaluationID != "eval-1" {
		t.Errorf("evaluation_id = %q", ev.EvaluationID)
	}
	if ev.Verdict != firewall.VerdictBlock {
		t.Errorf("verdict = %s, want BLOCK", ev.Verdict)
	}
	if ev.Details.Mode != string(policy.ModeGeneralAI) {
		t.Errorf("mode = %s", ev.Details.Mode)
	}
}

func TestEvaluate_Errors(t *testing.T) {
	ts := newTestServer(t, serverOptions{})

	tests := []struct {
		name   string
		body   string
		status int
		param  string
		code   string
	}{
		{"invalid json", `{"output_text":`, http.StatusBadRequest, "", types.CodeInvalidJSON},
		{"missing confidence", `{"output_text":"x","intended_action":"answer"}`, http.StatusUnprocessableEntity, "confidence", types.CodeInvalidValue},
		{"confidence out of range", `{"output_text":"x","confidence":2,"intended_action":"answer"}`, http.StatusUnprocessableEntity, "confidence", types.CodeInvalidValue},
		{"missing action", `{"output_text":"x","confidence":0.5}`, http.StatusUnprocessableEntity, "intended_action", types.CodeInvalidValue},
		{"unknown action", `{"output_text":"x","confidence":0.5,"intended_action":"launch_rocket"}`, http.StatusUnprocessableEntity, "intended_action", types.CodeInvalidValue},
		{"too large", `{"output_text":"` + strings.Repeat("a", 5000) + `","confidence":0.5,"intended_action":"answer"}`, http.StatusRequestEntityTooLarge, "", types.CodeRequestTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.do(t, http.MethodPost, "/v1/evaluate", tt.body)
			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d (body %s)", w.Code, tt.status, w.Body.String())
			}
			resp := decode[types.ErrorResponse](t, w)
			if resp.Error.Param != tt.param {
				t.Errorf("param = %q, want %q", resp.Error.Param, tt.param)
			}
			if resp.Error.Code != tt.code {
				t.Errorf("code = %q, want %q", resp.Error.Code, tt.code)
			}
		})
	}

	if got := ts.svc.Counters().Snapshot().Total; got != 0 {
		t.Errorf("rejected requests counted: %d", got)
	}
}

func TestEvaluate_ActionIsCaseInsensitive(t *testing.T) {
	ts := newTestServer(t, serverOptions{})
	w := ts.do(t, http.MethodPost, "/v1/evaluate", `{"output_text":"hello","confidence":0.5,"intended_action":" ANSWER "}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
}

func TestPolicyMode(t *testing.T) {
	ts := newTestServer(t, serverOptions{})

	w := ts.do(t, http.MethodGet, "/v1/policy/mode", "")
	if got := decode[policy.Config](t, w); got.Mode != policy.ModeGeneralAI {
		t.Fatalf("initial mode = %s", got.Mode)
	}

	w = ts.do(t, http.MethodPut, "/v1/policy/mode", `{"mode":"financial-services"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("PUT status = %d, body %s", w.Code, w.Body.String())
	}
	if got := decode[policy.Config](t, w); got.Mode != policy.ModeFinancialServices {
		t.Errorf("PUT returned mode %s", got.Mode)
	}
	if got := ts.svc.GetPolicyMode().Mode; got != policy.ModeFinancialServices {
		t.Errorf("active mode = %s", got)
	}

	tests := []struct {
		name string
		body string
		code string
	}{
		{"empty", `{"mode":""}`, types.CodeInvalidValue},
		{"unknown", `{"mode":"AEROSPACE"}`, types.CodeUnknownMode},
		{"invalid json", `mode=LEGAL`, types.CodeInvalidJSON},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.do(t, http.MethodPut, "/v1/policy/mode", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", w.Code)
			}
			if got := decode[types.ErrorResponse](t, w); got.Error.Code != tt.code {
				t.Errorf("code = %q, want %q", got.Error.Code, tt.code)
			}
		})
	}
	if got := ts.svc.GetPolicyMode().Mode; got != policy.ModeFinancialServices {
		t.Errorf("failed switch changed mode to %s", got)
	}
}

func TestListModes(t *testing.T) {
	ts := newTestServer(t, serverOptions{})
	w := ts.do(t, http.MethodGet, "/v1/policy/modes", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	got := decode[struct {
		Active policy.Mode     `json:"active"`
		Modes  []policy.Config `json:"modes"`
	}](t, w)
	if got.Active != policy.ModeGeneralAI {
		t.Errorf("active = %s", got.Active)
	}
	if len(got.Modes) != 4 {
		t.Errorf("modes = %d, want 4", len(got.Modes))
	}
}

func TestOutcomes(t *testing.T) {
	ts := newTestServer(t, serverOptions{learner: true})
	ts.do(t, http.MethodPost, "/v1/evaluate", ungroundedBody)

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"accepted", `{"evaluation_id":"eval-1","human_decision":"allow"}`, http.StatusAccepted},
		{"unknown evaluation", `{"evaluation_id":"eval-99","human_decision":"allow"}`, http.StatusUnprocessableEntity},
		{"bad decision", `{"evaluation_id":"eval-1","human_decision":"maybe"}`, http.StatusUnprocessableEntity},
		{"missing id", `{"human_decision":"block"}`, http.StatusUnprocessableEntity},
		{"invalid json", `[`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.do(t, http.MethodPost, "/v1/outcomes", tt.body)
			if w.Code != tt.status {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tt.status, w.Body.String())
			}
		})
	}
}

func TestLearningDisabled(t *testing.T) {
	ts := newTestServer(t, serverOptions{})

	w := ts.do(t, http.MethodPost, "/v1/outcomes", `{"evaluation_id":"eval-1","human_decision":"allow"}`)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("outcome status = %d, want 503", w.Code)
	}
	w = ts.do(t, http.MethodGet, "/v1/learning/stats", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("learning stats status = %d, want 503", w.Code)
	}
	if got := decode[types.ErrorResponse](t, w); got.Error.Code != types.CodeLearningDisabled {
		t.Errorf("code = %q", got.Error.Code)
	}
	w = ts.do(t, http.MethodDelete, "/v1/learning/thresholds/GENERAL_AI", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("threshold reset status = %d, want 503", w.Code)
	}
}

func TestResetThresholds(t *testing.T) {
	ts := newTestServer(t, serverOptions{learner: true})

	w := ts.do(t, http.MethodDelete, "/v1/learning/thresholds/general-ai", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if got := decode[policy.Config](t, w); got.Mode != policy.ModeGeneralAI || got.Tuned {
		t.Errorf("reset returned mode %s tuned %v", got.Mode, got.Tuned)
	}

	w = ts.do(t, http.MethodDelete, "/v1/learning/thresholds/AEROSPACE", "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("unknown mode status = %d, want 400", w.Code)
	}
	if got := decode[types.ErrorResponse](t, w); got.Error.Code != types.CodeUnknownMode {
		t.Errorf("code = %q, want %q", got.Error.Code, types.CodeUnknownMode)
	}
}

func TestLearningStats(t *testing.T) {
	ts := newTestServer(t, serverOptions{learner: true})
	ts.do(t, http.MethodPost, "/v1/evaluate", ungroundedBody)

	w := ts.do(t, http.MethodGet, "/v1/learning/stats", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if got := decode[learning.Stats](t, w); !got.Enabled {
		t.Errorf("stats = %+v, want enabled", got)
	}
}

func TestAuditEndpoints(t *testing.T) {
	ts := newTestServer(t, serverOptions{audit: true})
	ts.do(t, http.MethodPost, "/v1/evaluate", ungroundedBody)
	ts.do(t, http.MethodPost, "/v1/evaluate", groundedBody)
	ts.do(t, http.MethodPost, "/v1/evaluate", ungroundedBody)
	ts.flush(t)

	t.Run("records", func(t *testing.T) {
		w := ts.do(t, http.MethodGet, "/v1/audit/records?verdict=block&limit=1", "")
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
		}
		got := decode[types.RecordsResponse](t, w)
		if got.Count != 1 || got.Total != 2 {
			t.Errorf("count = %d total = %d, want 1 and 2", got.Count, got.Total)
		}
		if got.Records[0].EvaluationID != "eval-3" {
			t.Errorf("newest first: got %s", got.Records[0].EvaluationID)
		}
	})

	t.Run("records ascending", func(t *testing.T) {
		w := ts.do(t, http.MethodGet, "/v1/audit/records?order=asc", "")
		got := decode[types.RecordsResponse](t, w)
		if got.Count != 3 || got.Records[0].Sequence != 1 {
			t.Errorf("got %d records, first sequence %d", got.Count, got.Records[0].Sequence)
		}
	})

	t.Run("empty result", func(t *testing.T) {
		w := ts.do(t, http.MethodGet, "/v1/audit/records?after_sequence=10", "")
		if got := w.Body.String(); !strings.Contains(got, `"records":[]`) {
			t.Errorf("body = %s, want empty records array", got)
		}
	})

	t.Run("invalid query", func(t *testing.T) {
		for _, q := range []string{
			"limit=abc",
			"limit=-1",
			"start_time=yesterday",
			"min_risk=2",
			"verdict=MAYBE",
			"order=sideways",
		} {
			w := ts.do(t, http.MethodGet, "/v1/audit/records?"+q, "")
			if w.Code != http.StatusBadRequest {
				t.Errorf("%s: status = %d, want 400", q, w.Code)
				continue
			}
			if got := decode[types.ErrorResponse](t, w); got.Error.Code != types.CodeInvalidQuery {
				t.Errorf("%s: code = %q", q, got.Error.Code)
			}
		}
	})

	t.Run("record by id", func(t *testing.T) {
		w := ts.do(t, http.MethodGet, "/v1/audit/records/eval-2", "")
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d", w.Code)
		}
		if got := decode[audit.Record](t, w); got.Result.Verdict != firewall.VerdictAllow {
			t.Errorf("verdict = %s, want ALLOW", got.Result.Verdict)
		}

		w = ts.do(t, http.MethodGet, "/v1/audit/records/nope", "")
		if w.Code != http.StatusNotFound {
			t.Errorf("missing record status = %d, want 404", w.Code)
		}
	})

	t.Run("stats", func(t *testing.T) {
		w := ts.do(t, http.MethodGet, "/v1/audit/stats", "")
		got := decode[audit.Stats](t, w)
		if got.Total != 3 || got.HallucinationBlocks != 2 {
			t.Errorf("stats = total %d hallucinations %d", got.Total, got.HallucinationBlocks)
		}
	})

	t.Run("verify", func(t *testing.T) {
		w := ts.do(t, http.MethodGet, "/v1/audit/verify", "")
		got := decode[audit.VerifyReport](t, w)
		if !got.Valid || got.Checked != 3 {
			t.Errorf("report = %+v", got)
		}
	})
}

func TestAuditDisabled(t *testing.T) {
	ts := newTestServer(t, serverOptions{})
	for _, path := range []string{"/v1/audit/records", "/v1/audit/records/x", "/v1/audit/stats", "/v1/audit/verify"} {
		w := ts.do(t, http.MethodGet, path, "")
		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("%s: status = %d, want 503", path, w.Code)
		}
	}
}

func TestStats(t *testing.T) {
	ts := newTestServer(t, serverOptions{})
	ts.do(t, http.MethodPost, "/v1/evaluate", ungroundedBody)
	ts.do(t, http.MethodPost, "/v1/evaluate", groundedBody)

	w := ts.do(t, http.MethodGet, "/v1/stats", "")
	got := decode[service.Stats](t, w)
	if got.Counters.Total != 2 || got.Counters.Blocked != 1 || got.Counters.Allowed != 1 {
		t.Errorf("counters = %+v", got.Counters)
	}
	if got.Mode != policy.ModeGeneralAI {
		t.Errorf("mode = %s", got.Mode)
	}
}

func TestBenchmark(t *testing.T) {
	ts := newTestServer(t, serverOptions{})

	w := ts.do(t, http.MethodPost, "/v1/benchmark", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	got := decode[benchmark.Report](t, w)
	if got.Total != len(benchmark.Suite()) {
		t.Errorf("total = %d, want %d", got.Total, len(benchmark.Suite()))
	}
	if ts.svc.Counters().Snapshot().Total != 0 {
		t.Error("benchmark cases were counted as live traffic")
	}
}

func TestHealthAndMetrics(t *testing.T) {
	ts := newTestServer(t, serverOptions{})
	ts.do(t, http.MethodPost, "/v1/evaluate", groundedBody)

	if w := ts.do(t, http.MethodGet, "/health", ""); w.Code != http.StatusOK {
		t.Errorf("/health status = %d", w.Code)
	}
	w := ts.do(t, http.MethodGet, "/version", "")
	if !strings.Contains(w.Body.String(), "1.2.3") {
		t.Errorf("/version body = %s", w.Body.String())
	}

	w = ts.do(t, http.MethodGet, "/metrics", "")
	body := w.Body.String()
	for _, want := range []string{
		"test_fw_evaluations_total",
		`test_fw_http_requests_total{method="POST",route="/v1/evaluate",status="200"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics missing %q", want)
		}
	}
}

func TestNotFound(t *testing.T) {
	ts := newTestServer(t, serverOptions{})
	w := ts.do(t, http.MethodGet, "/v2/nothing", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
	if got := decode[types.ErrorResponse](t, w); got.Error.Type != types.ErrorTypeNotFound {
		t.Errorf("type = %q", got.Error.Type)
	}
}

func TestRateLimit(t *testing.T) {
	ts := newTestServer(t, serverOptions{rateLimit: true})

	if w := ts.do(t, http.MethodGet, "/v1/stats", ""); w.Code != http.StatusOK {
		t.Fatalf("first request status = %d", w.Code)
	}
	if w := ts.do(t, http.MethodGet, "/v1/stats", ""); w.Code != http.StatusTooManyRequests {
		t.Errorf("second request status = %d, want 429", w.Code)
	}
}

func TestServeAndShutdown(t *testing.T) {
	ts := newTestServer(t, serverOptions{})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ts.srv.Serve(ctx, ln) }()

	url := "http://" + ln.Addr().String() + "/v1/evaluate"
	resp, err := http.Post(url, "application/json", bytes.NewBufferString(groundedBody))
	if err != nil {
		t.Fatalf("POST failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve() did not return after cancel")
	}

	if err := ts.srv.Shutdown(context.Background()); err != nil {
		t.Errorf("second Shutdown() error = %v", err)
	}
}

func TestParseQuery(t *testing.T) {
	q, err := parseQuery(map[string][]string{
		"start_time": {"2026-01-01T00:00:00Z"},
		"mode":       {"financial-services"},
		"min_risk":   {"0.5"},
		"offset":     {"20"},
	})
	if err != nil {
		t.Fatalf("parseQuery() error = %v", err)
	}
	if q.StartTime == nil || q.StartTime.Year() != 2026 {
		t.Errorf("StartTime = %v", q.StartTime)
	}
	if q.Mode != string(policy.ModeFinancialServices) {
		t.Errorf("Mode = %q", q.Mode)
	}
	if q.MinRisk == nil || *q.MinRisk != 0.5 {
		t.Errorf("MinRisk = %v", q.MinRisk)
	}
	if q.Limit != DefaultRecordLimit || q.Offset != 20 {
		t.Errorf("Limit/Offset = %d/%d", q.Limit, q.Offset)
	}
}
