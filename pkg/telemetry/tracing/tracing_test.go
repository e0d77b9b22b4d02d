package tracing

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"aegis-hq/firewall/pkg/config"
	"aegis-hq/firewall/pkg/telemetry/logging"
)

func newTestTracer(t *testing.T) (*Tracer, *tracetest.InMemoryExporter) {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tracer, err := NewWithExporter(&config.TracingConfig{Enabled: true, Sampler: SamplerAlways}, "test", exporter)
	if err != nil {
		t.Fatalf("NewWithExporter() error = %v", err)
	}
	t.Cleanup(func() { _ = tracer.Shutdown(context.Background()) })
	return tracer, exporter
}

func TestNew(t *testing.T) {
	tests := []struct {
		name        string
		config      *config.TracingConfig
		wantErr     bool
		wantEnabled bool
	}{
		{name: "nil config", config: nil, wantErr: true},
		{name: "disabled", config: &config.TracingConfig{Enabled: false}},
		{
			name:        "record only",
			config:      &config.TracingConfig{Enabled: true, Exporter: ExporterNone, Sampler: SamplerRatio, SampleRatio: 0.5},
			wantEnabled: true,
		},
		{
			name:    "unknown exporter",
			config:  &config.TracingConfig{Enabled: true, Exporter: "zipkin"},
			wantErr: true,
		},
		{
			name:    "bad ratio",
			config:  &config.TracingConfig{Enabled: true, Exporter: ExporterNone, Sampler: SamplerRatio, SampleRatio: 1.5},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracer, err := New(tt.config, "test")
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			defer tracer.Shutdown(context.Background())
			if tracer.Enabled() != tt.wantEnabled {
				t.Errorf("Enabled() = %v, want %v", tracer.Enabled(), tt.wantEnabled)
			}
		})
	}
}

func TestTracer_SpanAttributes(t *testing.T) {
	tracer, exporter := newTestTracer(t)

	ctx, span := tracer.Start(context.Background(), "firewall.evaluate")
	if TraceID(ctx) == "" || SpanID(ctx) == "" {
		t.Error("expected trace and span IDs in context")
	}
	SetRequestAttributes(span, "trade", 0.9, 2, 120)
	SetVerdictAttributes(span, "eval-1", "FINANCIAL_SERVICES", "v1", "REQUIRE_HUMAN_REVIEW",
		"mandatory_governance_review", 0.5, 2, 1, []string{"governance_mandatory_review"})
	SetError(span, errors.New("boom"))
	span.End()

	if err := tracer.ForceFlush(context.Background()); err != nil {
		t.Fatal(err)
	}
	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	got := spans[0]
	if got.Name != "firewall.evaluate" {
		t.Errorf("span name = %q", got.Name)
	}
	if got.Status.Code != codes.Error {
		t.Errorf("status = %v, want Error", got.Status.Code)
	}

	attrs := make(map[string]string)
	for _, kv := range got.Attributes {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	for key, want := range map[string]string{
		AttrAction:       "trade",
		AttrVerdict:      "REQUIRE_HUMAN_REVIEW",
		AttrEvaluationID: "eval-1",
		AttrSourceCount:  "2",
	} {
		if attrs[key] != want {
			t.Errorf("%s = %q, want %q", key, attrs[key], want)
		}
	}
}

func TestTracer_NoopAndNil(t *testing.T) {
	tracer := Noop()
	ctx, span := tracer.Start(context.Background(), "x")
	span.End()
	if TraceID(ctx) != "" {
		t.Error("noop tracer should not produce a valid trace ID")
	}

	var nilTracer *Tracer
	if nilTracer.Enabled() {
		t.Error("nil tracer reports enabled")
	}
	if _, span := nilTracer.Start(context.Background(), "x"); span == nil {
		t.Error("nil tracer returned nil span")
	}
	if err := nilTracer.Shutdown(context.Background()); err != nil {
		t.Error(err)
	}
}

func TestHTTPMiddleware(t *testing.T) {
	tracer, exporter := newTestTracer(t)

	var gotTrace string
	handler := HTTPMiddleware(tracer)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTrace = logging.GetTraceID(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/policy/mode", nil)
	req.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if gotTrace != "4bf92f3577b34da6a3ce929d0e0e4736" {
		t.Errorf("handler trace ID = %q, want the incoming trace", gotTrace)
	}
	if rec.Header().Get(TraceIDHeader) != gotTrace {
		t.Errorf("response header = %q", rec.Header().Get(TraceIDHeader))
	}

	_ = tracer.ForceFlush(context.Background())
	spans := exporter.GetSpans()
	if len(spans) != 1 || spans[0].Name != "GET /v1/policy/mode" {
		t.Fatalf("unexpected spans: %+v", spans)
	}
	if spans[0].Parent.SpanID().String() != "00f067aa0ba902b7" {
		t.Errorf("parent span = %s", spans[0].Parent.SpanID())
	}
}

func TestHTTPMiddleware_Disabled(t *testing.T) {
	called := false
	handler := HTTPMiddleware(Noop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if !called || rec.Header().Get(TraceIDHeader) != "" {
		t.Errorf("called=%v header=%q", called, rec.Header().Get(TraceIDHeader))
	}
}

func TestValidateSampling(t *testing.T) {
	tests := []struct {
		strategy string
		ratio    float64
		wantErr  bool
	}{
		{SamplerAlways, 0, false},
		{SamplerNever, 0, false},
		{SamplerRatio, 0.25, false},
		{SamplerRatio, -0.1, true},
		{"sometimes", 0, true},
	}
	for _, tt := range tests {
		if err := ValidateSampling(tt.strategy, tt.ratio); (err != nil) != tt.wantErr {
			t.Errorf("ValidateSampling(%q, %v) error = %v", tt.strategy, tt.ratio, err)
		}
	}
}

func TestValidateTraceParent(t *testing.T) {
	tests := []struct {
		header string
		want   bool
	}{
		{"00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01", true},
		{"00-00000000000000000000000000000000-00f067aa0ba902b7-01", false},
		{"00-4bf92f3577b34da6a3ce929d0e0e4736-0000000000000000-01", false},
		{"00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7", false},
		{"zz-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01", false},
	}
	for _, tt := range tests {
		if got := ValidateTraceParent(tt.header); got != tt.want {
			t.Errorf("ValidateTraceParent(%q) = %v, want %v", tt.header, got, tt.want)
		}
	}
}
