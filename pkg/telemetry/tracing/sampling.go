package tracing

import (
	"fmt"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

const (
	// SamplerAlways samples all traces
	SamplerAlways = "always"

	// SamplerNever samples no traces
	SamplerNever = "never"

	// SamplerRatio samples a percentage of traces
	SamplerRatio = "ratio"
)

// createSampler creates a sampler based on the strategy and ratio. Every
// sampler is wrapped in ParentBased so that an incoming traceparent header
// decides for the whole trace. An empty strategy means always.
func createSampler(strategy string, ratio float64) (sdktrace.Sampler, error) {
	if err := ValidateSampling(strategy, ratio); err != nil {
		return nil, err
	}

	var base sdktrace.Sampler
	switch strategy {
	case SamplerAlways, "":
		base = sdktrace.AlwaysSample()
	case SamplerNever:
		base = sdktrace.NeverSample()
	case SamplerRatio:
		base = sdktrace.TraceIDRatioBased(ratio)
	}
	return sdktrace.ParentBased(base), nil
}

// ValidateSampling validates a sampling strategy and ratio.
func ValidateSampling(strategy string, ratio float64) error {
	switch strategy {
	case SamplerAlways, SamplerNever, "":
		return nil
	case SamplerRatio:
		if ratio < 0.0 || ratio > 1.0 {
			return fmt.Errorf("sample ratio must be between 0.0 and 1.0, got %f", ratio)
		}
		return nil
	default:
		return fmt.Errorf("unknown sampler strategy: %s (valid: always, never, ratio)", strategy)
	}
}
