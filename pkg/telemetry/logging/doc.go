// Package logging provides structured logging with PII redaction.
//
// The package wraps log/slog with a handler that:
//   - writes JSON, text, or console output
//   - redacts PII (API keys, emails, SSNs, card numbers, ...) from attributes
//   - never writes model output text, only its length
//   - adds request, evaluation, mode and trace identifiers found in the context
//
// # Usage
//
//	logger, err := logging.New(logging.Config{
//	    Level:     "info",
//	    Format:    "json",
//	    RedactPII: true,
//	})
//	if err != nil {
//	    return err
//	}
//	logger.Install() // slog.SetDefault
//
//	ctx = logging.WithEvaluationID(ctx, id)
//	slog.Default().With("component", "service").InfoContext(ctx, "Evaluation complete",
//	    "verdict", result.Verdict,
//	)
//
// Component loggers derived from slog.Default() after Install share the
// redacting handler.
package logging
