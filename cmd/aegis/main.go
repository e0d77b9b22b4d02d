// Aegis is a deterministic decision firewall for AI outputs.
//
// Every AI output is evaluated against the active policy mode and receives
// one of four verdicts: ALLOW, REQUIRE_EVIDENCE, REQUIRE_HUMAN_REVIEW or
// BLOCK. Verdicts are recorded in a hash-chained audit trail, and reported
// human decisions tune the policy thresholds within configured bounds.
//
// Usage:
//
//	# Start the API server
//	aegis run --config /etc/aegis/config.yaml
//
//	# Evaluate one output offline
//	aegis evaluate --text "Apple was founded in 1976" --confidence 0.92 --action answer
//
//	# Inspect the audit trail
//	aegis audit query --verdict BLOCK --limit 20
//	aegis audit verify
//
//	# Run the hallucination benchmark
//	aegis benchmark --output junit > benchmark.xml
package main

import (
	"fmt"
	"os"

	"aegis-hq/firewall/pkg/cli"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.ExitCode(err))
	}
}
