// Package export writes audit records as JSON, JSON Lines or CSV.
package export

import (
	"fmt"
	"strings"

	"aegis-hq/firewall/pkg/audit"
)

// Formats lists the supported export formats.
var Formats = []string{"json", "jsonl", "csv"}

// New returns the exporter for a format name.
func New(format string, pretty bool) (audit.Exporter, error) {
	switch strings.ToLower(format) {
	case "json":
		return NewJSONExporter(pretty), nil
	case "jsonl", "ndjson":
		return NewJSONLExporter(), nil
	case "csv":
		return NewCSVExporter(true), nil
	default:
		return nil, fmt.Errorf("unsupported export format %q (supported: %s)", format, strings.Join(Formats, ", "))
	}
}

// ContentType returns the HTTP content type for a format name.
func ContentType(format string) string {
	switch strings.ToLower(format) {
	case "jsonl", "ndjson":
		return "application/x-ndjson"
	case "csv":
		return "text/csv"
	default:
		return "application/json"
	}
}
