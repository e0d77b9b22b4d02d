package export

import (
	"context"
	"encoding/json"
	"io"

	"aegis-hq/firewall/pkg/audit"
)

// JSONLExporter writes one JSON record per line. This is the archive format:
// each line carries the full record including its hashes, so an archive can
// be verified on its own.
type JSONLExporter struct{}

// NewJSONLExporter creates a new JSON Lines exporter.
func NewJSONLExporter() *JSONLExporter {
	return &JSONLExporter{}
}

// Export writes records as JSON lines.
func (e *JSONLExporter) Export(ctx context.Context, records []*audit.Record, w io.Writer) error {
	enc := json.NewEncoder(w)
	for i, record := range records {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := enc.Encode(record); err != nil {
			return audit.NewExportError("jsonl", i, err)
		}
	}
	return nil
}

// ExportStream writes records from a channel as JSON lines.
func (e *JSONLExporter) ExportStream(ctx context.Context, recordsCh <-chan *audit.Record, w io.Writer) error {
	enc := json.NewEncoder(w)
	recordCount := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case record, ok := <-recordsCh:
			if !ok {
				return nil
			}
			if err := enc.Encode(record); err != nil {
				return audit.NewExportError("jsonl", recordCount, err)
			}
			recordCount++
		}
	}
}

// ReadJSONL decodes records written by JSONLExporter.
func ReadJSONL(r io.Reader) ([]*audit.Record, error) {
	var out []*audit.Record
	dec := json.NewDecoder(r)
	for dec.More() {
		var rec audit.Record
		if err := dec.Decode(&rec); err != nil {
			return out, err
		}
		out = append(out, &rec)
	}
	return out, nil
}
