// Package audit defines the tamper-evident audit trail of firewall
// evaluations.
//
// Every evaluation produces one Record. Records form a hash chain:
//
//	Hash = sha256(PrevHash || JCS(record without Hash))
//
// where JCS is the RFC 8785 canonical JSON form and the first record's
// PrevHash is GenesisHash. Deleting, reordering or editing any record breaks
// Verify from that sequence forward.
//
// Subpackages:
//   - storage: append-only SQLite and in-memory backends
//   - sink: asynchronous ordered writer with retry and spill-to-disk
//   - export: JSON, JSONL and CSV exporters
//   - integrity: cron-driven chain verification and archive export
//
// The output text of an evaluation is never stored; records carry its
// SHA-256 and length.
package audit
