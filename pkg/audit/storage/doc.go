// Package storage provides append-only backends for the audit trail.
//
// SQLiteStorage is the durable backend. Each record is stored as its full
// JSON payload plus indexed columns for filtering; BEFORE UPDATE and BEFORE
// DELETE triggers abort any modification. MemoryStorage offers the same
// semantics without persistence.
//
// Both backends accept only records that extend the stored chain, and treat
// a repeated append of an identical record as success so that writers can
// retry after an ambiguous failure.
package storage
