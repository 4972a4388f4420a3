// Package ledger provides the domain types for an append-only,
// gap-free version ledger for mutable business records.
//
// Every mutation of a record ("entity") is captured as a full-state
// snapshot plus event metadata, numbered with a strictly increasing,
// contiguous version number per entity. Field-level differences between
// versions are never persisted; they are recomputed on read with Diff.
//
// The durable implementation lives in the postgresengine subpackage,
// an in-memory implementation for tests and embedding lives in the
// memoryengine subpackage.
package ledger
