// Package memoryengine provides an in-memory implementation of the
// version ledger with the same contract as the PostgreSQL engine.
//
// Appends to one entity are serialized by a per-entity mutex, so the
// gap-free numbering guarantee holds under concurrent writers within a
// single process. It is intended for tests and for embedding the ledger
// without a database; it offers no durability.
package memoryengine
