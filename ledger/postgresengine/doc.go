// Package postgresengine provides the durable PostgreSQL implementation
// of the version ledger.
//
// Version numbers are assigned inside a transaction that first takes a
// per-entity advisory lock, so concurrent appends to the same entity are
// serialized while writers to different entities never contend. A unique
// constraint on (entity_id, version_no) acts as a second line of defense:
// a writer that races past the lock loses the insert, and the engine
// retries with bounded exponential backoff before giving up with a
// conflict error.
//
// The engine supports pgxpool.Pool, sql.DB and sqlx.DB connections via
// an internal adapter layer and is configured with functional options.
package postgresengine
