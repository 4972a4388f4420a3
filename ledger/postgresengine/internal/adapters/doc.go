// Package adapters provides database adapter implementations for the
// PostgreSQL version ledger.
//
// This package implements the adapter pattern to support multiple
// PostgreSQL database libraries: pgxpool.Pool, sql.DB, and sqlx.DB. All
// adapters provide equivalent functionality through a common DBAdapter
// interface, including the transaction support the atomic append
// protocol relies on, allowing the ledger to work seamlessly with any
// supported connection type.
package adapters
