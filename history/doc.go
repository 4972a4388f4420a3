// Package history provides the read-side service over a version ledger.
// It pages through an entity's version records newest first and enriches
// each one with the field-level changes against its predecessor,
// computed lazily at read time.
package history
