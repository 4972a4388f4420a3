// Package validation implements the business-rule validator for
// shipment snapshots. It checks the well-known shipment fields for
// format and range and reports every violation it finds, leaving the
// caller to decide whether a partial snapshot is acceptable.
//
// The Validator satisfies ledger.SnapshotValidator and plugs into the
// engines via their WithSnapshotValidator options.
package validation
