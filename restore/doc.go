// Package restore implements rollback as a forward append. Restoring a
// prior version never rewrites history: it copies the source version's
// snapshot into a new event at the next version number, so the ledger
// keeps recording what actually happened, including the restore itself.
package restore
