// Package ledger records content items that were confirmed published.
//
// The ledger is loaded fully into memory at startup and persisted after every
// append. Backends:
//   - "file": JSON array rewritten atomically on each append (compatible with posted_log.json)
//   - "sqlite": one row per entry
//   - "memory": nothing persisted (dry runs, tests)
//
// Single-writer: one scheduler process per ledger.
package ledger
