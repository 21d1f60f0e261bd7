// Package store provides the SQLite-backed dispatch journal.
//
// The journal is append-only:
//   - dispatches: one row per slot invocation, keyed by a content-addressed
//     ID (ir.DispatchID) and unique per trace ID
//   - outcomes: one row per handler actually called, in call order
//
// All ordering uses the logical seq column, never timestamps. Queries
// order by seq ASC, id ASC COLLATE BINARY so reads are deterministic.
//
// Arguments and values are stored as canonical JSON (ir.MarshalCanonical).
// Go values with no canonical form are stored as their %v text.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// The engine never writes here directly: Journal adapts a Store into an
// engine.Observer that the CLI attaches to a container.
package store
