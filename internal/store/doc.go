// Package store provides SQLite-backed durable storage for BRAID provenance
// graphs.
//
// The store holds:
//   - Records: provenance nodes, optionally bound to an invalidation and an action
//   - Derivations: directed predecessor -> successor edges
//   - Tags and URIs: append-only attributes of a record
//   - Invalidations: immutable markers, linked to the cascade root they came from
//   - Invalidation actions: shell or external-event side effects
//
// # Sessions
//
// Every operation takes an optional *Session. A nil session runs the
// operation in its own transaction. Pass one Session to several calls to make
// them atomic; the caller commits or rolls back.
//
// # Ordering
//
// Every list query has an explicit ORDER BY (record id, tag id, uri id) so
// CLI output and golden files are stable.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
