// Package store is the record store: SQLite-backed storage for one tier's
// copy of households, needs, exchange records, inventory and sync state.
//
// All operations hang off *Tx, obtained from Store.InTx (read-write) or
// Store.View (read-only). Components that must act atomically, such as the
// auto-matcher running in the same transaction as the offer insert that
// triggered it, share one *Tx.
//
// # Conventions
//
//   - Upserts are INSERT ... ON CONFLICT(id) DO UPDATE. Rows are updated in
//     place, never replaced, so ON DELETE CASCADE never fires on re-apply.
//   - Optional references are stored as NULL and read back as "".
//   - Timestamps use model.TimeLayout, so cursors compare as strings.
//   - Every list query ends with id COLLATE BINARY ASC as tiebreaker.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
