// Package store provides SQLite-backed durable storage for the edit ledger.
//
// The store keeps, in one database:
//   - Edits: the append-only ledger of create/property/destroy records
//   - Entities: live/deleted status of every tracked entity
//   - Attributes: live attribute values (absent row = Null)
//   - Counters: derived aggregates recomputed by cascades
//
// Ledger rows and entity state live side by side so that a mutation, its
// edit record, and every cascade-linked child commit in one transaction.
//
// # Ordering
//
// Edits carry a store-assigned seq (MAX(seq)+1 inside the write
// transaction). All history queries ORDER BY seq ASC. Timestamps are
// informational and may be refreshed when an edit is coalesced.
//
// # Database Configuration
//
//   - BEGIN IMMEDIATE transactions (_txlock=immediate): read-then-write
//     happens under the write lock
//   - WAL mode: concurrent reads during writes
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON, with parent_id checked at commit (DEFERRABLE)
package store
