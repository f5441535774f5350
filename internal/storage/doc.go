// Package storage persists polls and the sorted sets the forum keeps about
// them.
//
// Drivers:
//   - "memory": process-local, for tests and dry runs
//   - "file": memory state + append-only journal, compacted into a snapshot
//   - "sqlite": SQLite database file (modernc.org/sqlite, no cgo)
//   - "redis": NodeBB-style keys on a Redis server
package storage
