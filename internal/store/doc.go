// Package store persists photo records and the append-only event log that
// audits every status change.
//
// Two implementations share the Store contract: SQLite (durable, backed by the
// shared database handle) and an in-memory store for tests and single-process
// runs. Both apply a status change as a compare-and-swap on the current status
// and append the matching event in the same atomic step, so the latest event
// of a photo always agrees with its record. Concurrent writers racing on the
// same photo see exactly one winner; the others get photos.ErrInvalidTransition
// and nothing is written on their behalf.
package store
