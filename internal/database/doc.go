// Package database owns the SQLite connection shared by the photo store, the
// durable job queue and the SQLite lock backend.
//
// Open applies the WAL/foreign-key/busy-timeout pragmas, creates the embedded
// schema on first use and refuses to operate on a database whose recorded
// schema version differs from the compiled one. Writers should go through
// Exec or WithTx so transient SQLITE_BUSY results are retried with bounded
// exponential backoff.
package database
