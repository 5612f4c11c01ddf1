// Package photos defines the photo workflow domain: the status enum, the event
// types recorded for every transition, the transition table that the workflow
// engine enforces, and the error taxonomy shared by the storage, queue, cache
// and worker layers.
//
// The package has no dependencies on storage or transport. Treat it as the
// single source of truth for which status changes are legal; when a new status
// or edge is added, extend the transition table here and the SQLite schema in
// the database package together.
package photos
