// Package daemon coordinates the long-running photoflow process.
//
// OpenBackends turns configuration into the database, job queue, photo lock,
// read cache, event publisher and workflow engine. The Daemon wires those into
// a worker pool with flock-based locking to prevent multiple instances on one
// data directory. On start it runs preflight checks and re-enqueues photos
// that were left without a job by an earlier crash; on stop it drains the
// pool before releasing the lock.
//
// Keep orchestration logic here: photo transitions belong to workflow and the
// processing loop belongs to worker.
package daemon
