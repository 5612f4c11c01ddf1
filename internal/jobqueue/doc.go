// Package jobqueue provides the durable work queue that feeds the worker pool.
//
// Delivery is at-least-once: a dequeued job is hidden for a visibility
// timeout and becomes visible again unless it is acknowledged, so a worker
// that crashes mid-job never loses it. Consumers must therefore be
// idempotent; the workflow engine achieves that through compare-and-swap
// status transitions. The SQLite backend survives process restarts and is
// shared between the daemon and the CLI. The memory backend mirrors its
// semantics for tests and single-process runs, with an injectable clock.
package jobqueue
