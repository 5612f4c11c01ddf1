// Package preflight provides readiness checks for the filesystem paths and
// external backends photoflow depends on.
//
// These checks run in two contexts:
//   - The daemon calls RunAll before starting the worker pool and refuses to
//     start when the data or log directory is unusable.
//   - The CLI "photoflow health" command prints every result next to the
//     engine's backend health.
//
// Redis and Kafka checks are skipped unless the config selects them.
package preflight
