// Package main hosts the photoflow CLI entrypoint and command graph.
//
// The Cobra-based command tree opens the same durable backends the daemon
// uses, so photos can be added, inspected and requeued whether or not the
// daemon is running. `photoflow run` hosts the worker daemon itself; `stop`
// and `status` find it through the data directory lock and pid file.
//
// Keep this package lean: add new functionality by extending the internal
// packages first, then surface it through dedicated commands or flags here.
package main
