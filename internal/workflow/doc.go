// Package workflow implements the photo state machine.
//
// The Engine validates every status change against the transition table,
// applies it through the store's compare-and-swap together with the matching
// audit event, invalidates the cached views, and publishes the event. It also
// serves the read side (photo detail, listings, event feed), health checks,
// and the operator repairs Requeue and ReconcileQueued.
//
// Workers in the worker package drive the PROCESSING and terminal
// transitions; the engine never runs processing itself.
package workflow
