// Package lock provides expiring per-key leases that keep two workers from
// processing the same photo at once.
//
// Leases are an optimization: the store's compare-and-swap transitions remain
// the correctness guarantee when a lease expires under a slow holder. Memory,
// SQLite and Redis backends share the same semantics.
package lock
