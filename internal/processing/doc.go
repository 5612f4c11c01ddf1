// Package processing runs the per-photo work step. The only implementation
// is a simulator with a configurable delay range and success probability.
package processing
