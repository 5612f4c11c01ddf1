// Package cache holds the read-through cache for photo detail and listing
// views.
//
// Keys follow photos:detail:<id> and photos:list:<status|all>:<page>:<limit>.
// Every write to a photo invalidates its detail key and all listing keys.
// Backends: in-memory, Redis, or Disabled.
package cache
