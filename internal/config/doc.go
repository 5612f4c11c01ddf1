// Package config loads, normalizes, and validates photoflow configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// PHOTOFLOW_REDIS_ADDR and PHOTOFLOW_KAFKA_BROKERS. The Config type centralizes
// every knob the daemon and CLI need: backend selection for the queue, lock and
// cache, simulated processing parameters, and worker pool timing.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical backend names, and clear validation errors.
package config
