// Package notifications publishes appended workflow events to external
// consumers.
//
// When [events] kafka_brokers is set, each event is written to the configured
// Kafka topic keyed by photo id; otherwise publishing is a no-op. Publishing
// happens after the event is committed and failures are only logged, so a
// broker outage never blocks a status change.
package notifications
