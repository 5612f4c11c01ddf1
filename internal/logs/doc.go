// Package logs reads the daemon log file for the CLI.
//
// Tail works on records rather than raw lines: a console record is its
// header line plus the indented attribute lines below it, so filtering by a
// photo id keeps each entry whole. A negative offset returns the last N
// records; follow mode polls from a saved offset until new records arrive or
// the wait elapses.
package logs
