// Package daemonrun hosts the foreground daemon process behind
// `photoflow run`: logger setup, pid file, backend construction and signal
// driven shutdown.
package daemonrun
