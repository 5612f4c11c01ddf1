// Package daemonctl finds and stops a running daemon from another process.
//
// A daemon is running when the flock on its data directory's lock file is
// held; its pid comes from the pid file daemonrun writes next to it.
package daemonctl
