package daemonctl

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sys/unix"

	"photoflow/internal/config"
	"photoflow/internal/daemonrun"
)

// ErrDaemonNotRunning indicates no daemon holds the data directory lock.
var ErrDaemonNotRunning = errors.New("daemon not running")

const pollInterval = 100 * time.Millisecond

// StopResult captures daemon stop/termination outcome.
type StopResult struct {
	PID        int
	ForcedKill bool
}

// ProcessInfo reports whether a daemon holds the lock for cfg's data
// directory and the pid it recorded. The pid is zero when the pid file is
// missing or unreadable.
func ProcessInfo(cfg *config.Config) (bool, int, error) {
	if cfg == nil {
		return false, 0, errors.New("configuration not available")
	}
	if _, err := os.Stat(cfg.DaemonLockPath()); errors.Is(err, os.ErrNotExist) {
		return false, 0, nil
	}
	trial := flock.New(cfg.DaemonLockPath())
	locked, err := trial.TryLock()
	if err != nil {
		return false, 0, fmt.Errorf("test daemon lock: %w", err)
	}
	if locked {
		_ = trial.Unlock()
		return false, 0, nil
	}
	pid, _ := daemonrun.ReadPID(cfg)
	return true, pid, nil
}

// WaitForShutdown waits until the daemon lock is free.
func WaitForShutdown(cfg *config.Config, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		running, _, err := ProcessInfo(cfg)
		if err != nil {
			return err
		}
		if !running {
			return nil
		}
		if time.Now().After(deadline) {
			return errors.New("daemon did not stop before the timeout")
		}
		time.Sleep(pollInterval)
	}
}

// StopAndTerminate sends SIGTERM so the daemon drains its workers, and sends
// SIGKILL if it still holds the lock after gracePeriod. Photos interrupted by
// the kill resume once their queue visibility timeout passes.
func StopAndTerminate(cfg *config.Config, gracePeriod time.Duration) (StopResult, error) {
	running, pid, err := ProcessInfo(cfg)
	if err != nil {
		return StopResult{}, err
	}
	if !running {
		return StopResult{}, ErrDaemonNotRunning
	}
	if pid <= 0 {
		return StopResult{}, fmt.Errorf("unable to determine daemon pid (pid file under %s)", cfg.Paths.DataDir)
	}
	if pid == os.Getpid() {
		return StopResult{}, fmt.Errorf("refusing to signal current process (pid %d)", pid)
	}

	result := StopResult{PID: pid}
	if err := unix.Kill(pid, unix.SIGTERM); err != nil {
		if errors.Is(err, unix.ESRCH) {
			return result, nil
		}
		return result, fmt.Errorf("signal daemon process %d: %w", pid, err)
	}
	if err := WaitForShutdown(cfg, gracePeriod); err == nil {
		return result, nil
	}

	if err := unix.Kill(pid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
		return result, fmt.Errorf("kill daemon process %d: %w", pid, err)
	}
	result.ForcedKill = true
	return result, WaitForShutdown(cfg, gracePeriod)
}
