package daemonctl_test

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/gofrs/flock"

	"photoflow/internal/daemonctl"
	"photoflow/internal/daemonrun"
	"photoflow/internal/testsupport"
)

func TestProcessInfoWithoutDaemon(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	running, pid, err := daemonctl.ProcessInfo(cfg)
	if err != nil {
		t.Fatalf("ProcessInfo: %v", err)
	}
	if running || pid != 0 {
		t.Fatalf("expected no daemon, got running=%v pid=%d", running, pid)
	}

	if _, err := daemonctl.StopAndTerminate(cfg, 10*time.Millisecond); !errors.Is(err, daemonctl.ErrDaemonNotRunning) {
		t.Fatalf("expected ErrDaemonNotRunning, got %v", err)
	}
}

func TestProcessInfoReportsLockHolder(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	holder := flock.New(cfg.DaemonLockPath())
	locked, err := holder.TryLock()
	if err != nil || !locked {
		t.Fatalf("TryLock: locked=%v err=%v", locked, err)
	}
	pidPath := filepath.Join(cfg.Paths.DataDir, daemonrun.PIDFileName)
	if err := os.WriteFile(pidPath, []byte(strconv.Itoa(424242)+"\n"), 0o644); err != nil {
		t.Fatalf("write pid: %v", err)
	}

	running, pid, err := daemonctl.ProcessInfo(cfg)
	if err != nil {
		t.Fatalf("ProcessInfo: %v", err)
	}
	if !running || pid != 424242 {
		t.Fatalf("expected running daemon with pid 424242, got running=%v pid=%d", running, pid)
	}

	if err := daemonctl.WaitForShutdown(cfg, 20*time.Millisecond); err == nil {
		t.Fatal("expected wait to time out while the lock is held")
	}
	if err := holder.Unlock(); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	if err := daemonctl.WaitForShutdown(cfg, time.Second); err != nil {
		t.Fatalf("WaitForShutdown after unlock: %v", err)
	}
}
