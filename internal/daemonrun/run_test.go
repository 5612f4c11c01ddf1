package daemonrun_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"photoflow/internal/daemonrun"
	"photoflow/internal/logging"
	"photoflow/internal/testsupport"
)

func TestRunUntilCancelled(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Logging.Level = "error"

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- daemonrun.Run(ctx, cfg, daemonrun.Options{})
	}()

	deadline := time.Now().Add(5 * time.Second)
	for {
		if pid, ok := daemonrun.ReadPID(cfg); ok {
			if pid != os.Getpid() {
				t.Fatalf("pid file = %d, want %d", pid, os.Getpid())
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("daemon did not write its pid file")
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}

	if _, ok := daemonrun.ReadPID(cfg); ok {
		t.Fatal("expected pid file to be removed on shutdown")
	}
	if _, err := os.Stat(filepath.Join(cfg.Paths.LogDir, logging.LogFileName)); err != nil {
		t.Fatalf("expected daemon log file: %v", err)
	}
}

func TestRunRequiresConfig(t *testing.T) {
	if err := daemonrun.Run(context.Background(), nil, daemonrun.Options{}); err == nil {
		t.Fatal("expected error without config")
	}
}
