package preflight

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"photoflow/internal/config"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

// closedAddr returns a loopback address with nothing listening.
func closedAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()
	return addr
}

func TestCheckRedis_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	result := CheckRedis(ctx, closedAddr(t), "", 0)
	if result.Passed {
		t.Fatal("expected failure for closed port")
	}
}

func TestCheckRedis_MissingAddr(t *testing.T) {
	if result := CheckRedis(context.Background(), "", "", 0); result.Passed {
		t.Fatal("expected failure for missing address")
	}
}

func TestCheckKafka_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	result := CheckKafka(ctx, []string{closedAddr(t)}, "photo_events")
	if result.Passed {
		t.Fatal("expected failure for closed port")
	}
}

func TestCheckKafka_NoBrokers(t *testing.T) {
	if result := CheckKafka(context.Background(), nil, "photo_events"); result.Passed {
		t.Fatal("expected failure without brokers")
	}
}

func TestRunAllSkipsUnconfiguredBackends(t *testing.T) {
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Cache.Backend = config.BackendMemory
	cfg.Lock.Backend = config.BackendSQLite
	cfg.Events.KafkaBrokers = nil
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}

	results := RunAll(context.Background(), &cfg)
	if len(results) != 2 {
		t.Fatalf("expected only directory checks, got %+v", results)
	}
	if failed := Failed(results); len(failed) != 0 {
		t.Fatalf("unexpected failures: %+v", failed)
	}
}

func TestRunAllReportsMissingDirectories(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(t.TempDir(), "missing")
	cfg.Paths.LogDir = t.TempDir()
	cfg.Cache.Backend = config.BackendMemory
	cfg.Lock.Backend = config.BackendSQLite
	cfg.Events.KafkaBrokers = nil

	failed := Failed(RunAll(context.Background(), &cfg))
	if len(failed) != 1 || failed[0].Name != "Data directory" {
		t.Fatalf("expected data directory failure, got %+v", failed)
	}
}
