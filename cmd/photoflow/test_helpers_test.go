package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
)

type cliTestEnv struct {
	configPath string
	dataDir    string
	baseDir    string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	homeDir := filepath.Join(base, "home")
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", homeDir)
	t.Setenv("PHOTOFLOW_REDIS_ADDR", "")
	t.Setenv("PHOTOFLOW_KAFKA_BROKERS", "")

	dataDir := filepath.Join(base, "data")
	configPath := filepath.Join(homeDir, ".config", "photoflow", "config.toml")
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}
	writeTestConfig(t, configPath, dataDir, filepath.Join(base, "logs"))

	return &cliTestEnv{
		configPath: configPath,
		dataDir:    dataDir,
		baseDir:    base,
	}
}

func writeTestConfig(t *testing.T, path, dataDir, logDir string) {
	t.Helper()
	content := fmt.Sprintf(`[paths]
data_dir = %q
log_dir = %q

[queue]
backend = "sqlite"

[lock]
backend = "sqlite"

[cache]
backend = "memory"

[logging]
level = "error"
`, dataDir, logDir)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

var queuedLine = regexp.MustCompile(`Queued (\S+) as ([0-9a-f-]{36})`)

// addPhotos runs `photoflow add` and returns the new ids in argument order.
func addPhotos(t *testing.T, env *cliTestEnv, paths ...string) []string {
	t.Helper()
	out, _, err := runCLI(t, append([]string{"add"}, paths...), env.configPath)
	if err != nil {
		t.Fatalf("add: %v\n%s", err, out)
	}
	matches := queuedLine.FindAllStringSubmatch(out, -1)
	if len(matches) != len(paths) {
		t.Fatalf("expected %d queued lines, got %q", len(paths), out)
	}
	ids := make([]string, 0, len(matches))
	for _, match := range matches {
		ids = append(ids, match[2])
	}
	return ids
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
