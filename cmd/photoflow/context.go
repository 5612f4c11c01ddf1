package main

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"photoflow/internal/config"
	"photoflow/internal/daemon"
	"photoflow/internal/daemonctl"
	"photoflow/internal/logging"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// cliLogger only surfaces warnings; command output goes to stdout.
func (c *commandContext) cliLogger(cfg *config.Config) *slog.Logger {
	logger, err := logging.New(logging.Options{
		Level:            "warn",
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	})
	if err != nil {
		return logging.NewNop()
	}
	return logger
}

// withBackends opens the configured backends for the duration of fn.
func (c *commandContext) withBackends(cmd *cobra.Command, fn func(*daemon.Backends) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	backends, err := daemon.OpenBackends(cmd.Context(), cfg, c.cliLogger(cfg))
	if err != nil {
		return err
	}
	defer backends.Close()
	return fn(backends)
}

// ensureSharedQueue refuses to enqueue into a process-local queue while the
// daemon runs, since its workers would never see the job.
func ensureSharedQueue(cfg *config.Config) error {
	if cfg.SharedQueue() {
		return nil
	}
	running, pid, err := daemonctl.ProcessInfo(cfg)
	if err != nil || !running {
		return nil
	}
	return fmt.Errorf("queue.backend = %q keeps jobs inside one process and the daemon (pid %d) would not see this job; stop the daemon first or switch to sqlite or redis",
		cfg.Queue.Backend, pid)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
