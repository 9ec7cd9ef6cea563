package main

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"cbx/internal/config"
	"cbx/internal/logging"
	"cbx/internal/stats"
)

type commandContext struct {
	configFlag *string
	jsonFlag   *bool

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string, jsonFlag *bool) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		jsonFlag:   jsonFlag,
	}
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
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) configValue() *config.Config {
	cfg, _ := c.ensureConfig()
	return cfg
}

// JSONMode reports whether the invocation asked for machine-readable output.
func (c *commandContext) JSONMode() bool {
	return c.jsonFlag != nil && *c.jsonFlag
}

// newLogger builds the logger commands hand to the internal packages. JSON
// mode silences it so tables and log lines never interleave on stdout.
func (c *commandContext) newLogger(cfg *config.Config) (*slog.Logger, error) {
	if c.JSONMode() {
		return logging.NewNop(), nil
	}
	return logging.NewFromConfig(cfg)
}

// openRecorder opens the statistics store when stats are enabled. Callers own
// the returned store; a nil store with nil error means stats are off.
func (c *commandContext) openRecorder(cfg *config.Config) (*stats.Store, error) {
	if cfg == nil || !cfg.Stats.Enabled {
		return nil, nil
	}
	return stats.Open(cfg.Stats.DatabasePath)
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
