package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeConversion()
	c.normalizeOutput()
	if err := c.normalizeWatch(); err != nil {
		return err
	}
	if err := c.normalizeLogging(); err != nil {
		return err
	}
	if err := c.normalizeStats(); err != nil {
		return err
	}
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.OutputDir) != "" {
		if c.Paths.OutputDir, err = expandPath(c.Paths.OutputDir); err != nil {
			return fmt.Errorf("paths.output_dir: %w", err)
		}
	}
	if strings.TrimSpace(c.Paths.StagingDir) == "" {
		c.Paths.StagingDir = defaultStagingDir
	}
	if c.Paths.StagingDir, err = expandPath(c.Paths.StagingDir); err != nil {
		return fmt.Errorf("paths.staging_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeConversion() {
	c.Conversion.Preprocessing = strings.ToLower(strings.TrimSpace(c.Conversion.Preprocessing))
	if c.Conversion.Preprocessing == "" {
		c.Conversion.Preprocessing = defaultPreprocessing
	}
}

func (c *Config) normalizeOutput() {
	format := strings.ToLower(strings.TrimSpace(c.Output.Format))
	format = strings.TrimPrefix(format, ".")
	if format == "" {
		format = defaultOutputFormat
	}
	c.Output.Format = format
}

func (c *Config) normalizeWatch() error {
	if c.Watch.Interval <= 0 {
		c.Watch.Interval = defaultWatchInterval
	}
	if strings.TrimSpace(c.Watch.HistoryFile) != "" {
		expanded, err := expandPath(c.Watch.HistoryFile)
		if err != nil {
			return fmt.Errorf("watch.history_file: %w", err)
		}
		c.Watch.HistoryFile = expanded
	}
	return nil
}

func (c *Config) normalizeLogging() error {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = defaultLogRetentionDays
	}
	if strings.TrimSpace(c.Logging.Directory) != "" {
		expanded, err := expandPath(c.Logging.Directory)
		if err != nil {
			return fmt.Errorf("logging.directory: %w", err)
		}
		c.Logging.Directory = expanded
	}
	return nil
}

func (c *Config) normalizeStats() error {
	if strings.TrimSpace(c.Stats.DatabasePath) == "" {
		c.Stats.DatabasePath = defaultStatsDatabase
	}
	expanded, err := expandPath(c.Stats.DatabasePath)
	if err != nil {
		return fmt.Errorf("stats.database_path: %w", err)
	}
	c.Stats.DatabasePath = expanded
	return nil
}
