package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	OutputDir  string `toml:"output_dir"`
	StagingDir string `toml:"staging_dir"`
}

// Conversion contains the image conversion parameters applied to every page.
type Conversion struct {
	Quality                       int     `toml:"quality"`
	Method                        int     `toml:"method"`
	Lossless                      bool    `toml:"lossless"`
	AutoOptimize                  bool    `toml:"auto_optimize"`
	MaxWidth                      int     `toml:"max_width"`
	MaxHeight                     int     `toml:"max_height"`
	Preprocessing                 string  `toml:"preprocessing"`
	Grayscale                     bool    `toml:"grayscale"`
	AutoContrast                  bool    `toml:"auto_contrast"`
	AutoGreyscale                 bool    `toml:"auto_greyscale"`
	AutoGreyscalePixelThreshold   int     `toml:"auto_greyscale_pixel_threshold"`
	AutoGreyscalePercentThreshold float64 `toml:"auto_greyscale_percent_threshold"`
}

// Output contains packaging configuration for converted archives.
type Output struct {
	Format            string `toml:"format"`
	Compression       int    `toml:"compression"`
	PreserveStructure bool   `toml:"preserve_structure"`
	DeleteOriginals   bool   `toml:"delete_originals"`
	KeepStaging       bool   `toml:"keep_staging"`
}

// Pipeline contains concurrency and housekeeping settings for batch runs.
type Pipeline struct {
	Workers           int  `toml:"workers"`
	Recursive         bool `toml:"recursive"`
	MinFreeMiB        int  `toml:"min_free_mib"`
	StaleStagingHours int  `toml:"stale_staging_hours"`
}

// Watch contains configuration for directory watch mode.
type Watch struct {
	Interval    int    `toml:"interval"`
	HistoryFile string `toml:"history_file"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	Directory     string `toml:"directory"`
	RetentionDays int    `toml:"retention_days"`
}

// Stats contains configuration for lifetime statistics tracking.
type Stats struct {
	Enabled      bool   `toml:"enabled"`
	DatabasePath string `toml:"database_path"`
}

// Config encapsulates all configuration values for cbx.
//
// Configuration sections by subsystem:
//   - Paths: default output root and staging directory
//   - Conversion: WebP encoder settings, resizing, and transformations
//   - Output: archive format, zip compression, and source handling
//   - Pipeline: worker counts, recursion, and staging housekeeping
//   - Watch: polling interval and history file for watch mode
//   - Logging: log format, level, directory, and retention
//   - Stats: lifetime statistics database
type Config struct {
	Paths      Paths      `toml:"paths"`
	Conversion Conversion `toml:"conversion"`
	Output     Output     `toml:"output"`
	Pipeline   Pipeline   `toml:"pipeline"`
	Watch      Watch      `toml:"watch"`
	Logging    Logging    `toml:"logging"`
	Stats      Stats      `toml:"stats"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/cbx/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config
// has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("cbx.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories cbx needs before a run starts.
// The output directory is created on a best-effort basis so config load does
// not fail when external storage is temporarily unavailable.
func (c *Config) EnsureDirectories() error {
	if err := os.MkdirAll(c.Paths.StagingDir, 0o755); err != nil {
		return fmt.Errorf("create staging directory %q: %w", c.Paths.StagingDir, err)
	}
	if dir := strings.TrimSpace(c.Logging.Directory); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create log directory %q: %w", dir, err)
		}
	}
	if c.Stats.Enabled {
		if dir := filepath.Dir(c.Stats.DatabasePath); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create stats directory %q: %w", dir, err)
			}
		}
	}
	if dir := strings.TrimSpace(c.Paths.OutputDir); dir != "" {
		_ = os.MkdirAll(dir, 0o755)
	}
	return nil
}

// PackagingEnabled reports whether converted pages are packaged into archives
// or left as plain directories.
func (c *Config) PackagingEnabled() bool {
	return c.Output.Format != FormatFolder
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	sample := sampleConfig

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sample), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
