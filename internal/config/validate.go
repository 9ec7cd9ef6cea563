package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateConversion(); err != nil {
		return err
	}
	if err := c.validateOutput(); err != nil {
		return err
	}
	if err := c.validatePipeline(); err != nil {
		return err
	}
	if err := c.validateWatch(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateConversion() error {
	conv := c.Conversion
	if conv.Quality < 0 || conv.Quality > 100 {
		return errors.New("conversion.quality must be between 0 and 100")
	}
	if conv.Method < 0 || conv.Method > 6 {
		return errors.New("conversion.method must be between 0 and 6")
	}
	switch conv.Preprocessing {
	case PreprocessNone, PreprocessUnsharpMask, PreprocessReduceNoise:
	default:
		return fmt.Errorf("conversion.preprocessing must be one of none, unsharp_mask, reduce_noise (got %q)", conv.Preprocessing)
	}
	if conv.MaxWidth < 0 {
		return errors.New("conversion.max_width must not be negative")
	}
	if conv.MaxHeight < 0 {
		return errors.New("conversion.max_height must not be negative")
	}
	if conv.AutoGreyscalePixelThreshold < 0 || conv.AutoGreyscalePixelThreshold > 255 {
		return errors.New("conversion.auto_greyscale_pixel_threshold must be between 0 and 255")
	}
	if conv.AutoGreyscalePercentThreshold < 0 || conv.AutoGreyscalePercentThreshold > 1 {
		return errors.New("conversion.auto_greyscale_percent_threshold must be between 0 and 1")
	}
	return nil
}

func (c *Config) validateOutput() error {
	switch c.Output.Format {
	case FormatCBZ, FormatZip, FormatFolder:
	case "cbr", "rar", "cb7", "7z":
		return fmt.Errorf("output.format %q is read-only: rar and 7z archives can be extracted but not written", c.Output.Format)
	default:
		return fmt.Errorf("output.format must be one of cbz, zip, folder (got %q)", c.Output.Format)
	}
	if c.Output.Compression < 0 || c.Output.Compression > 9 {
		return errors.New("output.compression must be between 0 and 9")
	}
	return nil
}

func (c *Config) validatePipeline() error {
	if c.Pipeline.Workers < 0 {
		return errors.New("pipeline.workers must not be negative")
	}
	if c.Pipeline.MinFreeMiB < 0 {
		return errors.New("pipeline.min_free_mib must not be negative")
	}
	if c.Pipeline.StaleStagingHours < 0 {
		return errors.New("pipeline.stale_staging_hours must not be negative")
	}
	return nil
}

func (c *Config) validateWatch() error {
	if c.Watch.Interval <= 0 {
		return errors.New("watch.interval must be positive (seconds)")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json (got %q)", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error (got %q)", c.Logging.Level)
	}
	return nil
}
