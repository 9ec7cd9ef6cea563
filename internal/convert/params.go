package convert

import (
	"fmt"

	"cbx/internal/config"
)

// Params carries every knob a single page conversion consumes. The zero
// value encodes lossy WebP at quality zero, so callers normally start from
// FromConfig.
type Params struct {
	Quality       int
	Method        int
	Lossless      bool
	AutoOptimize  bool
	MaxWidth      int
	MaxHeight     int
	Preprocessing string
	Grayscale     bool
	AutoContrast  bool

	AutoGreyscale                 bool
	AutoGreyscalePixelThreshold   int
	AutoGreyscalePercentThreshold float64
}

// FromConfig copies the conversion section into a Params value.
func FromConfig(cfg *config.Config) Params {
	return Params{
		Quality:                       cfg.Conversion.Quality,
		Method:                        cfg.Conversion.Method,
		Lossless:                      cfg.Conversion.Lossless,
		AutoOptimize:                  cfg.Conversion.AutoOptimize,
		MaxWidth:                      cfg.Conversion.MaxWidth,
		MaxHeight:                     cfg.Conversion.MaxHeight,
		Preprocessing:                 cfg.Conversion.Preprocessing,
		Grayscale:                     cfg.Conversion.Grayscale,
		AutoContrast:                  cfg.Conversion.AutoContrast,
		AutoGreyscale:                 cfg.Conversion.AutoGreyscale,
		AutoGreyscalePixelThreshold:   cfg.Conversion.AutoGreyscalePixelThreshold,
		AutoGreyscalePercentThreshold: cfg.Conversion.AutoGreyscalePercentThreshold,
	}
}

// Validate rejects parameter combinations the encoder cannot honor.
func (p Params) Validate() error {
	if p.Quality < 0 || p.Quality > 100 {
		return fmt.Errorf("quality %d out of range 0-100", p.Quality)
	}
	if p.Method < 0 || p.Method > 6 {
		return fmt.Errorf("method %d out of range 0-6", p.Method)
	}
	if p.MaxWidth < 0 || p.MaxHeight < 0 {
		return fmt.Errorf("resize bounds must not be negative")
	}
	switch p.Preprocessing {
	case "", config.PreprocessNone, config.PreprocessUnsharpMask, config.PreprocessReduceNoise:
	default:
		return fmt.Errorf("unknown preprocessing mode %q", p.Preprocessing)
	}
	if p.AutoGreyscalePixelThreshold < 0 || p.AutoGreyscalePixelThreshold > 255 {
		return fmt.Errorf("auto-greyscale pixel threshold %d out of range 0-255", p.AutoGreyscalePixelThreshold)
	}
	if p.AutoGreyscalePercentThreshold < 0 || p.AutoGreyscalePercentThreshold > 1 {
		return fmt.Errorf("auto-greyscale percent threshold %g out of range 0-1", p.AutoGreyscalePercentThreshold)
	}
	return nil
}

// Task names one source image and where its encoded output goes. Tasks are
// value types with no shared state, safe to hand to any worker.
type Task struct {
	SourcePath string
	DestPath   string
	Params     Params
}

// Result reports one completed Task. Produced exactly once per task.
type Result struct {
	SourcePath     string
	DestPath       string
	OriginalBytes  int64
	ConvertedBytes int64
	Err            error
}

// Success reports whether the page produced an encoded output file.
func (r Result) Success() bool { return r.Err == nil }
