package config

// Output format values accepted by output.format.
const (
	FormatCBZ    = "cbz"
	FormatZip    = "zip"
	FormatFolder = "folder"
)

// Preprocessing values accepted by conversion.preprocessing.
const (
	PreprocessNone        = "none"
	PreprocessUnsharpMask = "unsharp_mask"
	PreprocessReduceNoise = "reduce_noise"
)

const (
	defaultStagingDir       = "~/.local/share/cbx/staging"
	defaultStatsDatabase    = "~/.local/share/cbx/stats.db"
	defaultLogFormat        = "console"
	defaultLogLevel         = "info"
	defaultLogRetentionDays = 30

	defaultQuality          = 80
	defaultMethod           = 4
	defaultPreprocessing    = PreprocessNone
	defaultPixelThreshold   = 16
	defaultPercentThreshold = 0.01

	defaultOutputFormat = FormatCBZ
	defaultCompression  = 6

	defaultMinFreeMiB        = 512
	defaultStaleStagingHours = 24

	defaultWatchInterval = 5
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StagingDir: defaultStagingDir,
		},
		Conversion: Conversion{
			Quality:                       defaultQuality,
			Method:                        defaultMethod,
			Preprocessing:                 defaultPreprocessing,
			AutoGreyscalePixelThreshold:   defaultPixelThreshold,
			AutoGreyscalePercentThreshold: defaultPercentThreshold,
		},
		Output: Output{
			Format:      defaultOutputFormat,
			Compression: defaultCompression,
		},
		Pipeline: Pipeline{
			MinFreeMiB:        defaultMinFreeMiB,
			StaleStagingHours: defaultStaleStagingHours,
		},
		Watch: Watch{
			Interval: defaultWatchInterval,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
		Stats: Stats{
			Enabled:      true,
			DatabasePath: defaultStatsDatabase,
		},
	}
}
