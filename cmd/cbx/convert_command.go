package main

import (
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"cbx/internal/config"
	"cbx/internal/logging"
	"cbx/internal/pipeline"
	"cbx/internal/staging"
)

// conversionOverrides holds the flag values shared by convert and watch.
// Only flags the user actually set are applied over the loaded config, so a
// zero here never clobbers a file value.
type conversionOverrides struct {
	outputDir         string
	preset            string
	quality           int
	method            int
	lossless          bool
	autoOptimize      bool
	maxWidth          int
	maxHeight         int
	preprocessing     string
	grayscale         bool
	autoContrast      bool
	autoGreyscale     bool
	format            string
	compression       int
	workers           int
	recursive         bool
	preserveStructure bool
	deleteOriginals   bool
	keepStaging       bool
}

func addConversionFlags(flags *pflag.FlagSet, o *conversionOverrides) {
	flags.StringVarP(&o.outputDir, "output", "o", "", "Output directory (defaults to paths.output_dir)")
	flags.StringVar(&o.preset, "preset", "", "Apply a named preset before other flags")
	flags.IntVarP(&o.quality, "quality", "q", 0, "WebP quality (0-100)")
	flags.IntVar(&o.method, "method", 0, "WebP encoder effort (0-6)")
	flags.BoolVar(&o.lossless, "lossless", false, "Encode losslessly")
	flags.BoolVar(&o.autoOptimize, "auto-optimize", false, "Encode lossy and lossless, keep the smaller file")
	flags.IntVar(&o.maxWidth, "max-width", 0, "Maximum page width in pixels (0 keeps the source size)")
	flags.IntVar(&o.maxHeight, "max-height", 0, "Maximum page height in pixels (0 keeps the source size)")
	flags.StringVar(&o.preprocessing, "preprocessing", "", "Page preprocessing: none, unsharp_mask, or reduce_noise")
	flags.BoolVar(&o.grayscale, "grayscale", false, "Force greyscale output")
	flags.BoolVar(&o.autoContrast, "auto-contrast", false, "Stretch page contrast before encoding")
	flags.BoolVar(&o.autoGreyscale, "auto-greyscale", false, "Flatten pages that are greyscale apart from scanner tint")
	flags.StringVar(&o.format, "format", "", "Output container: cbz, zip, or folder")
	flags.IntVar(&o.compression, "compression", 0, "Zip compression level (0-9)")
	flags.IntVarP(&o.workers, "workers", "w", 0, "Worker goroutines (0 uses all CPUs)")
	flags.BoolVar(&o.deleteOriginals, "delete-originals", false, "Delete source archives after successful conversion")
	flags.BoolVar(&o.keepStaging, "keep-staging", false, "Keep converted staging trees after packaging")
}

// applyOverrides layers the preset, then every explicitly set flag, on top
// of cfg. The caller revalidates afterwards.
func applyOverrides(cfg *config.Config, flags *pflag.FlagSet, o *conversionOverrides) error {
	if o.preset != "" {
		if err := cfg.ApplyPreset(o.preset); err != nil {
			return err
		}
	}
	if flags.Changed("output") {
		expanded, err := config.ExpandPath(o.outputDir)
		if err != nil {
			return fmt.Errorf("resolve output directory: %w", err)
		}
		cfg.Paths.OutputDir = expanded
	}
	if flags.Changed("quality") {
		cfg.Conversion.Quality = o.quality
	}
	if flags.Changed("method") {
		cfg.Conversion.Method = o.method
	}
	if flags.Changed("lossless") {
		cfg.Conversion.Lossless = o.lossless
	}
	if flags.Changed("auto-optimize") {
		cfg.Conversion.AutoOptimize = o.autoOptimize
	}
	if flags.Changed("max-width") {
		cfg.Conversion.MaxWidth = o.maxWidth
	}
	if flags.Changed("max-height") {
		cfg.Conversion.MaxHeight = o.maxHeight
	}
	if flags.Changed("preprocessing") {
		cfg.Conversion.Preprocessing = o.preprocessing
	}
	if flags.Changed("grayscale") {
		cfg.Conversion.Grayscale = o.grayscale
	}
	if flags.Changed("auto-contrast") {
		cfg.Conversion.AutoContrast = o.autoContrast
	}
	if flags.Changed("auto-greyscale") {
		cfg.Conversion.AutoGreyscale = o.autoGreyscale
	}
	if flags.Changed("format") {
		cfg.Output.Format = o.format
	}
	if flags.Changed("compression") {
		cfg.Output.Compression = o.compression
	}
	if flags.Changed("workers") {
		cfg.Pipeline.Workers = o.workers
	}
	if flags.Changed("recursive") {
		cfg.Pipeline.Recursive = o.recursive
	}
	if flags.Changed("preserve-structure") {
		cfg.Output.PreserveStructure = o.preserveStructure
	}
	if flags.Changed("delete-originals") {
		cfg.Output.DeleteOriginals = o.deleteOriginals
	}
	if flags.Changed("keep-staging") {
		cfg.Output.KeepStaging = o.keepStaging
	}
	return cfg.Validate()
}

func newConvertCommand(ctx *commandContext) *cobra.Command {
	var overrides conversionOverrides

	cmd := &cobra.Command{
		Use:   "convert <input>...",
		Short: "Convert comic archives and images to WebP",
		Long: `Convert comic archives (.cbz/.cbr/.cb7, .zip/.rar/.7z), bare image files,
or image folders to WebP. Directory inputs are scanned for archives; an image
folder without archives is converted and packaged as one book.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			cfg := *base
			if err := applyOverrides(&cfg, cmd.Flags(), &overrides); err != nil {
				return err
			}
			return runConvert(cmd, ctx, &cfg, args)
		},
	}

	addConversionFlags(cmd.Flags(), &overrides)
	cmd.Flags().BoolVarP(&overrides.recursive, "recursive", "r", false, "Recurse into input directories")
	cmd.Flags().BoolVar(&overrides.preserveStructure, "preserve-structure", false, "Mirror the input directory layout under the output directory")

	return cmd
}

// cleanStaleArtifacts removes leftover staging trees and expired log files
// before a run starts. The active cbx.log is never pruned.
func cleanStaleArtifacts(cfg *config.Config, logger *slog.Logger) {
	if hours := cfg.Pipeline.StaleStagingHours; hours > 0 {
		staging.CleanStale(cfg.Paths.StagingDir, time.Duration(hours)*time.Hour, logger)
	}
	if dir := cfg.Logging.Directory; dir != "" {
		logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays, logging.RetentionTarget{
			Dir:     dir,
			Pattern: "*.log",
			Exclude: []string{filepath.Join(dir, "cbx.log")},
		})
	}
}

func runConvert(cmd *cobra.Command, cctx *commandContext, cfg *config.Config, inputs []string) error {
	logger, err := cctx.newLogger(cfg)
	if err != nil {
		return err
	}

	runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cleanStaleArtifacts(cfg, logger)

	pipe := pipeline.New(cfg, logger)

	store, err := cctx.openRecorder(cfg)
	if err != nil {
		logging.WarnWithContext(logger, "statistics disabled for this run", "stats_open_failed", logging.Error(err))
	} else if store != nil {
		defer store.Close()
		pipe.Recorder = store
	}

	progress := newProgressTracker(cmd.ErrOrStderr())
	pipe.OnArchiveStart = progress.StartArchive
	pipe.OnPageResult = progress.PageDone

	results, batch, runErr := pipe.Run(runCtx, inputs)
	progress.Finish()

	if cctx.JSONMode() {
		if err := writeConvertJSON(cmd, results, batch); err != nil {
			return err
		}
	} else {
		printBatchReport(cmd.OutOrStdout(), results, batch)
	}

	if runErr != nil {
		return runErr
	}
	if batch.Failed > 0 {
		return fmt.Errorf("%d of %d archives failed", batch.Failed, batch.Archives)
	}
	return nil
}

func printBatchReport(out io.Writer, results []pipeline.ArchiveResult, batch pipeline.BatchStats) {
	rows, total := pipeline.Summary(results, batch)
	if len(rows) > 0 {
		tableRows := make([][]string, 0, len(rows)+1)
		for _, row := range rows {
			tableRows = append(tableRows, []string{row.Name, row.Original, row.Converted, row.Saved, row.Reduction})
		}
		tableRows = append(tableRows, []string{total.Name, total.Original, total.Converted, total.Saved, total.Reduction})
		fmt.Fprintln(out, renderTable(
			[]column{
				{Title: "Archive"},
				{Title: "Original", Right: true},
				{Title: "WebP", Right: true},
				{Title: "Saved", Right: true},
				{Title: "Reduction", Right: true},
			},
			tableRows,
		))
	}
	for _, r := range results {
		if !r.Succeeded() {
			fmt.Fprintf(out, "Failed: %s (%s): %v\n", filepath.Base(r.Source), r.FailedStage, r.Err)
		}
	}
	fmt.Fprintf(out, "Converted %d of %d archives (%d pages) in %s\n",
		batch.Succeeded, batch.Archives, batch.Pages, batch.Elapsed.Round(time.Millisecond))
}

type convertResultJSON struct {
	Source         string  `json:"source"`
	Output         string  `json:"output,omitempty"`
	Status         string  `json:"status"`
	FailedStage    string  `json:"failed_stage,omitempty"`
	Error          string  `json:"error,omitempty"`
	Pages          int     `json:"pages"`
	PagesFailed    int     `json:"pages_failed,omitempty"`
	Copied         int     `json:"copied,omitempty"`
	OriginalBytes  int64   `json:"original_bytes"`
	ConvertedBytes int64   `json:"converted_bytes"`
	ElapsedSeconds float64 `json:"elapsed_seconds"`
}

func writeConvertJSON(cmd *cobra.Command, results []pipeline.ArchiveResult, batch pipeline.BatchStats) error {
	items := make([]convertResultJSON, 0, len(results))
	for _, r := range results {
		item := convertResultJSON{
			Source:         r.Source,
			Output:         r.Output,
			Status:         string(r.Status),
			FailedStage:    r.FailedStage,
			Pages:          r.Pages,
			PagesFailed:    r.PagesFailed,
			Copied:         r.Copied,
			OriginalBytes:  r.OriginalBytes,
			ConvertedBytes: r.ConvertedBytes,
			ElapsedSeconds: r.Elapsed.Seconds(),
		}
		if r.Err != nil {
			item.Error = r.Err.Error()
		}
		items = append(items, item)
	}
	return writeJSON(cmd, map[string]any{
		"archives": items,
		"totals": map[string]any{
			"archives":          batch.Archives,
			"succeeded":         batch.Succeeded,
			"failed":            batch.Failed,
			"pages":             batch.Pages,
			"original_bytes":    batch.OriginalBytes,
			"converted_bytes":   batch.ConvertedBytes,
			"bytes_saved":       batch.BytesSaved(),
			"reduction_percent": batch.ReductionPercent(),
			"elapsed_seconds":   batch.Elapsed.Seconds(),
		},
	})
}
