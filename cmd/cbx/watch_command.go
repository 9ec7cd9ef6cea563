package main

import (
	"encoding/json"
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"cbx/internal/config"
	"cbx/internal/logging"
	"cbx/internal/pipeline"
	"cbx/internal/watch"
)

func newWatchCommand(ctx *commandContext) *cobra.Command {
	var overrides conversionOverrides
	var intervalFlag int

	cmd := &cobra.Command{
		Use:   "watch <directory>",
		Short: "Watch a directory and convert new archives as they arrive",
		Long: `Poll a directory for comic archives and convert each new arrival. Archives
already recorded in the history file under the output directory are skipped,
so the watcher can be restarted without reprocessing. Stop with Ctrl-C; any
queued packaging finishes first.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			cfg := *base
			if err := applyOverrides(&cfg, cmd.Flags(), &overrides); err != nil {
				return err
			}
			if cmd.Flags().Changed("interval") {
				cfg.Watch.Interval = intervalFlag
				if err := cfg.Validate(); err != nil {
					return err
				}
			}
			return runWatch(cmd, ctx, &cfg, args[0])
		},
	}

	addConversionFlags(cmd.Flags(), &overrides)
	cmd.Flags().IntVar(&intervalFlag, "interval", 0, "Poll interval in seconds")

	return cmd
}

func runWatch(cmd *cobra.Command, cctx *commandContext, cfg *config.Config, dir string) error {
	logger, err := cctx.newLogger(cfg)
	if err != nil {
		return err
	}

	runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cleanStaleArtifacts(cfg, logger)

	w := watch.New(cfg, logger)

	store, err := cctx.openRecorder(cfg)
	if err != nil {
		logging.WarnWithContext(logger, "statistics disabled for this run", "stats_open_failed", logging.Error(err))
	} else if store != nil {
		defer store.Close()
		w.Recorder = store
	}

	out := cmd.OutOrStdout()
	if cctx.JSONMode() {
		// One compact JSON object per processed archive, suitable for piping.
		enc := json.NewEncoder(out)
		w.OnArchiveDone = func(r pipeline.ArchiveResult) {
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
			_ = enc.Encode(item)
		}
	} else {
		w.OnArchiveDone = func(r pipeline.ArchiveResult) {
			if r.Succeeded() {
				fmt.Fprintf(out, "%s -> %s (%s -> %s)\n",
					filepath.Base(r.Source), filepath.Base(r.Output),
					humanize.IBytes(uint64(r.OriginalBytes)), humanize.IBytes(uint64(r.ConvertedBytes)))
				return
			}
			fmt.Fprintf(out, "Failed: %s (%s): %v\n", filepath.Base(r.Source), r.FailedStage, r.Err)
		}
	}

	return w.Run(runCtx, dir)
}
