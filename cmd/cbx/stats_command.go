package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"cbx/internal/stats"
)

func newStatsCommand(ctx *commandContext) *cobra.Command {
	var recent int

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show lifetime conversion statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			path := cfg.Stats.DatabasePath
			if !cfg.Stats.Enabled {
				if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
					if ctx.JSONMode() {
						return writeJSON(cmd, map[string]any{"enabled": false})
					}
					fmt.Fprintln(cmd.OutOrStdout(), "Statistics tracking is disabled and no database exists")
					return nil
				}
			}

			store, err := stats.Open(path)
			if err != nil {
				return fmt.Errorf("open statistics database: %w", err)
			}
			defer store.Close()

			life, err := store.Lifetime(cmd.Context())
			if err != nil {
				return err
			}
			runs, err := store.RecentRuns(cmd.Context(), recent)
			if err != nil {
				return err
			}

			if ctx.JSONMode() {
				return writeStatsJSON(cmd, life, runs)
			}
			printStats(cmd.OutOrStdout(), store.Path(), life, runs)
			return nil
		},
	}

	cmd.Flags().IntVar(&recent, "recent", 10, "Number of recent runs to list")

	return cmd
}

func printStats(out io.Writer, path string, life stats.Lifetime, runs []stats.Run) {
	if life.Runs == 0 {
		fmt.Fprintf(out, "No runs recorded yet (%s)\n", path)
		return
	}

	fmt.Fprintf(out, "Lifetime totals since %s\n", life.FirstRun.Local().Format("2006-01-02"))
	fmt.Fprintf(out, "  Runs:            %d\n", life.Runs)
	fmt.Fprintf(out, "  Archives:        %d (%d failed)\n", life.Archives, life.ArchivesFailed)
	fmt.Fprintf(out, "  Pages:           %d\n", life.Files)
	fmt.Fprintf(out, "  Original size:   %s\n", humanize.IBytes(uint64(life.OriginalBytes)))
	fmt.Fprintf(out, "  Converted size:  %s\n", humanize.IBytes(uint64(life.ConvertedBytes)))
	fmt.Fprintf(out, "  Saved:           %s (%.1f%%)\n", formatSignedBytes(life.BytesSaved()), life.ReductionPercent())

	if len(runs) == 0 {
		return
	}
	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		rows = append(rows, []string{
			run.StartedAt.Local().Format("2006-01-02 15:04"),
			strconv.Itoa(run.Archives),
			strconv.Itoa(run.ArchivesFailed),
			strconv.Itoa(run.Files),
			humanize.IBytes(uint64(run.OriginalBytes)),
			humanize.IBytes(uint64(run.ConvertedBytes)),
			formatSignedBytes(run.BytesSaved()),
			run.Duration().Round(time.Second).String(),
		})
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, renderTable(
		[]column{
			{Title: "Started"},
			{Title: "Archives", Right: true},
			{Title: "Failed", Right: true},
			{Title: "Pages", Right: true},
			{Title: "Original", Right: true},
			{Title: "WebP", Right: true},
			{Title: "Saved", Right: true},
			{Title: "Duration", Right: true},
		},
		rows,
	))
}

func formatSignedBytes(n int64) string {
	if n < 0 {
		return "-" + humanize.IBytes(uint64(-n))
	}
	return humanize.IBytes(uint64(n))
}

func writeStatsJSON(cmd *cobra.Command, life stats.Lifetime, runs []stats.Run) error {
	type runJSON struct {
		RunID          string    `json:"run_id"`
		StartedAt      time.Time `json:"started_at"`
		FinishedAt     time.Time `json:"finished_at"`
		Archives       int       `json:"archives"`
		ArchivesFailed int       `json:"archives_failed"`
		Files          int       `json:"files"`
		OriginalBytes  int64     `json:"original_bytes"`
		ConvertedBytes int64     `json:"converted_bytes"`
	}
	items := make([]runJSON, 0, len(runs))
	for _, run := range runs {
		items = append(items, runJSON{
			RunID:          run.RunID,
			StartedAt:      run.StartedAt,
			FinishedAt:     run.FinishedAt,
			Archives:       run.Archives,
			ArchivesFailed: run.ArchivesFailed,
			Files:          run.Files,
			OriginalBytes:  run.OriginalBytes,
			ConvertedBytes: run.ConvertedBytes,
		})
	}
	payload := map[string]any{
		"runs":              life.Runs,
		"archives":          life.Archives,
		"archives_failed":   life.ArchivesFailed,
		"files":             life.Files,
		"original_bytes":    life.OriginalBytes,
		"converted_bytes":   life.ConvertedBytes,
		"bytes_saved":       life.BytesSaved(),
		"reduction_percent": life.ReductionPercent(),
		"recent":            items,
	}
	if life.Runs > 0 {
		payload["first_run"] = life.FirstRun
		payload["last_run"] = life.LastRun
	}
	return writeJSON(cmd, payload)
}
