package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"cbx/internal/archive"
	"cbx/internal/convert"
)

func newScanCommand(ctx *commandContext) *cobra.Command {
	var pixelThreshold int
	var percentThreshold float64
	var workers int
	var recursive bool

	cmd := &cobra.Command{
		Use:   "scan <input>...",
		Short: "Find archives whose pages are greyscale apart from scanner tint",
		Long: `Extract each archive and count the pages the auto-greyscale heuristic would
flatten. Archives with at least one such page are reported, so you can see
where enabling auto-greyscale pays off before converting anything.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			archives, err := collectArchives(args, recursive)
			if err != nil {
				return err
			}
			if len(archives) == 0 {
				return fmt.Errorf("no archives found in inputs")
			}

			opts := convert.ScanOptions{
				PixelThreshold:   cfg.Conversion.AutoGreyscalePixelThreshold,
				PercentThreshold: cfg.Conversion.AutoGreyscalePercentThreshold,
				Workers:          cfg.Pipeline.Workers,
			}
			if cmd.Flags().Changed("pixel-threshold") {
				opts.PixelThreshold = pixelThreshold
			}
			if cmd.Flags().Changed("percent-threshold") {
				opts.PercentThreshold = percentThreshold
			}
			if cmd.Flags().Changed("workers") {
				opts.Workers = workers
			}
			if opts.Workers <= 0 {
				opts.Workers = runtime.NumCPU()
			}
			logger, err := ctx.newLogger(cfg)
			if err != nil {
				return err
			}
			opts.Logger = logger

			results := convert.ScanArchives(archives, opts)

			if ctx.JSONMode() {
				return writeScanJSON(cmd, results, len(archives))
			}

			out := cmd.OutOrStdout()
			if len(results) == 0 {
				fmt.Fprintf(out, "No near-greyscale archives found across %d archives\n", len(archives))
				return nil
			}
			rows := make([][]string, 0, len(results))
			for _, r := range results {
				share := 0.0
				if r.TotalPages > 0 {
					share = float64(r.NearGreyscalePages) / float64(r.TotalPages) * 100
				}
				rows = append(rows, []string{
					filepath.Base(r.Archive),
					strconv.Itoa(r.NearGreyscalePages),
					strconv.Itoa(r.TotalPages),
					fmt.Sprintf("%.0f%%", share),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]column{
					{Title: "Archive"},
					{Title: "Near-greyscale", Right: true},
					{Title: "Pages", Right: true},
					{Title: "Share", Right: true},
				},
				rows,
			))
			fmt.Fprintf(out, "%d of %d archives contain near-greyscale pages\n", len(results), len(archives))
			return nil
		},
	}

	cmd.Flags().IntVar(&pixelThreshold, "pixel-threshold", 0, "Channel difference below which a pixel counts as grey")
	cmd.Flags().Float64Var(&percentThreshold, "percent-threshold", 0, "Colored-pixel ratio below which a page counts as near-greyscale")
	cmd.Flags().IntVarP(&workers, "workers", "w", 0, "Archives scanned in parallel (0 uses all CPUs)")
	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "Recurse into input directories")

	return cmd
}

// collectArchives resolves the mixed file/directory inputs of a scan into a
// sorted, deduplicated archive list.
func collectArchives(inputs []string, recursive bool) ([]string, error) {
	seen := make(map[string]struct{})
	var archives []string

	add := func(path string) {
		if _, ok := seen[path]; ok {
			return
		}
		seen[path] = struct{}{}
		archives = append(archives, path)
	}

	for _, input := range inputs {
		info, err := os.Stat(input)
		if err != nil {
			return nil, fmt.Errorf("stat input %s: %w", input, err)
		}
		if !info.IsDir() {
			if !archive.IsArchive(input) {
				return nil, fmt.Errorf("%w: %s", archive.ErrUnsupportedFormat, input)
			}
			add(input)
			continue
		}
		found, err := archive.FindArchives(input, recursive)
		if err != nil {
			return nil, err
		}
		for _, path := range found {
			add(path)
		}
	}

	sort.Strings(archives)
	return archives, nil
}

func writeScanJSON(cmd *cobra.Command, results []convert.ScanResult, scanned int) error {
	type scanResultJSON struct {
		Archive            string `json:"archive"`
		NearGreyscalePages int    `json:"near_greyscale_pages"`
		TotalPages         int    `json:"total_pages"`
	}
	items := make([]scanResultJSON, 0, len(results))
	for _, r := range results {
		items = append(items, scanResultJSON{
			Archive:            r.Archive,
			NearGreyscalePages: r.NearGreyscalePages,
			TotalPages:         r.TotalPages,
		})
	}
	return writeJSON(cmd, map[string]any{
		"scanned":  scanned,
		"archives": items,
	})
}
