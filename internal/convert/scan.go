package convert

import (
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/disintegration/imaging"

	"cbx/internal/archive"
	"cbx/internal/logging"
)

// ScanResult reports one archive whose pages the auto-greyscale heuristic
// would flatten.
type ScanResult struct {
	Archive            string
	NearGreyscalePages int
	TotalPages         int
}

// ScanOptions bound a near-greyscale scan.
type ScanOptions struct {
	PixelThreshold   int
	PercentThreshold float64
	Workers          int
	Logger           *slog.Logger
}

// ScanArchives extracts each archive into a throwaway directory and counts
// pages the auto-greyscale heuristic would flatten. Only archives with at
// least one such page appear in the result, sorted by path. Archives that
// fail to extract are logged and skipped.
func ScanArchives(archives []string, opts ScanOptions) []ScanResult {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = 1
	}
	if workers > len(archives) {
		workers = len(archives)
	}

	results := make([]*ScanResult, len(archives))
	indexes := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indexes {
				results[i] = scanArchive(archives[i], opts.PixelThreshold, opts.PercentThreshold, logger)
			}
		}()
	}
	for i := range archives {
		indexes <- i
	}
	close(indexes)
	wg.Wait()

	flagged := make([]ScanResult, 0, len(archives))
	for _, result := range results {
		if result != nil && result.NearGreyscalePages > 0 {
			flagged = append(flagged, *result)
		}
	}
	sort.Slice(flagged, func(i, j int) bool { return flagged[i].Archive < flagged[j].Archive })
	return flagged
}

func scanArchive(archivePath string, pixelThreshold int, percentThreshold float64, logger *slog.Logger) *ScanResult {
	name := filepath.Base(archivePath)
	tempDir, err := os.MkdirTemp("", "cbx-scan-")
	if err != nil {
		logging.ErrorWithContext(logger, "scan staging failed", "scan_staging_failed",
			logging.String(logging.FieldArchive, name),
			logging.Error(err),
		)
		return nil
	}
	defer os.RemoveAll(tempDir)

	logger.Debug("scanning archive", logging.String(logging.FieldArchive, name))
	if err := archive.Extract(archivePath, tempDir); err != nil {
		logging.ErrorWithContext(logger, "scan extraction failed", "scan_extract_failed",
			logging.String(logging.FieldArchive, name),
			logging.Error(err),
		)
		return nil
	}

	images, _, err := classifyTree(tempDir)
	if err != nil {
		logging.ErrorWithContext(logger, "scan walk failed", "scan_walk_failed",
			logging.String(logging.FieldArchive, name),
			logging.Error(err),
		)
		return nil
	}

	result := &ScanResult{Archive: archivePath}
	for _, rel := range images {
		decoded, err := imaging.Open(filepath.Join(tempDir, rel))
		if err != nil {
			logging.WarnWithContext(logger, "page analysis failed", "scan_page_failed",
				logging.String(logging.FieldArchive, name),
				logging.String(logging.FieldPage, rel),
				logging.Error(err),
			)
			continue
		}
		// Pages already stored as greyscale carry no color to flatten.
		switch decoded.(type) {
		case *image.Gray, *image.Gray16:
			continue
		}
		result.TotalPages++
		if ShouldGreyscale(decoded, pixelThreshold, percentThreshold) {
			result.NearGreyscalePages++
		}
	}
	return result
}
