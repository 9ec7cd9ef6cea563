package convert

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"cbx/internal/archive"
	"cbx/internal/fileutil"
	"cbx/internal/logging"
)

// ErrNoImages indicates a source tree held nothing the converter recognizes
// as a page image.
var ErrNoImages = errors.New("no images found")

// Totals aggregates byte counts over a directory conversion. Byte totals
// cover succeeded pages only.
type Totals struct {
	Pages          int
	PagesFailed    int
	Copied         int
	OriginalBytes  int64
	ConvertedBytes int64
}

// Dispatcher converts every image under a directory tree across a bounded
// worker pool.
type Dispatcher struct {
	Params  Params
	Workers int
	Logger  *slog.Logger

	// OnResult, when set, observes every page result as it completes. It
	// may be invoked from multiple worker goroutines at once.
	OnResult func(Result)
}

// ConvertDir converts the images under srcDir into destDir, mirroring the
// relative layout and swapping extensions to .webp. Non-image files are
// copied through verbatim. The call returns only after every submitted task
// has produced its result, with images processed in deterministic sorted
// order at the task level.
func (d *Dispatcher) ConvertDir(srcDir, destDir string) ([]Result, Totals, error) {
	var totals Totals

	images, passthrough, err := classifyTree(srcDir)
	if err != nil {
		return nil, totals, err
	}
	if len(images) == 0 {
		return nil, totals, fmt.Errorf("%w under %s", ErrNoImages, srcDir)
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, totals, fmt.Errorf("create output directory: %w", err)
	}

	logger := d.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	for _, rel := range passthrough {
		dest := filepath.Join(destDir, rel)
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return nil, totals, fmt.Errorf("create output directory: %w", err)
		}
		if err := fileutil.CopyFile(filepath.Join(srcDir, rel), dest); err != nil {
			return nil, totals, fmt.Errorf("copy %s: %w", rel, err)
		}
		totals.Copied++
	}

	tasks := make([]Task, len(images))
	for i, rel := range images {
		ext := filepath.Ext(rel)
		tasks[i] = Task{
			SourcePath: filepath.Join(srcDir, rel),
			DestPath:   filepath.Join(destDir, strings.TrimSuffix(rel, ext)+".webp"),
			Params:     d.Params,
		}
	}

	workers := d.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(tasks) {
		workers = len(tasks)
	}

	results := make([]Result, len(tasks))
	indexes := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indexes {
				results[i] = Convert(tasks[i])
				if d.OnResult != nil {
					d.OnResult(results[i])
				}
			}
		}()
	}
	for i := range tasks {
		indexes <- i
	}
	close(indexes)
	wg.Wait()

	for i, result := range results {
		if result.Err != nil {
			totals.PagesFailed++
			logger.Error("page conversion failed",
				logging.String(logging.FieldPage, images[i]),
				logging.Error(result.Err),
			)
			continue
		}
		totals.Pages++
		totals.OriginalBytes += result.OriginalBytes
		totals.ConvertedBytes += result.ConvertedBytes
		logger.Debug("page converted",
			logging.String(logging.FieldPage, images[i]),
			logging.Int64("original_bytes", result.OriginalBytes),
			logging.Int64("converted_bytes", result.ConvertedBytes),
		)
	}
	return results, totals, nil
}

// classifyTree walks srcDir and splits regular files into images and
// pass-through members, both as sorted slash-relative paths.
func classifyTree(srcDir string) (images, passthrough []string, err error) {
	err = filepath.WalkDir(srcDir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() || !entry.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		if archive.IsImage(rel) {
			images = append(images, rel)
		} else {
			passthrough = append(passthrough, rel)
		}
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("walk %s: %w", srcDir, err)
	}
	sort.Strings(images)
	sort.Strings(passthrough)
	return images, passthrough, nil
}
