// Package watch polls a directory for new comic archives and runs them
// through the conversion pipeline as they appear. One packaging worker stays
// alive across polls, so compression of one archive overlaps with conversion
// of the next just as in batch runs. A JSON history file under the output
// directory keeps restarts from reprocessing finished archives.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"cbx/internal/archive"
	"cbx/internal/config"
	"cbx/internal/convert"
	"cbx/internal/logging"
	"cbx/internal/pipeline"
	"cbx/internal/stats"
)

// historyFileName is used when watch.history_file is not configured.
const historyFileName = ".cbx_processed.json"

// lockFileName guards an output directory against concurrent watchers.
const lockFileName = ".cbx_watch.lock"

// Watcher drives watch mode for one input directory.
type Watcher struct {
	cfg    *config.Config
	logger *slog.Logger

	// Recorder, when non-nil, receives one run per successfully converted
	// archive.
	Recorder stats.Recorder
	// OnArchiveFound is invoked when a poll discovers a new archive.
	OnArchiveFound func(path string)
	// OnPageResult is forwarded to the conversion dispatcher; it may be
	// called from multiple worker goroutines.
	OnPageResult func(convert.Result)
	// OnArchiveDone is invoked when an archive reaches a terminal status.
	// For packaged archives it runs on the packaging worker goroutine.
	OnArchiveDone func(result pipeline.ArchiveResult)

	// interval overrides watch.interval when positive.
	interval time.Duration

	mu      sync.Mutex
	pending map[*pipeline.PackagingTask]pipeline.ArchiveResult
}

// New returns a watcher bound to cfg. A nil logger disables logging.
func New(cfg *config.Config, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Watcher{
		cfg:     cfg,
		logger:  logging.NewComponentLogger(logger, "watch"),
		pending: make(map[*pipeline.PackagingTask]pipeline.ArchiveResult),
	}
}

// Run polls inputDir until ctx is canceled, then drains in-flight packaging
// and saves the history file. A canceled context is a clean stop and
// returns nil.
func (w *Watcher) Run(ctx context.Context, inputDir string) error {
	params := convert.FromConfig(w.cfg)
	if err := params.Validate(); err != nil {
		return err
	}
	outputDir := strings.TrimSpace(w.cfg.Paths.OutputDir)
	if outputDir == "" {
		return errors.New("output directory is not configured")
	}
	info, err := os.Stat(inputDir)
	if err != nil {
		return fmt.Errorf("stat watch directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("watch target %s is not a directory", inputDir)
	}
	if err := w.cfg.EnsureDirectories(); err != nil {
		return err
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	lock := flock.New(filepath.Join(outputDir, lockFileName))
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire watch lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("another watcher is already writing to %s", outputDir)
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			w.logger.Warn("failed to release watch lock", logging.Error(err))
		}
	}()

	historyPath := strings.TrimSpace(w.cfg.Watch.HistoryFile)
	if historyPath == "" {
		historyPath = filepath.Join(outputDir, historyFileName)
	}
	history, err := LoadHistory(historyPath)
	if err != nil {
		logging.WarnWithContext(w.logger, "could not load watch history; starting empty", "history_load_failed",
			logging.Error(err))
		history = NewHistory(historyPath)
	}

	totalWorkers := w.cfg.Pipeline.Workers
	if totalWorkers <= 0 {
		totalWorkers = runtime.NumCPU()
	}
	convertWorkers := totalWorkers
	var packager *pipeline.Packager
	if w.cfg.PackagingEnabled() {
		if totalWorkers > 1 {
			convertWorkers = totalWorkers - 1
		}
		packager = pipeline.NewPackager(w.logger, int64(w.cfg.Pipeline.MinFreeMiB))
		packager.OnOutcome = func(task *pipeline.PackagingTask) {
			w.finishPackaged(task, history)
		}
	}

	interval := w.interval
	if interval <= 0 {
		interval = time.Duration(w.cfg.Watch.Interval) * time.Second
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}

	pipe := pipeline.New(w.cfg, w.logger)
	pipe.OnPageResult = w.OnPageResult

	w.logger.Info("watch started",
		logging.String("input", inputDir),
		logging.String("output", outputDir),
		logging.Duration("interval", interval),
		logging.Int("history_entries", history.Len()),
		logging.String(logging.FieldEventType, "stage_start"))

	for {
		if ctx.Err() != nil {
			break
		}
		found, err := archive.FindArchives(inputDir, false)
		if err != nil {
			logging.WarnWithContext(w.logger, "watch poll failed", "watch_poll_failed",
				logging.Error(err))
		} else {
			w.processNew(ctx, pipe, packager, history, found, convertWorkers)
		}

		select {
		case <-ctx.Done():
		case <-time.After(interval):
		}
	}

	if packager != nil {
		w.logger.Info("watch stopping; draining packaging queue")
		packager.Close()
		packager.Wait()
	}
	if err := history.Save(); err != nil {
		logging.WarnWithContext(w.logger, "failed to save watch history", "history_save_failed",
			logging.Error(err))
	}
	w.logger.Info("watch stopped")
	return nil
}

func (w *Watcher) processNew(ctx context.Context, pipe *pipeline.Pipeline, packager *pipeline.Packager, history *History, found []string, workers int) {
	fresh := make([]string, 0, len(found))
	for _, path := range found {
		if !history.Contains(path) {
			fresh = append(fresh, path)
		}
	}
	if len(fresh) == 0 {
		return
	}
	w.logger.Info("new archives found", logging.Int("count", len(fresh)))

	for _, path := range fresh {
		if ctx.Err() != nil {
			return
		}
		if w.OnArchiveFound != nil {
			w.OnArchiveFound(path)
		}
		result, task := pipe.ProcessArchive(path, workers, packager)
		if task != nil {
			w.mu.Lock()
			w.pending[task] = result
			w.mu.Unlock()
			continue
		}
		// Finished synchronously: failed, or packaging is disabled.
		w.finishDirect(result, history)
	}
}

func (w *Watcher) finishDirect(result pipeline.ArchiveResult, history *History) {
	if result.Succeeded() {
		w.commit(result, history)
	}
	if w.OnArchiveDone != nil {
		w.OnArchiveDone(result)
	}
}

func (w *Watcher) finishPackaged(task *pipeline.PackagingTask, history *History) {
	w.mu.Lock()
	result, ok := w.pending[task]
	delete(w.pending, task)
	w.mu.Unlock()
	if !ok {
		return
	}

	outcome := task.Outcome()
	if outcome.Success() {
		result.Status = pipeline.StatusCompleted
		result.ConvertedBytes = outcome.OutputBytes
		w.commit(result, history)
	} else {
		result.Status = pipeline.StatusFailed
		result.FailedStage = pipeline.StagePackage
		result.Err = outcome.Err
	}
	if w.OnArchiveDone != nil {
		w.OnArchiveDone(result)
	}
}

// commit makes a success durable: the history entry first, then the
// optional original deletion, then the stats run.
func (w *Watcher) commit(result pipeline.ArchiveResult, history *History) {
	history.Add(result.Source)
	if err := history.Save(); err != nil {
		logging.WarnWithContext(w.logger, "failed to save watch history", "history_save_failed",
			logging.Error(err))
	}

	if w.cfg.Output.DeleteOriginals && result.Output != result.Source {
		if err := os.Remove(result.Source); err != nil {
			logging.WarnWithContext(w.logger, "failed to delete original", "delete_original_failed",
				logging.String("path", result.Source),
				logging.Error(err))
		} else {
			w.logger.Info("deleted original", logging.String("path", result.Source))
		}
	}

	if w.Recorder != nil {
		now := time.Now()
		_, err := w.Recorder.RecordRun(context.Background(), stats.Run{
			StartedAt:      now.Add(-result.Elapsed),
			FinishedAt:     now,
			Archives:       1,
			Files:          result.Pages,
			OriginalBytes:  result.OriginalBytes,
			ConvertedBytes: result.ConvertedBytes,
		})
		if err != nil {
			logging.WarnWithContext(w.logger, "failed to record run statistics", "stats_record_failed",
				logging.Error(err))
		}
	}
}
