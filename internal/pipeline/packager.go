package pipeline

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/dustin/go-humanize"

	"cbx/internal/archive"
	"cbx/internal/fileutil"
	"cbx/internal/logging"
)

// packagingQueueDepth bounds how many converted archives may wait for the
// packaging worker before Enqueue blocks.
const packagingQueueDepth = 16

// PackagingOutcome is the result of packaging one converted archive.
type PackagingOutcome struct {
	Err         error
	OutputBytes int64
}

// Success reports whether the archive was written and staging released.
func (o PackagingOutcome) Success() bool {
	return o.Err == nil
}

// PackagingTask describes one converted tree waiting to be packaged.
type PackagingTask struct {
	// Source is the original archive the staging tree came from.
	Source string
	// StagingDir holds the converted pages to package.
	StagingDir string
	// OutputPath is the final container path.
	OutputPath string
	// Archive is the source archive name used in log records.
	Archive string
	// Compression is the deflate level for the container.
	Compression int
	// KeepStaging leaves StagingDir in place after a successful package.
	KeepStaging bool

	outcome PackagingOutcome
}

// Outcome returns the packaging result. Only valid once the task has been
// processed: after Packager.Wait for queued tasks, immediately for tasks
// passed to Package directly.
func (t *PackagingTask) Outcome() PackagingOutcome {
	return t.outcome
}

// Packager packages converted trees into output containers on a dedicated
// worker goroutine, so conversion of the next archive can proceed while the
// previous one is still being compressed.
type Packager struct {
	logger     *slog.Logger
	minFreeMiB int64
	tasks      chan *PackagingTask
	wg         sync.WaitGroup

	// OnOutcome, when set before the first Enqueue, is invoked from the
	// worker goroutine after each queued task finishes.
	OnOutcome func(*PackagingTask)
}

// NewPackager starts the packaging worker. Callers must Close and Wait to
// drain the queue before reading task outcomes.
func NewPackager(logger *slog.Logger, minFreeMiB int64) *Packager {
	if logger == nil {
		logger = logging.NewNop()
	}
	p := &Packager{
		logger:     logging.NewComponentLogger(logger, "packager"),
		minFreeMiB: minFreeMiB,
		tasks:      make(chan *PackagingTask, packagingQueueDepth),
	}
	p.wg.Add(1)
	go p.run()
	return p
}

// Enqueue hands a converted tree to the packaging worker. Blocks only when
// the queue is full.
func (p *Packager) Enqueue(task *PackagingTask) {
	p.tasks <- task
}

// Close signals that no further tasks will be enqueued. The worker drains
// the queue and exits.
func (p *Packager) Close() {
	close(p.tasks)
}

// Wait blocks until the worker has processed every queued task.
func (p *Packager) Wait() {
	p.wg.Wait()
}

func (p *Packager) run() {
	defer p.wg.Done()
	for task := range p.tasks {
		task.outcome = p.Package(task)
		if p.OnOutcome != nil {
			p.OnOutcome(task)
		}
	}
}

// Package writes the container for one converted tree and removes its
// staging directory on success. Safe to call directly when queueing is not
// wanted, such as single-archive runs.
func (p *Packager) Package(task *PackagingTask) PackagingOutcome {
	if err := p.checkFreeSpace(filepath.Dir(task.OutputPath)); err != nil {
		logging.ErrorWithContext(p.logger, "packaging aborted", "packaging_no_space",
			logging.String(logging.FieldArchive, task.Archive),
			logging.Error(err))
		return PackagingOutcome{Err: err}
	}

	if err := archive.Create(task.OutputPath, task.StagingDir, task.Compression); err != nil {
		logging.ErrorWithContext(p.logger, "packaging failed", "packaging_failed",
			logging.String(logging.FieldArchive, task.Archive),
			logging.String("output", task.OutputPath),
			logging.Error(err))
		return PackagingOutcome{Err: err}
	}

	info, err := os.Stat(task.OutputPath)
	if err != nil {
		return PackagingOutcome{Err: fmt.Errorf("stat output: %w", err)}
	}

	if !task.KeepStaging {
		if err := os.RemoveAll(task.StagingDir); err != nil {
			logging.WarnWithContext(p.logger, "failed to remove staging directory", "staging_cleanup_failed",
				logging.String("path", task.StagingDir),
				logging.Error(err))
		}
	}

	p.logger.Info("archive packaged",
		logging.String(logging.FieldArchive, task.Archive),
		logging.String("output", task.OutputPath),
		logging.Uint64("output_bytes", uint64(info.Size())))
	return PackagingOutcome{OutputBytes: info.Size()}
}

// checkFreeSpace refuses to package when the output volume is below the
// configured floor. A floor of zero disables the check, and platforms where
// free space cannot be read skip it.
func (p *Packager) checkFreeSpace(dir string) error {
	if p.minFreeMiB <= 0 {
		return nil
	}
	free, err := fileutil.FreeSpace(dir)
	if err != nil {
		p.logger.Debug("free space check unavailable",
			logging.String("path", dir),
			logging.Error(err))
		return nil
	}
	floor := uint64(p.minFreeMiB) * 1024 * 1024
	if free < floor {
		return fmt.Errorf("low disk space on %s: %s free, %s required",
			dir, humanize.IBytes(free), humanize.IBytes(floor))
	}
	return nil
}
