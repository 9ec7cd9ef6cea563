package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"cbx/internal/archive"
	"cbx/internal/config"
	"cbx/internal/convert"
	"cbx/internal/fileutil"
	"cbx/internal/logging"
	"cbx/internal/staging"
	"cbx/internal/stats"
)

type itemKind int

const (
	kindArchive itemKind = iota
	kindImageFile
	kindImageDir
)

// workItem is one expanded input: an archive, a loose image, or a directory
// of images treated as an unpacked archive. root is the directory input the
// item was discovered under, when there was one.
type workItem struct {
	source string
	kind   itemKind
	relDir string
	root   string
}

// Pipeline runs batches of comic archives through extract, convert, and
// package stages.
type Pipeline struct {
	cfg    *config.Config
	logger *slog.Logger

	// Recorder, when non-nil, receives the totals of every run that
	// processed at least one item. Recording happens after the packaging
	// queue has drained, so interrupted batches persist exactly the
	// archives that completed.
	Recorder stats.Recorder

	// OnArchiveStart is invoked before each work item begins processing.
	OnArchiveStart func(index, total int, source string)
	// OnPageResult is invoked for every page conversion result. It may be
	// called from multiple worker goroutines.
	OnPageResult func(convert.Result)
	// OnArchiveDone is invoked once per item when it reaches a terminal
	// status. For queued packaging that happens after the packaging worker
	// has drained, in submission order.
	OnArchiveDone func(ArchiveResult)
}

// New returns a pipeline bound to cfg. A nil logger disables logging.
func New(cfg *config.Config, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Pipeline{
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, "pipeline"),
	}
}

type pendingPackage struct {
	index int
	task  *PackagingTask
}

// Run processes the given inputs and returns one result per work item plus
// aggregate statistics over the successful ones. When ctx is canceled the
// current item finishes, queued packaging drains, and ctx.Err is returned
// alongside the results gathered so far.
func (p *Pipeline) Run(ctx context.Context, inputs []string) ([]ArchiveResult, BatchStats, error) {
	started := time.Now()

	params := convert.FromConfig(p.cfg)
	if err := params.Validate(); err != nil {
		return nil, BatchStats{}, err
	}
	if strings.TrimSpace(p.cfg.Paths.OutputDir) == "" {
		return nil, BatchStats{}, errors.New("output directory is not configured")
	}

	items, err := p.expandInputs(inputs)
	if err != nil {
		return nil, BatchStats{}, err
	}
	if len(items) == 0 {
		return nil, BatchStats{}, errors.New("no archives or images found in inputs")
	}
	if err := p.cfg.EnsureDirectories(); err != nil {
		return nil, BatchStats{}, err
	}

	totalWorkers := p.cfg.Pipeline.Workers
	if totalWorkers <= 0 {
		totalWorkers = runtime.NumCPU()
	}
	// With more than one archive to package, one thread is reserved for the
	// packaging worker so compression overlaps with the next conversion.
	queued := p.cfg.PackagingEnabled() && len(items) > 1
	convertWorkers := totalWorkers
	if queued && totalWorkers > 1 {
		convertWorkers = totalWorkers - 1
	}

	p.logger.Info("batch started",
		logging.Int("items", len(items)),
		logging.Int("workers", convertWorkers),
		logging.Bool("queued_packaging", queued),
		logging.String(logging.FieldEventType, "stage_start"))

	var packager *Packager
	if p.cfg.PackagingEnabled() {
		packager = NewPackager(p.logger, int64(p.cfg.Pipeline.MinFreeMiB))
	}

	results := make([]ArchiveResult, 0, len(items))
	var pending []pendingPackage
	interrupted := false

	for i, item := range items {
		if ctx.Err() != nil {
			interrupted = true
			p.logger.Warn("batch interrupted; draining packaging queue",
				logging.Int("remaining", len(items)-i))
			break
		}
		if p.OnArchiveStart != nil {
			p.OnArchiveStart(i, len(items), item.source)
		}
		result, task := p.processItem(item, params, convertWorkers, packager, queued)
		results = append(results, result)
		if task != nil {
			pending = append(pending, pendingPackage{index: len(results) - 1, task: task})
			continue
		}
		if p.OnArchiveDone != nil {
			p.OnArchiveDone(result)
		}
	}

	if packager != nil {
		packager.Close()
		packager.Wait()
	}

	// Outcomes are safe to read once the worker has drained.
	for _, pp := range pending {
		result := &results[pp.index]
		outcome := pp.task.Outcome()
		if outcome.Success() {
			result.Status = StatusCompleted
			result.ConvertedBytes = outcome.OutputBytes
		} else {
			result.Status = StatusFailed
			result.FailedStage = StagePackage
			result.Err = outcome.Err
		}
		if p.OnArchiveDone != nil {
			p.OnArchiveDone(*result)
		}
	}

	batch := BatchStats{Archives: len(results)}
	pruneRoots := make(map[string]struct{})
	for i := range results {
		r := &results[i]
		if !r.Succeeded() {
			batch.Failed++
			continue
		}
		batch.Succeeded++
		batch.Pages += r.Pages
		batch.OriginalBytes += r.OriginalBytes
		batch.ConvertedBytes += r.ConvertedBytes
		if p.removeOriginal(r) && items[i].root != "" {
			pruneRoots[items[i].root] = struct{}{}
		}
	}
	for root := range pruneRoots {
		if removed, err := fileutil.RemoveEmptyDirs(root); err == nil && removed > 0 {
			p.logger.Info("pruned empty directories",
				logging.Int("removed", removed),
				logging.String("path", root))
		}
	}
	batch.Elapsed = time.Since(started)

	p.recordRun(started, batch)

	p.logger.Info("batch finished",
		logging.Int("succeeded", batch.Succeeded),
		logging.Int("failed", batch.Failed),
		logging.Int("pages", batch.Pages),
		logging.Duration("elapsed", batch.Elapsed),
		logging.Float64("reduction_percent", batch.ReductionPercent()))

	if interrupted {
		return results, batch, ctx.Err()
	}
	return results, batch, nil
}

// recordRun persists batch totals. It deliberately ignores the batch ctx:
// an interrupted run must still record the archives that completed.
func (p *Pipeline) recordRun(started time.Time, batch BatchStats) {
	if p.Recorder == nil || batch.Archives == 0 {
		return
	}
	_, err := p.Recorder.RecordRun(context.Background(), stats.Run{
		StartedAt:      started,
		FinishedAt:     time.Now(),
		Archives:       batch.Succeeded,
		ArchivesFailed: batch.Failed,
		Files:          batch.Pages,
		OriginalBytes:  batch.OriginalBytes,
		ConvertedBytes: batch.ConvertedBytes,
	})
	if err != nil {
		logging.WarnWithContext(p.logger, "failed to record run statistics", "stats_record_failed",
			logging.Error(err))
	}
}

func (p *Pipeline) processItem(item workItem, params convert.Params, workers int, packager *Packager, queued bool) (ArchiveResult, *PackagingTask) {
	if item.kind == kindImageFile {
		return p.processImageFile(item.source, params), nil
	}
	return p.processArchive(item, params, workers, packager, queued)
}

// ProcessArchive converts one archive against an externally owned packager,
// for callers that keep a packaging queue alive across many invocations.
// The packager must be non-nil whenever packaging is enabled. The returned
// task is nil when the item failed before packaging or packaging is
// disabled; a non-nil task has a valid Outcome only after the packager
// processes it.
func (p *Pipeline) ProcessArchive(source string, workers int, packager *Packager) (ArchiveResult, *PackagingTask) {
	params := convert.FromConfig(p.cfg)
	queued := packager != nil && p.cfg.PackagingEnabled()
	return p.processArchive(workItem{source: source, kind: kindArchive}, params, workers, packager, queued)
}

func (p *Pipeline) processArchive(item workItem, params convert.Params, workers int, packager *Packager, queued bool) (ArchiveResult, *PackagingTask) {
	started := time.Now()
	base := filepath.Base(item.source)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if item.kind == kindImageDir {
		stem = base
	}

	result := ArchiveResult{Source: item.source, Status: StatusExtracting}

	if item.kind == kindImageDir {
		if size, err := fileutil.DirSize(item.source); err == nil {
			result.OriginalBytes = size
		}
	} else if info, err := os.Stat(item.source); err == nil {
		result.OriginalBytes = info.Size()
	}

	sourceDir := item.source
	if item.kind == kindArchive {
		p.logger.Info("stage started",
			logging.String(logging.FieldArchive, base),
			logging.String(logging.FieldStage, StageExtract),
			logging.String(logging.FieldEventType, "stage_start"))
		extractDir, err := staging.NewDir(p.cfg.Paths.StagingDir, item.source)
		if err != nil {
			return p.fail(result, StageExtract, err, started), nil
		}
		defer os.RemoveAll(extractDir)
		if err := archive.Extract(item.source, extractDir); err != nil {
			return p.fail(result, StageExtract, err, started), nil
		}
		sourceDir = extractDir
	}

	outDir := p.cfg.Paths.OutputDir
	if item.relDir != "" && item.relDir != "." {
		outDir = filepath.Join(outDir, item.relDir)
	}
	convertedDir := filepath.Join(outDir, stem)

	result.Status = StatusConverting
	p.logger.Info("stage started",
		logging.String(logging.FieldArchive, base),
		logging.String(logging.FieldStage, StageConvert),
		logging.String(logging.FieldEventType, "stage_start"))
	dispatcher := convert.Dispatcher{
		Params:   params,
		Workers:  workers,
		Logger:   p.logger,
		OnResult: p.OnPageResult,
	}
	_, totals, err := dispatcher.ConvertDir(sourceDir, convertedDir)
	if err != nil {
		os.RemoveAll(convertedDir)
		return p.fail(result, StageConvert, err, started), nil
	}
	if totals.Pages == 0 {
		os.RemoveAll(convertedDir)
		return p.fail(result, StageConvert, fmt.Errorf("no pages converted from %s", base), started), nil
	}
	result.Pages = totals.Pages
	result.PagesFailed = totals.PagesFailed
	result.Copied = totals.Copied

	p.logger.Info("archive converted",
		logging.String(logging.FieldArchive, base),
		logging.Int("pages", totals.Pages),
		logging.Int("pages_failed", totals.PagesFailed),
		logging.Int("copied", totals.Copied),
		logging.Duration("elapsed", time.Since(started)))

	if !p.cfg.PackagingEnabled() {
		if size, err := fileutil.DirSize(convertedDir); err == nil {
			result.ConvertedBytes = size
		}
		result.Output = convertedDir
		result.Status = StatusCompleted
		result.Elapsed = time.Since(started)
		return result, nil
	}

	task := &PackagingTask{
		Source:      item.source,
		StagingDir:  convertedDir,
		OutputPath:  filepath.Join(outDir, stem+archive.OutputExtension(p.cfg.Output.Format)),
		Archive:     base,
		Compression: p.cfg.Output.Compression,
		KeepStaging: p.cfg.Output.KeepStaging,
	}
	result.Output = task.OutputPath

	if queued {
		result.Status = StatusPackaging
		result.Elapsed = time.Since(started)
		packager.Enqueue(task)
		return result, task
	}

	outcome := packager.Package(task)
	if !outcome.Success() {
		return p.fail(result, StagePackage, outcome.Err, started), nil
	}
	result.ConvertedBytes = outcome.OutputBytes
	result.Status = StatusCompleted
	result.Elapsed = time.Since(started)
	return result, nil
}

func (p *Pipeline) processImageFile(source string, params convert.Params) ArchiveResult {
	started := time.Now()
	base := filepath.Base(source)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	destPath := filepath.Join(p.cfg.Paths.OutputDir, stem+".webp")

	result := ArchiveResult{Source: source, Status: StatusConverting}

	res := convert.Convert(convert.Task{SourcePath: source, DestPath: destPath, Params: params})
	if p.OnPageResult != nil {
		p.OnPageResult(res)
	}
	if res.Err != nil {
		return p.fail(result, StageConvert, res.Err, started)
	}
	result.Output = destPath
	result.Status = StatusCompleted
	result.Pages = 1
	result.OriginalBytes = res.OriginalBytes
	result.ConvertedBytes = res.ConvertedBytes
	result.Elapsed = time.Since(started)
	return result
}

func (p *Pipeline) fail(result ArchiveResult, stage string, err error, started time.Time) ArchiveResult {
	result.Status = StatusFailed
	result.FailedStage = stage
	result.Err = err
	result.Elapsed = time.Since(started)
	logging.ErrorWithContext(p.logger, "stage failed", "stage_failed",
		logging.String(logging.FieldArchive, filepath.Base(result.Source)),
		logging.String(logging.FieldStage, stage),
		logging.Error(err))
	return result
}

// removeOriginal deletes the source once its replacement is confirmed on
// disk, reporting whether anything was removed. Skipped when the output
// path is the source itself.
func (p *Pipeline) removeOriginal(result *ArchiveResult) bool {
	if !p.cfg.Output.DeleteOriginals || result.Source == "" {
		return false
	}
	if result.Output == result.Source {
		return false
	}
	info, err := os.Stat(result.Source)
	if err != nil {
		return false
	}
	remove := os.Remove
	if info.IsDir() {
		remove = os.RemoveAll
	}
	if err := remove(result.Source); err != nil {
		logging.WarnWithContext(p.logger, "failed to delete original", "delete_original_failed",
			logging.String("path", result.Source),
			logging.Error(err))
		return false
	}
	p.logger.Info("deleted original", logging.String("path", result.Source))
	return true
}

// expandInputs turns the caller's paths into concrete work items. A
// directory input contributes every archive beneath it, or the directory
// itself when it holds loose images instead.
func (p *Pipeline) expandInputs(inputs []string) ([]workItem, error) {
	var items []workItem
	for _, input := range inputs {
		info, err := os.Stat(input)
		if err != nil {
			return nil, fmt.Errorf("stat input %s: %w", input, err)
		}
		if !info.IsDir() {
			switch {
			case archive.IsArchive(input):
				items = append(items, workItem{source: input, kind: kindArchive})
			case archive.IsImage(input):
				items = append(items, workItem{source: input, kind: kindImageFile})
			default:
				return nil, fmt.Errorf("%w: %s", archive.ErrUnsupportedFormat, input)
			}
			continue
		}

		found, err := archive.FindArchives(input, p.cfg.Pipeline.Recursive)
		if err != nil {
			return nil, err
		}
		if len(found) == 0 {
			ok, err := containsImages(input)
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, fmt.Errorf("no archives or images under %s", input)
			}
			items = append(items, workItem{source: input, kind: kindImageDir})
			continue
		}
		for _, path := range found {
			item := workItem{source: path, kind: kindArchive, root: input}
			if p.cfg.Output.PreserveStructure {
				if rel, err := filepath.Rel(input, filepath.Dir(path)); err == nil && rel != "." {
					item.relDir = rel
				}
			}
			items = append(items, item)
		}
	}
	return items, nil
}

func containsImages(dir string) (bool, error) {
	found := false
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if !d.IsDir() && archive.IsImage(path) {
			found = true
			return fs.SkipAll
		}
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("scan %s: %w", dir, err)
	}
	return found, nil
}
