package pipeline

import (
	"archive/zip"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"cbx/internal/archive"
	"cbx/internal/config"
	"cbx/internal/logging"
	"cbx/internal/stats"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Paths.OutputDir = filepath.Join(dir, "out")
	cfg.Paths.StagingDir = filepath.Join(dir, "staging")
	cfg.Conversion.Quality = 75
	cfg.Conversion.Method = 0
	cfg.Pipeline.Workers = 2
	cfg.Pipeline.MinFreeMiB = 0
	cfg.Stats.Enabled = false
	return &cfg
}

func testPage(w, h int) image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 17), G: uint8(y * 31), B: 90, A: 255})
		}
	}
	return img
}

func writeImage(t *testing.T, path string, img image.Image) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		t.Fatalf("encode %s: %v", path, err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close %s: %v", path, err)
	}
}

func buildComicArchive(t *testing.T, path string, pages map[string]image.Image) {
	t.Helper()
	srcDir := t.TempDir()
	for name, img := range pages {
		writeImage(t, filepath.Join(srcDir, name), img)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := archive.Create(path, srcDir, 1); err != nil {
		t.Fatalf("build archive %s: %v", path, err)
	}
}

func TestRunConvertsBatch(t *testing.T) {
	cfg := testConfig(t)
	srcDir := t.TempDir()
	buildComicArchive(t, filepath.Join(srcDir, "Book v01.cbz"), map[string]image.Image{
		"page001.png": testPage(20, 30),
		"page002.png": testPage(20, 30),
	})
	buildComicArchive(t, filepath.Join(srcDir, "Book v02.cbz"), map[string]image.Image{
		"page001.png": testPage(24, 24),
	})

	p := New(cfg, logging.NewNop())
	results, stats, err := p.Run(context.Background(), []string{srcDir})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}
	for _, r := range results {
		if !r.Succeeded() {
			t.Fatalf("%s failed at %s: %v", r.Source, r.FailedStage, r.Err)
		}
		if filepath.Ext(r.Output) != ".cbz" {
			t.Fatalf("output %s is not a cbz", r.Output)
		}
		if _, err := os.Stat(r.Output); err != nil {
			t.Fatalf("output %s missing: %v", r.Output, err)
		}
	}
	if stats.Succeeded != 2 || stats.Failed != 0 || stats.Archives != 2 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if stats.Pages != 3 {
		t.Fatalf("pages = %d, want 3", stats.Pages)
	}
	if stats.OriginalBytes == 0 || stats.ConvertedBytes == 0 {
		t.Fatalf("byte totals not recorded: %+v", stats)
	}

	zr, err := zip.OpenReader(results[0].Output)
	if err != nil {
		t.Fatalf("open output: %v", err)
	}
	defer zr.Close()
	pages := map[string]bool{}
	for _, f := range zr.File {
		pages[f.Name] = true
	}
	if !pages["page001.webp"] || !pages["page002.webp"] {
		t.Fatalf("packaged entries = %v", pages)
	}

	entries, err := os.ReadDir(cfg.Paths.OutputDir)
	if err != nil {
		t.Fatalf("read output dir: %v", err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			t.Fatalf("converted tree left behind in output dir: %s", entry.Name())
		}
	}
	staged, err := os.ReadDir(cfg.Paths.StagingDir)
	if err != nil {
		t.Fatalf("read staging dir: %v", err)
	}
	if len(staged) != 0 {
		t.Fatalf("extraction staging not cleaned: %d entries", len(staged))
	}
}

func TestRunContinuesPastCorruptArchive(t *testing.T) {
	cfg := testConfig(t)
	srcDir := t.TempDir()
	buildComicArchive(t, filepath.Join(srcDir, "a.cbz"), map[string]image.Image{"p1.png": testPage(16, 16)})
	if err := os.WriteFile(filepath.Join(srcDir, "b.cbz"), []byte("not a zip"), 0o644); err != nil {
		t.Fatalf("write corrupt archive: %v", err)
	}
	buildComicArchive(t, filepath.Join(srcDir, "c.cbz"), map[string]image.Image{"p1.png": testPage(16, 16)})

	p := New(cfg, logging.NewNop())
	results, stats, err := p.Run(context.Background(), []string{srcDir})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("results = %d, want 3", len(results))
	}
	if stats.Succeeded != 2 || stats.Failed != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	var failed ArchiveResult
	var wantOriginal int64
	for _, r := range results {
		if r.Succeeded() {
			wantOriginal += r.OriginalBytes
			continue
		}
		failed = r
	}
	if filepath.Base(failed.Source) != "b.cbz" {
		t.Fatalf("wrong archive failed: %s", failed.Source)
	}
	if failed.FailedStage != StageExtract || failed.Err == nil {
		t.Fatalf("failure not attributed to extraction: %+v", failed)
	}
	if stats.OriginalBytes != wantOriginal {
		t.Fatalf("totals include failed archive: got %d, want %d", stats.OriginalBytes, wantOriginal)
	}
}

func TestRunPackagingFailureKeepsConvertedTree(t *testing.T) {
	cfg := testConfig(t)
	srcDir := t.TempDir()
	source := filepath.Join(srcDir, "book.cbz")
	buildComicArchive(t, source, map[string]image.Image{"p1.png": testPage(16, 16)})

	// A directory squatting on the output path makes packaging fail after
	// conversion has succeeded.
	if err := os.MkdirAll(filepath.Join(cfg.Paths.OutputDir, "book.cbz"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	p := New(cfg, logging.NewNop())
	results, stats, err := p.Run(context.Background(), []string{source})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(results) != 1 || results[0].Succeeded() {
		t.Fatalf("expected a packaging failure, got %+v", results)
	}
	if results[0].FailedStage != StagePackage {
		t.Fatalf("failed stage = %s, want %s", results[0].FailedStage, StagePackage)
	}
	if stats.Succeeded != 0 || stats.Failed != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	converted := filepath.Join(cfg.Paths.OutputDir, "book")
	entries, err := os.ReadDir(converted)
	if err != nil {
		t.Fatalf("converted tree should survive for inspection: %v", err)
	}
	if len(entries) == 0 {
		t.Fatal("converted tree is empty")
	}
}

func TestRunFolderFormatSkipsPackaging(t *testing.T) {
	cfg := testConfig(t)
	cfg.Output.Format = config.FormatFolder
	srcDir := t.TempDir()
	source := filepath.Join(srcDir, "book.cbz")
	buildComicArchive(t, source, map[string]image.Image{
		"p1.png": testPage(16, 16),
		"p2.png": testPage(16, 16),
	})

	p := New(cfg, logging.NewNop())
	results, stats, err := p.Run(context.Background(), []string{source})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(results) != 1 || !results[0].Succeeded() {
		t.Fatalf("unexpected results: %+v", results)
	}

	want := filepath.Join(cfg.Paths.OutputDir, "book")
	if results[0].Output != want {
		t.Fatalf("output = %s, want %s", results[0].Output, want)
	}
	for _, page := range []string{"p1.webp", "p2.webp"} {
		if _, err := os.Stat(filepath.Join(want, page)); err != nil {
			t.Fatalf("page %s missing: %v", page, err)
		}
	}
	if results[0].ConvertedBytes == 0 {
		t.Fatal("folder output size not recorded")
	}
	if stats.Succeeded != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestRunDeletesOriginalsAfterSuccess(t *testing.T) {
	cfg := testConfig(t)
	cfg.Output.DeleteOriginals = true
	srcDir := t.TempDir()
	source := filepath.Join(srcDir, "book.cbz")
	buildComicArchive(t, source, map[string]image.Image{"p1.png": testPage(16, 16)})

	p := New(cfg, logging.NewNop())
	results, _, err := p.Run(context.Background(), []string{source})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !results[0].Succeeded() {
		t.Fatalf("conversion failed: %v", results[0].Err)
	}
	if _, err := os.Stat(source); !os.IsNotExist(err) {
		t.Fatalf("original should be deleted, stat err = %v", err)
	}
	if _, err := os.Stat(results[0].Output); err != nil {
		t.Fatalf("output missing after original deletion: %v", err)
	}
}

func TestRunKeepsOriginalOnFailure(t *testing.T) {
	cfg := testConfig(t)
	cfg.Output.DeleteOriginals = true
	srcDir := t.TempDir()
	source := filepath.Join(srcDir, "broken.cbz")
	if err := os.WriteFile(source, []byte("not a zip"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	p := New(cfg, logging.NewNop())
	results, _, err := p.Run(context.Background(), []string{source})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if results[0].Succeeded() {
		t.Fatal("corrupt archive should fail")
	}
	if _, err := os.Stat(source); err != nil {
		t.Fatalf("failed source must not be deleted: %v", err)
	}
}

func TestRunPrunesEmptiedDirectories(t *testing.T) {
	cfg := testConfig(t)
	cfg.Output.DeleteOriginals = true
	cfg.Pipeline.Recursive = true
	root := t.TempDir()
	buildComicArchive(t, filepath.Join(root, "Series A", "v01.cbz"), map[string]image.Image{
		"p1.png": testPage(16, 16),
	})
	if err := os.MkdirAll(filepath.Join(root, "Series B"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "Series B", "broken.cbz"), []byte("not a zip"), 0o644); err != nil {
		t.Fatalf("write corrupt archive: %v", err)
	}

	p := New(cfg, logging.NewNop())
	results, _, err := p.Run(context.Background(), []string{root})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}
	if _, err := os.Stat(filepath.Join(root, "Series A")); !os.IsNotExist(err) {
		t.Fatalf("emptied series dir should be pruned, stat err = %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "Series B", "broken.cbz")); err != nil {
		t.Fatalf("failed archive must survive: %v", err)
	}
	if _, err := os.Stat(root); err != nil {
		t.Fatalf("input root must never be pruned: %v", err)
	}
}

func TestRunConvertsLooseImage(t *testing.T) {
	cfg := testConfig(t)
	srcDir := t.TempDir()
	source := filepath.Join(srcDir, "cover.png")
	writeImage(t, source, testPage(32, 48))

	p := New(cfg, logging.NewNop())
	results, stats, err := p.Run(context.Background(), []string{source})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	r := results[0]
	if !r.Succeeded() || r.Pages != 1 {
		t.Fatalf("unexpected result: %+v", r)
	}
	want := filepath.Join(cfg.Paths.OutputDir, "cover.webp")
	if r.Output != want {
		t.Fatalf("output = %s, want %s", r.Output, want)
	}
	if _, err := os.Stat(want); err != nil {
		t.Fatalf("output missing: %v", err)
	}
	if stats.Pages != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestRunConvertsImageDirectory(t *testing.T) {
	cfg := testConfig(t)
	srcDir := filepath.Join(t.TempDir(), "Loose Book")
	writeImage(t, filepath.Join(srcDir, "p1.png"), testPage(16, 16))
	writeImage(t, filepath.Join(srcDir, "p2.png"), testPage(16, 16))

	p := New(cfg, logging.NewNop())
	results, _, err := p.Run(context.Background(), []string{srcDir})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	r := results[0]
	if !r.Succeeded() || r.Pages != 2 {
		t.Fatalf("unexpected result: %+v", r)
	}
	want := filepath.Join(cfg.Paths.OutputDir, "Loose Book.cbz")
	if r.Output != want {
		t.Fatalf("output = %s, want %s", r.Output, want)
	}
	if _, err := os.Stat(want); err != nil {
		t.Fatalf("output missing: %v", err)
	}
}

func TestRunPreservesDirectoryStructure(t *testing.T) {
	cfg := testConfig(t)
	cfg.Output.PreserveStructure = true
	cfg.Pipeline.Recursive = true
	root := t.TempDir()
	buildComicArchive(t, filepath.Join(root, "Series A", "v01.cbz"), map[string]image.Image{
		"p1.png": testPage(16, 16),
	})

	p := New(cfg, logging.NewNop())
	results, _, err := p.Run(context.Background(), []string{root})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := filepath.Join(cfg.Paths.OutputDir, "Series A", "v01.cbz")
	if results[0].Output != want {
		t.Fatalf("output = %s, want %s", results[0].Output, want)
	}
	if _, err := os.Stat(want); err != nil {
		t.Fatalf("output missing: %v", err)
	}
}

func TestRunInterruptDrainsQueue(t *testing.T) {
	cfg := testConfig(t)
	srcDir := t.TempDir()
	buildComicArchive(t, filepath.Join(srcDir, "a.cbz"), map[string]image.Image{"p1.png": testPage(16, 16)})
	buildComicArchive(t, filepath.Join(srcDir, "b.cbz"), map[string]image.Image{"p1.png": testPage(16, 16)})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := New(cfg, logging.NewNop())
	p.OnArchiveStart = func(index, total int, source string) {
		if index == 0 {
			cancel()
		}
	}
	results, stats, err := p.Run(ctx, []string{srcDir})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if len(results) != 1 {
		t.Fatalf("results = %d, want 1 (second archive skipped)", len(results))
	}
	if !results[0].Succeeded() {
		t.Fatalf("in-flight archive should still complete: %+v", results[0])
	}
	if _, err := os.Stat(results[0].Output); err != nil {
		t.Fatalf("queued packaging not drained before return: %v", err)
	}
	if stats.Succeeded != 1 || stats.Archives != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestRunReportsArchivesInOrder(t *testing.T) {
	cfg := testConfig(t)
	srcDir := t.TempDir()
	for _, name := range []string{"a.cbz", "b.cbz", "c.cbz"} {
		buildComicArchive(t, filepath.Join(srcDir, name), map[string]image.Image{"p1.png": testPage(16, 16)})
	}

	var done []string
	p := New(cfg, logging.NewNop())
	p.OnArchiveDone = func(r ArchiveResult) {
		done = append(done, filepath.Base(r.Source))
	}
	if _, _, err := p.Run(context.Background(), []string{srcDir}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := []string{"a.cbz", "b.cbz", "c.cbz"}
	if len(done) != len(want) {
		t.Fatalf("done = %v, want %v", done, want)
	}
	for i := range want {
		if done[i] != want[i] {
			t.Fatalf("done = %v, want %v", done, want)
		}
	}
}

func TestRunQueuesPackagingBeforeNextConversion(t *testing.T) {
	cfg := testConfig(t)
	srcDir := t.TempDir()
	buildComicArchive(t, filepath.Join(srcDir, "a.cbz"), map[string]image.Image{"p1.png": testPage(16, 16)})
	buildComicArchive(t, filepath.Join(srcDir, "b.cbz"), map[string]image.Image{"p1.png": testPage(16, 16)})

	var events []string
	p := New(cfg, logging.NewNop())
	p.OnArchiveStart = func(index, total int, source string) {
		events = append(events, "start "+filepath.Base(source))
	}
	p.OnArchiveDone = func(r ArchiveResult) {
		events = append(events, "done "+filepath.Base(r.Source))
	}
	if _, _, err := p.Run(context.Background(), []string{srcDir}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	// With queued packaging the orchestrator moves on to the next archive
	// while the previous one is still being packaged, so both starts come
	// before either completion.
	want := []string{"start a.cbz", "start b.cbz", "done a.cbz", "done b.cbz"}
	if len(events) != len(want) {
		t.Fatalf("events = %v, want %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Fatalf("events = %v, want %v", events, want)
		}
	}
}

func TestRunRejectsEmptyOutputDir(t *testing.T) {
	cfg := testConfig(t)
	cfg.Paths.OutputDir = ""
	srcDir := t.TempDir()
	buildComicArchive(t, filepath.Join(srcDir, "a.cbz"), map[string]image.Image{"p1.png": testPage(16, 16)})

	p := New(cfg, logging.NewNop())
	if _, _, err := p.Run(context.Background(), []string{srcDir}); err == nil {
		t.Fatal("expected error for missing output directory")
	}
}

type fakeRecorder struct {
	runs []stats.Run
}

func (f *fakeRecorder) RecordRun(ctx context.Context, run stats.Run) (stats.Run, error) {
	run.ID = int64(len(f.runs) + 1)
	f.runs = append(f.runs, run)
	return run, nil
}

func TestRunRecordsStats(t *testing.T) {
	cfg := testConfig(t)
	srcDir := t.TempDir()
	buildComicArchive(t, filepath.Join(srcDir, "a.cbz"), map[string]image.Image{"p1.png": testPage(16, 16)})
	if err := os.WriteFile(filepath.Join(srcDir, "b.cbz"), []byte("not a zip"), 0o644); err != nil {
		t.Fatalf("write corrupt archive: %v", err)
	}

	rec := &fakeRecorder{}
	p := New(cfg, logging.NewNop())
	p.Recorder = rec
	_, batch, err := p.Run(context.Background(), []string{srcDir})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(rec.runs) != 1 {
		t.Fatalf("recorded %d runs, want 1", len(rec.runs))
	}
	run := rec.runs[0]
	if run.Archives != 1 || run.ArchivesFailed != 1 {
		t.Fatalf("unexpected run counts: %+v", run)
	}
	if run.Files != batch.Pages || run.OriginalBytes != batch.OriginalBytes {
		t.Fatalf("recorded run diverges from batch stats: %+v vs %+v", run, batch)
	}
	if run.StartedAt.IsZero() || run.FinishedAt.Before(run.StartedAt) {
		t.Fatalf("bad run timestamps: %+v", run)
	}
}

func TestExpandInputsClassifiesFiles(t *testing.T) {
	cfg := testConfig(t)
	dir := t.TempDir()
	arch := filepath.Join(dir, "a.cbz")
	if err := os.WriteFile(arch, []byte("z"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	img := filepath.Join(dir, "cover.jpg")
	if err := os.WriteFile(img, []byte("j"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	p := New(cfg, logging.NewNop())
	items, err := p.expandInputs([]string{arch, img})
	if err != nil {
		t.Fatalf("expandInputs: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("items = %d, want 2", len(items))
	}
	if items[0].kind != kindArchive || items[1].kind != kindImageFile {
		t.Fatalf("unexpected kinds: %+v", items)
	}
}

func TestExpandInputsRejectsUnknownFile(t *testing.T) {
	cfg := testConfig(t)
	dir := t.TempDir()
	notes := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(notes, []byte("hi"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	p := New(cfg, logging.NewNop())
	if _, err := p.expandInputs([]string{notes}); !errors.Is(err, archive.ErrUnsupportedFormat) {
		t.Fatalf("err = %v, want ErrUnsupportedFormat", err)
	}
}

func TestExpandInputsMissingPath(t *testing.T) {
	cfg := testConfig(t)
	p := New(cfg, logging.NewNop())
	if _, err := p.expandInputs([]string{filepath.Join(t.TempDir(), "nope.cbz")}); err == nil {
		t.Fatal("expected error for missing input")
	}
}

func TestExpandInputsImageDirectory(t *testing.T) {
	cfg := testConfig(t)
	dir := filepath.Join(t.TempDir(), "loose")
	writeImage(t, filepath.Join(dir, "p1.png"), testPage(8, 8))

	p := New(cfg, logging.NewNop())
	items, err := p.expandInputs([]string{dir})
	if err != nil {
		t.Fatalf("expandInputs: %v", err)
	}
	if len(items) != 1 || items[0].kind != kindImageDir {
		t.Fatalf("unexpected items: %+v", items)
	}
}

func TestExpandInputsEmptyDirectory(t *testing.T) {
	cfg := testConfig(t)
	p := New(cfg, logging.NewNop())
	if _, err := p.expandInputs([]string{t.TempDir()}); err == nil {
		t.Fatal("expected error for directory without archives or images")
	}
}

func TestExpandInputsPreserveStructure(t *testing.T) {
	cfg := testConfig(t)
	cfg.Output.PreserveStructure = true
	cfg.Pipeline.Recursive = true
	root := t.TempDir()
	nested := filepath.Join(root, "Series A", "v01.cbz")
	if err := os.MkdirAll(filepath.Dir(nested), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(nested, []byte("z"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	p := New(cfg, logging.NewNop())
	items, err := p.expandInputs([]string{root})
	if err != nil {
		t.Fatalf("expandInputs: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("items = %d, want 1", len(items))
	}
	if items[0].relDir != "Series A" {
		t.Fatalf("relDir = %q, want %q", items[0].relDir, "Series A")
	}
}
