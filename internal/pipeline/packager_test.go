package pipeline

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"cbx/internal/logging"
)

func writeConvertedTree(t *testing.T, dir string, pages map[string]string) {
	t.Helper()
	for name, content := range pages {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
}

func TestPackageWritesArchiveAndRemovesStaging(t *testing.T) {
	dir := t.TempDir()
	stagingDir := filepath.Join(dir, "staging", "Book v01")
	writeConvertedTree(t, stagingDir, map[string]string{
		"page001.webp": "first",
		"page002.webp": "second",
	})

	p := NewPackager(logging.NewNop(), 0)
	defer func() {
		p.Close()
		p.Wait()
	}()

	task := &PackagingTask{
		StagingDir:  stagingDir,
		OutputPath:  filepath.Join(dir, "out", "Book v01.cbz"),
		Archive:     "Book v01.cbz",
		Compression: 6,
	}
	outcome := p.Package(task)
	if outcome.Err != nil {
		t.Fatalf("Package: %v", outcome.Err)
	}
	info, err := os.Stat(task.OutputPath)
	if err != nil {
		t.Fatalf("output missing: %v", err)
	}
	if outcome.OutputBytes != info.Size() {
		t.Fatalf("OutputBytes = %d, file is %d", outcome.OutputBytes, info.Size())
	}
	if _, err := os.Stat(stagingDir); !os.IsNotExist(err) {
		t.Fatalf("staging directory should be removed, stat err = %v", err)
	}
}

func TestPackageKeepStagingLeavesTree(t *testing.T) {
	dir := t.TempDir()
	stagingDir := filepath.Join(dir, "staging", "book")
	writeConvertedTree(t, stagingDir, map[string]string{"page001.webp": "x"})

	p := NewPackager(logging.NewNop(), 0)
	defer func() {
		p.Close()
		p.Wait()
	}()

	task := &PackagingTask{
		StagingDir:  stagingDir,
		OutputPath:  filepath.Join(dir, "book.cbz"),
		Archive:     "book.cbz",
		Compression: 1,
		KeepStaging: true,
	}
	if outcome := p.Package(task); outcome.Err != nil {
		t.Fatalf("Package: %v", outcome.Err)
	}
	if _, err := os.Stat(filepath.Join(stagingDir, "page001.webp")); err != nil {
		t.Fatalf("staging should be kept: %v", err)
	}
}

func TestPackageFailureLeavesStaging(t *testing.T) {
	dir := t.TempDir()
	stagingDir := filepath.Join(dir, "staging", "book")
	writeConvertedTree(t, stagingDir, map[string]string{"page001.webp": "x"})

	// A directory squatting on the output path makes the final rename fail.
	outputPath := filepath.Join(dir, "out", "book.cbz")
	if err := os.MkdirAll(outputPath, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	p := NewPackager(logging.NewNop(), 0)
	defer func() {
		p.Close()
		p.Wait()
	}()

	task := &PackagingTask{
		StagingDir:  stagingDir,
		OutputPath:  outputPath,
		Archive:     "book.cbz",
		Compression: 1,
	}
	outcome := p.Package(task)
	if outcome.Err == nil {
		t.Fatal("expected packaging failure")
	}
	if _, err := os.Stat(filepath.Join(stagingDir, "page001.webp")); err != nil {
		t.Fatalf("staging must survive a packaging failure: %v", err)
	}
}

func TestPackageRefusesWhenDiskSpaceLow(t *testing.T) {
	dir := t.TempDir()
	stagingDir := filepath.Join(dir, "staging", "book")
	writeConvertedTree(t, stagingDir, map[string]string{"page001.webp": "x"})

	// A pebibyte floor no test volume satisfies.
	p := NewPackager(logging.NewNop(), 1<<30)
	defer func() {
		p.Close()
		p.Wait()
	}()

	task := &PackagingTask{
		StagingDir: stagingDir,
		OutputPath: filepath.Join(dir, "book.cbz"),
		Archive:    "book.cbz",
	}
	outcome := p.Package(task)
	if outcome.Err == nil {
		t.Fatal("expected low disk space error")
	}
	if _, err := os.Stat(task.OutputPath); !os.IsNotExist(err) {
		t.Fatalf("no output should be written, stat err = %v", err)
	}
	if _, err := os.Stat(stagingDir); err != nil {
		t.Fatalf("staging should be preserved: %v", err)
	}
}

func TestPackagerProcessesQueueInOrder(t *testing.T) {
	dir := t.TempDir()

	var order []string
	p := NewPackager(logging.NewNop(), 0)
	p.OnOutcome = func(task *PackagingTask) {
		order = append(order, task.Archive)
	}

	names := []string{"a.cbz", "b.cbz", "c.cbz"}
	tasks := make([]*PackagingTask, 0, len(names))
	for _, name := range names {
		stagingDir := filepath.Join(dir, "staging", name)
		writeConvertedTree(t, stagingDir, map[string]string{"page001.webp": name})
		task := &PackagingTask{
			StagingDir:  stagingDir,
			OutputPath:  filepath.Join(dir, "out", name),
			Archive:     name,
			Compression: 1,
		}
		tasks = append(tasks, task)
		p.Enqueue(task)
	}
	p.Close()
	p.Wait()

	if len(order) != len(names) {
		t.Fatalf("processed %d tasks, want %d", len(order), len(names))
	}
	for i, name := range names {
		if order[i] != name {
			t.Fatalf("order[%d] = %s, want %s", i, order[i], name)
		}
	}
	for _, task := range tasks {
		if !task.Outcome().Success() {
			t.Fatalf("task %s failed: %v", task.Archive, task.Outcome().Err)
		}
		if _, err := os.Stat(task.OutputPath); err != nil {
			t.Fatalf("output %s missing: %v", task.OutputPath, err)
		}
	}
}

func TestEnqueueBuffersWithoutBlocking(t *testing.T) {
	// No worker drains this packager, so sends only complete while the
	// queue has room.
	p := &Packager{
		logger: logging.NewNop(),
		tasks:  make(chan *PackagingTask, packagingQueueDepth),
	}

	done := make(chan struct{})
	go func() {
		for i := 0; i < packagingQueueDepth; i++ {
			p.Enqueue(&PackagingTask{Archive: "x.cbz"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Enqueue blocked before the queue was full")
	}
}
