package convert

import (
	"errors"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"cbx/internal/logging"
)

func TestConvertDirConvertsTree(t *testing.T) {
	src := t.TempDir()
	writePNG(t, filepath.Join(src, "page2.png"), solidImage(8, 8, color.NRGBA{R: 10, G: 200, B: 10, A: 255}))
	writePNG(t, filepath.Join(src, "page1.png"), solidImage(8, 8, color.NRGBA{R: 200, G: 10, B: 10, A: 255}))
	writePNG(t, filepath.Join(src, "bonus", "page3.png"), solidImage(8, 8, color.NRGBA{R: 10, G: 10, B: 200, A: 255}))
	if err := os.WriteFile(filepath.Join(src, "ComicInfo.xml"), []byte("<ComicInfo/>"), 0o644); err != nil {
		t.Fatalf("write metadata: %v", err)
	}

	dest := t.TempDir()
	dispatcher := &Dispatcher{Params: fastParams(), Workers: 2, Logger: logging.NewNop()}
	results, totals, err := dispatcher.ConvertDir(src, dest)
	if err != nil {
		t.Fatalf("ConvertDir: %v", err)
	}

	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	// Tasks are sorted by relative path, so result order is deterministic.
	wantOrder := []string{"bonus/page3.png", "page1.png", "page2.png"}
	for i, want := range wantOrder {
		if !strings.HasSuffix(filepath.ToSlash(results[i].SourcePath), want) {
			t.Errorf("result %d source = %s, want suffix %s", i, results[i].SourcePath, want)
		}
		if results[i].Err != nil {
			t.Errorf("result %d failed: %v", i, results[i].Err)
		}
	}

	for _, rel := range []string{"page1.webp", "page2.webp", "bonus/page3.webp", "ComicInfo.xml"} {
		if _, err := os.Stat(filepath.Join(dest, filepath.FromSlash(rel))); err != nil {
			t.Errorf("missing output %s: %v", rel, err)
		}
	}

	if totals.Pages != 3 || totals.PagesFailed != 0 || totals.Copied != 1 {
		t.Errorf("totals = %+v, want 3 pages, 0 failed, 1 copied", totals)
	}
	if totals.OriginalBytes <= 0 || totals.ConvertedBytes <= 0 {
		t.Errorf("byte totals not aggregated: %+v", totals)
	}
}

func TestConvertDirNoImages(t *testing.T) {
	src := t.TempDir()
	if err := os.WriteFile(filepath.Join(src, "ComicInfo.xml"), []byte("<ComicInfo/>"), 0o644); err != nil {
		t.Fatalf("write metadata: %v", err)
	}

	dispatcher := &Dispatcher{Params: fastParams(), Workers: 1, Logger: logging.NewNop()}
	_, _, err := dispatcher.ConvertDir(src, t.TempDir())
	if !errors.Is(err, ErrNoImages) {
		t.Fatalf("expected ErrNoImages, got %v", err)
	}
}

func TestConvertDirCountsFailuresWithoutAborting(t *testing.T) {
	src := t.TempDir()
	writePNG(t, filepath.Join(src, "good.png"), solidImage(8, 8, color.NRGBA{R: 128, G: 128, B: 128, A: 255}))
	if err := os.WriteFile(filepath.Join(src, "corrupt.jpg"), []byte("not a jpeg"), 0o644); err != nil {
		t.Fatalf("write corrupt page: %v", err)
	}

	dest := t.TempDir()
	dispatcher := &Dispatcher{Params: fastParams(), Workers: 2, Logger: logging.NewNop()}
	results, totals, err := dispatcher.ConvertDir(src, dest)
	if err != nil {
		t.Fatalf("ConvertDir: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if totals.Pages != 1 || totals.PagesFailed != 1 {
		t.Fatalf("totals = %+v, want 1 page, 1 failed", totals)
	}

	var goodOriginal int64
	for _, result := range results {
		if result.Success() {
			goodOriginal = result.OriginalBytes
		}
	}
	if totals.OriginalBytes != goodOriginal {
		t.Errorf("byte totals include failed pages: %d != %d", totals.OriginalBytes, goodOriginal)
	}
	if _, err := os.Stat(filepath.Join(dest, "good.webp")); err != nil {
		t.Errorf("good page missing: %v", err)
	}
}

func TestConvertDirObservesEveryResult(t *testing.T) {
	src := t.TempDir()
	writePNG(t, filepath.Join(src, "a.png"), solidImage(8, 8, color.NRGBA{R: 1, G: 2, B: 3, A: 255}))
	writePNG(t, filepath.Join(src, "b.png"), solidImage(8, 8, color.NRGBA{R: 3, G: 2, B: 1, A: 255}))

	var seen atomic.Int64
	dispatcher := &Dispatcher{
		Params:   fastParams(),
		Workers:  2,
		Logger:   logging.NewNop(),
		OnResult: func(Result) { seen.Add(1) },
	}
	if _, _, err := dispatcher.ConvertDir(src, t.TempDir()); err != nil {
		t.Fatalf("ConvertDir: %v", err)
	}
	if seen.Load() != 2 {
		t.Fatalf("observed %d results, want 2", seen.Load())
	}
}
