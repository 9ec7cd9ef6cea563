package archive

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDetectFormat(t *testing.T) {
	cases := []struct {
		path   string
		format Format
		ok     bool
	}{
		{"vol1.cbz", FormatZip, true},
		{"vol1.CBZ", FormatZip, true},
		{"/comics/vol1.zip", FormatZip, true},
		{"vol1.cbr", FormatRAR, true},
		{"vol1.rar", FormatRAR, true},
		{"vol1.cb7", FormatSevenZip, true},
		{"vol1.7z", FormatSevenZip, true},
		{"vol1.tar", "", false},
		{"vol1", "", false},
	}
	for _, tc := range cases {
		format, ok := DetectFormat(tc.path)
		if ok != tc.ok || format != tc.format {
			t.Errorf("DetectFormat(%q) = (%q, %v), want (%q, %v)", tc.path, format, ok, tc.format, tc.ok)
		}
	}
}

func TestIsImage(t *testing.T) {
	for _, path := range []string{"p.jpg", "p.JPEG", "p.png", "p.gif", "p.bmp", "p.tif", "p.tiff", "p.webp"} {
		if !IsImage(path) {
			t.Errorf("IsImage(%q) = false, want true", path)
		}
	}
	for _, path := range []string{"ComicInfo.xml", "p.txt", "p.jpg.bak", "p"} {
		if IsImage(path) {
			t.Errorf("IsImage(%q) = true, want false", path)
		}
	}
}

func TestOutputExtension(t *testing.T) {
	cases := map[string]string{
		"cbz":  ".cbz",
		"zip":  ".zip",
		"CBZ ": ".cbz",
		"":     ".cbz",
	}
	for format, want := range cases {
		if got := OutputExtension(format); got != want {
			t.Errorf("OutputExtension(%q) = %q, want %q", format, got, want)
		}
	}
}

func TestFindArchives(t *testing.T) {
	root := t.TempDir()
	mustWrite := func(rel string) {
		t.Helper()
		full := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(full, []byte("x"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	mustWrite("b.cbz")
	mustWrite("a.cbr")
	mustWrite("notes.txt")
	mustWrite("nested/c.cb7")
	mustWrite("nested/deep/d.zip")

	flat, err := FindArchives(root, false)
	if err != nil {
		t.Fatalf("FindArchives: %v", err)
	}
	if len(flat) != 2 {
		t.Fatalf("flat scan found %d archives, want 2: %v", len(flat), flat)
	}
	if filepath.Base(flat[0]) != "a.cbr" || filepath.Base(flat[1]) != "b.cbz" {
		t.Fatalf("flat scan order wrong: %v", flat)
	}

	deep, err := FindArchives(root, true)
	if err != nil {
		t.Fatalf("FindArchives recursive: %v", err)
	}
	if len(deep) != 4 {
		t.Fatalf("recursive scan found %d archives, want 4: %v", len(deep), deep)
	}
}
