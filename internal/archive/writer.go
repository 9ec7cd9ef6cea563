package archive

import (
	"archive/zip"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/klauspost/compress/flate"
)

// Create packages every regular file under srcDir into a zip container at
// outputPath. Entries are ordered lexicographically by relative path so
// repeated runs over identical trees produce identical archives apart from
// entry timestamps. compression selects the deflate level (0-9). The archive
// is written to a temporary sibling and renamed into place, so a failed run
// never leaves a truncated file at outputPath.
func Create(outputPath, srcDir string, compression int) error {
	if format, ok := DetectFormat(outputPath); ok && format != FormatZip {
		return fmt.Errorf("%w: cannot write %s containers", ErrUnsupportedFormat, format)
	}
	files, err := collectFiles(srcDir)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no files to package under %s", srcDir)
	}
	if compression < 0 {
		compression = 0
	} else if compression > 9 {
		compression = 9
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	tempPath := outputPath + ".tmp"
	out, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("create archive: %w", err)
	}

	zw := zip.NewWriter(out)
	zw.RegisterCompressor(zip.Deflate, func(w io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(w, compression)
	})
	for _, rel := range files {
		if err := addFile(zw, srcDir, rel); err != nil {
			zw.Close()
			out.Close()
			os.Remove(tempPath)
			return fmt.Errorf("add entry %s: %w", rel, err)
		}
	}
	if err := zw.Close(); err != nil {
		out.Close()
		os.Remove(tempPath)
		return fmt.Errorf("finalize archive: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("close archive: %w", err)
	}
	if err := os.Rename(tempPath, outputPath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("replace archive: %w", err)
	}
	return nil
}

// collectFiles returns slash-separated paths of regular files relative to
// srcDir, sorted.
func collectFiles(srcDir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(srcDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", srcDir, err)
	}
	sort.Strings(files)
	return files, nil
}

func addFile(zw *zip.Writer, srcDir, rel string) error {
	fullPath := filepath.Join(srcDir, filepath.FromSlash(rel))
	info, err := os.Stat(fullPath)
	if err != nil {
		return err
	}
	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	header.Name = rel
	header.Method = zip.Deflate
	w, err := zw.CreateHeader(header)
	if err != nil {
		return err
	}
	src, err := os.Open(fullPath)
	if err != nil {
		return err
	}
	defer src.Close()
	_, err = io.Copy(w, src)
	return err
}
