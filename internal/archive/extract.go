package archive

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/bodgit/sevenzip"
	"github.com/nwaples/rardecode"
	"golang.org/x/text/unicode/norm"
)

var (
	// ErrUnsupportedFormat indicates the extension maps to no known container family.
	ErrUnsupportedFormat = errors.New("unsupported archive format")
	// ErrUnsafeEntryPath indicates an entry would resolve outside the extraction directory.
	ErrUnsafeEntryPath = errors.New("unsafe entry path")
)

// Extract unpacks archivePath into destDir, preserving entry paths relative
// to the archive root. The first entry that would escape destDir fails the
// whole extraction before that entry is written.
func Extract(archivePath, destDir string) error {
	format, ok := DetectFormat(archivePath)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(archivePath))
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return fmt.Errorf("create extraction directory: %w", err)
	}
	switch format {
	case FormatRAR:
		return extractRAR(archivePath, destDir)
	case FormatSevenZip:
		return extractSevenZip(archivePath, destDir)
	default:
		return extractZip(archivePath, destDir)
	}
}

func extractZip(archivePath, destDir string) error {
	reader, err := zip.OpenReader(archivePath)
	if err != nil && !errors.Is(err, zip.ErrInsecurePath) {
		return fmt.Errorf("open zip archive: %w", err)
	}
	// ErrInsecurePath still yields a usable reader; entryTarget classifies
	// the offending entries itself.
	defer reader.Close()

	for _, entry := range reader.File {
		target, err := entryTarget(destDir, entry.Name)
		if err != nil {
			return err
		}
		if target == "" {
			continue
		}
		if entry.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("create directory for %s: %w", entry.Name, err)
			}
			continue
		}
		src, err := entry.Open()
		if err != nil {
			return fmt.Errorf("open zip entry %s: %w", entry.Name, err)
		}
		err = writeEntry(target, src)
		src.Close()
		if err != nil {
			return fmt.Errorf("extract zip entry %s: %w", entry.Name, err)
		}
	}
	return nil
}

func extractRAR(archivePath, destDir string) error {
	reader, err := rardecode.OpenReader(archivePath, "")
	if err != nil {
		return fmt.Errorf("open rar archive: %w", err)
	}
	defer reader.Close()

	for {
		header, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read rar header: %w", err)
		}
		target, err := entryTarget(destDir, header.Name)
		if err != nil {
			return err
		}
		if target == "" {
			continue
		}
		if header.IsDir {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("create directory for %s: %w", header.Name, err)
			}
			continue
		}
		if err := writeEntry(target, reader); err != nil {
			return fmt.Errorf("extract rar entry %s: %w", header.Name, err)
		}
	}
}

func extractSevenZip(archivePath, destDir string) error {
	reader, err := sevenzip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("open 7z archive: %w", err)
	}
	defer reader.Close()

	for _, entry := range reader.File {
		target, err := entryTarget(destDir, entry.Name)
		if err != nil {
			return err
		}
		if target == "" {
			continue
		}
		if entry.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("create directory for %s: %w", entry.Name, err)
			}
			continue
		}
		src, err := entry.Open()
		if err != nil {
			return fmt.Errorf("open 7z entry %s: %w", entry.Name, err)
		}
		err = writeEntry(target, src)
		src.Close()
		if err != nil {
			return fmt.Errorf("extract 7z entry %s: %w", entry.Name, err)
		}
	}
	return nil
}

// entryTarget resolves an archive entry name to a path under destDir. Names
// are NFC-normalized so extracted trees carry stable names regardless of the
// tool that produced the archive. An empty target means skip the entry.
func entryTarget(destDir, name string) (string, error) {
	cleaned := path.Clean(strings.ReplaceAll(norm.NFC.String(name), `\`, "/"))
	if cleaned == "." {
		return "", nil
	}
	native := filepath.FromSlash(cleaned)
	if !filepath.IsLocal(native) {
		return "", fmt.Errorf("%w: %s", ErrUnsafeEntryPath, name)
	}
	return filepath.Join(destDir, native), nil
}

func writeEntry(target string, src io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	dst, err := os.Create(target)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return err
	}
	return dst.Close()
}
