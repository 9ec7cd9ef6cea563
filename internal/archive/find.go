package archive

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// FindArchives returns every recognized archive under root, sorted by path.
// When recursive is false only root's immediate children are considered.
func FindArchives(root string, recursive bool) ([]string, error) {
	var archives []string
	if recursive {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			if IsArchive(path) {
				archives = append(archives, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", root, err)
		}
	} else {
		entries, err := os.ReadDir(root)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", root, err)
		}
		for _, entry := range entries {
			if entry.IsDir() || !IsArchive(entry.Name()) {
				continue
			}
			archives = append(archives, filepath.Join(root, entry.Name()))
		}
	}
	sort.Strings(archives)
	return archives, nil
}
