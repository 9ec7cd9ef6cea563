// Package staging manages the per-archive working directories where pages
// are extracted and converted before packaging.
package staging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// NewDir creates a fresh staging directory for the named source under
// baseDir. The directory name combines the source stem with a short unique
// suffix so concurrent and repeated runs never collide.
func NewDir(baseDir, sourceName string) (string, error) {
	baseDir = strings.TrimSpace(baseDir)
	if baseDir == "" {
		return "", fmt.Errorf("staging base directory is not configured")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return "", fmt.Errorf("create staging base %q: %w", baseDir, err)
	}

	stem := sanitizeStem(sourceName)
	suffix := uuid.NewString()[:8]
	dir := filepath.Join(baseDir, stem+"-"+suffix)
	if err := os.Mkdir(dir, 0o755); err != nil {
		return "", fmt.Errorf("create staging directory %q: %w", dir, err)
	}
	return dir, nil
}

func sanitizeStem(name string) string {
	stem := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	stem = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_' || r == '.':
			return r
		default:
			return '_'
		}
	}, stem)
	if stem == "" {
		stem = "archive"
	}
	const maxStem = 64
	if len(stem) > maxStem {
		stem = stem[:maxStem]
	}
	return stem
}
