//go:build !linux

package fileutil

import "errors"

// FreeSpace is unsupported on this platform; callers should treat the error
// as "unknown" and skip preflight space checks.
func FreeSpace(path string) (uint64, error) {
	return 0, errors.New("free space detection not supported on this platform")
}
