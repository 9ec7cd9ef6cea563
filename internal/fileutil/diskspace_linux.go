//go:build linux

package fileutil

import "golang.org/x/sys/unix"

// FreeSpace reports the number of bytes available to unprivileged users on
// the filesystem containing path.
func FreeSpace(path string) (uint64, error) {
	var fs unix.Statfs_t
	if err := unix.Statfs(path, &fs); err != nil {
		return 0, err
	}
	return fs.Bavail * uint64(fs.Bsize), nil
}
