package archive

import (
	"path/filepath"
	"strings"
)

// Format identifies a container family detected from a file extension.
type Format string

const (
	FormatZip      Format = "zip"
	FormatRAR      Format = "rar"
	FormatSevenZip Format = "7z"
)

var formatsByExtension = map[string]Format{
	".zip": FormatZip,
	".cbz": FormatZip,
	".rar": FormatRAR,
	".cbr": FormatRAR,
	".7z":  FormatSevenZip,
	".cb7": FormatSevenZip,
}

var imageExtensions = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".png":  {},
	".gif":  {},
	".bmp":  {},
	".tif":  {},
	".tiff": {},
	".webp": {},
}

// DetectFormat reports the container family for path based on its extension.
func DetectFormat(path string) (Format, bool) {
	format, ok := formatsByExtension[strings.ToLower(filepath.Ext(path))]
	return format, ok
}

// IsArchive reports whether path carries a recognized comic archive extension.
func IsArchive(path string) bool {
	_, ok := DetectFormat(path)
	return ok
}

// IsImage reports whether path carries a recognized page image extension.
func IsImage(path string) bool {
	_, ok := imageExtensions[strings.ToLower(filepath.Ext(path))]
	return ok
}

// OutputExtension maps a configured output format name such as "cbz" or
// "zip" to its file extension.
func OutputExtension(format string) string {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		return ".cbz"
	}
	return "." + format
}
