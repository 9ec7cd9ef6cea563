// Package convert turns extracted page images into WebP files.
//
// Convert handles one image end to end. Dispatcher fans a directory tree
// out over a bounded worker pool and copies non-image members through
// verbatim. The analysis helpers decide when a nominally colored page is
// close enough to greyscale to flatten before encoding.
package convert
