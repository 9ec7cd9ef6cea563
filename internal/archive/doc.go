// Package archive reads and writes comic book containers.
//
// Extraction recognizes zip, rar, and 7z families by extension. Output
// archives are always zip containers written with deterministic entry
// ordering; rar and 7z stay read-only because no pure-Go writers exist
// for them.
package archive
