// Package pipeline orchestrates batch conversion of comic archives.
//
// A batch run expands its inputs into work items, then processes each item
// through three stages: extract the source archive into a staging directory,
// convert every page to WebP with a bounded worker pool, and package the
// converted tree into the output container. Packaging runs on a dedicated
// worker fed by a queue, so the next archive's conversion overlaps with the
// previous archive's packaging instead of waiting for it.
package pipeline
