package pipeline

import "time"

// Status describes where an archive currently sits in the pipeline.
type Status string

const (
	StatusPending    Status = "pending"
	StatusExtracting Status = "extracting"
	StatusConverting Status = "converting"
	StatusPackaging  Status = "packaging"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Stage names used in logs and failure reports.
const (
	StageExtract = "extract"
	StageConvert = "convert"
	StagePackage = "package"
)

// ArchiveResult captures the outcome of processing a single work item.
type ArchiveResult struct {
	Source         string
	Output         string
	Status         Status
	FailedStage    string
	Err            error
	Pages          int
	PagesFailed    int
	Copied         int
	OriginalBytes  int64
	ConvertedBytes int64
	Elapsed        time.Duration
}

// Succeeded reports whether the item made it through every stage.
func (r ArchiveResult) Succeeded() bool {
	return r.Status == StatusCompleted
}

// BatchStats aggregates totals across the successful items of one run.
type BatchStats struct {
	Archives       int
	Succeeded      int
	Failed         int
	Pages          int
	OriginalBytes  int64
	ConvertedBytes int64
	Elapsed        time.Duration
}

// BytesSaved returns the space reclaimed by the run. Negative when the
// converted output grew beyond the originals.
func (s BatchStats) BytesSaved() int64 {
	return s.OriginalBytes - s.ConvertedBytes
}

// ReductionPercent returns the size reduction as a percentage of the
// original bytes, or zero when nothing was measured.
func (s BatchStats) ReductionPercent() float64 {
	if s.OriginalBytes <= 0 {
		return 0
	}
	return float64(s.BytesSaved()) / float64(s.OriginalBytes) * 100
}
