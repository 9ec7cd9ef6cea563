package pipeline

import (
	"fmt"
	"path/filepath"

	"github.com/dustin/go-humanize"
)

// SummaryRow is one printable line of the conversion summary.
type SummaryRow struct {
	Name      string
	Original  string
	Converted string
	Saved     string
	Reduction string
}

// Summary builds printable rows for the successful results of a run plus a
// totals row. Failed items carry no size comparison and are excluded; report
// those from the per-item results.
func Summary(results []ArchiveResult, stats BatchStats) ([]SummaryRow, SummaryRow) {
	rows := make([]SummaryRow, 0, len(results))
	for _, r := range results {
		if !r.Succeeded() {
			continue
		}
		saved := r.OriginalBytes - r.ConvertedBytes
		rows = append(rows, SummaryRow{
			Name:      filepath.Base(r.Output),
			Original:  humanize.IBytes(uint64(r.OriginalBytes)),
			Converted: humanize.IBytes(uint64(r.ConvertedBytes)),
			Saved:     signedIBytes(saved),
			Reduction: signedPercent(r.OriginalBytes, saved),
		})
	}
	total := SummaryRow{
		Name:      "Total",
		Original:  humanize.IBytes(uint64(stats.OriginalBytes)),
		Converted: humanize.IBytes(uint64(stats.ConvertedBytes)),
		Saved:     signedIBytes(stats.BytesSaved()),
		Reduction: signedPercent(stats.OriginalBytes, stats.BytesSaved()),
	}
	return rows, total
}

func signedIBytes(n int64) string {
	if n < 0 {
		return "-" + humanize.IBytes(uint64(-n))
	}
	return humanize.IBytes(uint64(n))
}

func signedPercent(original, saved int64) string {
	if original <= 0 {
		return "0.0%"
	}
	return fmt.Sprintf("%.1f%%", float64(saved)/float64(original)*100)
}
