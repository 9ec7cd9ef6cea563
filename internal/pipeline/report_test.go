package pipeline

import (
	"errors"
	"testing"
)

func TestSummaryRows(t *testing.T) {
	results := []ArchiveResult{
		{Source: "/in/a.cbz", Output: "/out/a.cbz", Status: StatusCompleted, OriginalBytes: 4 << 20, ConvertedBytes: 1 << 20},
		{Source: "/in/bad.cbz", Status: StatusFailed, Err: errors.New("boom")},
		{Source: "/in/b.cbz", Output: "/out/b.cbz", Status: StatusCompleted, OriginalBytes: 1 << 20, ConvertedBytes: 2 << 20},
	}
	stats := BatchStats{
		Archives:       3,
		Succeeded:      2,
		Failed:         1,
		OriginalBytes:  5 << 20,
		ConvertedBytes: 3 << 20,
	}

	rows, total := Summary(results, stats)
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2 (failures excluded)", len(rows))
	}
	if rows[0].Name != "a.cbz" || rows[0].Original != "4.0 MiB" || rows[0].Converted != "1.0 MiB" {
		t.Fatalf("unexpected first row: %+v", rows[0])
	}
	if rows[0].Saved != "3.0 MiB" || rows[0].Reduction != "75.0%" {
		t.Fatalf("unexpected savings: %+v", rows[0])
	}
	if rows[1].Saved != "-1.0 MiB" || rows[1].Reduction != "-100.0%" {
		t.Fatalf("growth should carry a sign: %+v", rows[1])
	}
	if total.Name != "Total" || total.Original != "5.0 MiB" || total.Converted != "3.0 MiB" {
		t.Fatalf("unexpected total row: %+v", total)
	}
	if total.Saved != "2.0 MiB" || total.Reduction != "40.0%" {
		t.Fatalf("unexpected total savings: %+v", total)
	}
}

func TestBatchStatsReduction(t *testing.T) {
	s := BatchStats{OriginalBytes: 1000, ConvertedBytes: 250}
	if got := s.BytesSaved(); got != 750 {
		t.Fatalf("BytesSaved = %d, want 750", got)
	}
	if got := s.ReductionPercent(); got != 75 {
		t.Fatalf("ReductionPercent = %v, want 75", got)
	}

	var zero BatchStats
	if got := zero.ReductionPercent(); got != 0 {
		t.Fatalf("ReductionPercent on empty stats = %v, want 0", got)
	}
}
