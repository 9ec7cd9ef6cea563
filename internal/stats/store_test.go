package stats_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"cbx/internal/stats"
)

func openStore(t *testing.T) *stats.Store {
	t.Helper()
	store, err := stats.Open(filepath.Join(t.TempDir(), "stats.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return store
}

func TestRecordRunRoundTrip(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	started := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	recorded, err := store.RecordRun(ctx, stats.Run{
		StartedAt:      started,
		FinishedAt:     started.Add(95 * time.Second),
		Archives:       4,
		ArchivesFailed: 1,
		Files:          112,
		OriginalBytes:  800 << 20,
		ConvertedBytes: 300 << 20,
	})
	if err != nil {
		t.Fatalf("RecordRun: %v", err)
	}
	if recorded.ID == 0 {
		t.Fatal("expected an assigned run ID")
	}
	if recorded.RunID == "" {
		t.Fatal("expected a generated run UUID")
	}

	runs, err := store.RecentRuns(ctx, 10)
	if err != nil {
		t.Fatalf("RecentRuns: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("runs = %d, want 1", len(runs))
	}
	got := runs[0]
	if got.ID != recorded.ID || got.RunID != recorded.RunID {
		t.Fatalf("identity mismatch: %+v vs %+v", got, recorded)
	}
	if !got.StartedAt.Equal(started) {
		t.Fatalf("StartedAt = %v, want %v", got.StartedAt, started)
	}
	if got.Duration() != 95*time.Second {
		t.Fatalf("Duration = %v, want 95s", got.Duration())
	}
	if got.Archives != 4 || got.ArchivesFailed != 1 || got.Files != 112 {
		t.Fatalf("counts mismatch: %+v", got)
	}
	if got.BytesSaved() != 500<<20 {
		t.Fatalf("BytesSaved = %d, want %d", got.BytesSaved(), int64(500<<20))
	}
}

func TestLifetimeAggregatesRuns(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		started := base.AddDate(0, 0, i)
		_, err := store.RecordRun(ctx, stats.Run{
			StartedAt:      started,
			FinishedAt:     started.Add(time.Minute),
			Archives:       2,
			Files:          40,
			OriginalBytes:  1000,
			ConvertedBytes: 400,
		})
		if err != nil {
			t.Fatalf("RecordRun %d: %v", i, err)
		}
	}

	life, err := store.Lifetime(ctx)
	if err != nil {
		t.Fatalf("Lifetime: %v", err)
	}
	if life.Runs != 3 || life.Archives != 6 || life.Files != 120 {
		t.Fatalf("unexpected totals: %+v", life)
	}
	if life.OriginalBytes != 3000 || life.ConvertedBytes != 1200 {
		t.Fatalf("unexpected byte totals: %+v", life)
	}
	if life.BytesSaved() != 1800 {
		t.Fatalf("BytesSaved = %d, want 1800", life.BytesSaved())
	}
	if got := life.ReductionPercent(); got != 60 {
		t.Fatalf("ReductionPercent = %v, want 60", got)
	}
	if !life.FirstRun.Equal(base) {
		t.Fatalf("FirstRun = %v, want %v", life.FirstRun, base)
	}
	wantLast := base.AddDate(0, 0, 2).Add(time.Minute)
	if !life.LastRun.Equal(wantLast) {
		t.Fatalf("LastRun = %v, want %v", life.LastRun, wantLast)
	}
}

func TestLifetimeEmptyDatabase(t *testing.T) {
	store := openStore(t)

	life, err := store.Lifetime(context.Background())
	if err != nil {
		t.Fatalf("Lifetime: %v", err)
	}
	if life.Runs != 0 || life.Archives != 0 {
		t.Fatalf("expected zero lifetime, got %+v", life)
	}
	if !life.FirstRun.IsZero() || !life.LastRun.IsZero() {
		t.Fatalf("expected zero run times, got %+v", life)
	}
	if life.ReductionPercent() != 0 {
		t.Fatalf("ReductionPercent = %v, want 0", life.ReductionPercent())
	}
}

func TestRecentRunsOrderAndLimit(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := store.RecordRun(ctx, stats.Run{Archives: i + 1}); err != nil {
			t.Fatalf("RecordRun %d: %v", i, err)
		}
	}

	runs, err := store.RecentRuns(ctx, 3)
	if err != nil {
		t.Fatalf("RecentRuns: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("runs = %d, want 3", len(runs))
	}
	for i := 1; i < len(runs); i++ {
		if runs[i-1].ID <= runs[i].ID {
			t.Fatalf("runs not newest-first: %d then %d", runs[i-1].ID, runs[i].ID)
		}
	}
	if runs[0].Archives != 5 {
		t.Fatalf("newest run archives = %d, want 5", runs[0].Archives)
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stats.db")

	first, err := stats.Open(path)
	if err != nil {
		t.Fatalf("first Open: %v", err)
	}
	if _, err := first.RecordRun(context.Background(), stats.Run{Archives: 1}); err != nil {
		t.Fatalf("RecordRun: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	second, err := stats.Open(path)
	if err != nil {
		t.Fatalf("second Open: %v", err)
	}
	defer second.Close()

	life, err := second.Lifetime(context.Background())
	if err != nil {
		t.Fatalf("Lifetime: %v", err)
	}
	if life.Runs != 1 {
		t.Fatalf("runs = %d, want 1 (data lost across reopen)", life.Runs)
	}
}

func TestOpenRejectsEmptyPath(t *testing.T) {
	if _, err := stats.Open("  "); err == nil {
		t.Fatal("expected error for empty path")
	}
}
