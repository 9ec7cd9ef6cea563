package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestStagingListAndClean(t *testing.T) {
	env := setupCLIEnv(t)
	stale := filepath.Join(env.stagingDir, "Old_Book-a1b2c3d4")
	if err := os.MkdirAll(stale, 0o755); err != nil {
		t.Fatalf("mkdir stale: %v", err)
	}
	if err := os.WriteFile(filepath.Join(stale, "page001.png"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write page: %v", err)
	}
	past := time.Now().Add(-48 * time.Hour)
	if err := os.Chtimes(stale, past, past); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	out, _, err := runCLI(t, []string{"staging", "list"}, env.configPath)
	if err != nil {
		t.Fatalf("staging list: %v", err)
	}
	requireContains(t, out, "Old_Book-a1b2c3d4")
	requireContains(t, out, "Total: 1 directories")

	out, _, err = runCLI(t, []string{"staging", "clean"}, env.configPath)
	if err != nil {
		t.Fatalf("staging clean: %v", err)
	}
	requireContains(t, out, "Removed 1 directories")
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Fatalf("stale directory should be gone, stat err = %v", err)
	}
}

func TestStagingCleanKeepsFreshDirectories(t *testing.T) {
	env := setupCLIEnv(t)
	fresh := filepath.Join(env.stagingDir, "Fresh_Book-deadbeef")
	if err := os.MkdirAll(fresh, 0o755); err != nil {
		t.Fatalf("mkdir fresh: %v", err)
	}

	out, _, err := runCLI(t, []string{"staging", "clean"}, env.configPath)
	if err != nil {
		t.Fatalf("staging clean: %v", err)
	}
	requireContains(t, out, "No stale directories to clean")
	if _, err := os.Stat(fresh); err != nil {
		t.Fatalf("fresh directory should survive: %v", err)
	}

	out, _, err = runCLI(t, []string{"staging", "clean", "--all"}, env.configPath)
	if err != nil {
		t.Fatalf("staging clean --all: %v", err)
	}
	requireContains(t, out, "Removed 1 directories")
	if _, err := os.Stat(fresh); !os.IsNotExist(err) {
		t.Fatalf("directory should be gone after --all, stat err = %v", err)
	}
}

func TestStagingListEmpty(t *testing.T) {
	env := setupCLIEnv(t)

	out, _, err := runCLI(t, []string{"staging", "list"}, env.configPath)
	if err != nil {
		t.Fatalf("staging list: %v", err)
	}
	requireContains(t, out, "No staging directories found")
}
