package main

import (
	"encoding/json"
	"image"
	"path/filepath"
	"strings"
	"testing"
)

func TestScanCommandReportsNearGreyscaleArchives(t *testing.T) {
	env := setupCLIEnv(t)
	grey := filepath.Join(env.inputDir, "grey.cbz")
	buildCLIArchive(t, grey, map[string]image.Image{"p1.png": nearGreyPage(32, 32, 4)})
	colorful := filepath.Join(env.inputDir, "color.cbz")
	buildCLIArchive(t, colorful, map[string]image.Image{"p1.png": colorfulPage(32, 32)})

	out, _, err := runCLI(t, []string{"scan", env.inputDir}, env.configPath)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	requireContains(t, out, "grey.cbz")
	if strings.Contains(out, "color.cbz") {
		t.Fatalf("colorful archive should not be reported:\n%s", out)
	}
	requireContains(t, out, "1 of 2 archives")
}

func TestScanCommandJSONOutput(t *testing.T) {
	env := setupCLIEnv(t)
	grey := filepath.Join(env.inputDir, "grey.cbz")
	buildCLIArchive(t, grey, map[string]image.Image{
		"p1.png": nearGreyPage(32, 32, 4),
		"p2.png": colorfulPage(32, 32),
	})

	out, _, err := runCLI(t, []string{"--json", "scan", grey}, env.configPath)
	if err != nil {
		t.Fatalf("scan --json: %v", err)
	}

	var payload struct {
		Scanned  int `json:"scanned"`
		Archives []struct {
			Archive            string `json:"archive"`
			NearGreyscalePages int    `json:"near_greyscale_pages"`
			TotalPages         int    `json:"total_pages"`
		} `json:"archives"`
	}
	if err := json.Unmarshal([]byte(out), &payload); err != nil {
		t.Fatalf("parse JSON output: %v\n%s", err, out)
	}
	if payload.Scanned != 1 || len(payload.Archives) != 1 {
		t.Fatalf("unexpected payload: %+v", payload)
	}
	entry := payload.Archives[0]
	if entry.NearGreyscalePages != 1 || entry.TotalPages != 2 {
		t.Fatalf("unexpected page counts: %+v", entry)
	}
}

func TestScanCommandNoMatches(t *testing.T) {
	env := setupCLIEnv(t)
	colorful := filepath.Join(env.inputDir, "color.cbz")
	buildCLIArchive(t, colorful, map[string]image.Image{"p1.png": colorfulPage(32, 32)})

	out, _, err := runCLI(t, []string{"scan", colorful}, env.configPath)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	requireContains(t, out, "No near-greyscale archives found")
}

func TestScanCommandRejectsNonArchive(t *testing.T) {
	env := setupCLIEnv(t)
	_, _, err := runCLI(t, []string{"scan", env.configPath}, env.configPath)
	if err == nil {
		t.Fatal("expected scan to reject a non-archive file")
	}
}
