package main

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"cbx/internal/archive"
)

// cliEnv holds the directories and config file one CLI test works against.
type cliEnv struct {
	baseDir    string
	inputDir   string
	outputDir  string
	stagingDir string
	configPath string
}

func setupCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	base := t.TempDir()
	env := &cliEnv{
		baseDir:    base,
		inputDir:   filepath.Join(base, "in"),
		outputDir:  filepath.Join(base, "out"),
		stagingDir: filepath.Join(base, "staging"),
		configPath: filepath.Join(base, "config.toml"),
	}
	if err := os.MkdirAll(env.inputDir, 0o755); err != nil {
		t.Fatalf("mkdir input: %v", err)
	}
	writeCLIConfig(t, env.configPath, env.outputDir, env.stagingDir)
	return env
}

func writeCLIConfig(t *testing.T, path, outputDir, stagingDir string) {
	t.Helper()
	content := fmt.Sprintf(`[paths]
output_dir = %q
staging_dir = %q

[conversion]
quality = 75
method = 0

[pipeline]
workers = 2
min_free_mib = 0

[logging]
level = "error"

[stats]
enabled = false
database_path = %q
`, outputDir, stagingDir, filepath.Join(filepath.Dir(path), "stats.db"))
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	if configPath != "" {
		args = append([]string{"--config", configPath}, args...)
	}
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}

// colorfulPage produces a gradient where nearly every pixel is colored.
func colorfulPage(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{
				R: uint8(x * 255 / w),
				G: uint8(y * 255 / h),
				B: 60,
				A: 255,
			})
		}
	}
	return img
}

// nearGreyPage produces a grey page with a handful of colored pixels, enough
// to trip the auto-greyscale heuristic without exceeding its ratio ceiling.
func nearGreyPage(w, h, coloredPixels int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: 128, G: 128, B: 128, A: 255})
		}
	}
	for i := 0; i < coloredPixels && i < w; i++ {
		img.SetNRGBA(i, 0, color.NRGBA{R: 200, G: 80, B: 40, A: 255})
	}
	return img
}

func buildCLIArchive(t *testing.T, path string, pages map[string]image.Image) {
	t.Helper()
	srcDir := t.TempDir()
	for name, img := range pages {
		full := filepath.Join(srcDir, name)
		f, err := os.Create(full)
		if err != nil {
			t.Fatalf("create page: %v", err)
		}
		if err := png.Encode(f, img); err != nil {
			f.Close()
			t.Fatalf("encode page: %v", err)
		}
		if err := f.Close(); err != nil {
			t.Fatalf("close page: %v", err)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := archive.Create(path, srcDir, 1); err != nil {
		t.Fatalf("build archive: %v", err)
	}
}
