package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"cbx/internal/config"
)

func newPresetsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:         "presets",
		Short:       "List built-in conversion presets",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			presets := config.ListPresets()

			if ctx.JSONMode() {
				return writePresetsJSON(cmd, presets)
			}

			rows := make([][]string, 0, len(presets))
			for _, p := range presets {
				quality := strconv.Itoa(p.Conversion.Quality)
				if p.Conversion.Lossless {
					quality = "lossless"
				}
				rows = append(rows, []string{
					p.Name,
					quality,
					strconv.Itoa(p.Conversion.Method),
					presetTransforms(p),
					p.Description,
				})
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderTable(
				[]column{
					{Title: "Preset"},
					{Title: "Quality", Right: true},
					{Title: "Method", Right: true},
					{Title: "Transforms"},
					{Title: "Description"},
				},
				rows,
			))
			fmt.Fprintln(out, "Apply one with --preset; explicit flags still win over preset values.")
			return nil
		},
	}
}

// presetTransforms summarizes the non-default switches a preset flips on.
func presetTransforms(p config.Preset) string {
	var parts []string
	if p.Conversion.Preprocessing != "" && p.Conversion.Preprocessing != config.PreprocessNone {
		parts = append(parts, p.Conversion.Preprocessing)
	}
	if p.Conversion.Grayscale {
		parts = append(parts, "grayscale")
	}
	if p.Conversion.AutoContrast {
		parts = append(parts, "auto-contrast")
	}
	if p.Conversion.AutoGreyscale {
		parts = append(parts, "auto-greyscale")
	}
	if p.Conversion.MaxWidth > 0 {
		parts = append(parts, fmt.Sprintf("max-width %d", p.Conversion.MaxWidth))
	}
	if p.Conversion.MaxHeight > 0 {
		parts = append(parts, fmt.Sprintf("max-height %d", p.Conversion.MaxHeight))
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, ", ")
}

func writePresetsJSON(cmd *cobra.Command, presets []config.Preset) error {
	type presetJSON struct {
		Name          string  `json:"name"`
		Description   string  `json:"description"`
		Quality       int     `json:"quality"`
		Method        int     `json:"method"`
		Lossless      bool    `json:"lossless"`
		Preprocessing string  `json:"preprocessing"`
		Grayscale     bool    `json:"grayscale"`
		AutoContrast  bool    `json:"auto_contrast"`
		AutoGreyscale bool    `json:"auto_greyscale"`
		MaxWidth      int     `json:"max_width,omitempty"`
		MaxHeight     int     `json:"max_height,omitempty"`
		Compression   int     `json:"compression"`
	}
	items := make([]presetJSON, 0, len(presets))
	for _, p := range presets {
		items = append(items, presetJSON{
			Name:          p.Name,
			Description:   p.Description,
			Quality:       p.Conversion.Quality,
			Method:        p.Conversion.Method,
			Lossless:      p.Conversion.Lossless,
			Preprocessing: p.Conversion.Preprocessing,
			Grayscale:     p.Conversion.Grayscale,
			AutoContrast:  p.Conversion.AutoContrast,
			AutoGreyscale: p.Conversion.AutoGreyscale,
			MaxWidth:      p.Conversion.MaxWidth,
			MaxHeight:     p.Conversion.MaxHeight,
			Compression:   p.Compression,
		})
	}
	return writeJSON(cmd, items)
}
