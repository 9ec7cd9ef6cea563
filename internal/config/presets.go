package config

import (
	"fmt"
	"sort"
	"strings"
)

// Preset bundles a named set of conversion and packaging values that can be
// applied on top of a loaded config.
type Preset struct {
	Name        string
	Description string
	Conversion  Conversion
	Compression int
}

func baseConversion() Conversion {
	return Conversion{
		Quality:                       defaultQuality,
		Method:                        defaultMethod,
		Preprocessing:                 defaultPreprocessing,
		AutoGreyscalePixelThreshold:   defaultPixelThreshold,
		AutoGreyscalePercentThreshold: defaultPercentThreshold,
	}
}

func builtinPresets() map[string]Preset {
	defaultPreset := Preset{
		Name:        "default",
		Description: "Balanced quality and performance for general use",
		Conversion:  baseConversion(),
		Compression: defaultCompression,
	}

	comic := defaultPreset
	comic.Name = "comic"
	comic.Description = "Sharpened line art with automatic greyscale detection"
	comic.Conversion.Quality = 75
	comic.Conversion.Method = 5
	comic.Conversion.Preprocessing = PreprocessUnsharpMask
	comic.Conversion.AutoGreyscale = true

	manga := defaultPreset
	manga.Name = "manga"
	manga.Description = "Greyscale output with contrast stretch for scanned manga"
	manga.Conversion.Quality = 70
	manga.Conversion.Method = 5
	manga.Conversion.Grayscale = true
	manga.Conversion.AutoContrast = true
	manga.Conversion.MaxWidth = 1600

	photo := defaultPreset
	photo.Name = "photo"
	photo.Description = "High quality for painted or photographic pages"
	photo.Conversion.Quality = 90
	photo.Conversion.Method = 6

	archival := defaultPreset
	archival.Name = "archival"
	archival.Description = "Lossless encoding for long-term preservation"
	archival.Conversion.Lossless = true
	archival.Conversion.Method = 6
	archival.Compression = 9

	presets := map[string]Preset{}
	for _, p := range []Preset{defaultPreset, comic, manga, photo, archival} {
		presets[p.Name] = p
	}
	return presets
}

// ListPresets returns all built-in presets sorted by name.
func ListPresets() []Preset {
	presets := builtinPresets()
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]Preset, 0, len(names))
	for _, name := range names {
		out = append(out, presets[name])
	}
	return out
}

// FindPreset looks up a built-in preset by name.
func FindPreset(name string) (Preset, bool) {
	preset, ok := builtinPresets()[strings.ToLower(strings.TrimSpace(name))]
	return preset, ok
}

// ApplyPreset overwrites the conversion section and zip compression with the
// named preset's values. Unknown names are rejected with the available choices.
func (c *Config) ApplyPreset(name string) error {
	preset, ok := FindPreset(name)
	if !ok {
		names := make([]string, 0)
		for _, p := range ListPresets() {
			names = append(names, p.Name)
		}
		return fmt.Errorf("unknown preset %q (available: %s)", name, strings.Join(names, ", "))
	}
	c.Conversion = preset.Conversion
	c.Output.Compression = preset.Compression
	return nil
}
