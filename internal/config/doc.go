// Package config loads, normalizes, and validates cbx configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and bundles the built-in conversion presets.
// The Config type centralizes every knob the CLI needs, so staging and output
// directories, encoder settings, and watch-mode behavior are discovered in
// one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical format names, and clear validation errors.
package config
