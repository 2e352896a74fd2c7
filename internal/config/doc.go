// Package config loads, normalizes, and validates the roast machine TOML
// configuration.
//
// Load resolves the file (explicit path, ~/.config/roastmachine/config.toml,
// or ./roastmachine.toml), overlays it on Default(), expands paths, applies
// environment fallbacks for secrets, and validates every section. A missing
// file is not an error: defaults are returned with exists=false.
package config
