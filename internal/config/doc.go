// Package config loads, validates, and normalizes Glossa configuration.
//
// Configuration is TOML with defaults applied before decoding, path expansion
// and env-var fallbacks during normalization, and validation as the final
// step. Load resolves the file from an explicit path, the user config
// directory, or a project-local glossa.toml.
package config
