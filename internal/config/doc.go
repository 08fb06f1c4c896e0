// Package config loads, validates, and defaults the TOML configuration for
// the stockpix pipeline.
package config
