// Package config loads, normalizes, and validates framerand configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// FRAMERAND_INSTANCE_NAME. The Config type centralizes every knob the daemon
// and CLI need, so video/output directories, queue sizing, and expiry policy
// are discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
