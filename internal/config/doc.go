// Package config loads, normalizes, and validates shipflow configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// SHIPFLOW_DATA_DIR and SHIPFLOW_CARRIER_API_KEY. The Config type centralizes
// every knob the daemon and CLI need: engine cadence, per-queue retry
// policies, lock backend selection, and collaborator endpoints.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
