// Package config loads, normalizes, and validates reel configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and overlays the deployment environment
// variables (SRC_BASE, MQTT_HOST and friends) that the systemd units export.
// The Config type centralizes the source tree layout, the destination trees,
// broker settings, and the hardware lock policy in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical enums, and clear validation errors.
package config
