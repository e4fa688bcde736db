// Package config loads, normalizes, and validates threadwatch configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, applies a working-directory .env file, and
// honours environment fallbacks such as OPENROUTER_API_KEY. The Config type
// centralizes every knob the cycle runner and CLI need, including the list of
// forum sources to poll.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical source kinds, and clear validation errors.
package config
