// Package config loads, normalizes, and validates marketintel configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks for provider
// credentials such as ANTHROPIC_API_KEY and GEMINI_API_KEY. The Config type
// centralizes every knob the daemon and CLI need: queue and log locations,
// worker timing, the retry policy, and which search, fetch, and analysis
// providers back each stage.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical provider names, and clear validation errors.
package config
