// Package config loads, normalizes, and validates reelup configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// REELUP_BASE_URL and REELUP_CLIENT_ID. The Config type centralizes the
// upload, auth and task knobs so the CLI and the upload pipeline read them in
// one pass.
package config
