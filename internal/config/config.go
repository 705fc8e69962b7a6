package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains local directory configuration.
type Paths struct {
	StateDir   string `toml:"state_dir"`
	LogDir     string `toml:"log_dir"`
	StagingDir string `toml:"staging_dir"`
}

// Service contains connection settings for the asset-management service.
type Service struct {
	BaseURL           string  `toml:"base_url"`
	RequestTimeout    int     `toml:"request_timeout"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
	UserAgent         string  `toml:"user_agent"`
}

// Auth contains login settings. DelegatedDomains lists the email domains that
// authenticate through the browser flow instead of a password.
type Auth struct {
	DelegatedDomains []string `toml:"delegated_domains"`
	ClientID         string   `toml:"client_id"`
	AuthorizeURL     string   `toml:"authorize_url"`
	TokenURL         string   `toml:"token_url"`
	CallbackBind     string   `toml:"callback_bind"`
	LoginTimeout     int      `toml:"login_timeout"`
}

// Upload contains chunked upload settings.
type Upload struct {
	ChunkSizeBytes   int64 `toml:"chunk_size_bytes"`
	MaxPartRetries   int   `toml:"max_part_retries"`
	RetryBaseDelayMS int   `toml:"retry_base_delay_ms"`
	RetryMaxDelayMS  int   `toml:"retry_max_delay_ms"`
	PartConcurrency  int   `toml:"part_concurrency"`
	SkipExisting     bool  `toml:"skip_existing"`
}

// Task contains poll-driven task settings.
type Task struct {
	// UploadPhaseWeight is the upstream share for plain uploads, which have
	// no upstream phase; 0 makes progress the upload fraction alone.
	UploadPhaseWeight    float64 `toml:"upload_phase_weight"`
	TranscodePhaseWeight float64 `toml:"transcode_phase_weight"`
	PollIntervalMS       int     `toml:"poll_interval_ms"`
}

// Transcode controls the optional encode phase ahead of an export upload.
type Transcode struct {
	Enabled bool `toml:"enabled"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for reelup.
//
// Configuration sections by subsystem:
//   - Paths: state, log and staging directories
//   - Service: asset service endpoint, timeouts and request pacing
//   - Auth: delegated login domains and OAuth endpoints
//   - Upload: chunk size, retry policy and part concurrency
//   - Task: phase weighting and poll cadence
//   - Transcode: encode phase toggle
//   - Notifications: ntfy push notification settings
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Service       Service       `toml:"service"`
	Auth          Auth          `toml:"auth"`
	Upload        Upload        `toml:"upload"`
	Task          Task          `toml:"task"`
	Transcode     Transcode     `toml:"transcode"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("reelup.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the state, log and staging directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.LogDir, c.Paths.StagingDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// SessionPath is where the authenticated token pair is persisted between runs.
func (c *Config) SessionPath() string {
	return filepath.Join(c.Paths.StateDir, "session.json")
}

// RecordsPath is the sqlite database holding upload records.
func (c *Config) RecordsPath() string {
	return filepath.Join(c.Paths.StateDir, "records.db")
}

// LockPath guards against two uploads running from the same state directory.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "upload.lock")
}

// RequestTimeout returns the per-request HTTP timeout.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Service.RequestTimeout) * time.Second
}

// LoginTimeout bounds how long the delegated login waits for the browser callback.
func (c *Config) LoginTimeout() time.Duration {
	return time.Duration(c.Auth.LoginTimeout) * time.Second
}

// PollInterval is the cadence the CLI runner drives the upload task at.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Task.PollIntervalMS) * time.Millisecond
}

// RetryDelays returns the base and maximum part retry backoff.
func (c *Config) RetryDelays() (time.Duration, time.Duration) {
	return time.Duration(c.Upload.RetryBaseDelayMS) * time.Millisecond,
		time.Duration(c.Upload.RetryMaxDelayMS) * time.Millisecond
}

// DelegatedLoginEnabled reports whether any email domain uses the browser flow.
func (c *Config) DelegatedLoginEnabled() bool {
	return len(c.Auth.DelegatedDomains) > 0
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
