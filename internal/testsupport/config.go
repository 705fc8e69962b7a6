package testsupport

import (
	"path/filepath"
	"testing"

	"reelup/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Retry delays are zeroed so failing parts do not slow tests down.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.StagingDir = filepath.Join(base, "staging")
	cfgVal.Service.BaseURL = "http://127.0.0.1:0"
	cfgVal.Auth.CallbackBind = "127.0.0.1:0"
	cfgVal.Upload.RetryBaseDelayMS = 0
	cfgVal.Upload.RetryMaxDelayMS = 0
	cfgVal.Task.PollIntervalMS = 5

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}
	for _, opt := range opts {
		opt(builder)
	}
	return builder.cfg
}

// WithBaseURL points the service client at a test server.
func WithBaseURL(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Service.BaseURL = url
	}
}

// WithChunkSize overrides the upload part size.
func WithChunkSize(size int64) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Upload.ChunkSizeBytes = size
	}
}

// WithDelegatedDomains routes the given email domains through browser login.
func WithDelegatedDomains(domains ...string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Auth.DelegatedDomains = domains
	}
}

// WithSkipExisting toggles skipping files already present on the service.
func WithSkipExisting(enabled bool) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Upload.SkipExisting = enabled
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}
