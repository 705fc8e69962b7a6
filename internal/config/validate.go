package config

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateService(); err != nil {
		return err
	}
	if err := c.validateAuth(); err != nil {
		return err
	}
	if err := c.validateUpload(); err != nil {
		return err
	}
	if err := c.validateTask(); err != nil {
		return err
	}
	return ensurePositiveMap(map[string]int{
		"notifications.request_timeout": c.Notifications.RequestTimeout,
	})
}

func (c *Config) validateService() error {
	if err := validateHTTPURL("service.base_url", c.Service.BaseURL); err != nil {
		return err
	}
	if c.Service.RequestTimeout <= 0 {
		return errors.New("service.request_timeout must be positive (seconds)")
	}
	if c.Service.RequestsPerSecond < 0 {
		return errors.New("service.requests_per_second must be >= 0")
	}
	return nil
}

func (c *Config) validateAuth() error {
	if c.Auth.LoginTimeout <= 0 {
		return errors.New("auth.login_timeout must be positive (seconds)")
	}
	if !c.DelegatedLoginEnabled() {
		return nil
	}
	if c.Auth.ClientID == "" {
		return errors.New("auth.client_id must be set when auth.delegated_domains is not empty (or set REELUP_CLIENT_ID)")
	}
	if err := validateHTTPURL("auth.authorize_url", c.Auth.AuthorizeURL); err != nil {
		return err
	}
	return validateHTTPURL("auth.token_url", c.Auth.TokenURL)
}

func (c *Config) validateUpload() error {
	if c.Upload.ChunkSizeBytes < minChunkSizeBytes || c.Upload.ChunkSizeBytes > maxChunkSizeBytes {
		return fmt.Errorf("upload.chunk_size_bytes must be between %d and %d", int64(minChunkSizeBytes), int64(maxChunkSizeBytes))
	}
	if c.Upload.MaxPartRetries < 1 {
		return errors.New("upload.max_part_retries must be >= 1")
	}
	if c.Upload.RetryBaseDelayMS < 0 || c.Upload.RetryMaxDelayMS < 0 {
		return errors.New("upload retry delays must be >= 0")
	}
	if c.Upload.RetryMaxDelayMS < c.Upload.RetryBaseDelayMS {
		return errors.New("upload.retry_max_delay_ms must be >= upload.retry_base_delay_ms")
	}
	if c.Upload.PartConcurrency < 1 {
		return errors.New("upload.part_concurrency must be >= 1")
	}
	return nil
}

func (c *Config) validateTask() error {
	if c.Task.UploadPhaseWeight < 0 || c.Task.UploadPhaseWeight > 1 {
		return errors.New("task.upload_phase_weight must be between 0 and 1")
	}
	if c.Task.TranscodePhaseWeight < 0 || c.Task.TranscodePhaseWeight > 1 {
		return errors.New("task.transcode_phase_weight must be between 0 and 1")
	}
	if c.Task.PollIntervalMS <= 0 {
		return errors.New("task.poll_interval_ms must be positive")
	}
	return nil
}

func validateHTTPURL(key, value string) error {
	if value == "" {
		return fmt.Errorf("%s must be set", key)
	}
	parsed, err := url.Parse(value)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%s must use http or https", key)
	}
	if parsed.Host == "" {
		return fmt.Errorf("%s must include a host", key)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if values[key] <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
