package config

const (
	defaultConfigPath           = "~/.config/reelup/config.toml"
	defaultStateDir             = "~/.local/share/reelup"
	defaultLogDir               = "~/.local/share/reelup/logs"
	defaultStagingDir           = "~/.local/share/reelup/staging"
	defaultBaseURL              = "https://api.example.com/v1"
	defaultRequestTimeout       = 60
	defaultUserAgent            = "reelup/dev"
	defaultCallbackBind         = "127.0.0.1:53682"
	defaultLoginTimeout         = 180
	defaultChunkSizeBytes       = 50 * 1024 * 1024
	defaultMaxPartRetries       = 3
	defaultRetryBaseDelayMS     = 500
	defaultRetryMaxDelayMS      = 10_000
	defaultPartConcurrency      = 4
	defaultTranscodePhaseWeight = 0.5
	defaultPollIntervalMS       = 250
	defaultNotifyRequestTimeout = 10
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"

	// Part size bounds accepted by common object stores behind pre-signed URLs.
	minChunkSizeBytes = 5 * 1024 * 1024
	maxChunkSizeBytes = 5 * 1024 * 1024 * 1024
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir:   defaultStateDir,
			LogDir:     defaultLogDir,
			StagingDir: defaultStagingDir,
		},
		Service: Service{
			BaseURL:        defaultBaseURL,
			RequestTimeout: defaultRequestTimeout,
			UserAgent:      defaultUserAgent,
		},
		Auth: Auth{
			CallbackBind: defaultCallbackBind,
			LoginTimeout: defaultLoginTimeout,
		},
		Upload: Upload{
			ChunkSizeBytes:   defaultChunkSizeBytes,
			MaxPartRetries:   defaultMaxPartRetries,
			RetryBaseDelayMS: defaultRetryBaseDelayMS,
			RetryMaxDelayMS:  defaultRetryMaxDelayMS,
			PartConcurrency:  defaultPartConcurrency,
			SkipExisting:     true,
		},
		Task: Task{
			UploadPhaseWeight:    0,
			TranscodePhaseWeight: defaultTranscodePhaseWeight,
			PollIntervalMS:       defaultPollIntervalMS,
		},
		Transcode: Transcode{
			Enabled: true,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
