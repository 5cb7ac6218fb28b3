package config

const (
	defaultConfigPath            = "~/.config/ispeak/config.toml"
	defaultStateDir              = "~/.local/share/ispeak"
	defaultLogDir                = "~/.local/share/ispeak/logs"
	defaultAPIBaseURL            = "http://127.0.0.1:8000"
	defaultHealthTimeoutSeconds  = 5
	defaultUploadTimeoutSeconds  = 300
	defaultResultsTimeoutSeconds = 30
	defaultNotifyTimeoutSeconds  = 10
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir: defaultStateDir,
			LogDir:   defaultLogDir,
		},
		API: API{
			BaseURL:               defaultAPIBaseURL,
			HealthTimeoutSeconds:  defaultHealthTimeoutSeconds,
			UploadTimeoutSeconds:  defaultUploadTimeoutSeconds,
			ResultsTimeoutSeconds: defaultResultsTimeoutSeconds,
		},
		Notifications: Notifications{
			RequestTimeoutSeconds: defaultNotifyTimeoutSeconds,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
