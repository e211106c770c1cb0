package config

// Default values for configuration.
const (
	// Server defaults
	DefaultServerHost             = "0.0.0.0"
	DefaultServerPort             = 8080
	DefaultShutdownTimeoutSeconds = 15

	// Session defaults
	DefaultSessionFile    = "tg.session"
	DefaultBotSessionFile = "bot.session"

	// Mention pipeline defaults
	DefaultRosterDir    = "csv"
	DefaultFetchDelayMS = 25

	// Logging defaults
	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)
