// Package config binds command-line flags, environment variables, and
// defaults (via viper) into the settings the API server needs to start:
// where its SQLite database lives, what address it listens on, and the
// signing key and timing knobs the server protocol and session cookies use.
package config

import "github.com/spf13/viper"

// Version is set at build time via -ldflags.
var Version = "dev"

// Config holds all runtime configuration for the API server.
type Config struct {
	ListenAddr string
	DBPath     string

	SigningKey string

	SessionMaxAgeHours int

	HeartbeatSeconds       int
	StaleCheckIntervalMins int
	StaleThresholdMins     int

	Verbose bool
}

// Load reads configuration from viper, which merges flag values, env vars,
// and defaults set up by the cobra command in cmd/cs2kz-api.
func Load() Config {
	return Config{
		ListenAddr:             viper.GetString("listen_addr"),
		DBPath:                 viper.GetString("db_path"),
		SigningKey:             viper.GetString("signing_key"),
		SessionMaxAgeHours:     viper.GetInt("session_max_age_hours"),
		HeartbeatSeconds:       viper.GetInt("heartbeat_seconds"),
		StaleCheckIntervalMins: viper.GetInt("stale_check_interval_minutes"),
		StaleThresholdMins:     viper.GetInt("stale_threshold_minutes"),
		Verbose:                viper.GetBool("verbose"),
	}
}
