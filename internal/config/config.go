// Package config defines process configuration shared by the snackboard
// server and the snack client, and the loader that layers it.
//
// Conventions:
// - Defaults live in New; Load layers file and environment values on top.
// - Durations are configured as integer milliseconds and exposed as helpers.
// - Errors are wrapped with this package's sentinel kinds.
package config

import (
	"os"
	"path/filepath"
	"time"
)

// Config contains process configuration. Extend as needed.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// DataFile is the JSON document backing the aggregate store.
	DataFile string `koanf:"data_file"`

	// SerializeWrites guards read-modify-write upserts with a process-local lock.
	SerializeWrites bool `koanf:"serialize_writes"`

	// RankingLocale is the BCP 47 tag used to collate names on count ties.
	RankingLocale string `koanf:"ranking_locale"`

	// ServerURL is the base URL the client syncs against.
	ServerURL string `koanf:"server_url"`

	// StateDir holds the client identity file and counter database.
	StateDir string `koanf:"state_dir"`

	// RankingLimit is the number of leaderboard rows the client pulls.
	RankingLimit int `koanf:"ranking_limit"`

	// PollIntervalMS is the client's ranking refresh period; 0 disables polling.
	PollIntervalMS int `koanf:"poll_interval_ms"`

	// RequestTimeoutMS bounds each client HTTP request.
	RequestTimeoutMS int `koanf:"request_timeout_ms"`

	// MaxCount stops increments once the counter is above it; 0 disables the cap.
	MaxCount int `koanf:"max_count"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:         "info",
		Addr:             ":9080",
		DataFile:         filepath.Join("data", "snacks.json"),
		SerializeWrites:  false,
		RankingLocale:    "und",
		ServerURL:        "http://localhost:9080",
		StateDir:         defaultStateDir(),
		RankingLimit:     10,
		PollIntervalMS:   5000,
		RequestTimeoutMS: 10_000,
		MaxCount:         50,
	}
}

// PollInterval returns the configured ranking refresh period.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMS) * time.Millisecond
}

// RequestTimeout returns the configured client request timeout.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutMS) * time.Millisecond
}

func defaultStateDir() string {
	dir, err := os.UserConfigDir()
	if err != nil || dir == "" {
		return ".snackboard"
	}
	return filepath.Join(dir, "snackboard")
}
