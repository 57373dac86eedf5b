package config

import (
	"log/slog"
	"strings"
	"time"
)

// Config is the root configuration for orderctl.
type Config struct {
	API      APIConfig      `yaml:"api"`
	Poller   PollerConfig   `yaml:"poller"`
	Database DBConfig       `yaml:"database"`
	Progress ProgressConfig `yaml:"progress"`
	Mirror   MirrorConfig   `yaml:"mirror"`
	Events   EventsConfig   `yaml:"events"`
	Log      LogConfig      `yaml:"log"`
}

// APIConfig holds REST API settings.
type APIConfig struct {
	BaseURL      string        `yaml:"base_url"`
	APIKey       string        `yaml:"api_key"` // falls back to PL_API_KEY
	Timeout      time.Duration `yaml:"timeout"`
	MaxRetries   *int          `yaml:"max_retries"` // nil = default; 0 disables retries
	RetryBackoff time.Duration `yaml:"retry_backoff"`
}

// Retries returns the configured retry count, or the default when unset.
func (a APIConfig) Retries() int {
	if a.MaxRetries == nil {
		return DefaultMaxRetries
	}
	return *a.MaxRetries
}

// PollerConfig holds order completion polling settings.
type PollerConfig struct {
	Interval    time.Duration `yaml:"interval"`
	MaxAttempts int           `yaml:"max_attempts"` // 0 = until terminal
}

// DBConfig holds the Postgres order ledger connection. Empty host disables the ledger.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
}

// Enabled reports whether a ledger database is configured.
func (db DBConfig) Enabled() bool { return db.Host != "" }

// ProgressConfig holds the live progress WebSocket server. Empty addr disables it.
type ProgressConfig struct {
	Addr string `yaml:"addr"` // e.g. ":8090"
	Path string `yaml:"path"`
}

// MirrorConfig controls local download and S3 mirroring of delivered artifacts.
type MirrorConfig struct {
	DownloadDir string `yaml:"download_dir"`
	Bucket      string `yaml:"bucket"` // empty = no S3 mirror
	Prefix      string `yaml:"prefix"`
	Region      string `yaml:"region"`
}

// EventsConfig holds the AMQP outcome event publisher. Empty url disables it.
type EventsConfig struct {
	URL   string `yaml:"url"`
	Queue string `yaml:"queue"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// SlogLevel maps Level onto slog, defaulting to info.
func (l LogConfig) SlogLevel() slog.Level {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
