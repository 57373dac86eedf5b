package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultBaseURL      = "https://api.planet.com"
	DefaultAPITimeout   = 30 * time.Second
	DefaultMaxRetries   = 3
	DefaultRetryBackoff = 1 * time.Second
	DefaultPollInterval = 10 * time.Second
	DefaultDBPort       = 5432
	DefaultDBSSLMode    = "prefer"
	DefaultMaxConns     = 4
	DefaultProgressPath = "/ws"
	DefaultDownloadDir  = "downloads"
	DefaultEventsQueue  = "basemap-order-events"
	DefaultLogLevel     = "info"
)

func (c *Config) applyDefaults() {
	// API defaults
	if c.API.BaseURL == "" {
		c.API.BaseURL = DefaultBaseURL
	}
	if c.API.Timeout == 0 {
		c.API.Timeout = DefaultAPITimeout
	}
	if c.API.MaxRetries == nil {
		retries := DefaultMaxRetries
		c.API.MaxRetries = &retries
	}
	if c.API.RetryBackoff == 0 {
		c.API.RetryBackoff = DefaultRetryBackoff
	}

	// Poller defaults
	if c.Poller.Interval == 0 {
		c.Poller.Interval = DefaultPollInterval
	}

	// Ledger defaults apply only when a database is configured
	if c.Database.Enabled() {
		if c.Database.Port == 0 {
			c.Database.Port = DefaultDBPort
		}
		if c.Database.SSLMode == "" {
			c.Database.SSLMode = DefaultDBSSLMode
		}
		if c.Database.MaxConns == 0 {
			c.Database.MaxConns = DefaultMaxConns
		}
	}

	if c.Progress.Path == "" {
		c.Progress.Path = DefaultProgressPath
	}
	if c.Mirror.DownloadDir == "" {
		c.Mirror.DownloadDir = DefaultDownloadDir
	}
	if c.Events.Queue == "" {
		c.Events.Queue = DefaultEventsQueue
	}
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
}
