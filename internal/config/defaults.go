package config

import (
	"time"

	"github.com/google/uuid"
)

// Default values for optional configuration fields.
const (
	DefaultFeedURL            = "wss://fstream.binance.com/ws"
	DefaultReconnectBaseDelay = 1 * time.Second
	DefaultReconnectMaxDelay  = 60 * time.Second
	DefaultPingTimeout        = 60 * time.Second
	DefaultWriteTimeout       = 5 * time.Second
	DefaultFlushInterval      = 1 * time.Second
	DefaultResampleInterval   = 5 * time.Second
	DefaultStorageBackend     = "sqlite"
	DefaultSQLitePath         = "data/market.db"
	DefaultDBPort             = 5432
	DefaultDBSSLMode          = "prefer"
	DefaultMaxConns           = 10
	DefaultMinConns           = 2
	DefaultHealthPort         = 8080
)

// DefaultTimeframes is the timeframe label set used when none are configured.
var DefaultTimeframes = []string{"1s", "1m", "5m"}

func (c *Config) applyDefaults() {
	if c.Instance.ID == "" {
		c.Instance.ID = "ingestd-" + uuid.NewString()[:8]
	}

	// Feed defaults
	if c.Feed.URL == "" {
		c.Feed.URL = DefaultFeedURL
	}
	if c.Feed.ReconnectBaseDelay == 0 {
		c.Feed.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}
	if c.Feed.ReconnectMaxDelay == 0 {
		c.Feed.ReconnectMaxDelay = DefaultReconnectMaxDelay
	}
	if c.Feed.PingTimeout == 0 {
		c.Feed.PingTimeout = DefaultPingTimeout
	}
	if c.Feed.WriteTimeout == 0 {
		c.Feed.WriteTimeout = DefaultWriteTimeout
	}

	// Ingest defaults
	if c.Ingest.FlushInterval == 0 {
		c.Ingest.FlushInterval = DefaultFlushInterval
	}

	// Resample defaults
	if c.Resample.Interval == 0 {
		c.Resample.Interval = DefaultResampleInterval
	}
	if len(c.Resample.Timeframes) == 0 {
		c.Resample.Timeframes = append([]string(nil), DefaultTimeframes...)
	}

	// Storage defaults
	if c.Storage.Backend == "" {
		c.Storage.Backend = DefaultStorageBackend
	}
	if c.Storage.SQLite.Path == "" {
		c.Storage.SQLite.Path = DefaultSQLitePath
	}
	applyPostgresDefaults(&c.Storage.Postgres)

	// Health defaults
	if c.Health.Port == 0 {
		c.Health.Port = DefaultHealthPort
	}
}

func applyPostgresDefaults(db *PostgresConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
