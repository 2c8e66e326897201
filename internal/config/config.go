package config

import "time"

// Config is the root configuration for an ingest daemon instance.
type Config struct {
	Instance InstanceConfig `yaml:"instance"`
	Feed     FeedConfig     `yaml:"feed"`
	Ingest   IngestConfig   `yaml:"ingest"`
	Resample ResampleConfig `yaml:"resample"`
	Storage  StorageConfig  `yaml:"storage"`
	Health   HealthConfig   `yaml:"health"`
}

// InstanceConfig identifies this daemon.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// FeedConfig holds trade-stream connection settings.
type FeedConfig struct {
	URL                string        `yaml:"url"`     // Stream base URL (e.g. wss://fstream.binance.com/ws)
	Symbols            []string      `yaml:"symbols"` // Instruments to subscribe (lower-cased)
	ReconnectBaseDelay time.Duration `yaml:"reconnect_base_delay"`
	ReconnectMaxDelay  time.Duration `yaml:"reconnect_max_delay"`
	PingTimeout        time.Duration `yaml:"ping_timeout"`
	WriteTimeout       time.Duration `yaml:"write_timeout"`
}

// IngestConfig holds tick buffering and flush settings.
type IngestConfig struct {
	FlushInterval time.Duration `yaml:"flush_interval"`
	MaxBuffer     int           `yaml:"max_buffer"` // 0 = unbounded; otherwise drop-oldest past this size
}

// ResampleConfig holds bar materialization settings.
type ResampleConfig struct {
	Interval   time.Duration `yaml:"interval"`
	Timeframes []string      `yaml:"timeframes"` // Timeframe labels (e.g. "1s", "1m", "5m")
}

// StorageConfig selects and configures the tick/bar store backend.
type StorageConfig struct {
	Backend  string         `yaml:"backend"` // "sqlite" or "postgres"
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// SQLiteConfig holds the embedded store location.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// PostgresConfig holds a server-backed store connection.
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// HealthConfig holds the health endpoint settings.
type HealthConfig struct {
	Port int `yaml:"port"`
}
