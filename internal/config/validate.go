package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tickworks/candlekeeper/internal/model"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if len(c.Feed.Symbols) == 0 {
		return errors.New("feed.symbols is required")
	}
	for i, sym := range c.Feed.Symbols {
		if sym == "" {
			return fmt.Errorf("feed.symbols[%d] is empty", i)
		}
		if sym != strings.ToLower(sym) {
			return fmt.Errorf("feed.symbols[%d] %q must be lower-case", i, sym)
		}
	}

	if c.Feed.ReconnectBaseDelay > c.Feed.ReconnectMaxDelay {
		return fmt.Errorf("feed.reconnect_base_delay (%v) cannot exceed reconnect_max_delay (%v)",
			c.Feed.ReconnectBaseDelay, c.Feed.ReconnectMaxDelay)
	}

	if c.Ingest.FlushInterval <= 0 {
		return errors.New("ingest.flush_interval must be > 0")
	}
	if c.Ingest.MaxBuffer < 0 {
		return errors.New("ingest.max_buffer must be >= 0")
	}

	if c.Resample.Interval <= 0 {
		return errors.New("resample.interval must be > 0")
	}
	for _, label := range c.Resample.Timeframes {
		if _, err := model.ParseTimeframe(label); err != nil {
			return fmt.Errorf("resample.timeframes: %w", err)
		}
	}

	switch c.Storage.Backend {
	case "sqlite":
		if c.Storage.SQLite.Path == "" {
			return errors.New("storage.sqlite.path is required")
		}
	case "postgres":
		if err := c.Storage.Postgres.validate("storage.postgres"); err != nil {
			return err
		}
	default:
		return fmt.Errorf("storage.backend must be \"sqlite\" or \"postgres\", got %q", c.Storage.Backend)
	}

	if c.Health.Port < 1 || c.Health.Port > 65535 {
		return fmt.Errorf("health.port must be between 1 and 65535, got %d", c.Health.Port)
	}

	return nil
}

// Timeframes resolves the configured timeframe labels.
func (c *Config) Timeframes() ([]model.Timeframe, error) {
	tfs := make([]model.Timeframe, 0, len(c.Resample.Timeframes))
	for _, label := range c.Resample.Timeframes {
		tf, err := model.ParseTimeframe(label)
		if err != nil {
			return nil, err
		}
		tfs = append(tfs, tf)
	}
	return tfs, nil
}

func (db *PostgresConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
