package store

import (
	"context"
	"fmt"
	"time"

	"github.com/tickworks/candlekeeper/internal/config"
	"github.com/tickworks/candlekeeper/internal/model"
)

// Store is the persistence and query surface for ticks and bars.
type Store interface {
	// InsertTicks appends a batch of ticks. An empty batch is a no-op.
	InsertTicks(ctx context.Context, ticks []model.Tick) error

	// InsertBars appends a batch of bars. An empty batch is a no-op.
	InsertBars(ctx context.Context, bars []model.Bar) error

	// RecentTicks returns the most recent limit ticks for a symbol,
	// ordered most-recent-first.
	RecentTicks(ctx context.Context, symbol string, limit int) ([]model.Tick, error)

	// TicksAfter returns ticks for a symbol with timestamp strictly
	// after the given instant, ordered by timestamp ascending. A zero
	// time returns all ticks for the symbol.
	TicksAfter(ctx context.Context, symbol string, after time.Time) ([]model.Tick, error)

	// Bars returns bars for a symbol and timeframe with bucket start in
	// [from, to], ordered by bucket start ascending. Zero bounds are
	// open-ended.
	Bars(ctx context.Context, symbol string, tf model.Timeframe, from, to time.Time) ([]model.Bar, error)

	// MaxBarTime returns the high-water mark for a (symbol, timeframe)
	// key: the maximum bucket start already materialized. The second
	// return is false when no bars exist yet for the key.
	MaxBarTime(ctx context.Context, symbol string, tf model.Timeframe) (time.Time, bool, error)

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases the backend.
	Close() error
}

// Open creates the store backend selected by the configuration and
// creates both tables if absent.
func Open(ctx context.Context, cfg config.StorageConfig) (Store, error) {
	switch cfg.Backend {
	case "sqlite":
		return OpenSQLite(ctx, cfg.SQLite.Path)
	case "postgres":
		return OpenPostgres(ctx, cfg.Postgres)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
