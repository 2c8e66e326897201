package store

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tickworks/candlekeeper/internal/config"
	"github.com/tickworks/candlekeeper/internal/model"
)

// postgresStore persists ticks and bars in a PostgreSQL database.
type postgresStore struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to the configured database and runs migrations.
func OpenPostgres(ctx context.Context, cfg config.PostgresConfig) (Store, error) {
	poolCfg, err := pgxpool.ParseConfig(BuildConnString(cfg))
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}

	poolCfg.MinConns = int32(cfg.MinConns)
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &postgresStore{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

// BuildConnString builds a PostgreSQL connection string from config.
func BuildConnString(cfg config.PostgresConfig) string {
	// URL-encode password to handle special characters
	escapedPassword := url.QueryEscape(cfg.Password)

	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "prefer"
	}

	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.User,
		escapedPassword,
		cfg.Host,
		cfg.Port,
		cfg.Name,
		sslMode,
	)
}

func (s *postgresStore) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ticks (
			ts     BIGINT           NOT NULL,
			symbol TEXT             NOT NULL,
			price  DOUBLE PRECISION NOT NULL,
			size   DOUBLE PRECISION NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ticks_symbol_ts ON ticks(symbol, ts)`,

		`CREATE TABLE IF NOT EXISTS ohlc (
			ts        BIGINT           NOT NULL,
			symbol    TEXT             NOT NULL,
			timeframe TEXT             NOT NULL,
			open      DOUBLE PRECISION NOT NULL,
			high      DOUBLE PRECISION NOT NULL,
			low       DOUBLE PRECISION NOT NULL,
			close     DOUBLE PRECISION NOT NULL,
			volume    DOUBLE PRECISION NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ohlc_key_ts ON ohlc(symbol, timeframe, ts)`,
	}

	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("exec migration: %w", err)
		}
	}
	return nil
}

func (s *postgresStore) InsertTicks(ctx context.Context, ticks []model.Tick) error {
	if len(ticks) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, t := range ticks {
		batch.Queue(
			`INSERT INTO ticks (ts, symbol, price, size) VALUES ($1, $2, $3, $4)`,
			t.TS.UnixMicro(), t.Symbol, t.Price, t.Size,
		)
	}

	return s.sendBatch(ctx, batch, "insert ticks")
}

func (s *postgresStore) InsertBars(ctx context.Context, bars []model.Bar) error {
	if len(bars) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, b := range bars {
		batch.Queue(
			`INSERT INTO ohlc (ts, symbol, timeframe, open, high, low, close, volume)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			b.BucketStart.UnixMicro(), b.Symbol, b.Timeframe,
			b.Open, b.High, b.Low, b.Close, b.Volume,
		)
	}

	return s.sendBatch(ctx, batch, "insert bars")
}

func (s *postgresStore) sendBatch(ctx context.Context, batch *pgx.Batch, op string) error {
	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	return nil
}

func (s *postgresStore) RecentTicks(ctx context.Context, symbol string, limit int) ([]model.Tick, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.pool.Query(ctx,
		`SELECT ts, symbol, price, size FROM ticks WHERE symbol = $1 ORDER BY ts DESC LIMIT $2`,
		symbol, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query recent ticks: %w", err)
	}
	defer rows.Close()

	return scanPgxTicks(rows)
}

func (s *postgresStore) TicksAfter(ctx context.Context, symbol string, after time.Time) ([]model.Tick, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT ts, symbol, price, size FROM ticks WHERE symbol = $1 AND ts > $2 ORDER BY ts ASC`,
		symbol, after.UnixMicro(),
	)
	if err != nil {
		return nil, fmt.Errorf("query ticks after: %w", err)
	}
	defer rows.Close()

	return scanPgxTicks(rows)
}

func (s *postgresStore) Bars(ctx context.Context, symbol string, tf model.Timeframe, from, to time.Time) ([]model.Bar, error) {
	query := `SELECT ts, symbol, timeframe, open, high, low, close, volume
		FROM ohlc WHERE symbol = $1 AND timeframe = $2`
	args := []any{symbol, tf.Label}

	if !from.IsZero() {
		args = append(args, from.UnixMicro())
		query += fmt.Sprintf(` AND ts >= $%d`, len(args))
	}
	if !to.IsZero() {
		args = append(args, to.UnixMicro())
		query += fmt.Sprintf(` AND ts <= $%d`, len(args))
	}
	query += ` ORDER BY ts ASC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query bars: %w", err)
	}
	defer rows.Close()

	var bars []model.Bar
	for rows.Next() {
		var b model.Bar
		var ts int64
		if err := rows.Scan(&ts, &b.Symbol, &b.Timeframe, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("scan bar: %w", err)
		}
		b.BucketStart = time.UnixMicro(ts).UTC()
		bars = append(bars, b)
	}
	return bars, rows.Err()
}

func (s *postgresStore) MaxBarTime(ctx context.Context, symbol string, tf model.Timeframe) (time.Time, bool, error) {
	var ts *int64
	err := s.pool.QueryRow(ctx,
		`SELECT MAX(ts) FROM ohlc WHERE symbol = $1 AND timeframe = $2`,
		symbol, tf.Label,
	).Scan(&ts)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("query max bar time: %w", err)
	}
	if ts == nil {
		return time.Time{}, false, nil
	}
	return time.UnixMicro(*ts).UTC(), true, nil
}

func (s *postgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *postgresStore) Close() error {
	s.pool.Close()
	return nil
}

func scanPgxTicks(rows pgx.Rows) ([]model.Tick, error) {
	var ticks []model.Tick
	for rows.Next() {
		var t model.Tick
		var ts int64
		if err := rows.Scan(&ts, &t.Symbol, &t.Price, &t.Size); err != nil {
			return nil, fmt.Errorf("scan tick: %w", err)
		}
		t.TS = time.UnixMicro(ts).UTC()
		ticks = append(ticks, t)
	}
	return ticks, rows.Err()
}
