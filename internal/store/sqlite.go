package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/tickworks/candlekeeper/internal/model"
)

// sqliteStore persists ticks and bars in an embedded SQLite database.
type sqliteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path and runs migrations.
func OpenSQLite(ctx context.Context, path string) (Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL mode so readers are not blocked by the flush and resample writers.
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	s := &sqliteStore{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ticks (
			ts     INTEGER NOT NULL,
			symbol TEXT    NOT NULL,
			price  REAL    NOT NULL,
			size   REAL    NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ticks_symbol_ts ON ticks(symbol, ts)`,

		`CREATE TABLE IF NOT EXISTS ohlc (
			ts        INTEGER NOT NULL,
			symbol    TEXT    NOT NULL,
			timeframe TEXT    NOT NULL,
			open      REAL    NOT NULL,
			high      REAL    NOT NULL,
			low       REAL    NOT NULL,
			close     REAL    NOT NULL,
			volume    REAL    NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ohlc_key_ts ON ohlc(symbol, timeframe, ts)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec migration: %w", err)
		}
	}
	return nil
}

func (s *sqliteStore) InsertTicks(ctx context.Context, ticks []model.Tick) error {
	if len(ticks) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tick insert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO ticks (ts, symbol, price, size) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare tick insert: %w", err)
	}
	defer stmt.Close()

	for _, t := range ticks {
		if _, err := stmt.ExecContext(ctx, t.TS.UnixMicro(), t.Symbol, t.Price, t.Size); err != nil {
			return fmt.Errorf("insert tick: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tick insert: %w", err)
	}
	return nil
}

func (s *sqliteStore) InsertBars(ctx context.Context, bars []model.Bar) error {
	if len(bars) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin bar insert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO ohlc (ts, symbol, timeframe, open, high, low, close, volume) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare bar insert: %w", err)
	}
	defer stmt.Close()

	for _, b := range bars {
		if _, err := stmt.ExecContext(ctx,
			b.BucketStart.UnixMicro(), b.Symbol, b.Timeframe,
			b.Open, b.High, b.Low, b.Close, b.Volume,
		); err != nil {
			return fmt.Errorf("insert bar: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit bar insert: %w", err)
	}
	return nil
}

func (s *sqliteStore) RecentTicks(ctx context.Context, symbol string, limit int) ([]model.Tick, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT ts, symbol, price, size FROM ticks WHERE symbol = ? ORDER BY ts DESC LIMIT ?`,
		symbol, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query recent ticks: %w", err)
	}
	defer rows.Close()

	return scanTicks(rows)
}

func (s *sqliteStore) TicksAfter(ctx context.Context, symbol string, after time.Time) ([]model.Tick, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ts, symbol, price, size FROM ticks WHERE symbol = ? AND ts > ? ORDER BY ts ASC`,
		symbol, after.UnixMicro(),
	)
	if err != nil {
		return nil, fmt.Errorf("query ticks after: %w", err)
	}
	defer rows.Close()

	return scanTicks(rows)
}

func (s *sqliteStore) Bars(ctx context.Context, symbol string, tf model.Timeframe, from, to time.Time) ([]model.Bar, error) {
	query := `SELECT ts, symbol, timeframe, open, high, low, close, volume
		FROM ohlc WHERE symbol = ? AND timeframe = ?`
	args := []any{symbol, tf.Label}

	if !from.IsZero() {
		query += ` AND ts >= ?`
		args = append(args, from.UnixMicro())
	}
	if !to.IsZero() {
		query += ` AND ts <= ?`
		args = append(args, to.UnixMicro())
	}
	query += ` ORDER BY ts ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
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

func (s *sqliteStore) MaxBarTime(ctx context.Context, symbol string, tf model.Timeframe) (time.Time, bool, error) {
	var ts sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(ts) FROM ohlc WHERE symbol = ? AND timeframe = ?`,
		symbol, tf.Label,
	).Scan(&ts)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("query max bar time: %w", err)
	}
	if !ts.Valid {
		return time.Time{}, false, nil
	}
	return time.UnixMicro(ts.Int64).UTC(), true, nil
}

func (s *sqliteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *sqliteStore) Close() error {
	return s.db.Close()
}

func scanTicks(rows *sql.Rows) ([]model.Tick, error) {
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
