package resample

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/tickworks/candlekeeper/internal/model"
	"github.com/tickworks/candlekeeper/internal/store"
)

// Resampler materializes bars for (symbol, timeframe) keys. Safe for
// concurrent use; passes for the same key are collapsed into a single
// execution.
type Resampler struct {
	store  store.Store
	logger *slog.Logger

	// Single-flight per key: two concurrent passes for one key could
	// both read the same high-water mark and both append the same
	// bucket.
	group singleflight.Group

	// Wall clock, swapped out in tests.
	now func() time.Time
}

// New creates a Resampler.
func New(st store.Store, logger *slog.Logger) *Resampler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resampler{
		store:  st,
		logger: logger,
		now:    time.Now,
	}
}

// Resample materializes any new complete buckets for one key and
// returns the number of bars appended. Concurrent calls for the same
// key share one execution and its result.
func (r *Resampler) Resample(ctx context.Context, symbol string, tf model.Timeframe) (int, error) {
	v, err, _ := r.group.Do(tf.Key(symbol), func() (any, error) {
		return r.resample(ctx, symbol, tf)
	})
	if err != nil {
		return 0, err
	}
	return v.(int), nil
}

func (r *Resampler) resample(ctx context.Context, symbol string, tf model.Timeframe) (int, error) {
	mark, hasMark, err := r.store.MaxBarTime(ctx, symbol, tf)
	if err != nil {
		return 0, fmt.Errorf("read high-water mark: %w", err)
	}

	after := time.Time{}
	if hasMark {
		after = mark
	}

	ticks, err := r.store.TicksAfter(ctx, symbol, after)
	if err != nil {
		return 0, fmt.Errorf("read ticks: %w", err)
	}
	if len(ticks) == 0 {
		return 0, nil
	}

	bars := Aggregate(ticks, symbol, tf)

	// Keep only buckets strictly above the mark (the mark's own bucket
	// is already written and never revised) that have closed by now.
	cutoff := r.now().UTC()
	out := bars[:0]
	for _, b := range bars {
		if hasMark && !b.BucketStart.After(mark) {
			continue
		}
		if b.BucketStart.Add(tf.Width).After(cutoff) {
			continue
		}
		out = append(out, b)
	}
	if len(out) == 0 {
		return 0, nil
	}

	if err := r.store.InsertBars(ctx, out); err != nil {
		return 0, fmt.Errorf("append bars: %w", err)
	}

	r.logger.Debug("materialized bars",
		"symbol", symbol,
		"timeframe", tf.Label,
		"count", len(out),
		"first_bucket", out[0].BucketStart,
		"last_bucket", out[len(out)-1].BucketStart,
	)
	return len(out), nil
}

// Aggregate groups ticks into fixed-width buckets and computes one bar
// per non-empty bucket, ordered by bucket start ascending. Within a
// bucket, open is the price of the earliest tick and close the price of
// the latest; ties on timestamp resolve to input order.
func Aggregate(ticks []model.Tick, symbol string, tf model.Timeframe) []model.Bar {
	buckets := make(map[time.Time]*model.Bar)
	earliest := make(map[time.Time]time.Time)
	latest := make(map[time.Time]time.Time)

	for _, t := range ticks {
		start := tf.Bucket(t.TS)

		b, ok := buckets[start]
		if !ok {
			buckets[start] = &model.Bar{
				BucketStart: start,
				Symbol:      symbol,
				Timeframe:   tf.Label,
				Open:        t.Price,
				High:        t.Price,
				Low:         t.Price,
				Close:       t.Price,
				Volume:      t.Size,
			}
			earliest[start] = t.TS
			latest[start] = t.TS
			continue
		}

		if t.TS.Before(earliest[start]) {
			b.Open = t.Price
			earliest[start] = t.TS
		}
		if !t.TS.Before(latest[start]) {
			b.Close = t.Price
			latest[start] = t.TS
		}
		if t.Price > b.High {
			b.High = t.Price
		}
		if t.Price < b.Low {
			b.Low = t.Price
		}
		b.Volume += t.Size
	}

	bars := make([]model.Bar, 0, len(buckets))
	for _, b := range buckets {
		bars = append(bars, *b)
	}
	sort.Slice(bars, func(i, j int) bool {
		return bars[i].BucketStart.Before(bars[j].BucketStart)
	})
	return bars
}
