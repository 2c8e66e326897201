package model

import (
	"fmt"
	"time"
)

// Tick is a single normalized trade event. Ticks are immutable once
// persisted; there is no update or delete path.
type Tick struct {
	TS     time.Time // Event time (UTC)
	Symbol string    // Instrument symbol, lower-cased
	Price  float64   // Trade price, positive
	Size   float64   // Trade quantity, non-negative
}

// Bar is an OHLC aggregate over one fixed-width time bucket.
// At most one bar exists per (symbol, timeframe, bucket start); bars are
// append-only and never revised after being written.
type Bar struct {
	BucketStart time.Time // Left-closed, right-open interval start (UTC)
	Symbol      string
	Timeframe   string // Timeframe label (e.g. "1m")
	Open        float64
	High        float64
	Low         float64
	Close       float64
	Volume      float64
}

// Timeframe is a configured bucket width for aggregation.
type Timeframe struct {
	Label string        // e.g. "1s", "1m", "5m"
	Width time.Duration // Bucket width
}

// Well-known timeframes.
var (
	Timeframe1s = Timeframe{Label: "1s", Width: time.Second}
	Timeframe1m = Timeframe{Label: "1m", Width: time.Minute}
	Timeframe5m = Timeframe{Label: "5m", Width: 5 * time.Minute}
)

// DefaultTimeframes is the timeframe set used when none are configured.
var DefaultTimeframes = []Timeframe{Timeframe1s, Timeframe1m, Timeframe5m}

var timeframeRegistry = map[string]Timeframe{
	Timeframe1s.Label: Timeframe1s,
	Timeframe1m.Label: Timeframe1m,
	Timeframe5m.Label: Timeframe5m,
}

// ParseTimeframe resolves a timeframe label. Labels outside the well-known
// set are accepted if they parse as a positive Go duration (e.g. "30s").
func ParseTimeframe(label string) (Timeframe, error) {
	if tf, ok := timeframeRegistry[label]; ok {
		return tf, nil
	}

	width, err := time.ParseDuration(label)
	if err != nil || width <= 0 {
		return Timeframe{}, fmt.Errorf("unsupported timeframe %q", label)
	}
	return Timeframe{Label: label, Width: width}, nil
}

// Bucket returns the start of the bucket containing ts, aligned to the
// timeframe width. The bucket interval is [start, start+Width).
func (tf Timeframe) Bucket(ts time.Time) time.Time {
	return ts.UTC().Truncate(tf.Width)
}

// Key returns the composite resampling key for a symbol and this timeframe.
func (tf Timeframe) Key(symbol string) string {
	return symbol + "|" + tf.Label
}
