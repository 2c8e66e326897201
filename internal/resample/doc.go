// Package resample incrementally materializes OHLC bars from stored ticks.
//
// Each pass for a (symbol, timeframe) key reads the key's high-water
// mark (the latest materialized bucket start), aggregates only ticks
// strictly newer than the mark, and appends bars for buckets that are
// both above the mark and complete by wall clock. The bucket containing
// the current moment is recomputed on every pass but not written until
// it closes, which keeps the at-most-one-bar-per-bucket invariant
// without ever revising a written bar.
//
// Ticks at or below the mark are permanently excluded from aggregation.
// That makes a bucket read-only the moment its bar lands, so delayed
// arrivals for old buckets are dropped rather than corrected.
package resample
