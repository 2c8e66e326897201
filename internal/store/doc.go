// Package store provides durable persistence for ticks and OHLC bars.
//
// Two backends implement the same Store interface:
//   - sqlite: embedded database addressed by a file path (WAL mode so
//     analytics readers run concurrently with the flush and resample
//     writers); the default backend
//   - postgres: server-backed store for deployments that already run one
//
// Both tables are append-only. Neither insert enforces uniqueness:
// non-duplication of bars is the resampler's responsibility via its
// high-water-mark check, not the store's.
//
// Timestamps are stored as int64 microseconds since the Unix epoch.
package store
