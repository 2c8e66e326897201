// Package model defines the shared data types of the pipeline.
//
// Conventions:
//   - Timestamps: time.Time, always UTC, millisecond-or-finer precision
//   - Symbols: lower-cased exchange symbols (e.g. "btcusdt")
//   - Prices and sizes: float64, matching the store's DOUBLE columns
package model
