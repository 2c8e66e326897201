// Package ingest implements the trade feed ingestor.
//
// One session goroutine per configured symbol consumes its stream and
// appends normalized ticks to a single shared TickBuffer. A separate
// flush goroutine swaps the buffer out on a fixed cadence and hands the
// batch to the store outside the buffer lock, so the lock is never held
// across storage I/O.
//
// Per-message parse failures drop the message and never end a session.
// Connection failures end the session; sessions reconnect with
// exponential backoff and log each attempt, so a dying feed is visible
// in the logs but never takes the process down.
package ingest
