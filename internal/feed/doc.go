// Package feed implements the WebSocket trade-stream client.
//
// Each client holds one connection to a single-instrument trade stream
// (e.g. wss://fstream.binance.com/ws/btcusdt@trade) and delivers raw
// messages with receive timestamps. Parsing of the trade wire format
// into normalized ticks lives here too; everything downstream of the
// parser deals only in model.Tick.
package feed
