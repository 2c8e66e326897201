package feed

import (
	"errors"
	"time"
)

// Errors
var (
	ErrNotConnected    = errors.New("not connected")
	ErrStaleConnection = errors.New("connection stale (no ping)")
	ErrAlreadyClosed   = errors.New("already closed")

	// ErrNotTrade marks a well-formed message whose event type is not
	// "trade". Callers discard these silently.
	ErrNotTrade = errors.New("not a trade event")
)

// TimestampedMessage wraps raw message data with a receive timestamp.
type TimestampedMessage struct {
	Data       []byte    // Raw message bytes from WebSocket
	ReceivedAt time.Time // Local timestamp when ReadMessage() returned
}

// ClientConfig configures a WebSocket stream client.
type ClientConfig struct {
	URL          string        // Full stream URL for one instrument
	PingTimeout  time.Duration // Max time without ping before considering connection stale
	WriteTimeout time.Duration // Write deadline for control frames
	BufferSize   int           // Message channel buffer size
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		PingTimeout:  60 * time.Second,
		WriteTimeout: 5 * time.Second,
		BufferSize:   4096,
	}
}

// tradeWire is the wire format of a trade event.
type tradeWire struct {
	EventType string `json:"e"` // "trade"
	EventTime int64  `json:"E"` // Event time (ms)
	Symbol    string `json:"s"` // e.g. "BTCUSDT"
	TradeID   int64  `json:"t"`
	Price     string `json:"p"`
	Quantity  string `json:"q"`
	TradeTime int64  `json:"T"` // Trade time (ms)
	IsMaker   bool   `json:"m"`
}
