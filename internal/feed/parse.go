package feed

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tickworks/candlekeeper/internal/model"
)

// StreamURL builds the stream URL for one instrument's trade channel.
func StreamURL(base, symbol string) string {
	return strings.TrimRight(base, "/") + "/" + strings.ToLower(symbol) + "@trade"
}

// ParseTrade normalizes a raw stream message into a tick. Messages whose
// event type is not "trade" return ErrNotTrade; any other error means the
// message is malformed and should be dropped.
func ParseTrade(data []byte) (model.Tick, error) {
	var wire tradeWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return model.Tick{}, fmt.Errorf("unmarshal trade: %w", err)
	}

	if wire.EventType != "trade" {
		return model.Tick{}, ErrNotTrade
	}

	price, err := strconv.ParseFloat(wire.Price, 64)
	if err != nil {
		return model.Tick{}, fmt.Errorf("parse price %q: %w", wire.Price, err)
	}

	size, err := strconv.ParseFloat(wire.Quantity, 64)
	if err != nil {
		return model.Tick{}, fmt.Errorf("parse quantity %q: %w", wire.Quantity, err)
	}

	return model.Tick{
		TS:     time.UnixMilli(wire.TradeTime).UTC(),
		Symbol: strings.ToLower(wire.Symbol),
		Price:  price,
		Size:   size,
	}, nil
}
