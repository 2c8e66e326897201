package ingest

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/tickworks/candlekeeper/internal/feed"
	"github.com/tickworks/candlekeeper/internal/store"
)

// Config holds ingestor settings.
type Config struct {
	Symbols            []string      // Instruments to subscribe (lower-cased)
	FeedURL            string        // Stream base URL
	FlushInterval      time.Duration // Buffer flush cadence
	MaxBuffer          int           // Buffer cap, 0 = unbounded
	ReconnectBaseDelay time.Duration
	ReconnectMaxDelay  time.Duration
	PingTimeout        time.Duration
	WriteTimeout       time.Duration
}

// DefaultConfig returns sensible defaults for everything but Symbols.
func DefaultConfig() Config {
	return Config{
		FeedURL:            "wss://fstream.binance.com/ws",
		FlushInterval:      time.Second,
		ReconnectBaseDelay: time.Second,
		ReconnectMaxDelay:  60 * time.Second,
		PingTimeout:        60 * time.Second,
		WriteTimeout:       5 * time.Second,
	}
}

// Stats contains ingestor runtime counters.
type Stats struct {
	Accepted    int64 // Ticks appended to the buffer
	NonTrade    int64 // Well-formed messages of another event type, discarded
	ParseErrors int64 // Malformed messages, dropped
	Flushes     int64 // Non-empty flushes completed
	FlushErrors int64 // Storage failures during flush
	Buffer      BufferStats
}

// Ingestor maintains one streaming session per symbol and flushes
// buffered ticks to the store on a fixed cadence.
type Ingestor struct {
	cfg    Config
	store  store.Store
	logger *slog.Logger

	buf *TickBuffer

	// Session factory, swapped out in tests.
	newClient func(feed.ClientConfig, *slog.Logger) feed.Client

	// Lifecycle
	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	// Stats
	statsMu     sync.Mutex
	accepted    int64
	nonTrade    int64
	parseErrors int64
	flushes     int64
	flushErrors int64
}

// New creates an Ingestor.
func New(cfg Config, st store.Store, logger *slog.Logger) *Ingestor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingestor{
		cfg:       cfg,
		store:     st,
		logger:    logger,
		buf:       NewTickBuffer(cfg.MaxBuffer),
		newClient: feed.NewClient,
	}
}

// Start launches one session per symbol plus the flush loop. Calling
// Start while already running is a no-op.
func (i *Ingestor) Start(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.running {
		return nil
	}
	i.running = true

	ctx, i.cancel = context.WithCancel(ctx)

	for _, sym := range i.cfg.Symbols {
		i.wg.Add(1)
		go i.runSession(ctx, sym)
	}

	i.wg.Add(1)
	go i.flushLoop(ctx)

	i.logger.Info("ingestor started",
		"symbols", len(i.cfg.Symbols),
		"flush_interval", i.cfg.FlushInterval,
	)
	return nil
}

// Stop shuts down sessions and the flush loop, then flushes whatever is
// still buffered. Waits until goroutines finish or ctx expires.
func (i *Ingestor) Stop(ctx context.Context) error {
	i.mu.Lock()
	if !i.running {
		i.mu.Unlock()
		return nil
	}
	i.running = false
	cancel := i.cancel
	i.mu.Unlock()

	cancel()

	done := make(chan struct{})
	go func() {
		i.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		i.logger.Warn("ingestor stop timed out")
	}

	// Final flush so ticks received since the last tick of the flush
	// timer are not lost on shutdown.
	if err := i.flush(ctx); err != nil {
		return err
	}

	i.logger.Info("ingestor stopped")
	return nil
}

// Stats returns current counters.
func (i *Ingestor) Stats() Stats {
	i.statsMu.Lock()
	defer i.statsMu.Unlock()
	return Stats{
		Accepted:    i.accepted,
		NonTrade:    i.nonTrade,
		ParseErrors: i.parseErrors,
		Flushes:     i.flushes,
		FlushErrors: i.flushErrors,
		Buffer:      i.buf.Stats(),
	}
}

// runSession keeps one symbol's stream alive, reconnecting with
// exponential backoff after connection failures.
func (i *Ingestor) runSession(ctx context.Context, symbol string) {
	defer i.wg.Done()

	logger := i.logger.With("symbol", symbol)
	delay := i.cfg.ReconnectBaseDelay

	for {
		if ctx.Err() != nil {
			return
		}

		client := i.newClient(feed.ClientConfig{
			URL:          feed.StreamURL(i.cfg.FeedURL, symbol),
			PingTimeout:  i.cfg.PingTimeout,
			WriteTimeout: i.cfg.WriteTimeout,
			BufferSize:   4096,
		}, logger)

		if err := client.Connect(ctx); err != nil {
			logger.Warn("feed connect failed", "error", err, "retry_in", delay)
			if !sleepCtx(ctx, delay) {
				return
			}
			delay = nextDelay(delay, i.cfg.ReconnectMaxDelay)
			continue
		}

		logger.Info("feed session connected")
		delay = i.cfg.ReconnectBaseDelay

		i.consume(ctx, symbol, client)
		client.Close()

		if ctx.Err() != nil {
			return
		}

		logger.Warn("feed session ended, reconnecting", "retry_in", delay)
		if !sleepCtx(ctx, delay) {
			return
		}
		delay = nextDelay(delay, i.cfg.ReconnectMaxDelay)
	}
}

// consume reads one session's messages until the connection errors out
// or the context is cancelled.
func (i *Ingestor) consume(ctx context.Context, symbol string, client feed.Client) {
	logger := i.logger.With("symbol", symbol)

	for {
		select {
		case <-ctx.Done():
			return
		case err := <-client.Errors():
			logger.Warn("feed session error", "error", err)
			return
		case msg, ok := <-client.Messages():
			if !ok {
				return
			}
			i.handleMessage(msg.Data)
		}
	}
}

// handleMessage parses one raw message and buffers the resulting tick.
// Parsing is isolated per message: a malformed payload is dropped and
// the session continues.
func (i *Ingestor) handleMessage(data []byte) {
	tick, err := feed.ParseTrade(data)
	if err != nil {
		i.statsMu.Lock()
		if errors.Is(err, feed.ErrNotTrade) {
			i.nonTrade++
		} else {
			i.parseErrors++
		}
		i.statsMu.Unlock()
		return
	}

	i.buf.Append(tick)

	i.statsMu.Lock()
	i.accepted++
	i.statsMu.Unlock()
}

// flushLoop flushes the buffer on a fixed cadence.
func (i *Ingestor) flushLoop(ctx context.Context) {
	defer i.wg.Done()

	ticker := time.NewTicker(i.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := i.flush(ctx); err != nil {
				i.logger.Error("flush failed", "error", err)
			}
		}
	}
}

// flush swaps the buffer and writes the batch to the store. An empty
// buffer performs zero storage writes.
func (i *Ingestor) flush(ctx context.Context) error {
	batch := i.buf.Swap()
	if len(batch) == 0 {
		return nil
	}

	start := time.Now()
	if err := i.store.InsertTicks(ctx, batch); err != nil {
		i.statsMu.Lock()
		i.flushErrors++
		i.statsMu.Unlock()
		return err
	}

	i.statsMu.Lock()
	i.flushes++
	i.statsMu.Unlock()

	i.logger.Debug("flushed ticks",
		"count", len(batch),
		"duration", time.Since(start),
	)
	return nil
}

// Buffer exposes the shared tick buffer (used by tests and the feed
// probe tool).
func (i *Ingestor) Buffer() *TickBuffer {
	return i.buf
}

func nextDelay(cur, max time.Duration) time.Duration {
	next := cur * 2
	if next > max {
		next = max
	}
	return next
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
