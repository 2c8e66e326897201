// feedprobe connects to one symbol's trade stream and prints parsed
// ticks to the console.
// Usage: go run ./cmd/feedprobe --symbol btcusdt
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tickworks/candlekeeper/internal/feed"
	"github.com/tickworks/candlekeeper/internal/ingest"
)

func main() {
	symbol := flag.String("symbol", "btcusdt", "instrument to subscribe (lower-cased)")
	baseURL := flag.String("url", ingest.DefaultConfig().FeedURL, "stream base URL")
	verbose := flag.Bool("verbose", false, "print raw message JSON")
	flag.Parse()

	// Setup logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	cfg := feed.DefaultClientConfig()
	cfg.URL = feed.StreamURL(*baseURL, *symbol)

	client := feed.NewClient(cfg, logger)
	if err := client.Connect(ctx); err != nil {
		logger.Error("connect failed", "url", cfg.URL, "error", err)
		os.Exit(1)
	}
	defer client.Close()

	logger.Info("connected", "url", cfg.URL)

	var accepted, skipped int
	for {
		select {
		case <-ctx.Done():
			logger.Info("done", "ticks", accepted, "skipped", skipped)
			return

		case err := <-client.Errors():
			logger.Error("stream error", "error", err)
			return

		case msg, ok := <-client.Messages():
			if !ok {
				logger.Info("stream closed", "ticks", accepted, "skipped", skipped)
				return
			}

			if *verbose {
				fmt.Printf("raw: %s\n", msg.Data)
			}

			tick, err := feed.ParseTrade(msg.Data)
			if err != nil {
				if !errors.Is(err, feed.ErrNotTrade) {
					logger.Warn("parse failed", "error", err)
				}
				skipped++
				continue
			}

			accepted++
			fmt.Printf("%s  %s  price=%g size=%g  (latency %s)\n",
				tick.TS.Format("15:04:05.000"),
				tick.Symbol,
				tick.Price,
				tick.Size,
				msg.ReceivedAt.Sub(tick.TS).Truncate(time.Millisecond),
			)
		}
	}
}
