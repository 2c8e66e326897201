package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tickworks/candlekeeper/internal/config"
	"github.com/tickworks/candlekeeper/internal/ingest"
	"github.com/tickworks/candlekeeper/internal/resample"
	"github.com/tickworks/candlekeeper/internal/store"
	"github.com/tickworks/candlekeeper/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/ingestd.yaml", "path to config file")
	flag.Parse()

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting ingestd",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"instance_id", cfg.Instance.ID,
		"feed_url", cfg.Feed.URL,
		"symbols", len(cfg.Feed.Symbols),
		"backend", cfg.Storage.Backend,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Open the tick/bar store
	st, err := store.Open(ctx, cfg.Storage)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	logger.Info("store opened", "backend", cfg.Storage.Backend)

	// Create the ingestor
	ingestor := ingest.New(ingest.Config{
		Symbols:            cfg.Feed.Symbols,
		FeedURL:            cfg.Feed.URL,
		FlushInterval:      cfg.Ingest.FlushInterval,
		MaxBuffer:          cfg.Ingest.MaxBuffer,
		ReconnectBaseDelay: cfg.Feed.ReconnectBaseDelay,
		ReconnectMaxDelay:  cfg.Feed.ReconnectMaxDelay,
		PingTimeout:        cfg.Feed.PingTimeout,
		WriteTimeout:       cfg.Feed.WriteTimeout,
	}, st, logger)

	// Create the resample scheduler
	timeframes, err := cfg.Timeframes()
	if err != nil {
		logger.Error("failed to resolve timeframes", "error", err)
		os.Exit(1)
	}

	resampler := resample.New(st, logger)
	pairs := resample.Pairs(cfg.Feed.Symbols, timeframes)
	scheduler, err := resample.NewScheduler(cfg.Resample.Interval, pairs, resampler, logger)
	if err != nil {
		logger.Error("failed to create resample scheduler", "error", err)
		os.Exit(1)
	}

	// Start health server
	healthPort := 8080
	if cfg.Health.Port > 0 {
		healthPort = cfg.Health.Port
	}

	healthServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", healthPort),
		Handler: createHealthHandler(st, ingestor, scheduler, logger),
	}

	go func() {
		logger.Info("starting health server", "port", healthPort)
		if err := healthServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("health server error", "error", err)
		}
	}()

	// Start ingestion and resampling
	if err := ingestor.Start(ctx); err != nil {
		logger.Error("failed to start ingestor", "error", err)
		os.Exit(1)
	}
	scheduler.Start()

	logger.Info("ingestd running",
		"instance_id", cfg.Instance.ID,
		"pairs", len(pairs),
		"health_url", fmt.Sprintf("http://localhost:%d/health", healthPort),
	)

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutting down...")

	scheduler.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := ingestor.Stop(shutdownCtx); err != nil {
		logger.Error("ingestor shutdown failed", "error", err)
	}

	healthServer.Shutdown(shutdownCtx)

	logger.Info("ingestd stopped")
}

// createHealthHandler creates the HTTP handler for health checks.
func createHealthHandler(st store.Store, ingestor *ingest.Ingestor, scheduler *resample.Scheduler, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		health := struct {
			Status     string                 `json:"status"`
			Version    string                 `json:"version"`
			Components map[string]interface{} `json:"components"`
		}{
			Status:     "healthy",
			Version:    version.Version,
			Components: make(map[string]interface{}),
		}

		// Check store
		if err := st.Ping(ctx); err != nil {
			health.Status = "unhealthy"
			health.Components["store"] = map[string]string{
				"status": "disconnected",
				"error":  err.Error(),
			}
		} else {
			health.Components["store"] = "connected"
		}

		// Ingest counters
		stats := ingestor.Stats()
		health.Components["ingest"] = map[string]interface{}{
			"accepted":     stats.Accepted,
			"non_trade":    stats.NonTrade,
			"parse_errors": stats.ParseErrors,
			"flushes":      stats.Flushes,
			"flush_errors": stats.FlushErrors,
			"buffered":     stats.Buffer.Len,
			"dropped":      stats.Buffer.Dropped,
		}
		if stats.FlushErrors > 0 {
			health.Status = "degraded"
		}

		// Resample counters
		sched := scheduler.Stats()
		health.Components["resample"] = map[string]interface{}{
			"runs":   sched.Runs,
			"errors": sched.Errors,
			"bars":   sched.Bars,
		}

		// Set response
		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	return mux
}
