package resample

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/tickworks/candlekeeper/internal/model"
)

// Pair is one (symbol, timeframe) resampling key.
type Pair struct {
	Symbol    string
	Timeframe model.Timeframe
}

// Pairs builds the cross product of symbols and timeframes.
func Pairs(symbols []string, tfs []model.Timeframe) []Pair {
	pairs := make([]Pair, 0, len(symbols)*len(tfs))
	for _, sym := range symbols {
		for _, tf := range tfs {
			pairs = append(pairs, Pair{Symbol: sym, Timeframe: tf})
		}
	}
	return pairs
}

// SchedulerStats contains scheduler runtime counters.
type SchedulerStats struct {
	Runs   int64 // Completed passes
	Errors int64 // Failed passes
	Bars   int64 // Bars appended across all passes
}

// Scheduler periodically resamples every configured pair. Passes for
// different pairs are independent; the resampler's per-key
// single-flight keeps same-pair passes from overlapping.
type Scheduler struct {
	cron      *cron.Cron
	resampler *Resampler
	logger    *slog.Logger
	timeout   time.Duration

	mu     sync.Mutex
	runs   int64
	errors int64
	bars   int64
}

// NewScheduler creates a Scheduler and registers one cron entry per pair.
func NewScheduler(interval time.Duration, pairs []Pair, r *Resampler, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Scheduler{
		cron:      cron.New(cron.WithSeconds()),
		resampler: r,
		logger:    logger,
		timeout:   interval,
	}

	spec := fmt.Sprintf("@every %s", interval)
	for _, p := range pairs {
		p := p
		if _, err := s.cron.AddFunc(spec, func() { s.runPair(p) }); err != nil {
			return nil, fmt.Errorf("register resample entry %s/%s: %w", p.Symbol, p.Timeframe.Label, err)
		}
	}

	return s, nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("resample scheduler started", "entries", len(s.cron.Entries()))
}

// Stop stops the scheduler and waits for in-flight passes to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("resample scheduler stopped")
}

// Stats returns current counters.
func (s *Scheduler) Stats() SchedulerStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SchedulerStats{Runs: s.runs, Errors: s.errors, Bars: s.bars}
}

func (s *Scheduler) runPair(p Pair) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	n, err := s.resampler.Resample(ctx, p.Symbol, p.Timeframe)

	s.mu.Lock()
	if err != nil {
		s.errors++
	} else {
		s.runs++
		s.bars += int64(n)
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("resample pass failed",
			"symbol", p.Symbol,
			"timeframe", p.Timeframe.Label,
			"error", err,
		)
	}
}
