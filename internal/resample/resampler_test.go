package resample

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tickworks/candlekeeper/internal/model"
)

// memStore is an in-memory store.Store for resampler tests.
type memStore struct {
	mu    sync.Mutex
	ticks []model.Tick
	bars  []model.Bar

	ticksAfterCalls atomic.Int32
	gate            chan struct{} // when set, TicksAfter blocks until closed
}

func (s *memStore) InsertTicks(_ context.Context, ticks []model.Tick) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ticks = append(s.ticks, ticks...)
	return nil
}

func (s *memStore) InsertBars(_ context.Context, bars []model.Bar) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bars = append(s.bars, bars...)
	return nil
}

func (s *memStore) RecentTicks(context.Context, string, int) ([]model.Tick, error) {
	return nil, nil
}

func (s *memStore) TicksAfter(_ context.Context, symbol string, after time.Time) ([]model.Tick, error) {
	s.ticksAfterCalls.Add(1)
	if s.gate != nil {
		<-s.gate
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Tick
	for _, t := range s.ticks {
		if t.Symbol == symbol && t.TS.After(after) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *memStore) Bars(_ context.Context, symbol string, tf model.Timeframe, _, _ time.Time) ([]model.Bar, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Bar
	for _, b := range s.bars {
		if b.Symbol == symbol && b.Timeframe == tf.Label {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *memStore) MaxBarTime(_ context.Context, symbol string, tf model.Timeframe) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var mark time.Time
	found := false
	for _, b := range s.bars {
		if b.Symbol == symbol && b.Timeframe == tf.Label && b.BucketStart.After(mark) {
			mark = b.BucketStart
			found = true
		}
	}
	return mark, found, nil
}

func (s *memStore) Ping(context.Context) error { return nil }
func (s *memStore) Close() error               { return nil }

func (s *memStore) allBars() []model.Bar {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Bar(nil), s.bars...)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestResampler(st *memStore, now time.Time) *Resampler {
	r := New(st, discardLogger())
	r.now = func() time.Time { return now }
	return r
}

var base = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func mkTick(ts time.Time, price, size float64) model.Tick {
	return model.Tick{TS: ts, Symbol: "btcusdt", Price: price, Size: size}
}

func TestAggregate_SingleBucket(t *testing.T) {
	ticks := []model.Tick{
		mkTick(base.Add(5*time.Second), 10, 1),
		mkTick(base.Add(20*time.Second), 12, 2),
		mkTick(base.Add(40*time.Second), 9, 1),
	}

	bars := Aggregate(ticks, "btcusdt", model.Timeframe1m)
	if len(bars) != 1 {
		t.Fatalf("len(bars) = %d, want 1", len(bars))
	}

	b := bars[0]
	if !b.BucketStart.Equal(base) {
		t.Errorf("BucketStart = %v, want %v", b.BucketStart, base)
	}
	if b.Open != 10 || b.High != 12 || b.Low != 9 || b.Close != 9 || b.Volume != 4 {
		t.Errorf("bar = O%v H%v L%v C%v V%v, want O10 H12 L9 C9 V4",
			b.Open, b.High, b.Low, b.Close, b.Volume)
	}
}

func TestAggregate_OpenCloseByEventTime(t *testing.T) {
	// Arrival order differs from event-time order.
	ticks := []model.Tick{
		mkTick(base.Add(30*time.Second), 50, 1),
		mkTick(base.Add(10*time.Second), 10, 1), // earliest
		mkTick(base.Add(50*time.Second), 20, 1), // latest
	}

	bars := Aggregate(ticks, "btcusdt", model.Timeframe1m)
	if len(bars) != 1 {
		t.Fatalf("len(bars) = %d, want 1", len(bars))
	}
	if bars[0].Open != 10 {
		t.Errorf("Open = %v, want 10 (earliest tick price)", bars[0].Open)
	}
	if bars[0].Close != 20 {
		t.Errorf("Close = %v, want 20 (latest tick price)", bars[0].Close)
	}
}

func TestAggregate_BucketBoundaryLeftClosed(t *testing.T) {
	ticks := []model.Tick{
		mkTick(base.Add(time.Minute-time.Millisecond), 1, 1), // last instant of bucket 0
		mkTick(base.Add(time.Minute), 2, 1),                  // first instant of bucket 1
	}

	bars := Aggregate(ticks, "btcusdt", model.Timeframe1m)
	if len(bars) != 2 {
		t.Fatalf("len(bars) = %d, want 2", len(bars))
	}
	if !bars[0].BucketStart.Equal(base) || !bars[1].BucketStart.Equal(base.Add(time.Minute)) {
		t.Errorf("bucket starts = %v, %v", bars[0].BucketStart, bars[1].BucketStart)
	}
}

func TestAggregate_MultipleBucketsAscending(t *testing.T) {
	ticks := []model.Tick{
		mkTick(base.Add(3*time.Minute), 3, 1),
		mkTick(base, 1, 1),
		mkTick(base.Add(time.Minute), 2, 1),
	}

	bars := Aggregate(ticks, "btcusdt", model.Timeframe1m)
	if len(bars) != 3 {
		t.Fatalf("len(bars) = %d, want 3", len(bars))
	}
	for i := 1; i < len(bars); i++ {
		if !bars[i].BucketStart.After(bars[i-1].BucketStart) {
			t.Errorf("bars not ascending at %d: %v then %v", i, bars[i-1].BucketStart, bars[i].BucketStart)
		}
	}
}

func TestResample_FirstPassMaterializesCompleteBuckets(t *testing.T) {
	st := &memStore{}
	st.InsertTicks(context.Background(), []model.Tick{
		mkTick(base.Add(10*time.Second), 10, 1),
		mkTick(base.Add(70*time.Second), 11, 2),
		mkTick(base.Add(130*time.Second), 12, 3), // inside the still-open third bucket
	})

	// Wall clock inside the third bucket.
	r := newTestResampler(st, base.Add(140*time.Second))

	n, err := r.Resample(context.Background(), "btcusdt", model.Timeframe1m)
	if err != nil {
		t.Fatalf("Resample failed: %v", err)
	}
	if n != 2 {
		t.Errorf("bars appended = %d, want 2 (open bucket withheld)", n)
	}

	bars := st.allBars()
	if len(bars) != 2 {
		t.Fatalf("stored bars = %d, want 2", len(bars))
	}
	if !bars[0].BucketStart.Equal(base) || !bars[1].BucketStart.Equal(base.Add(time.Minute)) {
		t.Errorf("bucket starts = %v, %v", bars[0].BucketStart, bars[1].BucketStart)
	}
}

func TestResample_NoTicksIsNoop(t *testing.T) {
	st := &memStore{}
	r := newTestResampler(st, base)

	n, err := r.Resample(context.Background(), "btcusdt", model.Timeframe1m)
	if err != nil {
		t.Fatalf("Resample failed: %v", err)
	}
	if n != 0 {
		t.Errorf("bars appended = %d, want 0", n)
	}
	if len(st.allBars()) != 0 {
		t.Errorf("stored bars = %d, want 0", len(st.allBars()))
	}
}

func TestResample_BucketUniquenessAcrossInvocations(t *testing.T) {
	st := &memStore{}
	ctx := context.Background()
	st.InsertTicks(ctx, []model.Tick{
		mkTick(base.Add(10*time.Second), 10, 1),
		mkTick(base.Add(70*time.Second), 11, 1),
	})

	r := newTestResampler(st, base.Add(5*time.Minute))

	for i := 0; i < 3; i++ {
		if _, err := r.Resample(ctx, "btcusdt", model.Timeframe1m); err != nil {
			t.Fatalf("Resample #%d failed: %v", i, err)
		}
	}

	// New ticks, further invocations.
	st.InsertTicks(ctx, []model.Tick{
		mkTick(base.Add(200*time.Second), 13, 1),
	})
	for i := 0; i < 3; i++ {
		if _, err := r.Resample(ctx, "btcusdt", model.Timeframe1m); err != nil {
			t.Fatalf("Resample #%d failed: %v", i, err)
		}
	}

	seen := make(map[time.Time]int)
	for _, b := range st.allBars() {
		seen[b.BucketStart]++
	}
	for start, count := range seen {
		if count != 1 {
			t.Errorf("bucket %v has %d bars, want exactly 1", start, count)
		}
	}
}

func TestResample_MonotonicHighWaterMark(t *testing.T) {
	st := &memStore{}
	ctx := context.Background()
	r := newTestResampler(st, base.Add(time.Hour))

	var prev time.Time
	for i := 0; i < 4; i++ {
		st.InsertTicks(ctx, []model.Tick{
			mkTick(base.Add(time.Duration(i)*time.Minute+time.Second), float64(10+i), 1),
		})
		if _, err := r.Resample(ctx, "btcusdt", model.Timeframe1m); err != nil {
			t.Fatalf("Resample #%d failed: %v", i, err)
		}

		mark, ok, err := st.MaxBarTime(ctx, "btcusdt", model.Timeframe1m)
		if err != nil {
			t.Fatalf("MaxBarTime failed: %v", err)
		}
		if !ok {
			t.Fatalf("no high-water mark after pass %d", i)
		}
		if mark.Before(prev) {
			t.Errorf("mark regressed: %v after %v", mark, prev)
		}
		prev = mark
	}
}

func TestResample_TickAtMarkExcluded(t *testing.T) {
	st := &memStore{}
	ctx := context.Background()
	st.InsertTicks(ctx, []model.Tick{
		mkTick(base.Add(10*time.Second), 10, 1),
	})

	r := newTestResampler(st, base.Add(time.Hour))
	if _, err := r.Resample(ctx, "btcusdt", model.Timeframe1m); err != nil {
		t.Fatalf("Resample failed: %v", err)
	}
	before := st.allBars()
	if len(before) != 1 {
		t.Fatalf("stored bars = %d, want 1", len(before))
	}
	mark := before[0].BucketStart

	// A delayed tick landing exactly at the high-water mark.
	st.InsertTicks(ctx, []model.Tick{
		{TS: mark, Symbol: "btcusdt", Price: 999, Size: 9},
	})

	n, err := r.Resample(ctx, "btcusdt", model.Timeframe1m)
	if err != nil {
		t.Fatalf("Resample failed: %v", err)
	}
	if n != 0 {
		t.Errorf("bars appended = %d, want 0", n)
	}

	after := st.allBars()
	if len(after) != 1 {
		t.Fatalf("stored bars = %d, want 1 (unchanged)", len(after))
	}
	if after[0] != before[0] {
		t.Errorf("existing bar changed: %+v -> %+v", before[0], after[0])
	}
}

func TestResample_LateTickInClosedBucketExcluded(t *testing.T) {
	st := &memStore{}
	ctx := context.Background()
	st.InsertTicks(ctx, []model.Tick{
		mkTick(base.Add(10*time.Second), 10, 1),
	})

	r := newTestResampler(st, base.Add(time.Hour))
	if _, err := r.Resample(ctx, "btcusdt", model.Timeframe1m); err != nil {
		t.Fatalf("Resample failed: %v", err)
	}

	// Delayed arrival inside the already-materialized bucket, after its
	// bucket start. It is above the mark but its bucket is closed.
	st.InsertTicks(ctx, []model.Tick{
		mkTick(base.Add(30*time.Second), 999, 9),
	})

	n, err := r.Resample(ctx, "btcusdt", model.Timeframe1m)
	if err != nil {
		t.Fatalf("Resample failed: %v", err)
	}
	if n != 0 {
		t.Errorf("bars appended = %d, want 0 (bucket permanently closed)", n)
	}

	bars := st.allBars()
	if len(bars) != 1 || bars[0].Volume != 1 {
		t.Errorf("bars = %+v, want single unchanged bar with volume 1", bars)
	}
}

func TestResample_SingleFlightPerKey(t *testing.T) {
	st := &memStore{gate: make(chan struct{})}
	ctx := context.Background()
	st.ticks = []model.Tick{
		mkTick(base.Add(10*time.Second), 10, 1),
	}

	r := newTestResampler(st, base.Add(time.Hour))

	var wg sync.WaitGroup
	results := make([]int, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			n, err := r.Resample(ctx, "btcusdt", model.Timeframe1m)
			if err != nil {
				t.Errorf("Resample failed: %v", err)
			}
			results[i] = n
		}(i)
	}

	// Let both calls reach the single-flight gate, then release.
	time.Sleep(50 * time.Millisecond)
	close(st.gate)
	wg.Wait()

	if calls := st.ticksAfterCalls.Load(); calls != 1 {
		t.Errorf("store scans = %d, want 1 (second call must join the first)", calls)
	}

	seen := make(map[time.Time]int)
	for _, b := range st.allBars() {
		seen[b.BucketStart]++
	}
	for start, count := range seen {
		if count != 1 {
			t.Errorf("bucket %v appended %d times by concurrent passes", start, count)
		}
	}

	if results[0] != results[1] {
		t.Errorf("results differ: %d vs %d (shared execution must share its result)", results[0], results[1])
	}
}
