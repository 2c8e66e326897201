package ingest

import (
	"sync"

	"github.com/tickworks/candlekeeper/internal/model"
)

// swapAllocCap is the initial capacity of the replacement slice after a swap.
const swapAllocCap = 1024

// TickBuffer is the shared in-memory tick buffer. All feed sessions
// append to it; the flush loop swaps it for an empty one. The critical
// section covers only the append and the swap, never storage I/O, so
// lock hold time stays O(1) regardless of batch size.
type TickBuffer struct {
	mu    sync.Mutex
	ticks []model.Tick
	max   int // 0 = unbounded

	// Stats
	appended int64
	dropped  int64
}

// BufferStats contains buffer statistics.
type BufferStats struct {
	Len      int
	Max      int
	Appended int64
	Dropped  int64
}

// NewTickBuffer creates a buffer. A max of 0 means unbounded; otherwise
// the oldest buffered tick is dropped to make room once max is reached.
func NewTickBuffer(max int) *TickBuffer {
	return &TickBuffer{
		ticks: make([]model.Tick, 0, swapAllocCap),
		max:   max,
	}
}

// Append adds one tick to the buffer.
func (b *TickBuffer) Append(t model.Tick) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.max > 0 && len(b.ticks) >= b.max {
		copy(b.ticks, b.ticks[1:])
		b.ticks = b.ticks[:len(b.ticks)-1]
		b.dropped++
	}

	b.ticks = append(b.ticks, t)
	b.appended++
}

// Swap atomically takes ownership of the current contents, leaving the
// buffer empty. Every tick appended before the swap belongs to exactly
// one swapped-out batch. Returns nil when the buffer is empty.
func (b *TickBuffer) Swap() []model.Tick {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.ticks) == 0 {
		return nil
	}

	out := b.ticks
	b.ticks = make([]model.Tick, 0, swapAllocCap)
	return out
}

// Len returns the current number of buffered ticks.
func (b *TickBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.ticks)
}

// Stats returns buffer statistics.
func (b *TickBuffer) Stats() BufferStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BufferStats{
		Len:      len(b.ticks),
		Max:      b.max,
		Appended: b.appended,
		Dropped:  b.dropped,
	}
}
