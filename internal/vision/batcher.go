package vision

import "sync"

// DefaultBatchCapacity bounds how many frames are held between cycles:
// four cameras at 75 Hz for a little over a quarter second.
const DefaultBatchCapacity = 80

// Batcher collects frames between control cycles. When full, the oldest
// frame is discarded. Safe for concurrent use.
type Batcher struct {
	mu       sync.Mutex
	frames   []Frame
	capacity int
	dropped  uint64
}

// NewBatcher returns a batcher holding at most capacity frames.
func NewBatcher(capacity int) *Batcher {
	if capacity <= 0 {
		capacity = DefaultBatchCapacity
	}
	return &Batcher{
		frames:   make([]Frame, 0, capacity),
		capacity: capacity,
	}
}

// AddFrame implements FrameSink.
func (b *Batcher) AddFrame(f Frame) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.frames) == b.capacity {
		copy(b.frames, b.frames[1:])
		b.frames = b.frames[:len(b.frames)-1]
		b.dropped++
	}
	b.frames = append(b.frames, f)
}

// Drain returns the frames collected since the last Drain in arrival order.
func (b *Batcher) Drain() []Frame {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.frames) == 0 {
		return nil
	}
	out := b.frames
	b.frames = make([]Frame, 0, b.capacity)
	return out
}

// Dropped returns how many frames were discarded because the batcher was
// full.
func (b *Batcher) Dropped() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}
