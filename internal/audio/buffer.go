package audio

import (
	"sync"
)

// SampleRing is a thread-safe fixed-capacity ring of float samples. Writes
// past capacity overwrite the oldest samples, so the ring always holds the
// most recent audio. The voice monitor uses it to keep pre-speech padding.
type SampleRing struct {
	buffer []float32
	size   int
	start  int
	count  int
	mu     sync.RWMutex
}

// NewSampleRing creates a ring that holds at most size samples.
func NewSampleRing(size int) *SampleRing {
	if size < 0 {
		size = 0
	}
	return &SampleRing{
		buffer: make([]float32, size),
		size:   size,
	}
}

// Write appends samples, evicting the oldest ones when full.
func (r *SampleRing) Write(samples []float32) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.size == 0 {
		return
	}
	if len(samples) >= r.size {
		copy(r.buffer, samples[len(samples)-r.size:])
		r.start = 0
		r.count = r.size
		return
	}

	for _, s := range samples {
		idx := (r.start + r.count) % r.size
		r.buffer[idx] = s
		if r.count < r.size {
			r.count++
		} else {
			r.start = (r.start + 1) % r.size
		}
	}
}

// Snapshot returns the buffered samples in chronological order.
func (r *SampleRing) Snapshot() []float32 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]float32, r.count)
	for i := 0; i < r.count; i++ {
		out[i] = r.buffer[(r.start+i)%r.size]
	}
	return out
}

// Len returns the number of buffered samples
func (r *SampleRing) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.count
}

// Cap returns the ring capacity
func (r *SampleRing) Cap() int {
	return r.size
}

// Clear drops all buffered samples
func (r *SampleRing) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.start = 0
	r.count = 0
}

// IsFull returns true if the ring holds Cap samples
func (r *SampleRing) IsFull() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.count == r.size
}
