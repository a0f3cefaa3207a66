package timing

import (
	"sync"
	"time"
)

const bufferSamplesDefault = 240

// Buffer stores recent pass samples in a ring buffer.
type Buffer struct {
	mu      sync.RWMutex
	samples []Sample
	index   int
	count   int
}

// Timeline is a chronological view of the buffer.
type Timeline struct {
	Samples []Sample `json:"samples"`
	Total   int      `json:"total"`
}

// NewBuffer creates a buffer holding up to capacity samples.
func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = bufferSamplesDefault
	}
	return &Buffer{samples: make([]Sample, capacity)}
}

// Capacity returns the buffer capacity.
func (b *Buffer) Capacity() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.samples)
}

// Add records a sample, overwriting the oldest one when full.
func (b *Buffer) Add(sample Sample) {
	b.mu.Lock()
	b.samples[b.index] = sample
	b.index = (b.index + 1) % len(b.samples)
	if b.count < len(b.samples) {
		b.count++
	}
	b.mu.Unlock()
}

// Len returns the number of samples held.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.count
}

// Snapshot returns a chronological copy of the samples.
func (b *Buffer) Snapshot() Timeline {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.count == 0 {
		return Timeline{}
	}

	result := make([]Sample, b.count)
	if b.count < len(b.samples) {
		copy(result, b.samples[:b.count])
	} else {
		copy(result, b.samples[b.index:])
		copy(result[len(b.samples)-b.index:], b.samples[:b.index])
	}
	return Timeline{Samples: result, Total: b.count}
}

// Reset drops every sample.
func (b *Buffer) Reset() {
	b.mu.Lock()
	clear(b.samples)
	b.index = 0
	b.count = 0
	b.mu.Unlock()
}

func durationToMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
