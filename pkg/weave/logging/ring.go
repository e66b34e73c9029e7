package logging

import "sync"

// DefaultRecentSize is the number of records kept for the progress view.
const DefaultRecentSize = 100

// RingBuffer keeps the newest entries up to a fixed capacity.
type RingBuffer struct {
	mu      sync.RWMutex
	entries []Entry
	head    int
	count   int
}

// NewRingBuffer returns a buffer holding up to size entries.
func NewRingBuffer(size int) *RingBuffer {
	if size <= 0 {
		size = DefaultRecentSize
	}
	return &RingBuffer{entries: make([]Entry, size)}
}

// Add appends e, evicting the oldest entry when full.
func (b *RingBuffer) Add(e Entry) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.entries[(b.head+b.count)%len(b.entries)] = e
	if b.count < len(b.entries) {
		b.count++
		return
	}
	b.head = (b.head + 1) % len(b.entries)
}

// Last returns up to n of the newest entries, oldest first.
func (b *RingBuffer) Last(n int) []Entry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	n = min(n, b.count)
	out := make([]Entry, n)
	skip := b.count - n
	for i := range out {
		out[i] = b.entries[(b.head+skip+i)%len(b.entries)]
	}
	return out
}

// Len returns the number of buffered entries.
func (b *RingBuffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.count
}
