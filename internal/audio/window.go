package audio

import "sync"

// SampleRing keeps the most recent window of raw PCM bytes for live
// analysis. Unlike a bounded FIFO it never rejects writes: old data is
// overwritten so Snapshot always reflects the latest audio.
type SampleRing struct {
	mu     sync.Mutex
	buffer []byte
	size   int
	write  int
	filled bool
}

// NewSampleRing creates a ring holding the given number of bytes.
func NewSampleRing(size int) *SampleRing {
	if size <= 0 {
		size = 3200 // 100ms of 16kHz mono s16le
	}
	return &SampleRing{
		buffer: make([]byte, size),
		size:   size,
	}
}

// Write appends data, overwriting the oldest bytes when full.
func (r *SampleRing) Write(data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Only the tail can survive in the window anyway.
	if len(data) >= r.size {
		copy(r.buffer, data[len(data)-r.size:])
		r.write = 0
		r.filled = true
		return
	}

	n := copy(r.buffer[r.write:], data)
	if n < len(data) {
		copy(r.buffer, data[n:])
		r.filled = true
	}
	r.write = (r.write + len(data)) % r.size
	if r.write == 0 {
		r.filled = true
	}
}

// Snapshot returns the window contents in chronological order.
func (r *SampleRing) Snapshot() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.filled {
		out := make([]byte, r.write)
		copy(out, r.buffer[:r.write])
		return out
	}
	out := make([]byte, r.size)
	copy(out, r.buffer[r.write:])
	copy(out[r.size-r.write:], r.buffer[:r.write])
	return out
}

// Clear discards the window contents.
func (r *SampleRing) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.write = 0
	r.filled = false
}

// Len returns the number of valid bytes in the window.
func (r *SampleRing) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.filled {
		return r.size
	}
	return r.write
}
