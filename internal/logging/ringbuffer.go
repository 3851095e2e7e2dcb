package logging

import (
	"os"
	"sync"
)

// RingBuffer is a thread-safe circular byte buffer holding the most recent
// log output. It implements io.Writer; once full, the oldest bytes are
// overwritten.
type RingBuffer struct {
	mu    sync.Mutex
	data  []byte
	start int // index of the oldest byte
	n     int // number of valid bytes
}

// NewRingBuffer creates a ring buffer with the given capacity in bytes.
func NewRingBuffer(size int) *RingBuffer {
	if size <= 0 {
		size = 1024 * 1024
	}
	return &RingBuffer{data: make([]byte, size)}
}

// Write implements io.Writer. It never fails.
func (rb *RingBuffer) Write(p []byte) (int, error) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	written := len(p)
	capacity := len(rb.data)
	if written >= capacity {
		copy(rb.data, p[written-capacity:])
		rb.start = 0
		rb.n = capacity
		return written, nil
	}

	end := (rb.start + rb.n) % capacity
	first := copy(rb.data[end:], p)
	copy(rb.data, p[first:])

	rb.n += written
	if rb.n > capacity {
		// Overwrote the head; advance it past the dropped bytes.
		rb.start = (rb.start + rb.n - capacity) % capacity
		rb.n = capacity
	}
	return written, nil
}

// Len returns the number of buffered bytes.
func (rb *RingBuffer) Len() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.n
}

// Bytes returns a copy of the buffer contents, oldest first.
func (rb *RingBuffer) Bytes() []byte {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	out := make([]byte, rb.n)
	first := copy(out, rb.data[rb.start:min(rb.start+rb.n, len(rb.data))])
	copy(out[first:], rb.data[:rb.n-first])
	return out
}

// DumpToFile writes the buffer contents to path.
func (rb *RingBuffer) DumpToFile(path string) error {
	return os.WriteFile(path, rb.Bytes(), 0o600)
}
