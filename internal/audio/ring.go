package audio

import (
	"sync"
	"time"
)

// Ring is a fixed-capacity circular store of the most recent audio,
// sized in samples at the canonical rate. Oldest samples are overwritten
// once capacity is exceeded; the buffer is never explicitly emptied, so
// pre-roll is available the moment a capture session starts.
type Ring struct {
	mu      sync.Mutex
	buf     []float32
	head    int    // next write position
	written uint64 // total samples ever written, monotonic
	rate    int
}

// NewRing allocates a ring holding the most recent duration of audio.
func NewRing(duration time.Duration, sampleRate int) *Ring {
	capacity := int(duration.Seconds() * float64(sampleRate))
	if capacity < 1 {
		capacity = 1
	}
	return &Ring{
		buf:  make([]float32, capacity),
		rate: sampleRate,
	}
}

// Write appends samples, overwriting the oldest data once full.
func (r *Ring) Write(samples []float32) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range samples {
		r.buf[r.head] = s
		r.head = (r.head + 1) % len(r.buf)
	}
	r.written += uint64(len(samples))
}

// ReadLast returns a copy of the most recent duration of audio, in order,
// clipped to however much has actually been written.
func (r *Ring) ReadLast(duration time.Duration) []float32 {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := int(duration.Seconds() * float64(r.rate))
	if n > len(r.buf) {
		n = len(r.buf)
	}
	if uint64(n) > r.written {
		n = int(r.written)
	}
	if n <= 0 {
		return nil
	}

	out := make([]float32, n)
	start := (r.head - n + len(r.buf)) % len(r.buf)
	for i := 0; i < n; i++ {
		out[i] = r.buf[(start+i)%len(r.buf)]
	}
	return out
}

// TotalWritten returns the monotonic count of samples ever written. It is
// not reset by wraparound; alignment math relies on that.
func (r *Ring) TotalWritten() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.written
}

// SampleRate returns the rate the ring was sized for.
func (r *Ring) SampleRate() int {
	return r.rate
}
