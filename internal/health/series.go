package health

import (
	"sync"
	"time"
)

// Sample is one (timestamp, memory) observation of the target.
type Sample struct {
	At       time.Time
	MemoryMB float64
}

// Series is a bounded in-memory sample buffer. When full, the oldest
// sample is evicted. Implemented as a circular buffer so long-running
// watch loops never reallocate.
type Series struct {
	mu    sync.RWMutex
	buf   []Sample
	start int
	count int
}

// NewSeries creates a Series retaining at most max samples.
func NewSeries(max int) *Series {
	if max <= 0 {
		max = 1
	}
	return &Series{buf: make([]Sample, max)}
}

// Add appends a sample, evicting the oldest when the buffer is full.
func (s *Series) Add(smp Sample) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.count < len(s.buf) {
		s.buf[(s.start+s.count)%len(s.buf)] = smp
		s.count++
		return
	}
	s.buf[s.start] = smp
	s.start = (s.start + 1) % len(s.buf)
}

// Len returns the number of retained samples.
func (s *Series) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.count
}

// Cap returns the retention limit.
func (s *Series) Cap() int { return len(s.buf) }

// at returns the i-th sample, oldest first. Caller holds the lock.
func (s *Series) at(i int) Sample {
	return s.buf[(s.start+i)%len(s.buf)]
}

// Last returns the newest sample.
func (s *Series) Last() (Sample, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.count == 0 {
		return Sample{}, false
	}
	return s.at(s.count - 1), true
}

// FromEnd returns the sample n positions before the newest (n=0 is the
// newest). When fewer samples exist, the oldest is returned along with
// the actual distance to the newest.
func (s *Series) FromEnd(n int) (Sample, int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.count == 0 {
		return Sample{}, 0, false
	}
	if n >= s.count {
		n = s.count - 1
	}
	return s.at(s.count - 1 - n), n, true
}

// All returns the retained samples, oldest first.
func (s *Series) All() []Sample {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Sample, s.count)
	for i := 0; i < s.count; i++ {
		out[i] = s.at(i)
	}
	return out
}
