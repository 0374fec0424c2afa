package detection

import (
	"sync"
	"time"

	"arlens/internal/config"
	"arlens/internal/model"
)

// Sampler decides which captured frames are submitted for detection.
type Sampler interface {
	Sample(frame model.Frame) bool
}

// NewSampler returns an IntervalSampler when a detection interval is
// configured and a StrideSampler otherwise.
func NewSampler(cfg *config.Config) Sampler {
	if cfg.DetectionInterval > 0 {
		return NewIntervalSampler(cfg.DetectionInterval)
	}
	return NewStrideSampler(cfg.DetectionStride)
}

// StrideSampler selects every Nth offered frame, starting with the Nth.
type StrideSampler struct {
	mu      sync.Mutex
	stride  int
	counter int
}

func NewStrideSampler(stride int) *StrideSampler {
	if stride < 1 {
		stride = 1
	}
	return &StrideSampler{stride: stride}
}

func (s *StrideSampler) Sample(model.Frame) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.counter++
	if s.counter%s.stride != 0 {
		return false
	}
	s.counter = 0
	return true
}

// IntervalSampler selects a frame when at least the interval has passed since
// the previously selected frame, measured on capture timestamps.
type IntervalSampler struct {
	mu       sync.Mutex
	interval time.Duration
	last     time.Time
}

func NewIntervalSampler(interval time.Duration) *IntervalSampler {
	return &IntervalSampler{interval: interval}
}

func (s *IntervalSampler) Sample(frame model.Frame) bool {
	at := frame.CapturedAt
	if at.IsZero() {
		at = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.last.IsZero() && at.Sub(s.last) < s.interval {
		return false
	}
	s.last = at
	return true
}
