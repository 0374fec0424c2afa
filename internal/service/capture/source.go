// Package capture owns the acquisition loop that keeps the single
// "latest frame" slot up to date.
package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"arlens/internal/logger"
	"arlens/internal/model"
)

const (
	// DefaultReadBackoff is the pause after a failed device read.
	DefaultReadBackoff = 10 * time.Millisecond
)

var (
	// ErrDeviceOpen is returned by Start when the device cannot be opened.
	ErrDeviceOpen = errors.New("capture device could not be opened")
	// ErrAlreadyStarted is returned by Start on a running source.
	ErrAlreadyStarted = errors.New("frame source already started")
)

// Device is a frame-producing hardware or network endpoint.
// Read blocks until a frame is available or fails; the returned frame's Data
// must not be retained or modified by the device afterwards.
type Device interface {
	Open() error
	Read() (model.Frame, error)
	Close() error
}

// Stats summarises the acquisition loop.
type Stats struct {
	Captured     uint64        `json:"captured"`
	Governed     uint64        `json:"governed"`
	ReadFailures uint64        `json:"readFailures"`
	LatestSeq    uint64        `json:"latestSeq"`
	LatestAge    time.Duration `json:"latestAge"`
	Running      bool          `json:"running"`
}

// Source runs the device read loop on its own goroutine and exposes the most
// recently published frame.
type Source struct {
	device    Device
	logger    *logger.Logger
	targetFPS float64
	backoff   time.Duration

	latest atomic.Pointer[model.Frame]
	seq    atomic.Uint64

	captured atomic.Uint64
	governed atomic.Uint64
	failures atomic.Uint64

	mu      sync.Mutex
	running bool
	active  atomic.Bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewSource creates a Source that publishes at most targetFPS frames per second.
// A targetFPS of zero or less disables the governor.
func NewSource(device Device, targetFPS float64, logger *logger.Logger) *Source {
	return &Source{
		device:    device,
		logger:    logger,
		targetFPS: targetFPS,
		backoff:   DefaultReadBackoff,
	}
}

// SetReadBackoff overrides the pause after a failed read. Must be called before Start.
func (s *Source) SetReadBackoff(d time.Duration) {
	s.backoff = d
}

// Start opens the device and launches the acquisition loop. A device that
// fails to open is reported here once and never retried.
func (s *Source) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrAlreadyStarted
	}
	if err := s.device.Open(); err != nil {
		s.logger.Error("Failed to open capture device: %v", err)
		return fmt.Errorf("%w: %v", ErrDeviceOpen, err)
	}

	limit := rate.Inf
	if s.targetFPS > 0 {
		limit = rate.Limit(s.targetFPS)
	}
	limiter := rate.NewLimiter(limit, 1)

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true
	s.active.Store(true)

	go s.loop(loopCtx, limiter, s.done)

	s.logger.Info("Frame source started (target %.1f fps)", s.targetFPS)
	return nil
}

// Stop ends the acquisition loop and releases the device. It waits for an
// in-flight device read to return. Calling Stop on a stopped source is a no-op.
func (s *Source) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	s.cancel()
	<-s.done
	if err := s.device.Close(); err != nil {
		s.logger.Warning("Error closing capture device: %v", err)
	}
	s.running = false
	s.active.Store(false)
	s.logger.Info("Frame source stopped after %d frames", s.captured.Load())
}

// Read returns a private copy of the latest frame, or false if no frame has
// been captured yet. It never waits for a new frame.
func (s *Source) Read() (model.Frame, bool) {
	frame := s.latest.Load()
	if frame == nil {
		return model.Frame{}, false
	}
	return frame.Clone(), true
}

// LatestSeq returns the sequence number of the latest frame, 0 if none.
func (s *Source) LatestSeq() uint64 {
	if frame := s.latest.Load(); frame != nil {
		return frame.Seq
	}
	return 0
}

// Running reports whether the acquisition loop is active.
func (s *Source) Running() bool {
	return s.active.Load()
}

// Stats returns a snapshot of the acquisition counters.
func (s *Source) Stats() Stats {
	stats := Stats{
		Captured:     s.captured.Load(),
		Governed:     s.governed.Load(),
		ReadFailures: s.failures.Load(),
		Running:      s.Running(),
	}
	if frame := s.latest.Load(); frame != nil {
		stats.LatestSeq = frame.Seq
		stats.LatestAge = time.Since(frame.CapturedAt)
	}
	return stats
}

func (s *Source) loop(ctx context.Context, limiter *rate.Limiter, done chan<- struct{}) {
	defer close(done)

	failing := false
	for ctx.Err() == nil {
		frame, err := s.device.Read()
		if err != nil {
			s.failures.Add(1)
			if !failing {
				s.logger.Warning("Capture read failed, retrying: %v", err)
				failing = true
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.backoff):
			}
			continue
		}
		if failing {
			s.logger.Info("Capture recovered after %d failed reads", s.failures.Load())
			failing = false
		}

		if !limiter.Allow() {
			s.governed.Add(1)
			continue
		}

		frame.Seq = s.seq.Add(1)
		if frame.CapturedAt.IsZero() {
			frame.CapturedAt = time.Now()
		}
		s.latest.Store(&frame)
		s.captured.Add(1)
	}
}
