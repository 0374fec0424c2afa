// Package detection runs the detection stage: workers take sampled frames,
// call a Detector and publish the validated detections of each frame.
package detection

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"arlens/internal/logger"
	"arlens/internal/model"
	"arlens/internal/service/queue"
)

// Detector finds labeled regions in a frame. Implementations need not be
// safe for concurrent use; every worker owns one.
type Detector interface {
	Detect(ctx context.Context, frame model.Frame) ([]model.Detection, error)
}

// DetectorFunc adapts a function to Detector.
type DetectorFunc func(ctx context.Context, frame model.Frame) ([]model.Detection, error)

func (f DetectorFunc) Detect(ctx context.Context, frame model.Frame) ([]model.Detection, error) {
	return f(ctx, frame)
}

// Stats is a snapshot of pool counters.
type Stats struct {
	Workers        int    `json:"workers"`
	Frames         uint64 `json:"frames"`
	Batches        uint64 `json:"batches"`
	Kept           uint64 `json:"kept"`
	Rejected       uint64 `json:"rejected"`
	DetectorErrors uint64 `json:"detector_errors"`
	Dropped        uint64 `json:"dropped"`
}

// Pool is the detection worker pool.
type Pool struct {
	detectors []Detector
	input     *queue.Queue[model.Frame]
	output    *queue.Queue[model.DetectionBatch]
	filter    Filter
	timeout   time.Duration
	logger    *logger.Logger

	frames   atomic.Uint64
	batches  atomic.Uint64
	kept     atomic.Uint64
	rejected atomic.Uint64
	errors   atomic.Uint64
	dropped  atomic.Uint64
}

// NewPool creates one worker per detector. timeout bounds each wait on the
// input queue, which is how often workers notice cancellation.
func NewPool(detectors []Detector, input *queue.Queue[model.Frame], output *queue.Queue[model.DetectionBatch], filter Filter, timeout time.Duration, logger *logger.Logger) *Pool {
	return &Pool{
		detectors: detectors,
		input:     input,
		output:    output,
		filter:    filter,
		timeout:   timeout,
		logger:    logger,
	}
}

// Run starts the workers and blocks until ctx is cancelled and all of them
// have returned.
func (p *Pool) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := range p.detectors {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			p.worker(ctx, workerID)
		}(i)
	}
	wg.Wait()
}

func (p *Pool) worker(ctx context.Context, workerID int) {
	p.logger.Info("🔧 Detection worker %d started", workerID)
	defer p.logger.Info("🔧 Detection worker %d stopped", workerID)

	for ctx.Err() == nil {
		frame, ok := p.input.Get(ctx, p.timeout)
		if !ok {
			continue
		}
		p.Process(ctx, workerID, frame)
	}
}

// Process runs one frame through the worker's detector and publishes the
// surviving detections. Frames with nothing valid publish nothing.
func (p *Pool) Process(ctx context.Context, workerID int, frame model.Frame) {
	p.frames.Add(1)

	raw, err := p.detect(ctx, workerID, frame)
	if err != nil {
		p.errors.Add(1)
		p.logger.Error("Detection failed on frame %d (worker %d): %v", frame.Seq, workerID, err)
		return
	}

	detections := make([]model.Detection, 0, len(raw))
	for _, d := range raw {
		if accepted, ok := p.filter.Accept(d, frame.Width, frame.Height); ok {
			detections = append(detections, accepted)
		}
	}
	p.kept.Add(uint64(len(detections)))
	p.rejected.Add(uint64(len(raw) - len(detections)))

	if len(detections) == 0 {
		return
	}

	batch := model.DetectionBatch{
		FrameSeq:   frame.Seq,
		CapturedAt: frame.CapturedAt,
		Detections: detections,
	}
	switch p.output.TryPut(batch) {
	case queue.Dropped:
		p.dropped.Add(1)
		p.logger.Warning("⚠️  Detection result queue full - dropping frame %d", frame.Seq)
	default:
		p.batches.Add(1)
	}
}

func (p *Pool) detect(ctx context.Context, workerID int, frame model.Frame) (detections []model.Detection, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("detector panic: %v", r)
		}
	}()
	return p.detectors[workerID].Detect(ctx, frame)
}

// Stats returns a snapshot of the pool counters.
func (p *Pool) Stats() Stats {
	return Stats{
		Workers:        len(p.detectors),
		Frames:         p.frames.Load(),
		Batches:        p.batches.Load(),
		Kept:           p.kept.Load(),
		Rejected:       p.rejected.Load(),
		DetectorErrors: p.errors.Load(),
		Dropped:        p.dropped.Load(),
	}
}
