package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"arlens/internal/config"
	"arlens/internal/logger"
	"arlens/internal/model"
	"arlens/internal/service/cache"
	"arlens/internal/service/capture"
	"arlens/internal/service/detection"
	"arlens/internal/service/enrichment"
	"arlens/internal/service/presentation"
	"arlens/internal/service/queue"
)

// ErrAlreadyRunning is returned by Start when the pipeline is not stopped.
var ErrAlreadyRunning = errors.New("pipeline is already running")

// State is the lifecycle state of the pipeline.
type State int32

const (
	Stopped State = iota
	Running
	Stopping
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	default:
		return "stopped"
	}
}

// BatchObserver is notified of every batch that reaches the presentation
// state. Observe is called on the presenter goroutine and must not block.
type BatchObserver interface {
	Observe(runID string, batch model.EnrichedBatch)
}

// Stats aggregates the counters of every pipeline stage.
type Stats struct {
	State          string             `json:"state"`
	RunID          string             `json:"runId"`
	Offered        uint64             `json:"offered"`
	Sampled        uint64             `json:"sampled"`
	Submitted      uint64             `json:"submitted"`
	Dropped        uint64             `json:"dropped"`
	Capture        capture.Stats      `json:"capture"`
	DetectionQueue queue.Stats        `json:"detectionQueue"`
	ResultQueue    queue.Stats        `json:"detectionResultQueue"`
	EnrichedQueue  queue.Stats        `json:"resultQueue"`
	Detection      detection.Stats    `json:"detection"`
	Enrichment     enrichment.Stats   `json:"enrichment"`
	Cache          cache.Stats        `json:"cache"`
	Presentation   presentation.Stats `json:"presentation"`
}

// Manager coordinates the pipeline: it samples frames from the source into
// the detection queue, runs both worker pools and moves finished batches into
// the presentation state.
type Manager struct {
	source       *capture.Source
	sampler      detection.Sampler
	cache        *cache.Cache
	presentation *presentation.State
	logger       *logger.Logger

	detectionQueue *queue.Queue[model.Frame]
	resultQueue    *queue.Queue[model.DetectionBatch]
	enrichedQueue  *queue.Queue[model.EnrichedBatch]
	detectionPool  *detection.Pool
	enrichmentPool *enrichment.Pool

	pollInterval time.Duration
	stopTimeout  time.Duration
	observer     BatchObserver

	mu     sync.Mutex
	state  atomic.Int32
	runID  atomic.Value
	cancel context.CancelFunc
	done   chan struct{}

	offered   atomic.Uint64
	sampled   atomic.Uint64
	submitted atomic.Uint64
	dropped   atomic.Uint64
}

// NewManager wires the stages together. One detection worker is started per
// detector; the enricher is shared by all enrichment workers.
func NewManager(source *capture.Source, detectors []detection.Detector, enricher enrichment.Enricher, enrichmentCache *cache.Cache, config *config.Config, logger *logger.Logger) *Manager {
	policy := queue.ParseDropPolicy(config.QueueDropPolicy)

	m := &Manager{
		source:         source,
		sampler:        detection.NewSampler(config),
		cache:          enrichmentCache,
		presentation:   presentation.New(config.StrictFreshness),
		logger:         logger,
		detectionQueue: queue.New[model.Frame](config.DetectionQueueSize, policy),
		resultQueue:    queue.New[model.DetectionBatch](config.DetectionResultQueueSize, policy),
		enrichedQueue:  queue.New[model.EnrichedBatch](config.ResultQueueSize, policy),
		pollInterval:   config.WorkerTimeout,
		stopTimeout:    config.StopTimeout,
	}
	m.detectionPool = detection.NewPool(detectors, m.detectionQueue, m.resultQueue, detection.NewFilter(config), config.WorkerTimeout, logger)
	m.enrichmentPool = enrichment.NewPool(enricher, enrichmentCache, config.TargetLang, config.EnrichmentWorkers, m.resultQueue, m.enrichedQueue, config.WorkerTimeout, logger)
	m.runID.Store("")
	return m
}

// SetObserver registers a sink for completed batches. It must be called
// before Start.
func (m *Manager) SetObserver(observer BatchObserver) {
	m.observer = observer
}

// Start opens the source and launches every pipeline goroutine. A device
// that fails to open is returned and the pipeline stays stopped.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if State(m.state.Load()) != Stopped {
		return ErrAlreadyRunning
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := m.source.Start(runCtx); err != nil {
		cancel()
		return err
	}

	runID := uuid.NewString()
	m.runID.Store(runID)
	m.cancel = cancel
	m.done = make(chan struct{})
	m.state.Store(int32(Running))

	var wg sync.WaitGroup
	for _, run := range []func(context.Context){
		m.samplerLoop,
		m.detectionPool.Run,
		m.enrichmentPool.Run,
		m.presenterLoop,
	} {
		wg.Add(1)
		go func(run func(context.Context)) {
			defer wg.Done()
			run(runCtx)
		}(run)
	}

	// The run ends on Stop or when the parent ctx is cancelled; either way
	// the state only becomes Stopped once every goroutine and the source
	// have exited.
	go func(done chan struct{}) {
		wg.Wait()
		cancel()
		m.source.Stop()
		m.state.Store(int32(Stopped))
		close(done)
	}(m.done)

	m.logger.Info("🎬 Pipeline %s started", runID)
	return nil
}

// Stop requests shutdown and waits, up to the configured stop timeout, for
// every pipeline goroutine to exit. When the timeout expires the pipeline
// stays Stopping and becomes Stopped on its own once the stragglers return;
// Start is refused until then. It is safe to call repeatedly and from any
// goroutine.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.done == nil {
		return
	}
	initiated := m.state.CompareAndSwap(int32(Running), int32(Stopping))
	if initiated {
		m.cancel()
	}

	select {
	case <-m.done:
		if initiated {
			m.logger.Info("🛑 Pipeline %s stopped", m.RunID())
		}
	case <-time.After(m.stopTimeout):
		m.logger.Warning("⚠️  Pipeline %s did not stop within %v, still stopping", m.RunID(), m.stopTimeout)
	}
}

// Done returns a channel closed when the current run has fully exited. It
// is nil before the first Start.
func (m *Manager) Done() <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.done
}

// Offer applies the sampling policy to frame and submits it for detection
// when selected. It never blocks and reports whether the frame was queued.
func (m *Manager) Offer(frame model.Frame) bool {
	m.offered.Add(1)
	if !m.sampler.Sample(frame) {
		return false
	}
	m.sampled.Add(1)

	if m.detectionQueue.TryPut(frame) == queue.Dropped {
		m.dropped.Add(1)
		m.logger.Debug("Detection queue full - skipping frame %d", frame.Seq)
		return false
	}
	m.submitted.Add(1)
	return true
}

// samplerLoop offers every newly published source frame to the pipeline.
func (m *Manager) samplerLoop(ctx context.Context) {
	ticker := time.NewTicker(max(m.pollInterval/10, time.Millisecond))
	defer ticker.Stop()

	var lastSeq uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if m.source.LatestSeq() == lastSeq {
			continue
		}
		frame, ok := m.source.Read()
		if !ok || frame.Seq == lastSeq {
			continue
		}
		lastSeq = frame.Seq
		m.Offer(frame)
	}
}

// presenterLoop moves finished batches into the presentation state.
func (m *Manager) presenterLoop(ctx context.Context) {
	for ctx.Err() == nil {
		batch, ok := m.enrichedQueue.Get(ctx, m.pollInterval)
		if !ok {
			continue
		}
		if !m.presentation.SetLatest(batch) {
			m.logger.Debug("Discarding stale batch for frame %d", batch.FrameSeq)
			continue
		}
		if m.observer != nil {
			m.observer.Observe(m.RunID(), batch)
		}
	}
}

// State returns the lifecycle state.
func (m *Manager) State() State {
	return State(m.state.Load())
}

// RunID identifies the current or most recent run, empty before the first Start.
func (m *Manager) RunID() string {
	return m.runID.Load().(string)
}

// Source returns the frame source feeding the pipeline.
func (m *Manager) Source() *capture.Source {
	return m.source
}

// Presentation returns the state holding the latest completed batch.
func (m *Manager) Presentation() *presentation.State {
	return m.presentation
}

// Stats returns a snapshot of all pipeline counters.
func (m *Manager) Stats() Stats {
	stats := Stats{
		State:          m.State().String(),
		RunID:          m.RunID(),
		Offered:        m.offered.Load(),
		Sampled:        m.sampled.Load(),
		Submitted:      m.submitted.Load(),
		Dropped:        m.dropped.Load(),
		Capture:        m.source.Stats(),
		DetectionQueue: m.detectionQueue.Stats(),
		ResultQueue:    m.resultQueue.Stats(),
		EnrichedQueue:  m.enrichedQueue.Stats(),
		Detection:      m.detectionPool.Stats(),
		Enrichment:     m.enrichmentPool.Stats(),
		Presentation:   m.presentation.Stats(),
	}
	if m.cache != nil {
		stats.Cache = m.cache.Stats()
	}
	return stats
}
