// Package enrichment runs the enrichment stage: each detection of a batch is
// translated, through the cache, and the full batch is published in order.
package enrichment

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"arlens/internal/logger"
	"arlens/internal/model"
	"arlens/internal/service/cache"
	"arlens/internal/service/queue"
)

// Enricher derives a value for text, e.g. its translation into target.
// Implementations must be safe for concurrent use.
type Enricher interface {
	Enrich(ctx context.Context, text, target string) (string, error)
}

// EnricherFunc adapts a function to Enricher.
type EnricherFunc func(ctx context.Context, text, target string) (string, error)

func (f EnricherFunc) Enrich(ctx context.Context, text, target string) (string, error) {
	return f(ctx, text, target)
}

// Stats is a snapshot of pool counters.
type Stats struct {
	Workers     int    `json:"workers"`
	Batches     uint64 `json:"batches"`
	Items       uint64 `json:"items"`
	CacheHits   uint64 `json:"cache_hits"`
	EnrichCalls uint64 `json:"enrich_calls"`
	Failures    uint64 `json:"failures"`
	Dropped     uint64 `json:"dropped"`
}

// Pool is the enrichment worker pool.
type Pool struct {
	enricher Enricher
	cache    *cache.Cache
	target   string
	workers  int
	input    *queue.Queue[model.DetectionBatch]
	output   *queue.Queue[model.EnrichedBatch]
	timeout  time.Duration
	logger   *logger.Logger

	batches  atomic.Uint64
	items    atomic.Uint64
	hits     atomic.Uint64
	calls    atomic.Uint64
	failures atomic.Uint64
	dropped  atomic.Uint64
}

// NewPool creates a pool of workers sharing one enricher and one cache.
func NewPool(enricher Enricher, cache *cache.Cache, target string, workers int, input *queue.Queue[model.DetectionBatch], output *queue.Queue[model.EnrichedBatch], timeout time.Duration, logger *logger.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	return &Pool{
		enricher: enricher,
		cache:    cache,
		target:   target,
		workers:  workers,
		input:    input,
		output:   output,
		timeout:  timeout,
		logger:   logger,
	}
}

// Run starts the workers and blocks until ctx is cancelled and all of them
// have returned.
func (p *Pool) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			p.worker(ctx, workerID)
		}(i)
	}
	wg.Wait()
}

func (p *Pool) worker(ctx context.Context, workerID int) {
	p.logger.Info("🔧 Enrichment worker %d started", workerID)
	defer p.logger.Info("🔧 Enrichment worker %d stopped", workerID)

	for ctx.Err() == nil {
		batch, ok := p.input.Get(ctx, p.timeout)
		if !ok {
			continue
		}
		p.Process(ctx, batch)
	}
}

// Process enriches every detection of batch and publishes the completed
// batch. Results keep the order of the detections.
func (p *Pool) Process(ctx context.Context, batch model.DetectionBatch) {
	results := make([]model.EnrichedResult, len(batch.Detections))
	for i, d := range batch.Detections {
		results[i] = model.EnrichedResult{
			Original:   d.Text,
			Derived:    p.derive(ctx, d.Text),
			Box:        d.Box,
			Confidence: d.Confidence,
		}
	}
	p.items.Add(uint64(len(results)))

	enriched := model.EnrichedBatch{
		FrameSeq:    batch.FrameSeq,
		CapturedAt:  batch.CapturedAt,
		CompletedAt: time.Now(),
		Target:      p.target,
		Results:     results,
	}
	switch p.output.TryPut(enriched) {
	case queue.Dropped:
		p.dropped.Add(1)
		p.logger.Warning("⚠️  Result queue full - dropping enriched frame %d", batch.FrameSeq)
	default:
		p.batches.Add(1)
	}
}

// derive returns the cached or freshly computed value for text. A failed
// call yields the text itself and is not cached.
func (p *Pool) derive(ctx context.Context, text string) string {
	key := cache.Key{Text: text, Target: p.target}
	if value, ok := p.cache.Get(ctx, key); ok {
		p.hits.Add(1)
		return value
	}

	p.calls.Add(1)
	value, err := p.enrich(ctx, text)
	if err != nil {
		p.failures.Add(1)
		p.logger.Error("Enrichment failed for %q: %v", text, err)
		return text
	}

	p.cache.Put(ctx, key, value)
	return value
}

func (p *Pool) enrich(ctx context.Context, text string) (value string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("enricher panic: %v", r)
		}
	}()
	return p.enricher.Enrich(ctx, text, p.target)
}

// Stats returns a snapshot of the pool counters.
func (p *Pool) Stats() Stats {
	return Stats{
		Workers:     p.workers,
		Batches:     p.batches.Load(),
		Items:       p.items.Load(),
		CacheHits:   p.hits.Load(),
		EnrichCalls: p.calls.Load(),
		Failures:    p.failures.Load(),
		Dropped:     p.dropped.Load(),
	}
}
