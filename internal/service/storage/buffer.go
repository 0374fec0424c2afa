package storage

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"arlens/internal/config"
	"arlens/internal/logger"
	"arlens/internal/model"
	"arlens/internal/repository"
)

type bufferedBatch struct {
	runID string
	batch model.EnrichedBatch
}

// BufferStats counts what happened to observed batches.
type BufferStats struct {
	Buffered  int    `json:"buffered"`
	Persisted uint64 `json:"persisted"`
	Skipped   uint64 `json:"skipped"`
	Failed    uint64 `json:"failed"`
	Pruned    uint64 `json:"pruned"`
}

// BufferService buffers completed batches in memory and periodically flushes
// them to the history repository. Consecutive batches of a run that show the
// same texts are recorded once.
type BufferService struct {
	repo          repository.BatchRepository
	bufferLimit   int
	flushInterval time.Duration
	retention     time.Duration
	logger        *logger.Logger

	mu          sync.Mutex
	batches     []bufferedBatch
	bufferCount map[string]int
	lastTexts   map[string]string

	persisted atomic.Uint64
	skipped   atomic.Uint64
	failed    atomic.Uint64
	pruned    atomic.Uint64
}

// NewBufferService creates a history buffer writing to repo.
func NewBufferService(config *config.Config, repo repository.BatchRepository, logger *logger.Logger) *BufferService {
	return &BufferService{
		repo:          repo,
		bufferLimit:   config.HistoryBufferLimit,
		flushInterval: config.HistoryFlushInterval,
		retention:     config.HistoryRetention,
		logger:        logger,
		bufferCount:   make(map[string]int),
		lastTexts:     make(map[string]string),
	}
}

// Run flushes the buffer every flush interval and once more when ctx is cancelled.
func (s *BufferService) Run(ctx context.Context) {
	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.Flush()
			return
		case <-ticker.C:
			s.Flush()
			s.Prune(time.Now())
		}
	}
}

// Observe buffers a completed batch. It only takes a mutex, so it is safe to
// call from the pipeline's presenter.
func (s *BufferService) Observe(runID string, batch model.EnrichedBatch) {
	texts := signature(batch)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lastTexts[runID] == texts {
		s.skipped.Add(1)
		return
	}
	if s.bufferCount[runID] >= s.bufferLimit {
		s.skipped.Add(1)
		return
	}

	s.lastTexts[runID] = texts
	s.batches = append(s.batches, bufferedBatch{runID: runID, batch: batch.Clone()})
	s.bufferCount[runID]++
}

// Flush writes buffered batches to the repository and resets the buffer. It
// returns the number of batches persisted.
func (s *BufferService) Flush() int {
	s.mu.Lock()
	pending := s.batches
	s.batches = nil
	s.bufferCount = make(map[string]int)
	s.mu.Unlock()

	if len(pending) == 0 {
		return 0
	}

	saved := 0
	for _, item := range pending {
		record, results := toRecords(item.runID, item.batch)
		if _, err := s.repo.InsertBatch(record, results); err != nil {
			s.failed.Add(1)
			s.logger.Error("Error saving batch for frame %d: %v", item.batch.FrameSeq, err)
			continue
		}
		saved++
	}
	s.persisted.Add(uint64(saved))

	s.logger.Info("Flushed %d batches to history", saved)
	return saved
}

// Prune deletes batches completed more than the retention period before now.
// It does nothing when retention is disabled.
func (s *BufferService) Prune(now time.Time) int64 {
	if s.retention <= 0 {
		return 0
	}
	deleted, err := s.repo.DeleteBefore(now.Add(-s.retention))
	if err != nil {
		s.logger.Error("Error pruning history: %v", err)
		return 0
	}
	if deleted > 0 {
		s.pruned.Add(uint64(deleted))
		s.logger.Info("Pruned %d batches older than %v", deleted, s.retention)
	}
	return deleted
}

// Stats returns the buffer counters.
func (s *BufferService) Stats() BufferStats {
	s.mu.Lock()
	buffered := len(s.batches)
	s.mu.Unlock()

	return BufferStats{
		Buffered:  buffered,
		Persisted: s.persisted.Load(),
		Skipped:   s.skipped.Load(),
		Failed:    s.failed.Load(),
		Pruned:    s.pruned.Load(),
	}
}

func toRecords(runID string, batch model.EnrichedBatch) (*model.BatchRecord, []model.ResultRecord) {
	record := &model.BatchRecord{
		BatchID:     uuid.NewString(),
		RunID:       runID,
		FrameSeq:    batch.FrameSeq,
		Target:      batch.Target,
		CapturedAt:  batch.CapturedAt,
		CompletedAt: batch.CompletedAt,
	}

	results := make([]model.ResultRecord, len(batch.Results))
	for i, r := range batch.Results {
		results[i] = model.ResultRecord{
			Position:   i,
			Original:   r.Original,
			Derived:    r.Derived,
			X:          r.Box.X,
			Y:          r.Box.Y,
			Width:      r.Box.W,
			Height:     r.Box.H,
			Confidence: r.Confidence,
		}
	}
	return record, results
}

func signature(batch model.EnrichedBatch) string {
	texts := make([]string, len(batch.Results))
	for i, r := range batch.Results {
		texts[i] = r.Original + "\x1f" + r.Derived
	}
	return strings.Join(texts, "\x1e")
}
