// Package presentation holds the latest completed enrichment batch for the
// display loop and the API.
package presentation

import (
	"sync"
	"time"

	"arlens/internal/model"
)

// State keeps the most recent complete batch. Once set, the display always
// has something to show until a newer batch replaces it.
type State struct {
	mu     sync.RWMutex
	batch  model.EnrichedBatch
	setAt  time.Time
	has    bool
	strict bool

	updates  uint64
	rejected uint64
}

// Snapshot is a point-in-time copy of the held batch.
type Snapshot struct {
	Batch model.EnrichedBatch `json:"batch"`
	SetAt time.Time           `json:"setAt"`
	Valid bool                `json:"valid"`
}

// Stats counts accepted and rejected updates.
type Stats struct {
	Updates  uint64 `json:"updates"`
	Rejected uint64 `json:"rejected"`
	Strict   bool   `json:"strict"`
}

// New creates an empty State. With strict set, a batch from an older frame
// than the one held is ignored; otherwise the last writer wins.
func New(strict bool) *State {
	return &State{strict: strict}
}

// SetLatest replaces the held batch and reports whether it was accepted.
func (s *State) SetLatest(batch model.EnrichedBatch) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.strict && s.has && batch.FrameSeq < s.batch.FrameSeq {
		s.rejected++
		return false
	}
	s.batch = batch.Clone()
	s.setAt = time.Now()
	s.has = true
	s.updates++
	return true
}

// Current returns a copy of the held batch, or false if nothing has been set.
func (s *State) Current() (model.EnrichedBatch, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.has {
		return model.EnrichedBatch{}, false
	}
	return s.batch.Clone(), true
}

// Snapshot returns the held batch together with the time it was set.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.has {
		return Snapshot{}
	}
	return Snapshot{Batch: s.batch.Clone(), SetAt: s.setAt, Valid: true}
}

func (s *State) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Stats{Updates: s.updates, Rejected: s.rejected, Strict: s.strict}
}
