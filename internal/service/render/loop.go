package render

import (
	"context"
	"encoding/base64"
	"sync/atomic"
	"time"

	jsoniter "github.com/json-iterator/go"

	"arlens/internal/dto"
	"arlens/internal/logger"
	"arlens/internal/model"
	"arlens/internal/service/presentation"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Renderer draws results over a frame and returns an encoded image.
type Renderer interface {
	Render(frame model.Frame, results []model.EnrichedResult) ([]byte, error)
}

// FrameReader returns the latest frame without waiting.
type FrameReader interface {
	Read() (model.Frame, bool)
}

// Broadcaster delivers a message to viewers without blocking.
type Broadcaster interface {
	Broadcast(message []byte)
}

// Stats counts display ticks by outcome.
type Stats struct {
	Rendered uint64 `json:"rendered"`
	Idle     uint64 `json:"idle"`
	Failures uint64 `json:"failures"`
}

// Loop renders the newest frame with the current results once per tick.
type Loop struct {
	frames   FrameReader
	state    *presentation.State
	renderer Renderer
	sink     Broadcaster
	interval time.Duration
	logger   *logger.Logger

	lastSeq  uint64
	rendered atomic.Uint64
	idle     atomic.Uint64
	failures atomic.Uint64
}

// NewLoop creates a display loop running at fps ticks per second.
func NewLoop(frames FrameReader, state *presentation.State, renderer Renderer, sink Broadcaster, fps float64, logger *logger.Logger) *Loop {
	interval := time.Second
	if fps > 0 {
		interval = time.Duration(float64(time.Second) / fps)
	}
	return &Loop{
		frames:   frames,
		state:    state,
		renderer: renderer,
		sink:     sink,
		interval: interval,
		logger:   logger,
	}
}

// Run ticks until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	l.logger.Info("🖥️  Display loop started (%v per frame)", l.interval)
	for {
		select {
		case <-ctx.Done():
			l.logger.Info("🖥️  Display loop stopped")
			return
		case <-ticker.C:
			l.Tick()
		}
	}
}

// Tick renders and broadcasts one frame. It returns false when there was no
// new frame to show or rendering failed.
func (l *Loop) Tick() bool {
	frame, ok := l.frames.Read()
	if !ok || frame.Seq == l.lastSeq {
		l.idle.Add(1)
		return false
	}
	l.lastSeq = frame.Seq

	snapshot := l.state.Snapshot()
	image, err := l.renderer.Render(frame, snapshot.Batch.Results)
	if err != nil {
		l.failures.Add(1)
		l.logger.Error("Failed to render frame %d: %v", frame.Seq, err)
		return false
	}

	message := dto.ViewerFrame{
		Type:       "frame",
		FrameSeq:   frame.Seq,
		Image:      base64.StdEncoding.EncodeToString(image),
		Results:    snapshot.Batch.Results,
		RenderedAt: time.Now().UnixMilli(),
	}
	if snapshot.Valid {
		message.ResultSeq = snapshot.Batch.FrameSeq
		message.ResultAge = time.Since(snapshot.SetAt).Milliseconds()
		message.Target = snapshot.Batch.Target
	}
	if message.Results == nil {
		message.Results = []model.EnrichedResult{}
	}

	payload, err := json.Marshal(message)
	if err != nil {
		l.failures.Add(1)
		l.logger.Error("Failed to encode viewer frame: %v", err)
		return false
	}

	l.sink.Broadcast(payload)
	l.rendered.Add(1)
	return true
}

func (l *Loop) Stats() Stats {
	return Stats{
		Rendered: l.rendered.Load(),
		Idle:     l.idle.Load(),
		Failures: l.failures.Load(),
	}
}
