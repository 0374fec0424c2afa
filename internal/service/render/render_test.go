package render

import (
	"errors"
	"sync"
	"testing"

	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arlens/internal/dto"
	"arlens/internal/logger"
	"arlens/internal/model"
	"arlens/internal/service/presentation"
)

func TestLayout(t *testing.T) {
	results := []model.EnrichedResult{
		{Original: "EXIT", Derived: "निकास", Box: model.BoundingBox{X: 10, Y: 40, W: 60, H: 20}, Confidence: 0.874},
		{Original: "OK", Derived: "OK", Box: model.BoundingBox{X: 100, Y: 100, W: 30, H: 15}, Confidence: 0.5},
	}

	expected := []Label{
		{Text: "EXIT (87%)", X: 10, Y: 30},
		{Text: "निकास", X: 10, Y: 80, Translation: true},
		{Text: "OK (50%)", X: 100, Y: 90},
	}
	assert.Equal(t, expected, Layout(results))
	assert.Empty(t, Layout(nil))
}

type fakeFrames struct {
	frame model.Frame
	ok    bool
}

func (f *fakeFrames) Read() (model.Frame, bool) { return f.frame, f.ok }

type fakeRenderer struct {
	err  error
	seen [][]model.EnrichedResult
}

func (r *fakeRenderer) Render(_ model.Frame, results []model.EnrichedResult) ([]byte, error) {
	r.seen = append(r.seen, results)
	if r.err != nil {
		return nil, r.err
	}
	return []byte{0xFF, 0xD8, 0xFF, 0xD9}, nil
}

type fakeSink struct {
	mu       sync.Mutex
	messages [][]byte
}

func (s *fakeSink) Broadcast(message []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, message)
}

func TestLoop_TickBroadcastsFrameWithResults(t *testing.T) {
	frames := &fakeFrames{frame: model.Frame{Seq: 4, Width: 2, Height: 2, Data: make([]byte, 12)}, ok: true}
	state := presentation.New(false)
	state.SetLatest(model.EnrichedBatch{
		FrameSeq: 2,
		Target:   "hi",
		Results:  []model.EnrichedResult{{Original: "HELLO", Derived: "OLLEH"}},
	})
	renderer := &fakeRenderer{}
	sink := &fakeSink{}
	loop := NewLoop(frames, state, renderer, sink, 15, logger.Discard())

	require.True(t, loop.Tick())
	require.Len(t, sink.messages, 1)

	var message dto.ViewerFrame
	require.NoError(t, jsoniter.Unmarshal(sink.messages[0], &message))
	assert.Equal(t, "frame", message.Type)
	assert.Equal(t, uint64(4), message.FrameSeq)
	assert.Equal(t, uint64(2), message.ResultSeq)
	assert.Equal(t, "hi", message.Target)
	assert.Equal(t, "/9j/2Q==", message.Image)
	require.Len(t, message.Results, 1)
	assert.Equal(t, "OLLEH", message.Results[0].Derived)
}

func TestLoop_SkipsWhenNoNewFrame(t *testing.T) {
	frames := &fakeFrames{}
	sink := &fakeSink{}
	loop := NewLoop(frames, presentation.New(false), &fakeRenderer{}, sink, 15, logger.Discard())

	assert.False(t, loop.Tick(), "no frame captured yet")

	frames.frame, frames.ok = model.Frame{Seq: 1, Width: 1, Height: 1, Data: make([]byte, 3)}, true
	assert.True(t, loop.Tick())
	assert.False(t, loop.Tick(), "same frame should not be re-sent")

	assert.Len(t, sink.messages, 1)
	assert.Equal(t, uint64(2), loop.Stats().Idle)
}

func TestLoop_ResultsAreStickyAcrossFrames(t *testing.T) {
	frames := &fakeFrames{ok: true}
	state := presentation.New(false)
	state.SetLatest(model.EnrichedBatch{FrameSeq: 1, Results: []model.EnrichedResult{{Original: "STOP", Derived: "POTS"}}})
	renderer := &fakeRenderer{}
	loop := NewLoop(frames, state, renderer, &fakeSink{}, 15, logger.Discard())

	for seq := uint64(1); seq <= 3; seq++ {
		frames.frame = model.Frame{Seq: seq, Width: 1, Height: 1, Data: make([]byte, 3)}
		require.True(t, loop.Tick())
	}

	require.Len(t, renderer.seen, 3)
	for _, results := range renderer.seen {
		require.Len(t, results, 1)
		assert.Equal(t, "POTS", results[0].Derived)
	}
}

func TestLoop_EmptyResultsEncodeAsArray(t *testing.T) {
	frames := &fakeFrames{frame: model.Frame{Seq: 1, Width: 1, Height: 1, Data: make([]byte, 3)}, ok: true}
	sink := &fakeSink{}
	loop := NewLoop(frames, presentation.New(false), &fakeRenderer{}, sink, 15, logger.Discard())

	require.True(t, loop.Tick())
	assert.Contains(t, string(sink.messages[0]), `"results":[]`)
}

func TestLoop_RenderFailureIsCounted(t *testing.T) {
	frames := &fakeFrames{frame: model.Frame{Seq: 1, Width: 1, Height: 1, Data: make([]byte, 3)}, ok: true}
	sink := &fakeSink{}
	loop := NewLoop(frames, presentation.New(false), &fakeRenderer{err: errors.New("bad mat")}, sink, 15, logger.Discard())

	assert.False(t, loop.Tick())
	assert.Empty(t, sink.messages)
	assert.Equal(t, uint64(1), loop.Stats().Failures)
}
