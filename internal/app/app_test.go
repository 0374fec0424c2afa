package app

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arlens/internal/config"
	"arlens/internal/logger"
	"arlens/internal/model"
	"arlens/internal/service"
	"arlens/internal/service/ai"
	"arlens/internal/service/cache"
	"arlens/internal/service/capture"
	"arlens/internal/service/detection"
)

type idleDevice struct{}

func (idleDevice) Open() error { return nil }

func (idleDevice) Read() (model.Frame, error) {
	time.Sleep(5 * time.Millisecond)
	return model.Frame{Data: make([]byte, 64*48*3), Width: 64, Height: 48, Channels: 3}, nil
}

func (idleDevice) Close() error { return nil }

type countingCloser struct {
	closed atomic.Int32
}

func (c *countingCloser) Close() error {
	c.closed.Add(1)
	return nil
}

func testApp(detector detection.Detector, stopTimeout time.Duration) *App {
	cfg := &config.Config{
		FrameFPS:                 100,
		DetectionQueueSize:       1,
		DetectionResultQueueSize: 1,
		ResultQueueSize:          1,
		QueueDropPolicy:          "drop_newest",
		DetectionStride:          1,
		MinConfidence:            0.5,
		MaxBoxWidth:              500,
		MaxBoxHeight:             100,
		MinTextLength:            2,
		CacheCapacity:            4,
		CacheTTL:                 time.Minute,
		TargetLang:               "hi",
		EnrichmentWorkers:        1,
		WorkerTimeout:            10 * time.Millisecond,
		StopTimeout:              stopTimeout,
	}
	log := logger.Discard()
	source := capture.NewSource(idleDevice{}, cfg.FrameFPS, log)
	return &App{
		config:  cfg,
		logger:  log,
		manager: service.NewManager(source, []detection.Detector{detector}, ai.IdentityEnricher{}, cache.New(cfg.CacheCapacity, cfg.CacheTTL, log), cfg, log),
	}
}

func TestApp_CloseKeepsWorkerClientsWhileStopping(t *testing.T) {
	entered := make(chan struct{}, 1)
	slow := detection.DetectorFunc(func(context.Context, model.Frame) ([]model.Detection, error) {
		select {
		case entered <- struct{}{}:
		default:
		}
		time.Sleep(300 * time.Millisecond)
		return nil, nil
	})
	a := testApp(slow, 20*time.Millisecond)
	ocr, db := &countingCloser{}, &countingCloser{}
	a.pipelineClosers = append(a.pipelineClosers, ocr)
	a.closers = append(a.closers, db)

	require.NoError(t, a.manager.Start(context.Background()))
	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("detector never called")
	}
	a.manager.Stop()
	require.Equal(t, service.Stopping, a.manager.State())

	a.Close()
	assert.Zero(t, ocr.closed.Load(), "a worker is still inside Detect")
	assert.Equal(t, int32(1), db.closed.Load())

	<-a.manager.Done()
}

func TestApp_CloseReleasesEverythingOnceStopped(t *testing.T) {
	a := testApp(detection.DetectorFunc(func(context.Context, model.Frame) ([]model.Detection, error) {
		return nil, nil
	}), time.Second)
	ocr, db := &countingCloser{}, &countingCloser{}
	a.pipelineClosers = append(a.pipelineClosers, ocr)
	a.closers = append(a.closers, db)

	require.NoError(t, a.manager.Start(context.Background()))
	a.manager.Stop()
	require.Equal(t, service.Stopped, a.manager.State())

	a.Close()
	assert.Equal(t, int32(1), ocr.closed.Load())
	assert.Equal(t, int32(1), db.closed.Load())

	a.Close()
	assert.Equal(t, int32(1), ocr.closed.Load(), "close is not repeated")
}
