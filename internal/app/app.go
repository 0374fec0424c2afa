package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"arlens/internal/config"
	"arlens/internal/device"
	"arlens/internal/handler"
	"arlens/internal/logger"
	"arlens/internal/repository"
	"arlens/internal/repository/sqlite"
	"arlens/internal/route"
	"arlens/internal/service"
	"arlens/internal/service/ai"
	"arlens/internal/service/cache"
	"arlens/internal/service/capture"
	"arlens/internal/service/detection"
	"arlens/internal/service/enrichment"
	"arlens/internal/service/queue"
	"arlens/internal/service/render"
	"arlens/internal/service/render/overlay"
	"arlens/internal/service/storage"
	"arlens/internal/service/websocket"
)

const shutdownTimeout = 5 * time.Second

// Stats is the body of /api/stats.
type Stats struct {
	Pipeline service.Stats        `json:"pipeline"`
	Viewers  int                  `json:"viewers"`
	Outbox   queue.Stats          `json:"outbox"`
	Render   render.Stats         `json:"render"`
	History  *storage.BufferStats `json:"history,omitempty"`
}

type App struct {
	config          *config.Config
	logger          *logger.Logger
	manager         *service.Manager
	hubService      *websocket.HubService
	displayLoop     *render.Loop
	bufferService   *storage.BufferService
	history         repository.BatchRepository
	pipelineClosers []io.Closer
	closers         []io.Closer
}

// NewApp loads configuration and builds every collaborator. Resources opened
// here are released by Run on return, or by Close if Run is never called.
func NewApp(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log, err := logger.NewLogger(cfg)
	if err != nil {
		return nil, err
	}

	a := &App{config: cfg, logger: log}
	if err := a.build(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context) error {
	cfg, log := a.config, a.logger

	var dev capture.Device
	if device.IsUDP(cfg.Device) {
		dev = device.NewUDPDevice(cfg.Device)
	} else {
		dev = device.NewCameraDevice(cfg.Device, cfg.FrameWidth, cfg.FrameHeight, cfg.FrameFPS)
	}
	source := capture.NewSource(dev, cfg.FrameFPS, log)

	// Each worker gets its own OCR client
	detectors := make([]detection.Detector, 0, cfg.DetectionWorkers)
	for i := 0; i < cfg.DetectionWorkers; i++ {
		detector, err := ai.NewOCRDetector(cfg, log)
		if err != nil {
			return err
		}
		a.pipelineClosers = append(a.pipelineClosers, detector)
		detectors = append(detectors, detector)
	}

	var enricher enrichment.Enricher = ai.IdentityEnricher{}
	if cfg.GeminiAPIKey != "" {
		gemini, err := ai.NewGeminiEnricher(ctx, cfg.GeminiAPIKey, cfg.GeminiModelName)
		if err != nil {
			return err
		}
		a.pipelineClosers = append(a.pipelineClosers, gemini)
		enricher = gemini
	} else {
		log.Warning("⚠️  GEMINI_API_KEY not set, derived text equals the detected text")
	}
	enricher = enrichment.NewRateLimited(enricher, cfg.EnrichRateLimit)

	enrichmentCache := cache.New(cfg.CacheCapacity, cfg.CacheTTL, log)
	if cfg.RemoteCacheEnabled() {
		store, err := cache.NewRedisStore(ctx, cfg.RedisAddress, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			log.Warning("⚠️  Redis cache tier unavailable, using local cache only: %v", err)
		} else {
			a.pipelineClosers = append(a.pipelineClosers, store)
			enrichmentCache.WithRemote(store)
		}
	}

	a.manager = service.NewManager(source, detectors, enricher, enrichmentCache, cfg, log)

	if cfg.HistoryEnabled() {
		if err := os.MkdirAll(filepath.Dir(cfg.HistoryDBPath), 0755); err != nil {
			return fmt.Errorf("failed to create database directory: %w", err)
		}
		db, err := sqlite.New(cfg.HistoryDBPath)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, db)
		a.history = sqlite.NewBatchRepository(db)
		a.bufferService = storage.NewBufferService(cfg, a.history, log)
		a.manager.SetObserver(a.bufferService)
	}

	a.hubService = websocket.NewHubService(cfg.ViewerQueue, log)
	a.displayLoop = render.NewLoop(source, a.manager.Presentation(), overlay.NewRenderer(cfg.JPEGQuality), a.hubService, cfg.DisplayFPS, log)
	return nil
}

// Stats collects the counters of every running component.
func (a *App) Stats() Stats {
	stats := Stats{
		Pipeline: a.manager.Stats(),
		Viewers:  a.hubService.GetClientCount(),
		Outbox:   a.hubService.Stats(),
		Render:   a.displayLoop.Stats(),
	}
	if a.bufferService != nil {
		history := a.bufferService.Stats()
		stats.History = &history
	}
	return stats
}

// Run starts the pipeline, background services and the HTTP server and
// blocks until ctx is cancelled or the server fails.
func (a *App) Run(ctx context.Context) error {
	defer a.Close()

	background, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	defer func() {
		cancel()
		wg.Wait()
	}()

	// Start background services
	services := []func(context.Context){a.hubService.Run, a.displayLoop.Run}
	if a.bufferService != nil {
		services = append(services, a.bufferService.Run)
	}
	for _, run := range services {
		wg.Add(1)
		go func(run func(context.Context)) {
			defer wg.Done()
			run(background)
		}(run)
	}

	if err := a.manager.Start(ctx); err != nil {
		return fmt.Errorf("failed to start pipeline: %w", err)
	}
	defer a.manager.Stop()

	router := route.SetupRoutes(route.Deps{
		Config:       a.config,
		Logger:       a.logger,
		Hub:          a.hubService,
		Presentation: a.manager.Presentation(),
		History:      a.history,
		Stats:        handler.StatsHandler(a.Stats),
	})
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.config.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	fmt.Printf("🚀 arlens\n")
	fmt.Printf("📍 URL: http://localhost:%d\n", a.config.Port)
	fmt.Printf("📷 Device: %s\n", a.config.Device)
	fmt.Printf("🌐 Target language: %s\n", a.config.TargetLang)
	if a.config.HistoryEnabled() {
		fmt.Printf("📁 History: %s\n", a.config.HistoryDBPath)
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.logger.Info("Shutting down")
	a.manager.Stop()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()
	if err := server.Shutdown(shutdownCtx); err != nil {
		a.logger.Warning("HTTP server shutdown: %v", err)
	}
	return nil
}

// Close releases detectors, clients and the history database. Clients used
// by pipeline workers are left open while a worker may still be using them.
func (a *App) Close() {
	if a.manager == nil || a.manager.State() == service.Stopped {
		a.closeAll(a.pipelineClosers)
	} else {
		a.logger.Warning("⚠️  Pipeline still stopping, leaving %d worker clients open", len(a.pipelineClosers))
	}
	a.pipelineClosers = nil

	a.closeAll(a.closers)
	a.closers = nil
}

func (a *App) closeAll(closers []io.Closer) {
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i].Close(); err != nil {
			a.logger.Warning("Error closing resource: %v", err)
		}
	}
}
