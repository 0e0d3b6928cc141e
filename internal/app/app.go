package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"
	"visionapp/internal/config"
	"visionapp/internal/logger"
	"visionapp/internal/repository/sqlite"
	"visionapp/internal/route"
	"visionapp/internal/service"
	"visionapp/internal/service/ai"
	"visionapp/internal/service/ai/dnn"
	"visionapp/internal/service/capture"
	"visionapp/internal/service/capture/device"
	"visionapp/internal/service/display"
	"visionapp/internal/service/storage"
	"visionapp/internal/service/websocket"
)

// shutdownTimeout bounds the suspend hook.
const shutdownTimeout = 10 * time.Second

type App struct {
	config        *config.Config
	logger        *logger.Logger
	db            *sqlite.DB
	bufferService *storage.BufferService
	hubService    *websocket.HubService
	display       *display.Display
	manager       *service.Manager
	server        *http.Server
	background    sync.WaitGroup
}

// NewApp wires every component from the environment configuration.
func NewApp() (*App, error) {
	cfg := config.Load()
	log := logger.NewLogger(cfg)
	return newApp(cfg, log, newEngine(cfg), newSource(cfg, log))
}

func newApp(cfg *config.Config, log *logger.Logger, engine ai.Engine, source capture.Source) (*App, error) {
	db, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		log.Close()
		return nil, err
	}
	journal := sqlite.NewEvaluationRepository(db)

	buffer := storage.NewBufferService(cfg, log, journal)
	hub := websocket.NewHubService(log)
	screen := display.NewDisplay(hub, log)

	mng := service.NewManager(engine, source, screen, buffer, cfg, log)

	router := route.SetupRoutes(route.Dependencies{
		Config:  cfg,
		Logger:  log,
		Manager: mng,
		Display: screen,
		Hub:     hub,
		Buffer:  buffer,
		Journal: journal,
	})

	return &App{
		config:        cfg,
		logger:        log,
		db:            db,
		bufferService: buffer,
		hubService:    hub,
		display:       screen,
		manager:       mng,
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

func newEngine(cfg *config.Config) ai.Engine {
	if cfg.Engine == config.EngineDNN {
		return dnn.NewEngine()
	}
	return ai.NewONNXEngine(cfg.ONNXLibraryPath)
}

func newSource(cfg *config.Config, log *logger.Logger) capture.Source {
	if cfg.CameraSource == config.SourceUDP {
		return capture.NewUDPSource(cfg, log)
	}
	return device.NewSource(cfg, log)
}

// Run serves until ctx is cancelled and then runs the cleanup hook. The
// pipeline starts once the HTTP server is listening.
func (a *App) Run(ctx context.Context) error {
	backgroundCtx, stopBackground := context.WithCancel(context.Background())
	defer stopBackground()

	a.background.Add(2)
	go func() {
		defer a.background.Done()
		a.hubService.Run(backgroundCtx)
	}()
	go func() {
		defer a.background.Done()
		a.bufferService.Run(backgroundCtx)
	}()

	fmt.Printf("📷 Vision App\n")
	fmt.Printf("📍 URL: http://localhost:%d\n", a.config.Port)
	fmt.Printf("🔑 Password: %s\n", a.config.Password)
	fmt.Printf("🤖 AI Model: %s (%s)\n", a.config.ModelPath, a.config.Engine)
	fmt.Printf("🎥 Camera: %s\n", a.config.CameraSource)

	serveErr := make(chan error, 1)
	go func() {
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	if err := a.manager.Start(ctx); err != nil {
		a.logger.Warning("Pipeline started with errors: %v", err)
	}

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-serveErr:
	}

	return errors.Join(runErr, a.shutdown(stopBackground))
}

// shutdown stops the pipeline and the HTTP server, then the hub and the
// journal flusher, and closes the database and the logger last.
func (a *App) shutdown(stopBackground context.CancelFunc) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	a.logger.Info("Shutting down")

	var errs []error
	if err := a.manager.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("pipeline: %w", err))
	}
	if err := a.server.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http server: %w", err))
	}

	stopBackground()
	a.background.Wait()
	a.bufferService.FlushRecords()

	if err := a.db.Close(); err != nil {
		errs = append(errs, fmt.Errorf("database: %w", err))
	}
	a.logger.Close()
	return errors.Join(errs...)
}
