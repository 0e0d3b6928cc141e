// Package service runs the capture → classify → display pipeline.
package service

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"
	"visionapp/internal/config"
	"visionapp/internal/dto"
	"visionapp/internal/logger"
	"visionapp/internal/model"
	"visionapp/internal/service/ai"
	"visionapp/internal/service/capture"
	"visionapp/internal/service/gate"

	"github.com/google/uuid"
)

// Texts shown to the user.
const (
	StatusLoading     = "Loading model"
	StatusLoaded      = "Model loaded"
	StatusErrorPrefix = "Error: "

	DialogNoAccess      = "No access"
	DialogAccessDenied  = "The app was denied access to the camera"
	DialogExclusiveBusy = "Another app has exclusive access"
)

// Sink is the visible surface the pipeline writes to.
type Sink interface {
	SetStatus(text string)
	SetScore(text string)
	ShowDialog(title, content string)
	SetPreviewing(previewing bool)
	PushPreview(frame *capture.Frame)
}

// Recorder keeps a journal of completed evaluations.
type Recorder interface {
	Add(record model.Evaluation)
}

type Manager struct {
	engine   ai.Engine
	source   capture.Source
	sink     Sink
	recorder Recorder
	logger   *logger.Logger

	modelPath       string
	previewInterval int64
	retryInterval   time.Duration

	gate gate.Gate

	mu          sync.Mutex
	model       ai.Model
	cancelWatch context.CancelFunc
	stopping    bool

	lifecycle context.Context
	cancel    context.CancelFunc

	previewing  atomic.Bool
	deniedShown atomic.Bool
	busyShown   atomic.Bool

	frames    atomic.Int64
	admitted  atomic.Int64
	dropped   atomic.Int64
	evaluated atomic.Int64
	failed    atomic.Int64

	cycles  sync.WaitGroup
	watcher sync.WaitGroup
}

// NewManager wires the pipeline. recorder may be nil.
func NewManager(engine ai.Engine, source capture.Source, sink Sink, recorder Recorder, config *config.Config, logger *logger.Logger) *Manager {
	lifecycle, cancel := context.WithCancel(context.Background())

	interval := config.PreviewInterval
	if interval < 1 {
		interval = 1
	}
	retry := time.Duration(config.DeviceRetryInterval) * time.Second
	if retry <= 0 {
		retry = time.Second
	}

	return &Manager{
		engine:          engine,
		source:          source,
		sink:            sink,
		recorder:        recorder,
		logger:          logger,
		modelPath:       config.ModelPath,
		previewInterval: int64(interval),
		retryInterval:   retry,
		lifecycle:       lifecycle,
		cancel:          cancel,
	}
}

// Start loads the model and then starts the camera preview. A model load
// failure does not keep the preview from starting.
func (m *Manager) Start(ctx context.Context) error {
	m.logger.Info("🎬 Pipeline starting with source %s", m.source.Name())

	loadErr := m.LoadModel(ctx)
	previewErr := m.StartPreview(ctx)

	return errors.Join(loadErr, previewErr)
}

// LoadModel loads the bundled model once. On failure the status shows the
// error and no inference runs for the rest of the lifetime.
func (m *Manager) LoadModel(ctx context.Context) error {
	m.sink.SetStatus(StatusLoading)

	loaded, err := m.engine.Load(ctx, m.modelPath)
	if err != nil {
		m.sink.SetStatus(StatusErrorPrefix + err.Error())
		m.logger.Error("❌ Failed to load model %s: %v", m.modelPath, err)
		return err
	}

	m.mu.Lock()
	m.model = loaded
	m.mu.Unlock()

	m.sink.SetStatus(StatusLoaded)
	m.logger.Info("🧠 Model loaded from %s", m.modelPath)
	return nil
}

// StartPreview starts the frame source with the frame-arrival handler.
func (m *Manager) StartPreview(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := m.startSource()
	switch {
	case err == nil:
		return nil
	case errors.Is(err, capture.ErrCameraAccessDenied):
		m.showDenied()
	case errors.Is(err, capture.ErrDeviceBusy):
		if m.busyShown.CompareAndSwap(false, true) {
			m.sink.ShowDialog(DialogNoAccess, DialogExclusiveBusy)
		}
		m.watchDevice()
	default:
		m.logger.Error("Failed to start camera preview: %v", err)
	}
	return err
}

func (m *Manager) startSource() error {
	if m.lifecycle.Err() != nil {
		return m.lifecycle.Err()
	}
	if err := m.source.Start(m.lifecycle, m.onFrame); err != nil {
		return err
	}
	m.previewing.Store(true)
	m.sink.SetPreviewing(true)
	m.logger.Info("📹 Preview started (%s)", m.source.Name())
	return nil
}

func (m *Manager) showDenied() {
	if m.deniedShown.CompareAndSwap(false, true) {
		m.sink.ShowDialog(DialogNoAccess, DialogAccessDenied)
	}
}

// watchDevice retries the camera until another app releases exclusive
// control. Only one watcher runs at a time.
func (m *Manager) watchDevice() {
	m.mu.Lock()
	if m.cancelWatch != nil {
		m.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(m.lifecycle)
	m.cancelWatch = cancel
	m.mu.Unlock()

	m.watcher.Add(1)
	go func() {
		defer m.watcher.Done()
		defer func() {
			m.mu.Lock()
			m.cancelWatch = nil
			m.mu.Unlock()
			cancel()
		}()

		ticker := time.NewTicker(m.retryInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			if m.previewing.Load() {
				return
			}

			err := m.startSource()
			switch {
			case err == nil:
				m.logger.Info("Camera released by the other app")
				return
			case errors.Is(err, capture.ErrDeviceBusy):
				continue
			case errors.Is(err, capture.ErrCameraAccessDenied):
				m.showDenied()
				return
			case ctx.Err() != nil:
				return
			default:
				m.logger.Warning("Camera retry failed: %v", err)
			}
		}
	}()
}

// onFrame runs on the source goroutine for every new frame.
func (m *Manager) onFrame() {
	if m.frames.Add(1)%m.previewInterval == 0 {
		if frame := m.source.TryAcquireLatestFrame(); frame != nil {
			m.sink.PushPreview(frame)
		}
	}
	m.HandleFrameArrived()
}

// HandleFrameArrived admits the frame when no evaluation is in flight and
// returns whether it did. The evaluation runs on its own goroutine. Once
// Stop has begun no frame is admitted.
func (m *Manager) HandleFrameArrived() bool {
	if !m.gate.TryEnter() {
		m.dropped.Add(1)
		return false
	}

	// cycles.Add must not race with the Wait in Stop.
	m.mu.Lock()
	if m.stopping {
		m.mu.Unlock()
		m.gate.Leave()
		return false
	}
	m.cycles.Add(1)
	m.mu.Unlock()

	m.admitted.Add(1)
	go m.runCycle()
	return true
}

func (m *Manager) runCycle() {
	defer m.cycles.Done()
	defer m.gate.Leave()
	defer func() {
		if r := recover(); r != nil {
			m.failed.Add(1)
			m.logger.Error("💥 Evaluation panicked: %v", r)
		}
	}()

	frame := m.source.TryAcquireLatestFrame()
	if frame == nil || len(frame.Data) == 0 {
		return
	}

	classifier := m.CurrentModel()
	if classifier == nil {
		return
	}

	started := time.Now()
	out, err := classifier.Evaluate(m.lifecycle, ai.Input{Image: frame.Data})
	if err != nil {
		m.failed.Add(1)
		m.logger.Error("Evaluation failed for camera %s: %v", frame.Camera, err)
		return
	}
	latency := time.Since(started)

	text := ai.FormatScores(out)
	m.sink.SetScore(text)
	m.evaluated.Add(1)

	if m.recorder != nil {
		m.recorder.Add(model.Evaluation{
			ID:        uuid.NewString(),
			Camera:    frame.Camera,
			Label:     out.TopLabel(),
			Scores:    text,
			LatencyMs: latency.Milliseconds(),
			Timestamp: started,
		})
	}
}

// CurrentModel returns the loaded model, or nil.
func (m *Manager) CurrentModel() ai.Model {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.model
}

// Stop is the cleanup hook: it stops the retry watcher and the source,
// waits for the in-flight evaluation (bounded by ctx), releases the preview
// and closes the model.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	m.stopping = true
	if m.cancelWatch != nil {
		m.cancelWatch()
	}
	m.mu.Unlock()
	m.watcher.Wait()

	var errs []error
	if err := m.source.Stop(ctx); err != nil && !errors.Is(err, capture.ErrNotStarted) {
		errs = append(errs, err)
	}

	done := make(chan struct{})
	go func() {
		m.cycles.Wait()
		close(done)
	}()
	waitErr := capture.WaitDone(ctx, done)
	m.cancel()

	if m.previewing.CompareAndSwap(true, false) {
		m.sink.SetPreviewing(false)
	}

	if waitErr != nil {
		m.logger.Warning("Evaluation still running at shutdown, leaving model open")
		errs = append(errs, waitErr)
	} else {
		m.mu.Lock()
		loaded := m.model
		m.model = nil
		m.mu.Unlock()

		if closer, ok := loaded.(io.Closer); ok {
			if err := closer.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}

	s := m.Stats()
	m.logger.Info("🛑 Pipeline stopped: admitted=%d dropped=%d evaluated=%d failed=%d",
		s.Admitted, s.Dropped, s.Evaluated, s.Failed)
	return errors.Join(errs...)
}

// Stats reports pipeline counters.
func (m *Manager) Stats() dto.PipelineStats {
	return dto.PipelineStats{
		Admitted:    m.admitted.Load(),
		Dropped:     m.dropped.Load(),
		Evaluated:   m.evaluated.Load(),
		Failed:      m.failed.Load(),
		ModelLoaded: m.CurrentModel() != nil,
		Previewing:  m.previewing.Load(),
		Source:      m.source.Name(),
	}
}
