package service

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"
	"visionapp/internal/config"
	"visionapp/internal/logger"
	"visionapp/internal/model"
	"visionapp/internal/service/ai"
	"visionapp/internal/service/capture"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitFor = 2 * time.Second
const tick = 5 * time.Millisecond

// stubModel returns cat 0.2 / dog 0.8. When release is set, every Evaluate
// blocks until it receives from it.
type stubModel struct {
	release  chan struct{}
	calls    atomic.Int32
	inFlight atomic.Int32
	overlap  atomic.Bool
	closed   atomic.Bool
	err      error
}

func (s *stubModel) Evaluate(ctx context.Context, input ai.Input) (*ai.Output, error) {
	if s.inFlight.Add(1) > 1 {
		s.overlap.Store(true)
	}
	defer s.inFlight.Add(-1)
	s.calls.Add(1)

	if s.release != nil {
		select {
		case <-s.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	return &ai.Output{
		ClassLabel: []string{"dog"},
		Loss:       []ai.Score{{Label: "cat", Value: 0.2}, {Label: "dog", Value: 0.8}},
	}, nil
}

func (s *stubModel) Close() error {
	s.closed.Store(true)
	return nil
}

type stubEngine struct {
	model   *stubModel
	err     error
	loadCnt atomic.Int32
}

func (e *stubEngine) Load(ctx context.Context, modelPath string) (ai.Model, error) {
	e.loadCnt.Add(1)
	if e.err != nil {
		return nil, &ai.ModelLoadError{Path: modelPath, Err: e.err}
	}
	return e.model, nil
}

type fakeSource struct {
	mu       sync.Mutex
	startErr []error
	starts   int
	frame    *capture.Frame
	onFrame  func()
	stopped  bool
}

func (s *fakeSource) Start(ctx context.Context, onFrame func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.starts++
	if len(s.startErr) > 0 {
		err := s.startErr[0]
		s.startErr = s.startErr[1:]
		if err != nil {
			return err
		}
	}
	s.onFrame = onFrame
	return nil
}

func (s *fakeSource) TryAcquireLatestFrame() *capture.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frame
}

func (s *fakeSource) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.onFrame == nil {
		return capture.ErrNotStarted
	}
	s.stopped = true
	s.onFrame = nil
	return nil
}

func (s *fakeSource) Name() string { return "fake" }

func (s *fakeSource) startCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.starts
}

func (s *fakeSource) fire() {
	s.mu.Lock()
	fn := s.onFrame
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

type dialog struct{ title, content string }

type fakeSink struct {
	mu         sync.Mutex
	statuses   []string
	scores     []string
	dialogs    []dialog
	previewing []bool
	previews   int
}

func (s *fakeSink) SetStatus(text string) {
	s.mu.Lock()
	s.statuses = append(s.statuses, text)
	s.mu.Unlock()
}

func (s *fakeSink) SetScore(text string) {
	s.mu.Lock()
	s.scores = append(s.scores, text)
	s.mu.Unlock()
}

func (s *fakeSink) ShowDialog(title, content string) {
	s.mu.Lock()
	s.dialogs = append(s.dialogs, dialog{title, content})
	s.mu.Unlock()
}

func (s *fakeSink) SetPreviewing(previewing bool) {
	s.mu.Lock()
	s.previewing = append(s.previewing, previewing)
	s.mu.Unlock()
}

func (s *fakeSink) PushPreview(frame *capture.Frame) {
	s.mu.Lock()
	s.previews++
	s.mu.Unlock()
}

func (s *fakeSink) lastStatus() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.statuses) == 0 {
		return ""
	}
	return s.statuses[len(s.statuses)-1]
}

func (s *fakeSink) scoreList() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.scores...)
}

func (s *fakeSink) dialogList() []dialog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]dialog(nil), s.dialogs...)
}

type fakeRecorder struct {
	mu      sync.Mutex
	records []model.Evaluation
}

func (r *fakeRecorder) Add(record model.Evaluation) {
	r.mu.Lock()
	r.records = append(r.records, record)
	r.mu.Unlock()
}

func (r *fakeRecorder) list() []model.Evaluation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.Evaluation(nil), r.records...)
}

type fixture struct {
	manager  *Manager
	engine   *stubEngine
	source   *fakeSource
	sink     *fakeSink
	recorder *fakeRecorder
}

func newFixture(t *testing.T, engine *stubEngine, source *fakeSource) *fixture {
	t.Helper()
	l, err := logger.New(t.TempDir(), io.Discard, io.Discard)
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })

	if source.frame == nil {
		source.frame = &capture.Frame{Camera: "front", Data: []byte{0xFF, 0xD8, 0xFF, 0xD9}}
	}

	cfg := &config.Config{
		ModelPath:           "assets/test.onnx",
		PreviewInterval:     2,
		DeviceRetryInterval: 1,
	}
	sink := &fakeSink{}
	recorder := &fakeRecorder{}
	m := NewManager(engine, source, sink, recorder, cfg, l)
	// Shorter retries keep the busy-device test fast.
	m.retryInterval = 20 * time.Millisecond

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		m.Stop(ctx)
	})

	return &fixture{manager: m, engine: engine, source: source, sink: sink, recorder: recorder}
}

func TestManager_DropsFramesWhileEvaluating(t *testing.T) {
	stub := &stubModel{release: make(chan struct{})}
	f := newFixture(t, &stubEngine{model: stub}, &fakeSource{})
	require.NoError(t, f.manager.LoadModel(context.Background()))

	// A is admitted and blocks inside Evaluate.
	require.True(t, f.manager.HandleFrameArrived())
	require.Eventually(t, func() bool { return stub.calls.Load() == 1 }, waitFor, tick)

	// B arrives while A is pending and must be dropped.
	assert.False(t, f.manager.HandleFrameArrived())
	assert.Equal(t, int32(1), stub.calls.Load())

	stub.release <- struct{}{}
	require.Eventually(t, func() bool { return !f.manager.gate.Busy() }, waitFor, tick)

	// C arrives after A resolved and must be admitted.
	close(stub.release)
	assert.True(t, f.manager.HandleFrameArrived())
	require.Eventually(t, func() bool { return f.manager.Stats().Evaluated == 2 }, waitFor, tick)

	stats := f.manager.Stats()
	assert.Equal(t, int64(2), stats.Admitted)
	assert.Equal(t, int64(1), stats.Dropped)
	assert.Equal(t, int32(2), stub.calls.Load())
}

func TestManager_GateReleasedAfterFailure(t *testing.T) {
	stub := &stubModel{err: errors.New("binding 'loss' not found")}
	f := newFixture(t, &stubEngine{model: stub}, &fakeSource{})
	require.NoError(t, f.manager.LoadModel(context.Background()))

	require.True(t, f.manager.HandleFrameArrived())
	require.Eventually(t, func() bool { return f.manager.Stats().Failed == 1 }, waitFor, tick)
	require.Eventually(t, func() bool { return !f.manager.gate.Busy() }, waitFor, tick)

	assert.True(t, f.manager.HandleFrameArrived())
	assert.Empty(t, f.sink.scoreList())
}

func TestManager_NoOverlapUnderBurst(t *testing.T) {
	stub := &stubModel{}
	f := newFixture(t, &stubEngine{model: stub}, &fakeSource{})
	require.NoError(t, f.manager.LoadModel(context.Background()))

	const events = 300
	var wg sync.WaitGroup
	for i := 0; i < events; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.manager.HandleFrameArrived()
		}()
	}
	wg.Wait()
	require.Eventually(t, func() bool { return !f.manager.gate.Busy() }, waitFor, tick)

	stats := f.manager.Stats()
	assert.False(t, stub.overlap.Load(), "evaluations overlapped")
	assert.LessOrEqual(t, int(stub.calls.Load()), events)
	assert.Equal(t, int64(events), stats.Admitted+stats.Dropped)
	assert.Equal(t, int64(stub.calls.Load()), stats.Admitted)
}

func TestManager_LoadFailure(t *testing.T) {
	engine := &stubEngine{err: errors.New("model file is corrupt")}
	f := newFixture(t, engine, &fakeSource{})

	err := f.manager.Start(context.Background())
	require.Error(t, err)

	var loadErr *ai.ModelLoadError
	assert.True(t, errors.As(err, &loadErr))
	assert.Equal(t, "Error: model file is corrupt", f.sink.lastStatus())
	assert.Equal(t, StatusLoading, f.sink.statuses[0])

	// Preview still runs, frames arrive, nothing is evaluated.
	assert.True(t, f.manager.Stats().Previewing)
	for i := 0; i < 5; i++ {
		f.source.fire()
		require.Eventually(t, func() bool { return !f.manager.gate.Busy() }, waitFor, tick)
	}
	assert.Equal(t, int64(0), f.manager.Stats().Evaluated)
	assert.Empty(t, f.sink.scoreList())
	assert.Equal(t, int32(1), engine.loadCnt.Load())
}

func TestManager_AccessDeniedShowsOneDialog(t *testing.T) {
	source := &fakeSource{startErr: []error{capture.ErrCameraAccessDenied, capture.ErrCameraAccessDenied}}
	f := newFixture(t, &stubEngine{model: &stubModel{}}, source)

	err := f.manager.StartPreview(context.Background())
	assert.ErrorIs(t, err, capture.ErrCameraAccessDenied)
	err = f.manager.StartPreview(context.Background())
	assert.ErrorIs(t, err, capture.ErrCameraAccessDenied)

	assert.Equal(t, []dialog{{DialogNoAccess, DialogAccessDenied}}, f.sink.dialogList())
	assert.False(t, f.manager.Stats().Previewing)
	assert.Empty(t, f.sink.previewing)
}

func TestManager_BusyDeviceRetries(t *testing.T) {
	source := &fakeSource{startErr: []error{capture.ErrDeviceBusy, capture.ErrDeviceBusy, nil}}
	f := newFixture(t, &stubEngine{model: &stubModel{}}, source)

	err := f.manager.StartPreview(context.Background())
	assert.ErrorIs(t, err, capture.ErrDeviceBusy)
	assert.Equal(t, []dialog{{DialogNoAccess, DialogExclusiveBusy}}, f.sink.dialogList())

	require.Eventually(t, func() bool { return f.manager.Stats().Previewing }, waitFor, tick)
	assert.Equal(t, 3, source.startCount())
	assert.Len(t, f.sink.dialogList(), 1)
}

func TestManager_DisplaysFormattedScores(t *testing.T) {
	f := newFixture(t, &stubEngine{model: &stubModel{}}, &fakeSource{})
	require.NoError(t, f.manager.Start(context.Background()))
	assert.Equal(t, StatusLoaded, f.sink.lastStatus())

	f.source.fire()
	require.Eventually(t, func() bool { return len(f.sink.scoreList()) == 1 }, waitFor, tick)
	assert.Equal(t, "0.2   0.8", f.sink.scoreList()[0])

	require.Eventually(t, func() bool { return len(f.recorder.list()) == 1 }, waitFor, tick)
	record := f.recorder.list()[0]
	assert.Equal(t, "front", record.Camera)
	assert.Equal(t, "dog", record.Label)
	assert.Equal(t, "0.2   0.8", record.Scores)
	assert.NotEmpty(t, record.ID)
}

func TestManager_SkipsMissingFrames(t *testing.T) {
	stub := &stubModel{}
	source := &fakeSource{frame: &capture.Frame{Camera: "front"}}
	f := newFixture(t, &stubEngine{model: stub}, source)
	require.NoError(t, f.manager.LoadModel(context.Background()))

	require.True(t, f.manager.HandleFrameArrived())
	require.Eventually(t, func() bool { return !f.manager.gate.Busy() }, waitFor, tick)
	assert.Equal(t, int32(0), stub.calls.Load())
	assert.Equal(t, int64(0), f.manager.Stats().Failed)
}

func TestManager_PreviewEveryNthFrame(t *testing.T) {
	f := newFixture(t, &stubEngine{model: &stubModel{}}, &fakeSource{})
	require.NoError(t, f.manager.Start(context.Background()))

	for i := 0; i < 4; i++ {
		f.source.fire()
		require.Eventually(t, func() bool { return !f.manager.gate.Busy() }, waitFor, tick)
	}

	f.sink.mu.Lock()
	defer f.sink.mu.Unlock()
	assert.Equal(t, 2, f.sink.previews)
}

func TestManager_StopReleasesResources(t *testing.T) {
	stub := &stubModel{}
	f := newFixture(t, &stubEngine{model: stub}, &fakeSource{})
	require.NoError(t, f.manager.Start(context.Background()))

	require.NoError(t, f.manager.Stop(context.Background()))

	assert.True(t, stub.closed.Load())
	assert.True(t, f.source.stopped)
	assert.False(t, f.manager.Stats().Previewing)
	assert.False(t, f.manager.Stats().ModelLoaded)
	assert.Equal(t, []bool{true, false}, f.sink.previewing)
}

func TestManager_NoAdmissionAfterStop(t *testing.T) {
	stub := &stubModel{}
	f := newFixture(t, &stubEngine{model: stub}, &fakeSource{})
	require.NoError(t, f.manager.Start(context.Background()))
	require.NoError(t, f.manager.Stop(context.Background()))

	assert.False(t, f.manager.HandleFrameArrived())
	assert.False(t, f.manager.gate.Busy())
	assert.Equal(t, int64(0), f.manager.Stats().Admitted)
	assert.Equal(t, int32(0), stub.calls.Load())
}

func TestManager_StopWaitsForInFlightCycle(t *testing.T) {
	stub := &stubModel{release: make(chan struct{})}
	f := newFixture(t, &stubEngine{model: stub}, &fakeSource{})
	require.NoError(t, f.manager.LoadModel(context.Background()))

	require.True(t, f.manager.HandleFrameArrived())
	require.Eventually(t, func() bool { return stub.calls.Load() == 1 }, waitFor, tick)

	stopped := make(chan error, 1)
	go func() { stopped <- f.manager.Stop(context.Background()) }()

	// Frames keep arriving from a source that has not finished stopping.
	for i := 0; i < 50; i++ {
		f.manager.HandleFrameArrived()
	}
	close(stub.release)

	select {
	case err := <-stopped:
		require.NoError(t, err)
	case <-time.After(waitFor):
		t.Fatal("Stop did not return")
	}
	assert.Equal(t, int32(1), stub.calls.Load())
	assert.False(t, f.manager.HandleFrameArrived())
}

func TestManager_RecoversFromPanic(t *testing.T) {
	f := newFixture(t, &stubEngine{model: nil}, &fakeSource{})
	f.manager.mu.Lock()
	f.manager.model = panicModel{}
	f.manager.mu.Unlock()

	require.True(t, f.manager.HandleFrameArrived())
	require.Eventually(t, func() bool { return f.manager.Stats().Failed == 1 }, waitFor, tick)
	require.Eventually(t, func() bool { return !f.manager.gate.Busy() }, waitFor, tick)
}

type panicModel struct{}

func (panicModel) Evaluate(context.Context, ai.Input) (*ai.Output, error) {
	panic("native crash")
}
