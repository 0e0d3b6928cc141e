// Package device captures frames from a local camera with gocv.
package device

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"syscall"
	"time"
	"visionapp/internal/config"
	"visionapp/internal/logger"
	"visionapp/internal/service/capture"

	"gocv.io/x/gocv"
)

// devicePattern matches V4L2 capture nodes.
var devicePattern = "/dev/video*"

// videoReader is the part of gocv.VideoCapture the read loop uses.
type videoReader interface {
	Read(m *gocv.Mat) bool
	Close() error
}

// Source reads frames from a VideoCapture device and keeps the latest one
// JPEG-encoded.
type Source struct {
	preferred string
	logger    *logger.Logger
	latest    capture.LatestFrame

	mu     sync.Mutex
	cap    videoReader
	device string
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSource creates a device source for cfg.CameraDevice. An empty device
// selects the first camera found.
func NewSource(cfg *config.Config, logger *logger.Logger) *Source {
	return &Source{preferred: cfg.CameraDevice, logger: logger}
}

func (s *Source) Name() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.device != "" {
		return s.device
	}
	return "device:" + s.preferred
}

// FindDevice returns the preferred device when it exists, otherwise the
// first capture node on the system.
func FindDevice(preferred string) (string, error) {
	if preferred != "" {
		path := devicePath(preferred)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	devices, err := filepath.Glob(devicePattern)
	if err != nil {
		return "", fmt.Errorf("failed to list cameras: %w", err)
	}
	if len(devices) == 0 {
		return "", fmt.Errorf("no camera found")
	}
	sort.Strings(devices)
	return devices[0], nil
}

// devicePath turns an index such as "0" into /dev/video0.
func devicePath(device string) string {
	if _, err := strconv.Atoi(device); err == nil {
		return "/dev/video" + device
	}
	return device
}

// probe opens the node once to tell a permission problem or exclusive use
// apart from other failures, which VideoCapture does not report.
func probe(path string) error {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		switch {
		case errors.Is(err, os.ErrPermission):
			return fmt.Errorf("%w: %v", capture.ErrCameraAccessDenied, err)
		case errors.Is(err, syscall.EBUSY):
			return fmt.Errorf("%w: %v", capture.ErrDeviceBusy, err)
		default:
			return fmt.Errorf("failed to open camera %s: %w", path, err)
		}
	}
	return f.Close()
}

// Start opens the camera and begins the reading goroutine.
func (s *Source) Start(ctx context.Context, onFrame func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cap != nil {
		return nil
	}

	path, err := FindDevice(s.preferred)
	if err != nil {
		return err
	}
	if err := probe(path); err != nil {
		return err
	}

	webcam, err := gocv.OpenVideoCapture(path)
	if err != nil {
		return fmt.Errorf("failed to open camera %s: %w", path, err)
	}
	if !webcam.IsOpened() {
		webcam.Close()
		return fmt.Errorf("%w: %s could not be opened", capture.ErrDeviceBusy, path)
	}

	s.attach(ctx, webcam, path, onFrame)

	s.logger.Info("Camera %s started", path)
	return nil
}

// attach starts the read loop on an opened camera. s.mu must be held.
func (s *Source) attach(ctx context.Context, webcam videoReader, path string, onFrame func()) {
	readCtx, cancel := context.WithCancel(ctx)
	s.cap = webcam
	s.device = path
	s.cancel = cancel
	s.done = make(chan struct{})
	s.latest.Reset()

	go s.readLoop(readCtx, webcam, path, onFrame, s.done)
}

// readLoop owns webcam: it releases the camera when it exits, so a Stop
// that gave up waiting does not leak the device.
func (s *Source) readLoop(ctx context.Context, webcam videoReader, camera string, onFrame func(), done chan struct{}) {
	defer close(done)
	defer func() {
		if err := webcam.Close(); err != nil {
			s.logger.Error("Failed to release camera %s: %v", camera, err)
		}
		s.mu.Lock()
		if s.cap == webcam {
			s.cap, s.cancel = nil, nil
		}
		s.mu.Unlock()
	}()

	img := gocv.NewMat()
	defer img.Close()

	failures := 0
	for ctx.Err() == nil {
		if ok := webcam.Read(&img); !ok || img.Empty() {
			failures++
			if failures%100 == 1 {
				s.logger.Warning("Camera %s returned no frame", camera)
			}
			time.Sleep(10 * time.Millisecond)
			continue
		}
		failures = 0

		buf, err := gocv.IMEncode(".jpg", img)
		if err != nil {
			s.logger.Error("Failed to encode frame: %v", err)
			continue
		}
		data := make([]byte, len(buf.GetBytes()))
		copy(data, buf.GetBytes())
		buf.Close()

		s.latest.Store(&capture.Frame{Camera: camera, Data: data, CapturedAt: time.Now()})
		onFrame()
	}
}

func (s *Source) TryAcquireLatestFrame() *capture.Frame {
	return s.latest.Load()
}

// Stop ends the reading goroutine, which releases the camera. When ctx ends
// first the camera stays attached until the goroutine exits; Stop may be
// called again to keep waiting.
func (s *Source) Stop(ctx context.Context) error {
	s.mu.Lock()
	webcam, cancel, done := s.cap, s.cancel, s.done
	s.mu.Unlock()

	if webcam == nil {
		return capture.ErrNotStarted
	}

	cancel()
	if err := capture.WaitDone(ctx, done); err != nil {
		return err
	}
	s.logger.Info("Camera stopped")
	return nil
}
