// Package capture delivers camera frames. A Source owns its own reading
// goroutine and announces each new frame through a notification callback.
package capture

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	// ErrCameraAccessDenied means the process may not open the camera.
	ErrCameraAccessDenied = errors.New("camera access denied")
	// ErrDeviceBusy means another process holds exclusive control of the camera.
	ErrDeviceBusy = errors.New("camera is in use by another application")
	// ErrNotStarted is returned by Stop on a source that is not running.
	ErrNotStarted = errors.New("source not started")
)

// Frame is one encoded (JPEG) image from a camera. An empty Data means the
// frame carries no image buffer.
type Frame struct {
	Camera     string
	Data       []byte
	CapturedAt time.Time
}

// Source is a live frame provider.
type Source interface {
	// Start begins capturing. onFrame runs on the source goroutine each time
	// a new frame becomes the latest one; it must not block.
	Start(ctx context.Context, onFrame func()) error
	// TryAcquireLatestFrame returns the most recent frame, or nil when none
	// has arrived yet.
	TryAcquireLatestFrame() *Frame
	// Stop ends capturing and waits for the source goroutine to exit.
	Stop(ctx context.Context) error
	Name() string
}

// LatestFrame is a single-slot holder shared by a reading goroutine and
// frame consumers. Each Store replaces the previous frame.
type LatestFrame struct {
	mu    sync.Mutex
	frame *Frame
}

func (l *LatestFrame) Store(f *Frame) {
	l.mu.Lock()
	l.frame = f
	l.mu.Unlock()
}

// Load returns a copy of the latest frame header, or nil.
func (l *LatestFrame) Load() *Frame {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.frame == nil {
		return nil
	}
	f := *l.frame
	return &f
}

func (l *LatestFrame) Reset() {
	l.Store(nil)
}

// WaitDone waits for done to close or ctx to end.
func WaitDone(ctx context.Context, done <-chan struct{}) error {
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
