package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"syscall"
	"time"
	"visionapp/internal/config"
	"visionapp/internal/logger"
)

var (
	jpegHeader = []byte{0xFF, 0xD8}
	jpegFooter = []byte{0xFF, 0xD9}
)

// maxDatagram is the largest UDP payload accepted from a camera.
const maxDatagram = 65507

// UDPSource listens for UDP packets from network cameras, reconstructs JPEG
// frames per sender and keeps the latest complete one.
type UDPSource struct {
	port        int
	cameraNames map[string]string
	logger      *logger.Logger
	latest      LatestFrame

	mu   sync.Mutex
	conn *net.UDPConn
	done chan struct{}
}

// NewUDPSource creates a source bound to cfg.CamerasPort on Start.
func NewUDPSource(cfg *config.Config, logger *logger.Logger) *UDPSource {
	return &UDPSource{
		port:        cfg.CamerasPort,
		cameraNames: cfg.CameraNames,
		logger:      logger,
	}
}

func (s *UDPSource) Name() string {
	return fmt.Sprintf("udp:%d", s.port)
}

// Start binds the UDP port and starts the reading goroutine.
func (s *UDPSource) Start(ctx context.Context, onFrame func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn != nil {
		return nil
	}

	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: s.port})
	if err != nil {
		switch {
		case errors.Is(err, os.ErrPermission):
			return fmt.Errorf("%w: %v", ErrCameraAccessDenied, err)
		case errors.Is(err, syscall.EADDRINUSE):
			return fmt.Errorf("%w: %v", ErrDeviceBusy, err)
		default:
			return fmt.Errorf("failed to listen on UDP port %d: %w", s.port, err)
		}
	}

	s.conn = conn
	s.done = make(chan struct{})
	s.latest.Reset()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	go s.readLoop(conn, onFrame, s.done, stop)

	s.logger.Info("UDP camera source started on %s", conn.LocalAddr())
	return nil
}

// Addr returns the bound address, or nil when the source is stopped.
func (s *UDPSource) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return nil
	}
	return s.conn.LocalAddr()
}

func (s *UDPSource) readLoop(conn *net.UDPConn, onFrame func(), done chan struct{}, stop func() bool) {
	defer close(done)
	defer stop()
	defer func() {
		s.mu.Lock()
		if s.conn == conn {
			s.conn = nil
		}
		s.mu.Unlock()
	}()

	buffer := make([]byte, maxDatagram)
	assemblers := make(map[string]*frameAssembler)

	for {
		n, remoteAddr, err := conn.ReadFromUDP(buffer)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Error("Error reading UDP packet: %v", err)
			continue
		}

		camera := s.cameraName(remoteAddr.IP.String())
		assembler, ok := assemblers[camera]
		if !ok {
			assembler = &frameAssembler{}
			assemblers[camera] = assembler
		}

		data, complete := assembler.feed(buffer[:n])
		if !complete {
			continue
		}

		s.latest.Store(&Frame{Camera: camera, Data: data, CapturedAt: time.Now()})
		onFrame()
	}
}

func (s *UDPSource) cameraName(ip string) string {
	if name, ok := s.cameraNames[ip]; ok {
		return name
	}
	return "unknown_" + ip
}

func (s *UDPSource) TryAcquireLatestFrame() *Frame {
	return s.latest.Load()
}

// Stop closes the socket and waits for the reading goroutine.
func (s *UDPSource) Stop(ctx context.Context) error {
	s.mu.Lock()
	conn, done := s.conn, s.done
	s.conn = nil
	s.mu.Unlock()

	if conn == nil {
		return ErrNotStarted
	}

	conn.Close()
	if err := WaitDone(ctx, done); err != nil {
		return err
	}
	s.logger.Info("UDP camera source stopped")
	return nil
}

// frameAssembler rebuilds one JPEG from consecutive datagrams. A packet
// starting with SOI opens a frame, a packet ending with EOI completes it.
type frameAssembler struct {
	buf     bytes.Buffer
	started bool
}

func (a *frameAssembler) feed(packet []byte) ([]byte, bool) {
	if bytes.HasPrefix(packet, jpegHeader) {
		a.buf.Reset()
		a.started = true
	}
	if !a.started {
		return nil, false
	}

	a.buf.Write(packet)

	if !bytes.HasSuffix(packet, jpegFooter) {
		return nil, false
	}

	frame := make([]byte, a.buf.Len())
	copy(frame, a.buf.Bytes())
	a.buf.Reset()
	a.started = false
	return frame, true
}
