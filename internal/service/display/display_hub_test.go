package display

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"visionapp/internal/logger"
	"visionapp/internal/service/capture"
	"visionapp/internal/service/websocket"

	gorilla "github.com/gorilla/websocket"
)

func TestDisplay_StalledViewerDoesNotBlockUpdates(t *testing.T) {
	l, err := logger.New(t.TempDir(), io.Discard, io.Discard)
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	t.Cleanup(func() { l.Close() })

	hub := websocket.NewHubService(l)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)

	upgrader := gorilla.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.Register(conn)
	}))
	t.Cleanup(server.Close)

	// This viewer connects and never reads a single message.
	conn, _, err := gorilla.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	deadline := time.Now().Add(2 * time.Second)
	for hub.GetClientCount() != 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if hub.GetClientCount() != 1 {
		t.Fatal("Viewer was never registered")
	}

	d := NewDisplay(hub, l)
	d.SetPreviewing(true)
	frame := &capture.Frame{Camera: "front", Data: bytes.Repeat([]byte{0xAB}, 1<<20)}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			d.PushPreview(frame)
		}
		d.SetScore("0.2   0.8")
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Display updates blocked behind a viewer that does not read")
	}

	if got := d.Snapshot().Score; got != "0.2   0.8" {
		t.Errorf("Expected score to be updated, got %q", got)
	}
	if hub.Dropped() == 0 {
		t.Error("Expected messages for the stalled viewer to be dropped")
	}
}
