// Package display keeps the text shown to viewers and pushes every change
// through the WebSocket hub, which owns all viewer writes.
package display

import (
	"encoding/base64"
	"encoding/json"
	"sync"
	"visionapp/internal/dto"
	"visionapp/internal/logger"
	"visionapp/internal/service/capture"
)

// Broadcaster delivers a message to every viewer.
type Broadcaster interface {
	Broadcast(message []byte)
}

type Display struct {
	hub    Broadcaster
	logger *logger.Logger

	mu    sync.Mutex
	state dto.DisplayState
}

func NewDisplay(hub Broadcaster, logger *logger.Logger) *Display {
	return &Display{hub: hub, logger: logger}
}

// SetStatus replaces the status line.
func (d *Display) SetStatus(text string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.state.Status = text
	d.send(dto.DisplayMessage{Type: dto.MessageStatus, Text: text})
}

// SetScore replaces the score label.
func (d *Display) SetScore(text string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.state.Score = text
	d.send(dto.DisplayMessage{Type: dto.MessageScore, Text: text})
}

// ShowDialog presents a modal message. Every call is one presentation.
func (d *Display) ShowDialog(title, content string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.state.Dialogs = append(d.state.Dialogs, dto.Dialog{Title: title, Content: content})
	d.send(dto.DisplayMessage{Type: dto.MessageDialog, Title: title, Content: content})
	d.logger.Warning("Dialog shown: %s - %s", title, content)
}

// SetPreviewing requests (true) or releases (false) the live preview and
// keeps the screen awake while it runs.
func (d *Display) SetPreviewing(previewing bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state.Previewing == previewing {
		return
	}
	d.state.Previewing = previewing
	d.send(dto.DisplayMessage{Type: dto.MessagePreview, Previewing: &previewing})
}

// PushPreview sends one frame to viewers while the preview runs.
func (d *Display) PushPreview(frame *capture.Frame) {
	if frame == nil || len(frame.Data) == 0 {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.state.Previewing {
		return
	}
	d.send(dto.DisplayMessage{
		Type:   dto.MessageFrame,
		Camera: frame.Camera,
		Image:  base64.StdEncoding.EncodeToString(frame.Data),
	})
}

// Snapshot returns the current display state.
func (d *Display) Snapshot() dto.DisplayState {
	d.mu.Lock()
	defer d.mu.Unlock()

	state := d.state
	state.Dialogs = append([]dto.Dialog(nil), d.state.Dialogs...)
	return state
}

// SnapshotMessage encodes the current state for a newly connected viewer.
func (d *Display) SnapshotMessage() ([]byte, error) {
	state := d.Snapshot()
	return json.Marshal(dto.DisplayMessage{Type: dto.MessageSnapshot, State: &state})
}

// send must be called with d.mu held so viewers see updates in order.
func (d *Display) send(msg dto.DisplayMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		d.logger.Error("Failed to encode %s message: %v", msg.Type, err)
		return
	}
	d.hub.Broadcast(data)
}
