package dto

// Message types pushed to viewers.
const (
	MessageStatus   = "status"
	MessageScore    = "score"
	MessageDialog   = "dialog"
	MessagePreview  = "preview"
	MessageFrame    = "frame"
	MessageSnapshot = "snapshot"
)

// DisplayMessage is one update sent over the viewer WebSocket.
type DisplayMessage struct {
	Type       string        `json:"type"`
	Text       string        `json:"text,omitempty"`
	Title      string        `json:"title,omitempty"`
	Content    string        `json:"content,omitempty"`
	Camera     string        `json:"camera,omitempty"`
	Image      string        `json:"image,omitempty"`
	Previewing *bool         `json:"previewing,omitempty"`
	State      *DisplayState `json:"state,omitempty"`
}

// Dialog is a modal message shown to viewers.
type Dialog struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// DisplayState is everything a viewer needs to render the page.
type DisplayState struct {
	Status     string   `json:"status"`
	Score      string   `json:"score"`
	Previewing bool     `json:"previewing"`
	Dialogs    []Dialog `json:"dialogs"`
}
