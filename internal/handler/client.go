package handler

import (
	"net/http"
	"visionapp/internal/logger"

	"github.com/gorilla/websocket"
)

// Upgrader upgrades HTTP connections to WebSocket; CheckOrigin allows all origins.
var Upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Viewers registers viewer connections with the hub that writes to them.
type Viewers interface {
	Register(conn *websocket.Conn)
	Unregister(conn *websocket.Conn)
}

// Snapshotter encodes the current display state for a new viewer.
type Snapshotter interface {
	SnapshotMessage() ([]byte, error)
}

// ViewWebsocketHandler sends the current display state to a new viewer and
// then registers it in the hub to receive live updates.
func ViewWebsocketHandler(viewers Viewers, display Snapshotter, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		connection, err := Upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Error("WebSocket upgrade error: %v", err)
			return
		}

		snapshot, err := display.SnapshotMessage()
		if err != nil {
			logger.Error("Failed to encode display snapshot: %v", err)
			connection.Close()
			return
		}
		// The hub does not know this connection yet, so this write cannot race with it.
		if err := connection.WriteMessage(websocket.TextMessage, snapshot); err != nil {
			logger.Error("Failed to send snapshot to viewer: %v", err)
			connection.Close()
			return
		}

		viewers.Register(connection)
		defer viewers.Unregister(connection)

		for {
			_, _, err := connection.ReadMessage()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					logger.Info("Viewer disconnected normally")
				} else {
					logger.Error("Viewer disconnected with error: %v", err)
				}
				break
			}
		}
	}
}
