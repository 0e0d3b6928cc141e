package websocket

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
	"visionapp/internal/logger"

	"github.com/gorilla/websocket"
)

const (
	// writeWait bounds a single write to a viewer.
	writeWait = 10 * time.Second
	// clientQueue is how many messages may wait for one viewer.
	clientQueue = 32
	// broadcastQueue is how many messages may wait for the hub loop.
	broadcastQueue = 64
)

// viewer pairs a connection with its outgoing queue. Only the hub goroutine
// sends to or closes send; only writePump writes to conn.
type viewer struct {
	conn *websocket.Conn
	send chan []byte
}

// HubService fans messages out to viewer connections. Register, Unregister
// and Broadcast hand work to the Run goroutine and never wait on a viewer.
type HubService struct {
	clients    map[*websocket.Conn]*viewer
	broadcast  chan []byte
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	stopped    chan struct{}
	mutex      sync.RWMutex
	dropped    atomic.Int64
	logger     *logger.Logger
}

func NewHubService(logger *logger.Logger) *HubService {
	return &HubService{
		clients:    make(map[*websocket.Conn]*viewer),
		broadcast:  make(chan []byte, broadcastQueue),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		stopped:    make(chan struct{}),
		logger:     logger,
	}
}

// Run processes hub events until ctx is cancelled, then closes all clients.
func (h *HubService) Run(ctx context.Context) {
	defer close(h.stopped)

	for {
		select {
		case <-ctx.Done():
			h.mutex.Lock()
			for conn, v := range h.clients {
				close(v.send)
				conn.Close()
				delete(h.clients, conn)
			}
			h.mutex.Unlock()
			h.logger.Info("Viewer hub stopped")
			return

		case conn := <-h.register:
			v := &viewer{conn: conn, send: make(chan []byte, clientQueue)}
			go h.writePump(v)

			h.mutex.Lock()
			h.clients[conn] = v
			count := len(h.clients)
			h.mutex.Unlock()
			h.logger.Info("Viewer connected. Total: %d", count)

		case conn := <-h.unregister:
			h.mutex.Lock()
			if v, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				close(v.send)
				conn.Close()
			}
			count := len(h.clients)
			h.mutex.Unlock()
			h.logger.Info("Viewer disconnected. Total: %d", count)

		case message := <-h.broadcast:
			h.mutex.RLock()
			for _, v := range h.clients {
				select {
				case v.send <- message:
				default:
					// viewer is not keeping up
					h.dropped.Add(1)
				}
			}
			h.mutex.RUnlock()
		}
	}
}

// writePump writes queued messages to one viewer until its queue is closed.
// A failed or timed out write closes the connection, which ends the
// viewer's read loop and unregisters it.
func (h *HubService) writePump(v *viewer) {
	for message := range v.send {
		v.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := v.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			h.logger.Error("Error sending message: %v", err)
			v.conn.Close()
			for range v.send {
			}
			return
		}
	}
}

func (h *HubService) Register(client *websocket.Conn) {
	select {
	case h.register <- client:
	case <-h.stopped:
		client.Close()
	}
}

func (h *HubService) Unregister(client *websocket.Conn) {
	select {
	case h.unregister <- client:
	case <-h.stopped:
	}
}

// Broadcast queues a message for all viewers. It never blocks: when the hub
// is stopped or its queue is full the message is dropped.
func (h *HubService) Broadcast(message []byte) {
	select {
	case h.broadcast <- message:
	case <-h.stopped:
	default:
		h.dropped.Add(1)
	}
}

// Dropped returns how many messages were discarded for slow viewers or a
// full hub queue.
func (h *HubService) Dropped() int64 {
	return h.dropped.Load()
}

func (h *HubService) GetClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}
