package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"arlens/internal/logger"
	"arlens/internal/service/queue"
)

const (
	writeWait    = 2 * time.Second
	pollInterval = 100 * time.Millisecond
)

// HubService fans out viewer messages to every connected client. Broadcast
// never blocks: when viewers fall behind, the oldest pending message is
// discarded.
type HubService struct {
	clients    map[*websocket.Conn]bool
	outbox     *queue.Queue[[]byte]
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	done       chan struct{}
	mutex      sync.RWMutex
	logger     *logger.Logger
}

func NewHubService(bufferSize int, logger *logger.Logger) *HubService {
	return &HubService{
		clients:    make(map[*websocket.Conn]bool),
		outbox:     queue.New[[]byte](bufferSize, queue.DropOldest),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run serves registrations and delivers messages until ctx is cancelled,
// then closes every client connection.
func (h *HubService) Run(ctx context.Context) {
	defer close(h.done)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		h.sendLoop(ctx)
	}()
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return

		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			count := len(h.clients)
			h.mutex.Unlock()
			h.logger.Info("Client connected. Total: %d", count)

		case client := <-h.unregister:
			h.remove(client)
		}
	}
}

// Register adds a viewer connection. After the hub has stopped the
// connection is closed instead.
func (h *HubService) Register(client *websocket.Conn) {
	select {
	case h.register <- client:
	case <-h.done:
		client.Close()
	}
}

// Unregister removes and closes a viewer connection.
func (h *HubService) Unregister(client *websocket.Conn) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Broadcast queues message for delivery to all viewers.
func (h *HubService) Broadcast(message []byte) {
	h.outbox.TryPut(message)
}

// GetClientCount returns the number of connected viewers.
func (h *HubService) GetClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// Stats returns the outbox counters.
func (h *HubService) Stats() queue.Stats {
	return h.outbox.Stats()
}

func (h *HubService) sendLoop(ctx context.Context) {
	for ctx.Err() == nil {
		message, ok := h.outbox.Get(ctx, pollInterval)
		if !ok {
			continue
		}
		h.send(message)
	}
}

func (h *HubService) send(message []byte) {
	h.mutex.RLock()
	clients := make([]*websocket.Conn, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mutex.RUnlock()

	for _, client := range clients {
		client.SetWriteDeadline(time.Now().Add(writeWait))
		if err := client.WriteMessage(websocket.TextMessage, message); err != nil {
			h.logger.Error("Error sending message: %v", err)
			h.remove(client)
		}
	}
}

func (h *HubService) remove(client *websocket.Conn) {
	h.mutex.Lock()
	_, ok := h.clients[client]
	if ok {
		delete(h.clients, client)
	}
	count := len(h.clients)
	h.mutex.Unlock()

	if ok {
		client.Close()
		h.logger.Info("Client disconnected. Total: %d", count)
	}
}

func (h *HubService) closeAll() {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	for client := range h.clients {
		client.Close()
		delete(h.clients, client)
	}
}
