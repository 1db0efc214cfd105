package relay

import (
	"context"
	"encoding/json"
	"sync/atomic"

	"jajanin-relay/internal/util"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Client is one connected browser source.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// Hub fans messages out to every connected browser source.
type Hub struct {
	clients    map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
	done       chan struct{}
	count      int64
	logger     *zap.Logger
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, 256),
		done:       make(chan struct{}),
		logger:     util.ComponentLogger("relay"),
	}
}

// Count returns the number of connected browser sources.
func (h *Hub) Count() int {
	return int(atomic.LoadInt64(&h.count))
}

// Broadcast queues msg for every client. It never blocks; when the queue is full the
// message is dropped.
func (h *Hub) Broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("Failed to marshal relay message", zap.String("type", msg.Type), zap.Error(err))
		return
	}
	select {
	case h.broadcast <- data:
	default:
		h.logger.Warn("Relay queue full, dropping message", zap.String("type", msg.Type))
	}
}

// Run owns the client set until ctx ends, then disconnects everyone.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				h.remove(client)
			}
			return

		case client := <-h.register:
			h.clients[client] = struct{}{}
			atomic.StoreInt64(&h.count, int64(len(h.clients)))
			h.logger.Info("Browser source connected", zap.Int("clients", len(h.clients)))

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				h.remove(client)
				h.logger.Info("Browser source disconnected", zap.Int("clients", len(h.clients)))
			}

		case data := <-h.broadcast:
			for client := range h.clients {
				select {
				case client.send <- data:
				default:
					h.logger.Warn("Dropping slow browser source")
					h.remove(client)
				}
			}
		}
	}
}

// add registers client. It reports false once the hub has stopped.
func (h *Hub) add(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) drop(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

func (h *Hub) remove(client *Client) {
	delete(h.clients, client)
	close(client.send)
	atomic.StoreInt64(&h.count, int64(len(h.clients)))
}
