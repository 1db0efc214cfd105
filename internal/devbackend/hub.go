package devbackend

import (
	"sync"

	"go.uber.org/zap"
)

// frame is one SSE event queued for a subscriber. Data is JSON-encoded when it is a
// struct or map and written verbatim when it is a string.
type frame struct {
	event string
	data  interface{}
}

type subscriber struct {
	send chan frame
	done chan struct{}
	once sync.Once
}

func (s *subscriber) drop() {
	s.once.Do(func() { close(s.done) })
}

// hub fans alert frames out to every open stream of a creator.
type hub struct {
	mu      sync.RWMutex
	clients map[string]map[*subscriber]struct{}
	logger  *zap.Logger
}

func newHub(logger *zap.Logger) *hub {
	return &hub{
		clients: make(map[string]map[*subscriber]struct{}),
		logger:  logger,
	}
}

func (h *hub) register(creator string) *subscriber {
	sub := &subscriber{
		send: make(chan frame, 16),
		done: make(chan struct{}),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[creator] == nil {
		h.clients[creator] = make(map[*subscriber]struct{})
	}
	h.clients[creator][sub] = struct{}{}
	h.logger.Debug("Stream client registered", zap.String("creator", creator), zap.Int("clients", len(h.clients[creator])))
	return sub
}

func (h *hub) unregister(creator string, sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if subs, ok := h.clients[creator]; ok {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(h.clients, creator)
		}
	}
	sub.drop()
}

// broadcast queues f for every subscriber of creator. A subscriber whose buffer is full
// is disconnected rather than blocking the others.
func (h *hub) broadcast(creator string, f frame) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	subs := h.clients[creator]
	for sub := range subs {
		select {
		case sub.send <- f:
		default:
			h.logger.Warn("Stream client too slow, disconnecting", zap.String("creator", creator))
			sub.drop()
		}
	}

	h.logger.Debug("Alert broadcast", zap.String("creator", creator), zap.Int("clients", len(subs)))
	return len(subs)
}

func (h *hub) count(creator string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[creator])
}

// disconnectAll ends every open stream, as a backend restart or proxy timeout would.
func (h *hub) disconnectAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for creator, subs := range h.clients {
		for sub := range subs {
			sub.drop()
		}
		delete(h.clients, creator)
	}
}
