package relay

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"jajanin-relay/internal/presenter"
	"jajanin-relay/internal/stream"
	"jajanin-relay/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// StatusSource reports the state of the alert stream subscription.
type StatusSource interface {
	Status() stream.Status
}

// Server exposes the presenter to local browser sources.
type Server struct {
	hub       *Hub
	presenter *presenter.Presenter
	gate      *presenter.AudioGate
	logger    *zap.Logger

	mu  sync.RWMutex
	sub StatusSource
}

// NewServer creates the overlay server and starts relaying presenter transitions.
func NewServer(hub *Hub, p *presenter.Presenter, gate *presenter.AudioGate) *Server {
	s := &Server{
		hub:       hub,
		presenter: p,
		gate:      gate,
		logger:    util.ComponentLogger("relay"),
	}
	p.OnTransition(func(t presenter.Transition) {
		hub.Broadcast(Message{Type: TypeTransition, Transition: &t})
	})
	return s
}

// SetSubscription sets the subscription reported by /status.
func (s *Server) SetSubscription(sub StatusSource) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sub = sub
}

// ApplySettings updates the presenter and tells browser sources.
func (s *Server) ApplySettings(settings presenter.Settings) {
	s.presenter.SetSettings(settings)
	current := s.presenter.Settings()
	s.hub.Broadcast(Message{Type: TypeSettings, Settings: &current})
}

// SetupRoutes sets up HTTP routes
func (s *Server) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(util.PrometheusMiddleware())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "time": time.Now().Unix()})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.GET("/ws", s.serveWs)
	router.GET("/recent", s.recent)
	router.GET("/status", s.status)
}

func (s *Server) recent(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"donations": s.presenter.History().Recent()})
}

func (s *Server) status(c *gin.Context) {
	s.mu.RLock()
	sub := s.sub
	s.mu.RUnlock()

	streamStatus := stream.StatusDisconnected
	if sub != nil {
		streamStatus = sub.Status()
	}

	c.JSON(http.StatusOK, gin.H{
		"stream":         streamStatus,
		"presenter":      s.presenter.State(),
		"pending":        s.presenter.Pending(),
		"clients":        s.hub.Count(),
		"audio_unlocked": s.gate.Unlocked(),
		"settings":       s.presenter.Settings(),
	})
}

func (s *Server) serveWs(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("Failed to upgrade to websocket", zap.Error(err))
		return
	}

	client := &Client{
		hub:  s.hub,
		conn: conn,
		send: make(chan []byte, 256),
	}

	settings := s.presenter.Settings()
	if data, err := json.Marshal(Message{Type: TypeSettings, Settings: &settings}); err == nil {
		client.send <- data
	}
	if !s.hub.add(client) {
		conn.Close()
		return
	}

	go s.writePump(client)
	go s.readPump(client)
}

func (s *Server) writePump(client *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.conn.Close()
	}()

	for {
		select {
		case message, ok := <-client.send:
			_ = client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Server) readPump(client *Client) {
	defer func() {
		client.hub.drop(client)
		client.conn.Close()
	}()

	client.conn.SetReadLimit(4096)
	_ = client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := client.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.Warn("readPump error", zap.Error(err))
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			s.logger.Debug("Ignoring malformed browser message", zap.Error(err))
			continue
		}
		if msg.Type == TypeAudioUnlocked && s.gate.Unlock() {
			s.logger.Info("Audio unlocked by browser source")
		}
	}
}
