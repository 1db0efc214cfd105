// Package devbackend is an in-memory stand-in for the Jajanin backend. It serves the same
// REST and SSE contract the relay consumes and exposes hooks to settle payments, push
// alerts and drop streams, so the relay can be exercised end to end without Postgres
// or a payment gateway.
package devbackend

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"jajanin-relay/internal/models"
	"jajanin-relay/internal/util"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Options configures the fake backend.
type Options struct {
	HeartbeatInterval time.Duration
	FeePercent        float64
	// QRValidity is reported as the QR expiry in donation responses.
	QRValidity time.Duration
}

type creator struct {
	username  string
	streamKey string
	settings  models.AlertSettings
}

type product struct {
	id    string
	name  string
	emoji string
}

type donation struct {
	orderID         string
	platformTradeNo string
	creator         string
	alert           models.AlertEvent
	code            string
}

// Server holds all backend state in memory.
type Server struct {
	opts   Options
	hub    *hub
	logger *zap.Logger
	engine *gin.Engine

	mu            sync.Mutex
	creators      map[string]*creator
	streamKeys    map[string]string
	products      map[string]product
	donations     map[string]*donation
	feePercent    float64
	requests      map[string]int
	streamRejects int
	statusFailure bool
}

// New creates a fake backend with its routes installed.
func New(opts Options) *Server {
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = 30 * time.Second
	}
	if opts.QRValidity <= 0 {
		opts.QRValidity = 15 * time.Minute
	}
	if opts.FeePercent == 0 {
		opts.FeePercent = 0.5
	}

	logger := util.ComponentLogger("devbackend")
	s := &Server{
		opts:       opts,
		hub:        newHub(logger),
		logger:     logger,
		creators:   make(map[string]*creator),
		streamKeys: make(map[string]string),
		products:   make(map[string]product),
		donations:  make(map[string]*donation),
		feePercent: opts.FeePercent,
		requests:   make(map[string]int),
	}

	s.engine = gin.New()
	s.setupRoutes(s.engine)
	return s
}

// Handler returns the HTTP handler serving the backend contract.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) setupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Accept"},
	}))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "time": time.Now().Unix()})
	})

	v1 := router.Group("/api/v1")
	{
		v1.GET("/config", s.getConfig)
		v1.POST("/donations", s.createDonation)
		v1.GET("/payment/status/:orderID", s.paymentStatus)
		v1.POST("/payment/cancel", s.cancelPayment)
	}

	overlay := router.Group("/overlay")
	{
		overlay.GET("/alert/:key", s.streamAlerts)
		overlay.POST("/test/:key", s.testAlert)
		overlay.GET("/settings/:key", s.alertSettings)
	}

	// gateway simulator for local runs
	sim := router.Group("/dev")
	{
		sim.POST("/settle/:orderID", s.simulate(s.Settle))
		sim.POST("/fail/:orderID", s.simulate(s.Fail))
	}
}

// AddCreator registers a creator reachable by username or stream key.
func (s *Server) AddCreator(username, streamKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creators[username] = &creator{
		username:  username,
		streamKey: streamKey,
		settings:  models.DefaultAlertSettings(),
	}
	s.streamKeys[streamKey] = username
}

// AddProduct registers a purchasable item.
func (s *Server) AddProduct(id, name, emoji string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[id] = product{id: id, name: name, emoji: emoji}
}

// SetAlertSettings replaces the overlay settings behind a stream key.
func (s *Server) SetAlertSettings(streamKey string, settings models.AlertSettings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.creators[s.streamKeys[streamKey]]; ok {
		c.settings = settings
	}
}

// SetFeePercent changes the admin fee reported by /config.
func (s *Server) SetFeePercent(p float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.feePercent = p
}

// RejectStreams makes the next n stream requests fail with 503.
func (s *Server) RejectStreams(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streamRejects = n
}

// FailStatusLookups makes status lookups answer 500 until turned off.
func (s *Server) FailStatusLookups(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statusFailure = fail
}

// Requests reports how many times an endpoint was hit.
func (s *Server) Requests(endpoint string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[endpoint]
}

// ClientCount reports the open streams of a creator.
func (s *Server) ClientCount(username string) int {
	return s.hub.count(username)
}

// DropStreams closes every open stream.
func (s *Server) DropStreams() {
	s.hub.disconnectAll()
}

// Publish pushes an alert to every stream of the creator and returns the recipient count.
func (s *Server) Publish(username string, alert models.AlertEvent) int {
	return s.hub.broadcast(username, frame{event: "alert", data: alert})
}

// PublishRaw pushes an arbitrary event with a verbatim data line.
func (s *Server) PublishRaw(username, event, data string) int {
	return s.hub.broadcast(username, frame{event: event, data: data})
}

// Settle marks an order paid and broadcasts its alert. It reports false for unknown or
// already finished orders.
func (s *Server) Settle(orderID string) bool {
	s.mu.Lock()
	d, ok := s.donations[orderID]
	if !ok || d.code != models.StatusCodePending {
		s.mu.Unlock()
		return false
	}
	d.code = models.StatusCodePaid
	creator, alert := d.creator, d.alert
	s.mu.Unlock()

	s.logger.Info("Donation settled", zap.String("order_id", orderID), zap.String("creator", creator))
	s.Publish(creator, alert)
	return true
}

// Fail marks a pending order failed.
func (s *Server) Fail(orderID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.donations[orderID]
	if !ok || d.code != models.StatusCodePending {
		return false
	}
	d.code = models.StatusCodeFailed
	return true
}

func (s *Server) hit(endpoint string) {
	s.mu.Lock()
	s.requests[endpoint]++
	s.mu.Unlock()
}

// resolve maps a stream key or username to a creator username.
func (s *Server) resolve(key string) (*creator, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if username, ok := s.streamKeys[key]; ok {
		key = username
	}
	c, ok := s.creators[key]
	return c, ok
}

func newOrderID() string {
	return "JJN-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:16])
}

func newTradeNo() string {
	return fmt.Sprintf("PL%d", time.Now().UnixNano())
}
