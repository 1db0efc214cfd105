// Package stream keeps a long-lived subscription to a creator's alert stream and
// reconnects after every transport failure. Delivery is at-most-once: events published
// while disconnected are lost.
package stream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"jajanin-relay/internal/models"
	"jajanin-relay/internal/util"

	"go.uber.org/zap"
)

// Status is the connection state reported to subscribers.
type Status string

const (
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusDisconnected Status = "disconnected"
)

// ErrEmptyKey is returned when subscribing without a creator key.
var ErrEmptyKey = errors.New("stream: empty creator key")

// DefaultReconnectDelay is the fixed wait between a failure and the next attempt.
const DefaultReconnectDelay = 3 * time.Second

// Options tunes a Client.
type Options struct {
	ReconnectDelay time.Duration
	// IdleTimeout forces a reconnect when nothing, heartbeats included, arrives for this
	// long. Zero disables it.
	IdleTimeout time.Duration
	HTTPClient  *http.Client
}

// Client opens alert stream subscriptions against one backend.
type Client struct {
	baseURL string
	opts    Options
	logger  *zap.Logger
}

// NewClient creates a stream client. The HTTP client must not carry a total request
// timeout since streams stay open indefinitely.
func NewClient(baseURL string, opts Options) *Client {
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = DefaultReconnectDelay
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		opts:    opts,
		logger:  util.ComponentLogger("stream"),
	}
}

// Subscription is one live connection to a creator's alert stream.
type Subscription struct {
	key      string
	client   *Client
	onAlert  func(models.AlertEvent)
	onStatus func(Status)
	logger   *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// mu is held for reading while a handler runs and for writing by Close.
	mu     sync.RWMutex
	closed bool
	status Status
}

// Subscribe opens a subscription and starts connecting in the background. onStatus may
// be nil. Handlers run on the subscription's goroutine, one at a time.
func (c *Client) Subscribe(key string, onAlert func(models.AlertEvent), onStatus func(Status)) (*Subscription, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, ErrEmptyKey
	}
	if onAlert == nil {
		return nil, fmt.Errorf("stream: nil alert handler")
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Subscription{
		key:      key,
		client:   c,
		onAlert:  onAlert,
		onStatus: onStatus,
		logger:   c.logger.With(zap.String("key", key)),
		ctx:      ctx,
		cancel:   cancel,
	}

	util.StreamSubscriptions.Inc()
	s.wg.Add(1)
	go s.run()
	return s, nil
}

// Status returns the current connection state.
func (s *Subscription) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Close releases the connection and waits for the background loop to exit. No handler
// is invoked once Close returns. Calling it from inside a handler deadlocks.
func (s *Subscription) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
	util.StreamSubscriptions.Dec()
	s.logger.Info("Subscription closed")
}

func (s *Subscription) run() {
	defer s.wg.Done()

	for {
		s.setStatus(StatusConnecting)
		reason, err := s.connect()
		if s.ctx.Err() != nil {
			return
		}

		util.StreamDisconnectsTotal.WithLabelValues(reason).Inc()
		s.setStatus(StatusDisconnected)
		s.logger.Warn("Alert stream disconnected, reconnecting",
			zap.String("reason", reason),
			zap.Error(err),
			zap.Duration("delay", s.client.opts.ReconnectDelay))

		timer := time.NewTimer(s.client.opts.ReconnectDelay)
		select {
		case <-s.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// connect runs one connection attempt until the stream ends and returns why it ended.
func (s *Subscription) connect() (string, error) {
	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()

	endpoint := s.client.baseURL + "/overlay/alert/" + url.PathEscape(s.key)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "request", err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := s.client.opts.HTTPClient.Do(req)
	if err != nil {
		return "dial", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "status", fmt.Errorf("alert stream returned HTTP %d", resp.StatusCode)
	}

	util.StreamConnectsTotal.Inc()
	s.setStatus(StatusConnected)
	s.logger.Info("Alert stream connected")

	var idle *time.Timer
	var onLine func()
	if d := s.client.opts.IdleTimeout; d > 0 {
		idle = time.AfterFunc(d, cancel)
		defer idle.Stop()
		onLine = func() { idle.Reset(d) }
	}

	rd := newReader(resp.Body)
	for {
		ev, err := rd.next(onLine)
		if err != nil {
			if idle != nil && ctx.Err() != nil && s.ctx.Err() == nil {
				return "idle", err
			}
			return "read", err
		}
		s.handle(ev)
	}
}

func (s *Subscription) handle(ev event) {
	switch ev.name {
	case "alert":
		alert, err := DecodeAlert([]byte(ev.data))
		if err != nil {
			util.AlertsDroppedTotal.WithLabelValues("invalid_payload").Inc()
			s.logger.Warn("Dropping alert event", zap.Error(err))
			return
		}
		util.AlertsReceivedTotal.Inc()
		s.dispatch(func() { s.onAlert(alert) })

	case "connected":
		s.logger.Debug("Stream handshake received", zap.String("data", ev.data))
		s.setStatus(StatusConnected)

	default:
		s.logger.Debug("Ignoring stream event", zap.String("event", ev.name))
	}
}

func (s *Subscription) dispatch(fn func()) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	fn()
}

func (s *Subscription) setStatus(st Status) {
	s.mu.Lock()
	if s.closed || s.status == st {
		s.mu.Unlock()
		return
	}
	s.status = st
	s.mu.Unlock()

	if s.onStatus != nil {
		s.dispatch(func() { s.onStatus(st) })
	}
}
