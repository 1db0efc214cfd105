package checkout

import (
	"context"
	"sync"
	"time"

	"jajanin-relay/internal/models"
	"jajanin-relay/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// LifecyclePublisher receives a record of every session opening and status change.
type LifecyclePublisher interface {
	PublishLifecycle(ctx context.Context, event models.PaymentLifecycleEvent) error
}

// Registry maps browser tabs to their managers and order IDs to live sessions, so a
// pushed confirmation can find the session it belongs to.
type Registry struct {
	backend   Backend
	fees      FeeQuoter
	pending   PendingStore
	publisher LifecyclePublisher
	opts      Options
	logger    *zap.Logger

	mu       sync.Mutex
	managers map[string]*Manager
	sessions map[string]*Session
}

// NewRegistry creates an empty registry. pending and publisher may be nil.
func NewRegistry(b Backend, fees FeeQuoter, pending PendingStore, publisher LifecyclePublisher, opts Options) *Registry {
	return &Registry{
		backend:   b,
		fees:      fees,
		pending:   pending,
		publisher: publisher,
		opts:      opts,
		logger:    util.ComponentLogger("checkout"),
		managers:  make(map[string]*Manager),
		sessions:  make(map[string]*Session),
	}
}

// Manager returns the manager of a tab, creating it on first use.
func (r *Registry) Manager(tabID string) *Manager {
	r.mu.Lock()
	defer r.mu.Unlock()

	if m, ok := r.managers[tabID]; ok {
		m.touched = r.now()
		return m
	}
	m := NewManager(tabID, r.backend, r.fees, r.pending, r.opts)
	m.onOpen = func(s *Session) { r.track(m, s) }
	m.touched = r.now()
	r.managers[tabID] = m
	return m
}

// Lookup returns the manager of a tab without creating one.
func (r *Registry) Lookup(tabID string) (*Manager, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.managers[tabID]
	return m, ok
}

// Forget drops a tab's manager when its slot is empty and reports whether it did.
// A manager that opens a session afterwards is registered again.
func (r *Registry) Forget(tabID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.managers[tabID]
	if !ok || !m.empty() {
		return false
	}
	delete(r.managers, tabID)
	return true
}

// Tabs returns the number of tabs holding a manager.
func (r *Registry) Tabs() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.managers)
}

// Session looks up a live session by order ID.
func (r *Registry) Session(orderID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[orderID]
	return s, ok
}

// Confirm applies a pushed status code to the session of orderID. It reports false when
// no live session has that order.
func (r *Registry) Confirm(orderID, code string) (models.PaymentStatus, bool) {
	s, ok := r.Session(orderID)
	if !ok {
		return "", false
	}
	return s.Confirm(code), true
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

func (r *Registry) now() time.Time {
	if r.opts.Now != nil {
		return r.opts.Now()
	}
	return time.Now()
}

func (r *Registry) track(m *Manager, s *Session) {
	r.mu.Lock()
	r.sessions[s.OrderID()] = s
	if _, ok := r.managers[m.tabID]; !ok {
		r.managers[m.tabID] = m
	}
	r.mu.Unlock()

	s.OnChange(func(snap Snapshot) {
		r.publish(snap)
	})
	s.OnTerminal(func(snap Snapshot) {
		r.mu.Lock()
		delete(r.sessions, snap.OrderID)
		r.mu.Unlock()
	})
	r.publish(s.Snapshot())
}

func (r *Registry) publish(snap Snapshot) {
	if r.publisher == nil {
		return
	}

	eventType := models.EventTypePaymentOpened
	switch snap.Status {
	case models.PaymentStatusPaid:
		eventType = models.EventTypePaymentPaid
	case models.PaymentStatusFailed:
		eventType = models.EventTypePaymentFailed
	case models.PaymentStatusCancelled:
		eventType = models.EventTypePaymentCancelled
	case models.PaymentStatusExpired:
		eventType = models.EventTypePaymentExpired
	}

	event := models.PaymentLifecycleEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: eventType,
			Timestamp: time.Now(),
		},
		OrderID:         snap.OrderID,
		PlatformTradeNo: snap.PlatformTradeNo,
		Amount:          snap.Amount,
		Method:          snap.Method,
		Status:          snap.Status,
	}
	if err := r.publisher.PublishLifecycle(context.Background(), event); err != nil {
		r.logger.Error("Failed to publish payment lifecycle event",
			zap.String("order_id", snap.OrderID),
			zap.String("event_type", eventType),
			zap.Error(err))
	}
}

// Prune drops sessions opened more than maxAge ago that never finished, and the managers
// of tabs untouched for maxAge whose slot is empty or stale. Pushed confirmations for
// pruned sessions are then ignored. It returns the number of sessions dropped.
func (r *Registry) Prune(maxAge time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	pruned := 0
	for id, s := range r.sessions {
		if s.now().Sub(s.openedAt) > maxAge {
			delete(r.sessions, id)
			pruned++
		}
	}

	now := r.now()
	forgotten := 0
	for tabID, m := range r.managers {
		if now.Sub(m.touched) > maxAge && m.staleFor(maxAge) {
			delete(r.managers, tabID)
			forgotten++
		}
	}

	if pruned > 0 || forgotten > 0 {
		r.logger.Info("Pruned stale payment sessions",
			zap.Int("count", pruned),
			zap.Int("tabs", forgotten))
	}
	return pruned
}
