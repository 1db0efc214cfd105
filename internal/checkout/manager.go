package checkout

import (
	"context"
	"fmt"
	"sync"
	"time"

	"jajanin-relay/internal/feeconfig"
	"jajanin-relay/internal/models"
	"jajanin-relay/internal/util"

	"go.uber.org/zap"
)

// FeeQuoter prices a checkout including the admin fee.
type FeeQuoter interface {
	Quote(unitPrice int64, qty int) (feeconfig.Quote, error)
}

// Options configures managers.
type Options struct {
	Window      time.Duration
	RedirectURL string
	Now         func() time.Time
}

// Manager holds the single payment session slot of one browser tab.
type Manager struct {
	tabID   string
	backend Backend
	fees    FeeQuoter
	pending PendingStore
	cfg     sessionConfig
	opts    Options
	onOpen  func(*Session)
	logger  *zap.Logger

	// touched is guarded by the owning registry's lock.
	touched time.Time

	mu      sync.Mutex
	slot    *Session
	visible bool
}

// NewManager creates the manager for a tab. pending may be nil when wallet redirects
// need not survive the round trip.
func NewManager(tabID string, b Backend, fees FeeQuoter, pending PendingStore, opts Options) *Manager {
	if opts.Window <= 0 {
		opts.Window = DefaultWindow
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Manager{
		tabID:   tabID,
		backend: b,
		fees:    fees,
		pending: pending,
		cfg:     sessionConfig{window: opts.Window, now: opts.Now, backend: b},
		opts:    opts,
		logger:  util.ComponentLogger("checkout").With(zap.String("tab_id", tabID)),
	}
}

// Open starts a checkout. When the tab already holds a pending session that has not
// expired, that session is returned with resumed set and nothing is created. A finished
// or expired session in the slot is replaced.
func (m *Manager) Open(ctx context.Context, req Request) (*Session, bool, error) {
	s, resumed, err := m.open(ctx, req)
	if err == nil && !resumed && m.onOpen != nil {
		m.onOpen(s)
	}
	return s, resumed, err
}

func (m *Manager) open(ctx context.Context, req Request) (*Session, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.slot != nil && !m.slot.Status().Terminal() {
		m.visible = true
		m.logger.Info("Surfacing existing pending session", zap.String("order_id", m.slot.OrderID()))
		return m.slot, true, nil
	}

	quote, quoteErr := m.fees.Quote(req.UnitPrice, req.Qty())
	if err := Validate(req, quote.Total); err != nil {
		if ve, ok := err.(*ValidationError); ok {
			util.CheckoutsRejectedTotal.WithLabelValues(ve.Field).Inc()
		}
		return nil, false, err
	}
	if quoteErr != nil {
		return nil, false, quoteErr
	}

	donation := &models.DonationRequest{
		CreatorUsername: req.CreatorUsername,
		ProductID:       req.ProductID,
		BuyerName:       req.BuyerName,
		BuyerEmail:      req.BuyerEmail,
		Amount:          quote.Total,
		Quantity:        req.Qty(),
		Message:         req.Message,
		PaymentMethod:   req.Method(),
	}
	if req.Method() != models.PaymentMethodQRIS {
		donation.RedirectURL = m.opts.RedirectURL
	}

	resp, err := m.backend.CreateDonation(ctx, donation)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create donation: %w", err)
	}

	s := newSession(m.cfg, resp, req, quote.Total)
	if s.IsRedirect() && m.pending != nil {
		record := models.PendingPayment{
			OrderID:         s.orderID,
			PlatformTradeNo: s.platformTradeNo,
			Amount:          s.amount,
			CreatorUsername: s.creator,
			CreatedAt:       s.openedAt,
		}
		if err := m.pending.Save(ctx, m.tabID, record); err != nil {
			m.logger.Error("Failed to persist pending payment", zap.String("order_id", s.orderID), zap.Error(err))
		}
	}
	m.watchTerminal(s)

	m.slot = s
	m.visible = true
	util.CheckoutsCreatedTotal.WithLabelValues(s.method).Inc()
	m.logger.Info("Payment session opened",
		zap.String("order_id", s.orderID),
		zap.Int64("amount", s.amount),
		zap.String("method", s.method))
	return s, false, nil
}

// Current returns the session in the slot, if any.
func (m *Manager) Current() (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.slot, m.slot != nil
}

// Visible reports whether the payment view is open.
func (m *Manager) Visible() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.visible && m.slot != nil
}

// Dismiss closes the payment view. A pending session stays in memory for Reopen;
// anything else is discarded.
func (m *Manager) Dismiss() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.visible = false
	if m.slot != nil && m.slot.Status().Terminal() {
		m.slot = nil
	}
}

// Reopen surfaces the retained session again.
func (m *Manager) Reopen() (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.slot == nil {
		return nil, ErrNoSession
	}
	m.visible = true
	return m.slot, nil
}

// Check re-checks the session in the slot.
func (m *Manager) Check(ctx context.Context) (*Session, error) {
	s, ok := m.Current()
	if !ok {
		return nil, ErrNoSession
	}
	_, err := s.Check(ctx)
	return s, err
}

// Cancel cancels the session in the slot and empties the slot.
func (m *Manager) Cancel(ctx context.Context) (Snapshot, error) {
	m.mu.Lock()
	s := m.slot
	m.slot = nil
	m.visible = false
	m.mu.Unlock()

	if s == nil {
		return Snapshot{}, ErrNoSession
	}
	s.Cancel(ctx)
	m.clearPending(ctx)
	return s.Snapshot(), nil
}

// Resume rebuilds the session from the persisted wallet record and checks it once.
// The record is cleared as soon as the session is paid, failed or cancelled.
func (m *Manager) Resume(ctx context.Context) (*Session, error) {
	if m.pending == nil {
		return nil, ErrNoSession
	}
	record, err := m.pending.Load(ctx, m.tabID)
	if err != nil {
		return nil, fmt.Errorf("failed to load pending payment: %w", err)
	}
	if record == nil {
		return nil, ErrNoSession
	}

	m.mu.Lock()
	s := m.slot
	restored := s == nil || s.OrderID() != record.OrderID
	if restored {
		s = restoreSession(m.cfg, *record)
		m.watchTerminal(s)
		m.slot = s
	}
	m.visible = true
	m.mu.Unlock()

	if restored && m.onOpen != nil {
		m.onOpen(s)
	}

	_, err = s.Check(ctx)
	return s, err
}

// empty reports whether the slot holds no session.
func (m *Manager) empty() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.slot == nil
}

// staleFor reports whether the slot is empty or holds a session opened more than maxAge ago.
func (m *Manager) staleFor(maxAge time.Duration) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.slot == nil {
		return true
	}
	return m.slot.now().Sub(m.slot.openedAt) > maxAge
}

func (m *Manager) watchTerminal(s *Session) {
	s.OnTerminal(func(snap Snapshot) {
		m.clearPendingFor(context.Background(), snap.OrderID)
	})
}

func (m *Manager) clearPending(ctx context.Context) {
	if m.pending == nil {
		return
	}
	if err := m.pending.Clear(ctx, m.tabID); err != nil {
		m.logger.Warn("Failed to clear pending payment", zap.Error(err))
	}
}

// clearPendingFor clears the record only if it still belongs to orderID.
func (m *Manager) clearPendingFor(ctx context.Context, orderID string) {
	if m.pending == nil {
		return
	}
	record, err := m.pending.Load(ctx, m.tabID)
	if err != nil || record == nil || record.OrderID != orderID {
		return
	}
	m.clearPending(ctx)
}
