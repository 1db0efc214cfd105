package service

import (
	"context"
	"errors"
	"time"

	"jajanin-relay/internal/checkout"
	"jajanin-relay/internal/feeconfig"
	"jajanin-relay/internal/models"
	"jajanin-relay/internal/util"

	"go.uber.org/zap"
)

// DefaultIdempotencyTTL is how long a client idempotency key maps to its order.
const DefaultIdempotencyTTL = 30 * time.Minute

// IdempotencyStore maps client idempotency keys to the orders they created.
type IdempotencyStore interface {
	// GetIdempotencyKey returns an empty order ID for an unseen key.
	GetIdempotencyKey(ctx context.Context, key string) (string, error)
	SetIdempotencyKey(ctx context.Context, key string, orderID string, ttl time.Duration) error
}

// CheckoutService is what the HTTP layer talks to for everything a buyer's tab does.
type CheckoutService struct {
	registry *checkout.Registry
	fees     *feeconfig.Cache
	ledger   Ledger
	idem     IdempotencyStore
	idemTTL  time.Duration
	logger   *zap.Logger
}

// NewCheckoutService creates a checkout service. ledger and idem may be nil.
func NewCheckoutService(registry *checkout.Registry, fees *feeconfig.Cache, ledger Ledger, idem IdempotencyStore) *CheckoutService {
	return &CheckoutService{
		registry: registry,
		fees:     fees,
		ledger:   ledger,
		idem:     idem,
		idemTTL:  DefaultIdempotencyTTL,
		logger:   util.GetLogger(),
	}
}

// View is a tab's session as shown to the buyer.
type View struct {
	Session checkout.Snapshot `json:"session"`
	Visible bool              `json:"visible"`
	Resumed bool              `json:"resumed"`
}

// FeeConfig is the admin fee currently applied to checkouts.
type FeeConfig struct {
	AdminFeePercent string `json:"admin_fee_percent"`
	FromBackend     bool   `json:"from_backend"`
}

// Config returns the admin fee, fetching it on first use.
func (s *CheckoutService) Config(ctx context.Context) FeeConfig {
	s.fees.Load(ctx)
	return FeeConfig{AdminFeePercent: s.fees.Percent().String(), FromBackend: s.fees.FromBackend()}
}

// Quote prices a checkout with the cached admin fee. It fails with
// feeconfig.ErrSubtotalTooLarge when the subtotal is out of range.
func (s *CheckoutService) Quote(ctx context.Context, unitPrice int64, qty int) (feeconfig.Quote, error) {
	s.fees.Load(ctx)
	return s.fees.Quote(unitPrice, qty)
}

// Open starts a checkout for tabID. A repeated idempotency key returns the session it
// created while that session is still live.
func (s *CheckoutService) Open(ctx context.Context, tabID, idempotencyKey string, req checkout.Request) (*View, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutService.Open")
	defer span.End()

	s.fees.Load(ctx)

	if idempotencyKey != "" && s.idem != nil {
		orderID, err := s.idem.GetIdempotencyKey(ctx, idempotencyKey)
		if err != nil {
			s.logger.Warn("Idempotency lookup failed", zap.String("idempotency_key", idempotencyKey), zap.Error(err))
		} else if orderID != "" {
			if sess, ok := s.registry.Session(orderID); ok {
				s.logger.Info("Duplicate checkout request detected",
					zap.String("idempotency_key", idempotencyKey),
					zap.String("order_id", orderID))
				return &View{Session: sess.Snapshot(), Visible: true, Resumed: true}, nil
			}
		}
	}

	sess, resumed, err := s.registry.Manager(tabID).Open(ctx, req)
	if err != nil {
		s.registry.Forget(tabID)
		return nil, err
	}
	snap := sess.Snapshot()

	if !resumed {
		if idempotencyKey != "" && s.idem != nil {
			if err := s.idem.SetIdempotencyKey(ctx, idempotencyKey, snap.OrderID, s.idemTTL); err != nil {
				s.logger.Warn("Failed to store idempotency key", zap.String("order_id", snap.OrderID), zap.Error(err))
			}
		}
		s.recordOpened(ctx, tabID, snap)
	}

	return &View{Session: snap, Visible: true, Resumed: resumed}, nil
}

// Current returns the tab's session.
func (s *CheckoutService) Current(tabID string) (*View, error) {
	m, ok := s.registry.Lookup(tabID)
	if !ok {
		return nil, checkout.ErrNoSession
	}
	sess, ok := m.Current()
	if !ok {
		return nil, checkout.ErrNoSession
	}
	return &View{Session: sess.Snapshot(), Visible: m.Visible()}, nil
}

// Check asks the backend for the status of the tab's session. On ErrStatusUnknown the
// returned view still holds the unchanged session.
func (s *CheckoutService) Check(ctx context.Context, tabID string) (*View, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutService.Check")
	defer span.End()

	m, ok := s.registry.Lookup(tabID)
	if !ok {
		return nil, checkout.ErrNoSession
	}
	sess, err := m.Check(ctx)
	if sess == nil {
		return nil, err
	}
	return &View{Session: sess.Snapshot(), Visible: m.Visible()}, err
}

// Cancel cancels the tab's session.
func (s *CheckoutService) Cancel(ctx context.Context, tabID string) (*View, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutService.Cancel")
	defer span.End()

	m, ok := s.registry.Lookup(tabID)
	if !ok {
		return nil, checkout.ErrNoSession
	}
	snap, err := m.Cancel(ctx)
	if err != nil {
		return nil, err
	}
	s.registry.Forget(tabID)
	return &View{Session: snap}, nil
}

// Dismiss closes the tab's payment view. The tab's manager goes once nothing is retained.
func (s *CheckoutService) Dismiss(tabID string) {
	m, ok := s.registry.Lookup(tabID)
	if !ok {
		return
	}
	m.Dismiss()
	s.registry.Forget(tabID)
}

// Reopen surfaces the tab's retained session.
func (s *CheckoutService) Reopen(tabID string) (*View, error) {
	m, ok := s.registry.Lookup(tabID)
	if !ok {
		return nil, checkout.ErrNoSession
	}
	sess, err := m.Reopen()
	if err != nil {
		return nil, err
	}
	return &View{Session: sess.Snapshot(), Visible: true}, nil
}

// Resume restores the tab's wallet payment after the buyer returns from the wallet app.
func (s *CheckoutService) Resume(ctx context.Context, tabID string) (*View, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutService.Resume")
	defer span.End()

	sess, err := s.registry.Manager(tabID).Resume(ctx)
	if sess == nil {
		s.registry.Forget(tabID)
		return nil, err
	}
	if err != nil && !errors.Is(err, checkout.ErrStatusUnknown) {
		return nil, err
	}
	return &View{Session: sess.Snapshot(), Visible: true, Resumed: true}, err
}

func (s *CheckoutService) recordOpened(ctx context.Context, tabID string, snap checkout.Snapshot) {
	if s.ledger == nil {
		return
	}
	rec := &models.PaymentRecord{
		OrderID:         snap.OrderID,
		PlatformTradeNo: snap.PlatformTradeNo,
		TabID:           tabID,
		CreatorUsername: snap.CreatorUsername,
		Amount:          snap.Amount,
		Method:          snap.Method,
		Status:          snap.Status,
	}
	if err := s.ledger.CreatePaymentSession(ctx, rec); err != nil {
		s.logger.Error("Failed to record payment session", zap.String("order_id", snap.OrderID), zap.Error(err))
	}
}
