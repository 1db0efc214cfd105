package checkout

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"jajanin-relay/internal/backend"
	"jajanin-relay/internal/models"
	"jajanin-relay/internal/util"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// DefaultWindow is how long a QR session is displayed, counted from when it was opened.
const DefaultWindow = 15 * time.Minute

// LookupTimeout bounds a shared status lookup. The lookup runs apart from any one
// caller's context so a caller giving up does not fail the others.
const LookupTimeout = 15 * time.Second

var (
	// ErrStatusUnknown means the backend could not be reached; the session stays as it was.
	ErrStatusUnknown = errors.New("payment status unknown")
	// ErrNoSession is returned when a tab has no session to act on.
	ErrNoSession = errors.New("no payment session")
)

// Backend is the part of the Jajanin API a checkout needs.
type Backend interface {
	CreateDonation(ctx context.Context, req *models.DonationRequest) (*models.DonationResponse, error)
	Lookup(ctx context.Context, orderID string) (backend.LookupResult, error)
	Cancel(ctx context.Context, merchantTradeNo, platformTradeNo string) error
}

// QRPayload is what the buyer scans.
type QRPayload struct {
	URL         string `json:"qris_url"`
	Code        string `json:"qr_code"`
	ExpiredTime string `json:"expired_time,omitempty"`
}

// Snapshot is a consistent copy of a session's state.
type Snapshot struct {
	OrderID         string               `json:"order_id"`
	PlatformTradeNo string               `json:"platform_trade_no"`
	CreatorUsername string               `json:"creator_username"`
	Amount          int64                `json:"amount"`
	Method          string               `json:"method"`
	Status          models.PaymentStatus `json:"status"`
	Expired         bool                 `json:"expired"`
	QR              *QRPayload           `json:"qr,omitempty"`
	PaymentURL      string               `json:"payment_url,omitempty"`
	OpenedAt        time.Time            `json:"opened_at"`
	ValidUntil      time.Time            `json:"valid_until"`
	Countdown       string               `json:"countdown"`
}

type sessionConfig struct {
	window  time.Duration
	now     func() time.Time
	backend Backend
}

// Session is one checkout attempt. Its status only moves forward: once paid, failed or
// cancelled nothing changes it. Expired is advisory and a later paid or failed answer
// from the backend still applies.
type Session struct {
	orderID         string
	platformTradeNo string
	creator         string
	amount          int64
	method          string
	qr              *QRPayload
	paymentURL      string
	openedAt        time.Time
	window          time.Duration
	now             func() time.Time
	backend         Backend
	logger          *zap.Logger
	checks          singleflight.Group

	mu         sync.Mutex
	status     models.PaymentStatus
	expired    bool
	onChange   []func(Snapshot)
	onTerminal []func(Snapshot)
}

func newSession(cfg sessionConfig, resp *models.DonationResponse, req Request, amount int64) *Session {
	s := &Session{
		orderID:         resp.Token,
		platformTradeNo: resp.PlatformTradeNo,
		creator:         req.CreatorUsername,
		amount:          amount,
		method:          req.Method(),
		paymentURL:      resp.PaymentURL,
		openedAt:        cfg.now(),
		window:          cfg.window,
		now:             cfg.now,
		backend:         cfg.backend,
		status:          models.PaymentStatusPending,
	}
	if !resp.IsRedirect() {
		s.qr = &QRPayload{URL: resp.QRISURL, Code: resp.QRCode, ExpiredTime: resp.ExpiredTime}
	}
	s.logger = util.ComponentLogger("checkout").With(zap.String("order_id", s.orderID))
	return s
}

// restoreSession rebuilds a wallet session from its persisted record.
func restoreSession(cfg sessionConfig, p models.PendingPayment) *Session {
	opened := p.CreatedAt
	if opened.IsZero() {
		opened = cfg.now()
	}
	return &Session{
		orderID:         p.OrderID,
		platformTradeNo: p.PlatformTradeNo,
		creator:         p.CreatorUsername,
		amount:          p.Amount,
		openedAt:        opened,
		window:          cfg.window,
		now:             cfg.now,
		backend:         cfg.backend,
		status:          models.PaymentStatusPending,
		logger:          util.ComponentLogger("checkout").With(zap.String("order_id", p.OrderID)),
	}
}

// OrderID returns the backend order token.
func (s *Session) OrderID() string {
	return s.orderID
}

// IsRedirect reports whether the buyer pays in a wallet app rather than by QR.
func (s *Session) IsRedirect() bool {
	return s.qr == nil
}

// Status returns the current status, flipping to expired first if the window has closed.
func (s *Session) Status() models.PaymentStatus {
	s.Expired()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// ValidUntil is the end of the local countdown.
func (s *Session) ValidUntil() time.Time {
	return s.openedAt.Add(s.window)
}

// Remaining returns the time left on the countdown, never negative.
func (s *Session) Remaining() time.Duration {
	left := s.ValidUntil().Sub(s.now())
	if left < 0 {
		return 0
	}
	return left
}

// Countdown renders the remaining time as mm:ss.
func (s *Session) Countdown() string {
	left := s.Remaining()
	secs := int(left / time.Second)
	if left%time.Second > 0 {
		secs++
	}
	return fmt.Sprintf("%02d:%02d", secs/60, secs%60)
}

// Expired reports whether the local countdown has run out, marking a pending session
// expired the first time it notices. No server call is made.
func (s *Session) Expired() bool {
	if s.Remaining() > 0 {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.expired
	}
	s.expire()
	return true
}

func (s *Session) expire() {
	s.mu.Lock()
	if s.expired {
		s.mu.Unlock()
		return
	}
	s.expired = true
	changed := s.status == models.PaymentStatusPending
	if changed {
		s.status = models.PaymentStatusExpired
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()

	if changed {
		s.logger.Info("Payment window expired")
		s.notify(snap, false)
	}
}

// Watch blocks until the countdown runs out, the session finishes, or ctx ends.
func (s *Session) Watch(ctx context.Context) {
	for {
		if s.Expired() || s.Status().Final() {
			return
		}
		timer := time.NewTimer(s.Remaining())
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// Snapshot returns a copy of the session state.
func (s *Session) Snapshot() Snapshot {
	s.Expired()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		OrderID:         s.orderID,
		PlatformTradeNo: s.platformTradeNo,
		CreatorUsername: s.creator,
		Amount:          s.amount,
		Method:          s.method,
		Status:          s.status,
		Expired:         s.expired,
		PaymentURL:      s.paymentURL,
		OpenedAt:        s.openedAt,
		ValidUntil:      s.openedAt.Add(s.window),
		Countdown:       s.Countdown(),
	}
	if s.qr != nil && !s.expired && !s.status.Final() {
		qr := *s.qr
		snap.QR = &qr
	}
	return snap
}

// OnChange registers a callback for every status change.
func (s *Session) OnChange(fn func(Snapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = append(s.onChange, fn)
}

// OnTerminal registers a callback fired once when the session is paid, failed or cancelled.
func (s *Session) OnTerminal(fn func(Snapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onTerminal = append(s.onTerminal, fn)
}

// Check looks the order up once. Concurrent calls share one request. Once the session is
// paid, failed or cancelled, Check returns without calling the backend. A caller whose ctx
// ends first gets ErrStatusUnknown while the shared lookup carries on.
func (s *Session) Check(ctx context.Context) (models.PaymentStatus, error) {
	if st := s.Status(); st.Final() {
		util.StatusChecksTotal.WithLabelValues("skipped").Inc()
		return st, nil
	}

	ch := s.checks.DoChan(s.orderID, func() (interface{}, error) {
		lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), LookupTimeout)
		defer cancel()

		res, err := s.backend.Lookup(lookupCtx, s.orderID)
		if err != nil {
			util.StatusChecksTotal.WithLabelValues("unknown").Inc()
			s.logger.Warn("Payment status lookup failed", zap.Error(err))
			return nil, err
		}
		util.StatusChecksTotal.WithLabelValues(string(backend.Classify(res.Code))).Inc()
		return s.apply(res.Code), nil
	})

	select {
	case <-ctx.Done():
		return s.Status(), fmt.Errorf("%w: %v", ErrStatusUnknown, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return s.Status(), fmt.Errorf("%w: %v", ErrStatusUnknown, res.Err)
		}
		return res.Val.(models.PaymentStatus), nil
	}
}

// CheckOnOpen is the automatic lookup made when the payment view opens. It is skipped
// once the session is expired or finished.
func (s *Session) CheckOnOpen(ctx context.Context) (models.PaymentStatus, error) {
	if st := s.Status(); st.Terminal() {
		return st, nil
	}
	return s.Check(ctx)
}

// Confirm applies a pushed backend status code with the same rules as Check.
func (s *Session) Confirm(code string) models.PaymentStatus {
	return s.apply(code)
}

// Cancel marks the session cancelled at once and then asks the backend to cancel,
// ignoring the outcome. An expired session is still cancelled server-side but keeps
// its expired status.
func (s *Session) Cancel(ctx context.Context) models.PaymentStatus {
	s.Expired()

	s.mu.Lock()
	if s.status.Final() {
		st := s.status
		s.mu.Unlock()
		return st
	}
	changed := s.status == models.PaymentStatusPending
	if changed {
		s.status = models.PaymentStatusCancelled
	}
	st := s.status
	snap := s.snapshotLocked()
	s.mu.Unlock()

	if changed {
		s.logger.Info("Payment cancelled locally")
		s.notify(snap, true)
	}

	if err := s.backend.Cancel(ctx, s.orderID, s.platformTradeNo); err != nil {
		s.logger.Warn("Server cancel failed, keeping local status", zap.String("status", string(st)), zap.Error(err))
	}
	return st
}

func (s *Session) apply(code string) models.PaymentStatus {
	target := backend.Classify(code)

	s.mu.Lock()
	if target == models.PaymentStatusPending || s.status.Final() {
		st := s.status
		s.mu.Unlock()
		return st
	}
	s.status = target
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.logger.Info("Payment status changed", zap.String("status", string(target)), zap.String("code", code))
	s.notify(snap, true)
	return target
}

// notify runs callbacks outside the lock. Final statuses are reached at most once, so
// the terminal callbacks run at most once.
func (s *Session) notify(snap Snapshot, final bool) {
	s.mu.Lock()
	change := append([]func(Snapshot){}, s.onChange...)
	var terminal []func(Snapshot)
	if final {
		terminal = append(terminal, s.onTerminal...)
	}
	s.mu.Unlock()

	if final {
		util.PaymentSessionsTerminalTotal.WithLabelValues(string(snap.Status)).Inc()
	}
	for _, fn := range change {
		fn(snap)
	}
	for _, fn := range terminal {
		fn(snap)
	}
}
