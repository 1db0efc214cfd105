package worker

import (
	"context"
	"time"

	"jajanin-relay/internal/broker"
	"jajanin-relay/internal/checkout"
	"jajanin-relay/internal/models"
	"jajanin-relay/internal/service"
	"jajanin-relay/internal/util"

	"go.uber.org/zap"
)

// ConfirmationWorker consumes push payment confirmations
type ConfirmationWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	logger       *zap.Logger
}

// NewConfirmationWorker creates a new confirmation worker
func NewConfirmationWorker(consumer *broker.Consumer, confirmations *service.ConfirmationService) *ConfirmationWorker {
	eventHandler := broker.NewEventHandler()
	eventHandler.OnPaymentNotification(confirmations.HandlePaymentNotification)

	return &ConfirmationWorker{
		consumer:     consumer,
		eventHandler: eventHandler,
		logger:       util.ComponentLogger("worker"),
	}
}

// Start starts the worker
func (w *ConfirmationWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting confirmation worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *ConfirmationWorker) Stop() error {
	w.logger.Info("Stopping confirmation worker")
	return w.consumer.Close()
}

// sweepBatch is how many pending ledger rows one sweep inspects.
const sweepBatch = 100

// PendingLedger lists and closes ledger rows of checkouts still waiting for payment
type PendingLedger interface {
	ListPendingSessions(ctx context.Context, limit int) ([]models.PaymentRecord, error)
	UpdatePaymentSessionStatus(ctx context.Context, orderID string, status models.PaymentStatus) (bool, error)
}

// Pruner drops sessions that were opened long ago and never finished, and marks their
// ledger rows expired
type Pruner struct {
	registry *checkout.Registry
	ledger   PendingLedger
	interval time.Duration
	maxAge   time.Duration
	logger   *zap.Logger
}

// NewPruner creates a pruner that runs every interval. ledger may be nil.
func NewPruner(registry *checkout.Registry, ledger PendingLedger, interval, maxAge time.Duration) *Pruner {
	if interval <= 0 {
		interval = time.Minute
	}
	if maxAge <= 0 {
		maxAge = time.Hour
	}
	return &Pruner{
		registry: registry,
		ledger:   ledger,
		interval: interval,
		maxAge:   maxAge,
		logger:   util.ComponentLogger("worker"),
	}
}

// Start prunes until ctx ends
func (p *Pruner) Start(ctx context.Context) error {
	p.logger.Info("Starting session pruner", zap.Duration("interval", p.interval), zap.Duration("max_age", p.maxAge))
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.RunOnce(ctx)
		}
	}
}

// RunOnce prunes the registry and sweeps the ledger once. It returns how many ledger
// rows were marked expired.
func (p *Pruner) RunOnce(ctx context.Context) int {
	p.registry.Prune(p.maxAge)
	if p.ledger == nil {
		return 0
	}

	recs, err := p.ledger.ListPendingSessions(ctx, sweepBatch)
	if err != nil {
		p.logger.Warn("Failed to list pending payment sessions", zap.Error(err))
		return 0
	}

	expired := 0
	cutoff := time.Now().Add(-p.maxAge)
	for _, rec := range recs {
		if rec.CreatedAt.After(cutoff) {
			break
		}
		if _, live := p.registry.Session(rec.OrderID); live {
			continue
		}
		changed, err := p.ledger.UpdatePaymentSessionStatus(ctx, rec.OrderID, models.PaymentStatusExpired)
		if err != nil {
			p.logger.Warn("Failed to expire payment session", zap.String("order_id", rec.OrderID), zap.Error(err))
			continue
		}
		if changed {
			expired++
		}
	}
	if expired > 0 {
		p.logger.Info("Expired abandoned payment sessions in ledger", zap.Int("count", expired))
	}
	return expired
}
