package service

import (
	"context"

	"jajanin-relay/internal/checkout"
	"jajanin-relay/internal/models"
	"jajanin-relay/internal/util"

	"go.uber.org/zap"
)

// LifecycleRecorder writes status changes to the ledger and forwards them to next.
// A final status is forwarded only by the replica that recorded it first.
type LifecycleRecorder struct {
	guard  *TerminalGuard
	next   checkout.LifecyclePublisher
	logger *zap.Logger
}

// NewLifecycleRecorder creates a recorder. next may be nil.
func NewLifecycleRecorder(guard *TerminalGuard, next checkout.LifecyclePublisher) *LifecycleRecorder {
	return &LifecycleRecorder{guard: guard, next: next, logger: util.ComponentLogger("lifecycle")}
}

// PublishLifecycle implements checkout.LifecyclePublisher.
func (r *LifecycleRecorder) PublishLifecycle(ctx context.Context, event models.PaymentLifecycleEvent) error {
	if event.EventType != models.EventTypePaymentOpened {
		first, err := r.guard.Record(ctx, event.OrderID, event.Status)
		if err != nil {
			r.logger.Error("Failed to record payment status",
				zap.String("order_id", event.OrderID),
				zap.String("status", string(event.Status)),
				zap.Error(err))
		} else if !first {
			return nil
		}
	}

	if r.next == nil {
		return nil
	}
	return r.next.PublishLifecycle(ctx, event)
}
