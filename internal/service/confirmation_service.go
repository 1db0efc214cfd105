package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"jajanin-relay/internal/backend"
	"jajanin-relay/internal/checkout"
	"jajanin-relay/internal/models"
	"jajanin-relay/internal/util"

	"go.uber.org/zap"
)

// Locker serialises work on one order across replicas.
type Locker interface {
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key string) error
}

// ErrBusy is returned when another replica is handling the same order. The
// notification is retried by redelivery.
var ErrBusy = errors.New("order is being confirmed elsewhere")

// ConfirmationService applies pushed payment confirmations to live sessions.
type ConfirmationService struct {
	registry *checkout.Registry
	ledger   Ledger
	guard    *TerminalGuard
	locker   Locker
	logger   *zap.Logger
}

// NewConfirmationService creates a confirmation service. ledger and locker may be nil.
func NewConfirmationService(registry *checkout.Registry, ledger Ledger, guard *TerminalGuard, locker Locker) *ConfirmationService {
	return &ConfirmationService{
		registry: registry,
		ledger:   ledger,
		guard:    guard,
		locker:   locker,
		logger:   util.GetLogger(),
	}
}

// HandlePaymentNotification applies one push confirmation. Duplicate event IDs are
// ignored. A confirmation for an order with no live session in this process still
// updates the ledger.
func (cs *ConfirmationService) HandlePaymentNotification(ctx context.Context, event *models.PaymentNotificationEvent) error {
	ctx, span := util.StartSpan(ctx, "ConfirmationService.HandlePaymentNotification")
	defer span.End()

	if cs.ledger != nil && event.EventID != "" {
		processed, err := cs.ledger.IsEventProcessed(ctx, event.EventID)
		if err != nil {
			return fmt.Errorf("failed to check event processed: %w", err)
		}
		if processed {
			util.NotificationsProcessedTotal.WithLabelValues("duplicate").Inc()
			cs.logger.Info("Event already processed", zap.String("event_id", event.EventID))
			return nil
		}
	}

	if cs.locker != nil {
		acquired, err := cs.locker.AcquireLock(ctx, "confirm:"+event.OrderID, 10*time.Second)
		if err != nil {
			cs.logger.Warn("Lock unavailable, confirming without it", zap.String("order_id", event.OrderID), zap.Error(err))
		} else if !acquired {
			return ErrBusy
		} else {
			defer func() {
				if err := cs.locker.ReleaseLock(context.Background(), "confirm:"+event.OrderID); err != nil {
					cs.logger.Warn("Failed to release lock", zap.String("order_id", event.OrderID), zap.Error(err))
				}
			}()
		}
	}

	cs.logger.Info("Handling payment notification",
		zap.String("order_id", event.OrderID),
		zap.String("status_code", event.StatusCode))

	outcome := "applied"
	if status, ok := cs.registry.Confirm(event.OrderID, event.StatusCode); ok {
		cs.logger.Info("Payment session updated",
			zap.String("order_id", event.OrderID),
			zap.String("status", string(status)))
	} else {
		outcome = "no_session"
		if status := backend.Classify(event.StatusCode); status.Final() && cs.guard != nil {
			if _, err := cs.guard.Record(ctx, event.OrderID, status); err != nil {
				return fmt.Errorf("failed to record status: %w", err)
			}
		}
	}
	util.NotificationsProcessedTotal.WithLabelValues(outcome).Inc()

	if cs.ledger != nil && event.EventID != "" {
		if err := cs.ledger.MarkEventProcessed(ctx, event.EventID, event.EventType); err != nil {
			cs.logger.Error("Failed to mark event processed", zap.Error(err))
		}
	}
	return nil
}
