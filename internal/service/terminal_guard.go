package service

import (
	"context"
	"fmt"
	"time"

	"jajanin-relay/internal/models"
	"jajanin-relay/internal/util"

	"go.uber.org/zap"
)

// DefaultTerminalTTL is how long the terminal-once marker of an order is kept.
const DefaultTerminalTTL = 24 * time.Hour

// Ledger is the durable record of checkouts and processed push notifications.
type Ledger interface {
	CreatePaymentSession(ctx context.Context, rec *models.PaymentRecord) error
	UpdatePaymentSessionStatus(ctx context.Context, orderID string, status models.PaymentStatus) (bool, error)
	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID, eventType string) error
}

// TerminalMarker records a final status at most once across replicas.
type TerminalMarker interface {
	MarkTerminal(ctx context.Context, orderID string, status models.PaymentStatus, ttl time.Duration) (bool, error)
}

// TerminalGuard decides which replica owns the side effects of an order's final status.
type TerminalGuard struct {
	ledger Ledger
	marker TerminalMarker
	ttl    time.Duration
	logger *zap.Logger
}

// NewTerminalGuard creates a guard. Either dependency may be nil.
func NewTerminalGuard(ledger Ledger, marker TerminalMarker, ttl time.Duration) *TerminalGuard {
	if ttl <= 0 {
		ttl = DefaultTerminalTTL
	}
	return &TerminalGuard{
		ledger: ledger,
		marker: marker,
		ttl:    ttl,
		logger: util.ComponentLogger("terminal-guard"),
	}
}

// Record stores status for orderID. For final statuses it reports whether this call
// was the first to record one; expiry is always recorded and reports true.
func (g *TerminalGuard) Record(ctx context.Context, orderID string, status models.PaymentStatus) (bool, error) {
	ctx, span := util.StartSpan(ctx, "TerminalGuard.Record")
	defer span.End()

	if !status.Final() {
		if g.ledger != nil {
			if _, err := g.ledger.UpdatePaymentSessionStatus(ctx, orderID, status); err != nil {
				return false, err
			}
		}
		return true, nil
	}

	if g.marker != nil {
		first, err := g.marker.MarkTerminal(ctx, orderID, status, g.ttl)
		if err == nil {
			if !first {
				g.logger.Debug("Final status already recorded", zap.String("order_id", orderID))
				return false, nil
			}
			g.syncLedger(ctx, orderID, status)
			return true, nil
		}
		g.logger.Warn("Redis terminal marker failed, falling back to DB",
			zap.String("order_id", orderID),
			zap.Error(err))
	}

	return g.recordDB(ctx, orderID, status)
}

// recordDB uses the conditional status update as the once-only check.
func (g *TerminalGuard) recordDB(ctx context.Context, orderID string, status models.PaymentStatus) (bool, error) {
	if g.ledger == nil {
		return true, nil
	}
	changed, err := g.ledger.UpdatePaymentSessionStatus(ctx, orderID, status)
	if err != nil {
		return false, fmt.Errorf("failed to record final status: %w", err)
	}
	return changed, nil
}

func (g *TerminalGuard) syncLedger(ctx context.Context, orderID string, status models.PaymentStatus) {
	if g.ledger == nil {
		return
	}
	if _, err := g.ledger.UpdatePaymentSessionStatus(ctx, orderID, status); err != nil {
		g.logger.Error("Failed to sync final status to DB",
			zap.String("order_id", orderID),
			zap.Error(err))
	}
}
