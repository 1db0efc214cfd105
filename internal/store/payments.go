package store

import (
	"context"
	"database/sql"
	"fmt"

	"jajanin-relay/internal/models"
)

// CreatePaymentSession records a newly opened checkout
func (s *Store) CreatePaymentSession(ctx context.Context, rec *models.PaymentRecord) error {
	query := `
		INSERT INTO payment_sessions (order_id, platform_trade_no, tab_id, creator_username, amount, method, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (order_id) DO NOTHING
		RETURNING created_at, updated_at`

	err := s.db.QueryRowxContext(ctx, query,
		rec.OrderID, rec.PlatformTradeNo, rec.TabID, rec.CreatorUsername, rec.Amount, rec.Method, rec.Status,
	).Scan(&rec.CreatedAt, &rec.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil
	}
	return err
}

// UpdatePaymentSessionStatus moves a checkout to status unless it is already paid,
// cancelled or failed. It reports whether a row changed.
func (s *Store) UpdatePaymentSessionStatus(ctx context.Context, orderID string, status models.PaymentStatus) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE payment_sessions SET status = $1, updated_at = NOW()
		 WHERE order_id = $2 AND status IN ('pending', 'expired')`,
		status, orderID)
	if err != nil {
		return false, fmt.Errorf("failed to update payment session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListPendingSessions returns checkouts still waiting for payment, oldest first
func (s *Store) ListPendingSessions(ctx context.Context, limit int) ([]models.PaymentRecord, error) {
	var recs []models.PaymentRecord
	err := s.db.SelectContext(ctx, &recs,
		"SELECT * FROM payment_sessions WHERE status = 'pending' ORDER BY created_at LIMIT $1", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending payment sessions: %w", err)
	}
	return recs, nil
}

// IsEventProcessed checks if an event has been processed
func (s *Store) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM processed_events WHERE event_id = $1)", eventID)
	return exists, err
}

// MarkEventProcessed marks an event as processed
func (s *Store) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO processed_events (event_id, event_type) VALUES ($1, $2) ON CONFLICT (event_id) DO NOTHING",
		eventID, eventType)
	return err
}
