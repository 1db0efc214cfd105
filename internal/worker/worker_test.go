package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"jajanin-relay/internal/checkout"
	"jajanin-relay/internal/feeconfig"
	"jajanin-relay/internal/models"

	"github.com/stretchr/testify/assert"
)

type memPendingLedger struct {
	mu   sync.Mutex
	recs []models.PaymentRecord
}

func (l *memPendingLedger) ListPendingSessions(ctx context.Context, limit int) ([]models.PaymentRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []models.PaymentRecord
	for _, rec := range l.recs {
		if rec.Status == models.PaymentStatusPending && len(out) < limit {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (l *memPendingLedger) UpdatePaymentSessionStatus(ctx context.Context, orderID string, status models.PaymentStatus) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.recs {
		if l.recs[i].OrderID == orderID && l.recs[i].Status == models.PaymentStatusPending {
			l.recs[i].Status = status
			return true, nil
		}
	}
	return false, nil
}

func (l *memPendingLedger) status(orderID string) models.PaymentStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, rec := range l.recs {
		if rec.OrderID == orderID {
			return rec.Status
		}
	}
	return ""
}

func TestPrunerStopsWithContext(t *testing.T) {
	reg := checkout.NewRegistry(nil, feeconfig.NewCache(nil, 0), nil, nil, checkout.Options{})
	p := NewPruner(reg, nil, 5*time.Millisecond, time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err := p.Start(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 0, reg.Len())
}

func TestPrunerDefaults(t *testing.T) {
	p := NewPruner(nil, nil, 0, 0)
	assert.Equal(t, time.Minute, p.interval)
	assert.Equal(t, time.Hour, p.maxAge)
}

func TestPrunerExpiresAbandonedLedgerRows(t *testing.T) {
	reg := checkout.NewRegistry(nil, feeconfig.NewCache(nil, 0), nil, nil, checkout.Options{})
	now := time.Now()
	ledger := &memPendingLedger{recs: []models.PaymentRecord{
		{OrderID: "JJN-old", Status: models.PaymentStatusPending, CreatedAt: now.Add(-3 * time.Hour)},
		{OrderID: "JJN-stale", Status: models.PaymentStatusPending, CreatedAt: now.Add(-2 * time.Hour)},
		{OrderID: "JJN-fresh", Status: models.PaymentStatusPending, CreatedAt: now.Add(-time.Minute)},
	}}
	p := NewPruner(reg, ledger, time.Minute, time.Hour)

	assert.Equal(t, 2, p.RunOnce(context.Background()))
	assert.Equal(t, models.PaymentStatusExpired, ledger.status("JJN-old"))
	assert.Equal(t, models.PaymentStatusExpired, ledger.status("JJN-stale"))
	assert.Equal(t, models.PaymentStatusPending, ledger.status("JJN-fresh"))

	assert.Equal(t, 0, p.RunOnce(context.Background()))
}
