package checkout

import (
	"context"
	"sync"

	"jajanin-relay/internal/models"
)

// PendingStore keeps the one pending wallet payment of each browser tab across the
// redirect to the wallet app and back.
type PendingStore interface {
	Save(ctx context.Context, tabID string, p models.PendingPayment) error
	// Load returns nil without error when the tab has no record.
	Load(ctx context.Context, tabID string) (*models.PendingPayment, error)
	Clear(ctx context.Context, tabID string) error
}

// MemoryPendingStore is a process-local PendingStore.
type MemoryPendingStore struct {
	mu      sync.Mutex
	records map[string]models.PendingPayment
}

// NewMemoryPendingStore creates an empty store.
func NewMemoryPendingStore() *MemoryPendingStore {
	return &MemoryPendingStore{records: make(map[string]models.PendingPayment)}
}

func (m *MemoryPendingStore) Save(ctx context.Context, tabID string, p models.PendingPayment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[tabID] = p
	return nil
}

func (m *MemoryPendingStore) Load(ctx context.Context, tabID string) (*models.PendingPayment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.records[tabID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (m *MemoryPendingStore) Clear(ctx context.Context, tabID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, tabID)
	return nil
}
