package checkout

import (
	"context"
	"fmt"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"jajanin-relay/internal/backend"
	"jajanin-relay/internal/devbackend"
	"jajanin-relay/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.PaymentLifecycleEvent
}

func (p *recordingPublisher) PublishLifecycle(ctx context.Context, event models.PaymentLifecycleEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, e := range p.events {
		out = append(out, e.EventType)
	}
	return out
}

func TestRegistryRoutesPushConfirmation(t *testing.T) {
	fb := &fakeBackend{}
	pub := &recordingPublisher{}
	reg := NewRegistry(fb, noFee(), NewMemoryPendingStore(), pub, Options{})

	s, _, err := reg.Manager("tab-a").Open(context.Background(), qrisRequest(15000))
	require.NoError(t, err)
	assert.Same(t, reg.Manager("tab-a"), reg.Manager("tab-a"))
	assert.Equal(t, 1, reg.Len())

	st, ok := reg.Confirm(s.OrderID(), models.StatusCodePaid)
	assert.True(t, ok)
	assert.Equal(t, models.PaymentStatusPaid, st)
	assert.Equal(t, 0, reg.Len())

	_, ok = reg.Confirm(s.OrderID(), models.StatusCodePaid)
	assert.False(t, ok)

	assert.Equal(t, []string{models.EventTypePaymentOpened, models.EventTypePaymentPaid}, pub.types())
}

func TestRegistryPrune(t *testing.T) {
	clock := newFakeClock()
	reg := NewRegistry(&fakeBackend{}, noFee(), nil, nil, Options{Now: clock.Now})

	_, _, err := reg.Manager("tab-a").Open(context.Background(), qrisRequest(15000))
	require.NoError(t, err)

	assert.Equal(t, 0, reg.Prune(time.Hour))
	clock.Advance(2 * time.Hour)
	assert.Equal(t, 1, reg.Prune(time.Hour))
	assert.Equal(t, 0, reg.Len())
}

func TestRegistryPruneDropsIdleTabs(t *testing.T) {
	clock := newFakeClock()
	reg := NewRegistry(&fakeBackend{}, noFee(), nil, nil, Options{Now: clock.Now})

	for i := 0; i < 20; i++ {
		reg.Manager(fmt.Sprintf("empty-%d", i))
	}
	assert.Equal(t, 20, reg.Tabs())
	assert.Equal(t, 0, reg.Prune(time.Hour))
	assert.Equal(t, 20, reg.Tabs())

	clock.Advance(2 * time.Hour)
	_, _, err := reg.Manager("busy").Open(context.Background(), qrisRequest(15000))
	require.NoError(t, err)

	assert.Equal(t, 0, reg.Prune(time.Hour))
	assert.Equal(t, 1, reg.Tabs())
	_, ok := reg.Lookup("busy")
	assert.True(t, ok)

	clock.Advance(2 * time.Hour)
	assert.Equal(t, 1, reg.Prune(time.Hour))
	assert.Equal(t, 0, reg.Tabs())
	assert.Equal(t, 0, reg.Len())
}

func TestRegistryForgetKeepsOccupiedTab(t *testing.T) {
	reg := NewRegistry(&fakeBackend{}, noFee(), nil, nil, Options{})

	_, ok := reg.Lookup("tab-a")
	assert.False(t, ok)
	assert.False(t, reg.Forget("tab-a"))

	m := reg.Manager("tab-a")
	_, _, err := m.Open(context.Background(), qrisRequest(15000))
	require.NoError(t, err)
	assert.False(t, reg.Forget("tab-a"))

	_, err = m.Cancel(context.Background())
	require.NoError(t, err)
	assert.True(t, reg.Forget("tab-a"))
	assert.Equal(t, 0, reg.Tabs())

	_, _, err = m.Open(context.Background(), qrisRequest(15000))
	require.NoError(t, err)
	back, ok := reg.Lookup("tab-a")
	require.True(t, ok)
	assert.Same(t, m, back)
}

func TestCheckoutAgainstBackend(t *testing.T) {
	gin.SetMode(gin.TestMode)
	dev := devbackend.New(devbackend.Options{})
	dev.AddCreator("budi", "sk-budi")
	srv := httptest.NewServer(dev.Handler())
	defer srv.Close()

	client := backend.NewClient(srv.URL, 5*time.Second)
	reg := NewRegistry(client, noFee(), nil, nil, Options{})
	m := reg.Manager("tab-1")

	s, _, err := m.Open(context.Background(), qrisRequest(15000))
	require.NoError(t, err)
	assert.NotNil(t, s.Snapshot().QR)

	st, err := s.CheckOnOpen(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPending, st)

	require.True(t, dev.Settle(s.OrderID()))
	st, err = s.Check(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPaid, st)
	assert.Equal(t, 2, dev.Requests("lookup"))
}
