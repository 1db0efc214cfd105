package redisclient

import (
	"context"
	"testing"
	"time"

	"jajanin-relay/internal/checkout"
	"jajanin-relay/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ checkout.PendingStore = (*Client)(nil)

func TestKeyFormats(t *testing.T) {
	assert.Equal(t, "pending_payment:tab-1", pendingKey("tab-1"))
	assert.Equal(t, "payment_terminal:JJN-1", terminalKey("JJN-1"))
	assert.Equal(t, "idempotency:abc", idempotencyKey("abc"))
	assert.Equal(t, "lock:notify:JJN-1", lockKey("notify:JJN-1"))
}

func TestPendingRoundTrip(t *testing.T) {
	t.Skip("Integration test - requires redis")

	client, err := NewClient("localhost:6379", "", 15, time.Minute)
	require.NoError(t, err)
	defer client.Close()
	ctx := context.Background()

	p := models.PendingPayment{OrderID: "JJN-1", PlatformTradeNo: "PL-1", Amount: 20000, CreatorUsername: "budi"}
	require.NoError(t, client.Save(ctx, "tab-1", p))

	got, err := client.Load(ctx, "tab-1")
	require.NoError(t, err)
	assert.Equal(t, "JJN-1", got.OrderID)

	require.NoError(t, client.Clear(ctx, "tab-1"))
	got, err = client.Load(ctx, "tab-1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMarkTerminalOnce(t *testing.T) {
	t.Skip("Integration test - requires redis")

	client, err := NewClient("localhost:6379", "", 15, time.Minute)
	require.NoError(t, err)
	defer client.Close()
	ctx := context.Background()
	_ = client.rdb.Del(ctx, terminalKey("JJN-2"))

	first, err := client.MarkTerminal(ctx, "JJN-2", models.PaymentStatusPaid, time.Minute)
	require.NoError(t, err)
	second, err := client.MarkTerminal(ctx, "JJN-2", models.PaymentStatusFailed, time.Minute)
	require.NoError(t, err)

	assert.True(t, first)
	assert.False(t, second)

	status, err := client.rdb.Get(ctx, terminalKey("JJN-2")).Result()
	require.NoError(t, err)
	assert.Equal(t, string(models.PaymentStatusPaid), status)
}
