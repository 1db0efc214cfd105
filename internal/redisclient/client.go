package redisclient

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"jajanin-relay/internal/models"

	"github.com/go-redis/redis/v8"
)

type Client struct {
	rdb        *redis.Client
	pendingTTL time.Duration
}

// NewClient creates a new Redis client and verifies the connection
func NewClient(addr, password string, db int, pendingTTL time.Duration) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return NewClientWithRedis(rdb, pendingTTL), nil
}

// NewClientWithRedis wraps an existing go-redis client
func NewClientWithRedis(rdb *redis.Client, pendingTTL time.Duration) *Client {
	if pendingTTL <= 0 {
		pendingTTL = 30 * time.Minute
	}
	return &Client{rdb: rdb, pendingTTL: pendingTTL}
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping checks the connection for readiness probes
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func pendingKey(tabID string) string {
	return fmt.Sprintf("pending_payment:%s", tabID)
}

func terminalKey(orderID string) string {
	return fmt.Sprintf("payment_terminal:%s", orderID)
}

func idempotencyKey(key string) string {
	return fmt.Sprintf("idempotency:%s", key)
}

func lockKey(key string) string {
	return fmt.Sprintf("lock:%s", key)
}

// Save stores the pending wallet payment of a tab, replacing any previous one
func (c *Client) Save(ctx context.Context, tabID string, p models.PendingPayment) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal pending payment: %w", err)
	}
	return c.rdb.Set(ctx, pendingKey(tabID), payload, c.pendingTTL).Err()
}

// Load returns the pending wallet payment of a tab, nil when there is none
func (c *Client) Load(ctx context.Context, tabID string) (*models.PendingPayment, error) {
	payload, err := c.rdb.Get(ctx, pendingKey(tabID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load pending payment: %w", err)
	}

	var p models.PendingPayment
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("failed to decode pending payment: %w", err)
	}
	return &p, nil
}

// Clear removes the pending wallet payment of a tab
func (c *Client) Clear(ctx context.Context, tabID string) error {
	return c.rdb.Del(ctx, pendingKey(tabID)).Err()
}

// MarkTerminal records the final status of an order. It returns false when another
// instance already recorded one, so terminal side effects run once across replicas.
func (c *Client) MarkTerminal(ctx context.Context, orderID string, status models.PaymentStatus, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, terminalKey(orderID), string(status), ttl).Result()
}

// SetIdempotencyKey maps a client idempotency key to the order it created
func (c *Client) SetIdempotencyKey(ctx context.Context, key string, orderID string, ttl time.Duration) error {
	return c.rdb.Set(ctx, idempotencyKey(key), orderID, ttl).Err()
}

// GetIdempotencyKey returns the order created under key, empty when unseen
func (c *Client) GetIdempotencyKey(ctx context.Context, key string) (string, error) {
	v, err := c.rdb.Get(ctx, idempotencyKey(key)).Result()
	if err == redis.Nil {
		return "", nil
	}
	return v, err
}

// AcquireLock acquires a distributed lock
func (c *Client) AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, lockKey(key), "1", ttl).Result()
}

// ReleaseLock releases a distributed lock
func (c *Client) ReleaseLock(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, lockKey(key)).Err()
}
