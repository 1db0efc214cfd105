// Package feeconfig holds the platform admin-fee percentage. It is fetched once per
// process and never refreshed; a restart picks up server-side changes.
package feeconfig

import (
	"context"
	"sync"

	"jajanin-relay/internal/backend"
	"jajanin-relay/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// DefaultPercent applies when the backend cannot be reached or returns nonsense.
const DefaultPercent = 0.5

// Fetcher loads the public platform configuration.
type Fetcher interface {
	FetchConfig(ctx context.Context) (backend.PublicConfig, error)
}

// Cache fetches the admin fee once and serves it synchronously afterwards.
type Cache struct {
	fetcher  Fetcher
	fallback decimal.Decimal
	logger   *zap.Logger

	once    sync.Once
	mu      sync.RWMutex
	percent decimal.Decimal
	remote  bool
}

// NewCache creates a cache. fallback replaces DefaultPercent when it is within 0-100.
func NewCache(fetcher Fetcher, fallback float64) *Cache {
	def := decimal.NewFromFloat(DefaultPercent)
	if f := decimal.NewFromFloat(fallback); validPercent(f) {
		def = f
	}
	return &Cache{
		fetcher:  fetcher,
		fallback: def,
		percent:  def,
		logger:   util.ComponentLogger("feeconfig"),
	}
}

// Load fetches the fee the first time it is called. Later calls return immediately.
// Load never fails: any error leaves the fallback in place.
func (c *Cache) Load(ctx context.Context) {
	c.once.Do(func() {
		cfg, err := c.fetcher.FetchConfig(ctx)
		if err != nil {
			c.logger.Warn("Failed to fetch admin fee, using default",
				zap.String("default", c.fallback.String()),
				zap.Error(err))
			return
		}
		if cfg.AdminFeePercent == nil {
			c.logger.Warn("Backend config has no admin fee, using default")
			return
		}

		p := decimal.NewFromFloat(*cfg.AdminFeePercent)
		if !validPercent(p) {
			c.logger.Warn("Admin fee out of range, using default", zap.String("received", p.String()))
			return
		}

		c.mu.Lock()
		c.percent = p
		c.remote = true
		c.mu.Unlock()
		c.logger.Info("Admin fee loaded", zap.String("percent", p.String()))
	})
}

// Percent returns the active admin-fee percentage.
func (c *Cache) Percent() decimal.Decimal {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.percent
}

// FromBackend reports whether the active fee came from the backend rather than the default.
func (c *Cache) FromBackend() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.remote
}

// Quote prices qty units of unitPrice with the cached fee.
func (c *Cache) Quote(unitPrice int64, qty int) (Quote, error) {
	subtotal, err := Subtotal(unitPrice, qty)
	if err != nil {
		return Quote{}, err
	}
	return Compute(subtotal, c.Percent()), nil
}

func validPercent(p decimal.Decimal) bool {
	return !p.IsNegative() && p.LessThanOrEqual(decimal.NewFromInt(100))
}
