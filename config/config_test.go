package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("BACKEND_URL", "http://api.example.test/")
	t.Setenv("KAFKA_BROKERS", "")

	cfg := Load()

	assert.Equal(t, "http://api.example.test", cfg.Backend.BaseURL)
	assert.Equal(t, 3*time.Second, cfg.Backend.ReconnectDelay)
	assert.Equal(t, 5, cfg.Overlay.DefaultDurationSeconds)
	assert.Equal(t, 0.5, cfg.Checkout.DefaultFeePercent)
	assert.Equal(t, 90*time.Second, cfg.Overlay.IdleTimeout)
	assert.Equal(t, time.Hour, cfg.Checkout.SessionMaxAge)
	assert.Empty(t, cfg.Kafka.Brokers)
}

func TestLoadBrokerList(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")
	t.Setenv("DEFAULT_ADMIN_FEE_PERCENT", "not-a-number")

	cfg := Load()

	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 0.5, cfg.Checkout.DefaultFeePercent)
}
