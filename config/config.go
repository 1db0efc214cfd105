package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Backend  BackendConfig
	Overlay  OverlayConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Observ   ObservabilityConfig
	Checkout CheckoutConfig
}

type ServerConfig struct {
	Port string
	Env  string
}

// BackendConfig points at the Jajanin API that owns donations, payments and the alert stream.
type BackendConfig struct {
	BaseURL        string
	RequestTimeout time.Duration
	ReconnectDelay time.Duration
}

type OverlayConfig struct {
	Port      string
	StreamKey string
	// DefaultDurationSeconds is used until the creator's alert settings are fetched.
	DefaultDurationSeconds int
	TTSEnabled             bool
	// IdleTimeout forces a reconnect when the stream is silent this long. Heartbeats count.
	IdleTimeout time.Duration
}

type DatabaseConfig struct {
	URL string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type KafkaConfig struct {
	Brokers            []string
	TopicPayments      string
	TopicNotifications string
	ConsumerGroup      string
}

type ObservabilityConfig struct {
	JaegerEndpoint string
	PrometheusPort string
}

type CheckoutConfig struct {
	PendingTTLSeconds int
	DefaultFeePercent float64
	RedirectURL       string
	SessionMaxAge     time.Duration
}

func Load() *Config {
	_ = godotenv.Load()

	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	requestTimeout, _ := strconv.Atoi(getEnv("BACKEND_TIMEOUT_SECONDS", "10"))
	reconnectMillis, _ := strconv.Atoi(getEnv("STREAM_RECONNECT_MILLIS", "3000"))
	duration, _ := strconv.Atoi(getEnv("ALERT_DURATION_SECONDS", "5"))
	pendingTTL, _ := strconv.Atoi(getEnv("PENDING_TTL_SECONDS", "1800"))
	idleTimeout, _ := strconv.Atoi(getEnv("STREAM_IDLE_TIMEOUT_SECONDS", "90"))
	maxAge, _ := strconv.Atoi(getEnv("SESSION_MAX_AGE_MINUTES", "60"))
	feePercent, err := strconv.ParseFloat(getEnv("DEFAULT_ADMIN_FEE_PERCENT", "0.5"), 64)
	if err != nil {
		feePercent = 0.5
	}

	cfg := &Config{
		Server: ServerConfig{
			Port: getEnv("PORT", "8081"),
			Env:  getEnv("ENV", "development"),
		},
		Backend: BackendConfig{
			BaseURL:        strings.TrimRight(getEnv("BACKEND_URL", "http://localhost:8080"), "/"),
			RequestTimeout: time.Duration(requestTimeout) * time.Second,
			ReconnectDelay: time.Duration(reconnectMillis) * time.Millisecond,
		},
		Overlay: OverlayConfig{
			Port:                   getEnv("OVERLAY_PORT", "8082"),
			StreamKey:              getEnv("STREAM_KEY", ""),
			DefaultDurationSeconds: duration,
			TTSEnabled:             getEnv("TTS_ENABLED", "true") == "true",
			IdleTimeout:            time.Duration(idleTimeout) * time.Second,
		},
		Database: DatabaseConfig{
			URL: getEnv("DATABASE_URL", ""),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		Kafka: KafkaConfig{
			Brokers:            splitNonEmpty(getEnv("KAFKA_BROKERS", "")),
			TopicPayments:      getEnv("KAFKA_TOPIC_PAYMENT_EVENTS", "payment-events"),
			TopicNotifications: getEnv("KAFKA_TOPIC_PAYMENT_NOTIFICATIONS", "payment-notifications"),
			ConsumerGroup:      getEnv("KAFKA_CONSUMER_GROUP", "jajanin-relay"),
		},
		Observ: ObservabilityConfig{
			JaegerEndpoint: getEnv("JAEGER_ENDPOINT", ""),
			PrometheusPort: getEnv("PROMETHEUS_PORT", "9090"),
		},
		Checkout: CheckoutConfig{
			PendingTTLSeconds: pendingTTL,
			DefaultFeePercent: feePercent,
			RedirectURL:       getEnv("CHECKOUT_REDIRECT_URL", "http://localhost:3000/payment/status"),
			SessionMaxAge:     time.Duration(maxAge) * time.Minute,
		},
	}

	log.Printf("Config loaded: env=%s, port=%s, backend=%s", cfg.Server.Env, cfg.Server.Port, cfg.Backend.BaseURL)
	return cfg
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func splitNonEmpty(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
