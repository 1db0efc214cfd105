package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"jajanin-relay/config"
	"jajanin-relay/internal/api"
	"jajanin-relay/internal/backend"
	"jajanin-relay/internal/broker"
	"jajanin-relay/internal/checkout"
	"jajanin-relay/internal/feeconfig"
	"jajanin-relay/internal/redisclient"
	"jajanin-relay/internal/service"
	"jajanin-relay/internal/store"
	"jajanin-relay/internal/util"
	"jajanin-relay/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting checkout service", zap.String("backend", cfg.Backend.BaseURL))

	tp, err := util.InitTracer("jajanin-checkout", cfg.Observ.JaegerEndpoint)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Warn("Error shutting down tracer", zap.Error(err))
		}
	}()

	ctx := context.Background()
	client := backend.NewClient(cfg.Backend.BaseURL, cfg.Backend.RequestTimeout)
	fees := feeconfig.NewCache(client, cfg.Checkout.DefaultFeePercent)

	var (
		ledger  service.Ledger
		sweep   worker.PendingLedger
		marker  service.TerminalMarker
		idem    service.IdempotencyStore
		locker  service.Locker
		pending checkout.PendingStore = checkout.NewMemoryPendingStore()
		checks  = map[string]api.ReadinessCheck{}
	)

	if cfg.Database.URL != "" {
		db, err := store.NewStore(cfg.Database.URL)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.Close()
		if err := db.Migrate(ctx); err != nil {
			log.Fatalf("Failed to migrate database: %v", err)
		}
		ledger = db
		sweep = db
		checks["database"] = db.Ping
		logger.Info("Database connected")
	}

	if cfg.Redis.Addr != "" {
		redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB,
			time.Duration(cfg.Checkout.PendingTTLSeconds)*time.Second)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer redisClient.Close()
		pending = redisClient
		marker = redisClient
		idem = redisClient
		locker = redisClient
		checks["redis"] = redisClient.Ping
		logger.Info("Redis connected")
	}

	var (
		publisher checkout.LifecyclePublisher
		sink      api.NotificationSink
		consumer  *broker.Consumer
	)
	if len(cfg.Kafka.Brokers) > 0 {
		lifecycle := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicPayments)
		defer lifecycle.Close()
		notifications := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicNotifications)
		defer notifications.Close()

		eventPublisher := broker.NewEventPublisher(lifecycle, notifications)
		publisher = eventPublisher
		sink = eventPublisher
		consumer = broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicNotifications, cfg.Kafka.ConsumerGroup)
		logger.Info("Kafka producers initialized")
	}

	guard := service.NewTerminalGuard(ledger, marker, service.DefaultTerminalTTL)
	registry := checkout.NewRegistry(client, fees, pending, service.NewLifecycleRecorder(guard, publisher), checkout.Options{
		RedirectURL: cfg.Checkout.RedirectURL,
	})
	checkoutService := service.NewCheckoutService(registry, fees, ledger, idem)
	confirmations := service.NewConfirmationService(registry, ledger, guard, locker)

	fees.Load(ctx)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	var confirmationWorker *worker.ConfirmationWorker
	if consumer != nil {
		confirmationWorker = worker.NewConfirmationWorker(consumer, confirmations)
		go func() {
			if err := confirmationWorker.Start(workerCtx); err != nil && err != context.Canceled {
				logger.Error("Confirmation worker error", zap.Error(err))
			}
		}()
	}

	pruner := worker.NewPruner(registry, sweep, time.Minute, cfg.Checkout.SessionMaxAge)
	go func() {
		_ = pruner.Start(workerCtx)
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(checkoutService, confirmations, sink)
	for name, check := range checks {
		handler.AddReadinessCheck(name, check)
	}
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	workerCancel()
	if confirmationWorker != nil {
		_ = confirmationWorker.Stop()
	}

	logger.Info("Server exited")
}
