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
	"jajanin-relay/internal/backend"
	"jajanin-relay/internal/models"
	"jajanin-relay/internal/presenter"
	"jajanin-relay/internal/relay"
	"jajanin-relay/internal/stream"
	"jajanin-relay/internal/util"

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
	if cfg.Overlay.StreamKey == "" {
		logger.Fatal("STREAM_KEY is required")
	}
	logger.Info("Starting overlay agent", zap.String("backend", cfg.Backend.BaseURL))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := relay.NewHub()
	go hub.Run(ctx)

	gate := presenter.NewAudioGate()
	effects := relay.NewEffects(hub)
	settings := presenter.DefaultSettings()
	settings.Duration = cfg.Overlay.DefaultDurationSeconds
	settings.TTSEnabled = cfg.Overlay.TTSEnabled
	p := presenter.New(presenter.Options{Settings: &settings}, effects, effects, gate)

	srv := relay.NewServer(hub, p, gate)

	client := backend.NewClient(cfg.Backend.BaseURL, cfg.Backend.RequestTimeout)
	fetchCtx, fetchCancel := context.WithTimeout(ctx, cfg.Backend.RequestTimeout)
	creatorSettings, err := client.FetchAlertSettings(fetchCtx, cfg.Overlay.StreamKey)
	fetchCancel()
	if err != nil {
		logger.Warn("Failed to fetch alert settings, using defaults", zap.Error(err))
	} else {
		srv.ApplySettings(presenter.FromAlertSettings(creatorSettings, cfg.Overlay.TTSEnabled))
	}

	go func() {
		if err := p.Run(ctx); err != nil && err != context.Canceled {
			logger.Error("Presenter stopped", zap.Error(err))
		}
	}()

	streams := stream.NewClient(cfg.Backend.BaseURL, stream.Options{
		ReconnectDelay: cfg.Backend.ReconnectDelay,
		IdleTimeout:    cfg.Overlay.IdleTimeout,
	})
	sub, err := streams.Subscribe(cfg.Overlay.StreamKey,
		func(alert models.AlertEvent) {
			logger.Info("Alert received",
				zap.String("supporter", alert.SupporterName),
				zap.Int64("amount", alert.Amount))
			p.Enqueue(alert)
		},
		func(st stream.Status) {
			logger.Info("Alert stream status", zap.String("status", string(st)))
		})
	if err != nil {
		logger.Fatal("Failed to subscribe to alert stream", zap.Error(err))
	}
	defer sub.Close()
	srv.SetSubscription(sub)

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	srv.SetupRoutes(router)

	httpSrv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Overlay.Port),
		Handler: router,
	}
	go func() {
		logger.Info("Starting overlay server", zap.String("port", cfg.Overlay.Port))
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down overlay agent")
	sub.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Overlay agent exited")
}
