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

	"jajanin-relay/internal/devbackend"
	"jajanin-relay/internal/util"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	if err := util.InitLogger("development"); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()
	logger := util.GetLogger()

	port := os.Getenv("DEVBACKEND_PORT")
	if port == "" {
		port = "8080"
	}

	dev := devbackend.New(devbackend.Options{})
	dev.AddCreator("demo", "sk-demo")
	dev.AddProduct("kopi", "Kopi", "☕")
	dev.AddProduct("bakso", "Bakso", "")

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", port),
		Handler: dev.Handler(),
	}
	go func() {
		logger.Info("Starting dev backend", zap.String("port", port), zap.String("stream_key", "sk-demo"))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	dev.DropStreams()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}
}
