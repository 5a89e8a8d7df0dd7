package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"serverless-container/internal/config"
	"serverless-container/internal/handlers"
	"serverless-container/pkg/server"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

func main() {
	// Load configuration
	cfg, err := config.GetOptimizedConfig()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	logger := config.NewLogger(cfg.Log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	descriptor := handlers.NewDescriptor(&handlers.RouterConfig{Config: cfg, Logger: logger})
	container, err := server.NewContainer(cfg, logger, descriptor)
	if err != nil {
		logger.Fatalf("Failed to initialize container: %v", err)
	}

	// Start server
	go func() {
		if err := container.ListenAndServe(context.Background()); err != nil {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := container.Shutdown(ctx); err != nil {
		logger.Fatalf("Server forced to shutdown: %v", err)
	}
}
