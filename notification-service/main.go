package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Ammar797/treatz-backend/config"
	"github.com/Ammar797/treatz-backend/events"
	"github.com/Ammar797/treatz-backend/middleware"
	"github.com/Ammar797/treatz-backend/notification-service/handlers"
	"github.com/Ammar797/treatz-backend/notification-service/notifier"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const serviceName = "notification-service"

func main() {
	// Initialize logger
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	cfg := config.Load(serviceName)

	// Initialize OpenTelemetry
	shutdown, err := middleware.InitTracing(serviceName, cfg.Tracing.JaegerEndpoint)
	if err != nil {
		logger.Fatal("Failed to initialize tracing", zap.Error(err))
	}
	defer shutdown()

	bus, err := events.Open(cfg.Bus, serviceName, logger)
	if err != nil {
		logger.Fatal("Failed to connect to event bus", zap.Error(err))
	}
	defer bus.Close()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Start event consumer in background
	go events.Consume(ctx, bus, notifier.Queue, notifier.New(os.Stdout, logger).NewRouter(), logger)

	// Setup REST API with Gin
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.LoggerMiddleware(logger))
	router.Use(middleware.MetricsMiddleware())

	// Health check endpoint
	router.GET("/health", handlers.HealthCheck)

	// Metrics endpoint
	router.GET("/metrics", middleware.PrometheusHandler())

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start REST server", zap.Error(err))
		}
	}()

	logger.Info("Notification Service started", zap.String("port", cfg.Server.Port))

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}
