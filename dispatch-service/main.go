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
	"github.com/Ammar797/treatz-backend/dispatch-service/database"
	"github.com/Ammar797/treatz-backend/dispatch-service/dispatch"
	"github.com/Ammar797/treatz-backend/dispatch-service/handlers"
	"github.com/Ammar797/treatz-backend/dispatch-service/listener"
	"github.com/Ammar797/treatz-backend/dispatch-service/orderclient"
	"github.com/Ammar797/treatz-backend/dispatch-service/repository"
	"github.com/Ammar797/treatz-backend/dispatch-service/scheduler"
	"github.com/Ammar797/treatz-backend/events"
	"github.com/Ammar797/treatz-backend/middleware"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
)

const serviceName = "dispatch-service"

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

	db, err := database.InitDB(cfg.Database, logger)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	riders := repository.NewRiderRepository(db)
	if cfg.Dispatch.SeedRiders {
		if err := riders.SeedIfEmpty(ctx, repository.SampleRiders, logger); err != nil {
			logger.Fatal("Failed to seed riders", zap.Error(err))
		}
	}

	bus, err := events.Open(cfg.Bus, serviceName, logger)
	if err != nil {
		logger.Fatal("Failed to connect to event bus", zap.Error(err))
	}
	defer bus.Close()

	orders := orderclient.NewClient(cfg.Upstream.OrderServiceURL, cfg.Upstream.Timeout, logger)
	coord := dispatch.NewCoordinator(riders, orders, logger)

	// Start event listener in background
	go events.Consume(ctx, bus, listener.Queue, listener.NewRouter(coord, logger), logger)

	reconciler := scheduler.NewReconciler(orders, coord,
		cfg.Dispatch.ReconcileInterval, cfg.Dispatch.ReconcileConcurrency, cfg.Upstream.Timeout, logger)
	go reconciler.Start(ctx)

	// Setup REST API with Gin
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))
	router.Use(middleware.LoggerMiddleware(logger))
	router.Use(middleware.MetricsMiddleware())

	router.GET("/health", handlers.HealthCheck)
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

	logger.Info("Dispatch Service started", zap.String("port", cfg.Server.Port))

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
