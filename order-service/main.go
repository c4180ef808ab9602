package main

import (
	"context"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Ammar797/treatz-backend/config"
	"github.com/Ammar797/treatz-backend/events"
	"github.com/Ammar797/treatz-backend/middleware"
	"github.com/Ammar797/treatz-backend/order-service/cache"
	"github.com/Ammar797/treatz-backend/order-service/database"
	"github.com/Ammar797/treatz-backend/order-service/handlers"
	"github.com/Ammar797/treatz-backend/order-service/payment"
	"github.com/Ammar797/treatz-backend/order-service/repository"
	"github.com/Ammar797/treatz-backend/order-service/restaurant"
	"github.com/Ammar797/treatz-backend/order-service/service"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const serviceName = "order-service"

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

	// The owner cache is optional: without Redis every lookup goes to the
	// restaurant service.
	var owners restaurant.OwnerCache
	rdb, err := cache.InitRedis(cfg.Redis, logger)
	if err != nil {
		logger.Warn("Redis unavailable, restaurant owner cache disabled", zap.Error(err))
	} else {
		defer rdb.Close()
		owners = cache.NewOwnerCache(rdb, cfg.Redis.OwnerTTL)
	}

	bus, err := events.Open(cfg.Bus, serviceName, logger)
	if err != nil {
		logger.Fatal("Failed to connect to event bus", zap.Error(err))
	}
	defer bus.Close()

	restaurants := restaurant.NewClient(cfg.Upstream.RestaurantServiceURL, cfg.Upstream.Timeout, owners, logger)
	payments := payment.NewProcessor(payment.NewSimulatedGateway(logger), logger)
	orders := service.NewOrderService(repository.NewOrderRepository(db), restaurants, payments, bus, logger)

	// Setup REST API with Gin
	router := gin.New()
	router.Use(gin.Recovery())
	// OpenTelemetry middleware must be first to extract trace context
	router.Use(otelgin.Middleware(serviceName))
	router.Use(middleware.LoggerMiddleware(logger))
	router.Use(middleware.MetricsMiddleware())

	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", middleware.PrometheusHandler())

	api := router.Group("/orders", middleware.AuthMiddleware([]byte(cfg.JWT.Secret)))
	handlers.NewOrderHandler(orders, logger).Register(api)

	restSrv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	go func() {
		if err := restSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start REST server", zap.Error(err))
		}
	}()

	logger.Info("Order Service REST API started", zap.String("port", cfg.Server.Port))

	// gRPC health for the orchestrator's probes
	grpcListener, err := net.Listen("tcp", ":"+cfg.Server.GRPCPort)
	if err != nil {
		logger.Fatal("Failed to listen on gRPC port", zap.Error(err))
	}

	grpcServer := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
	)
	healthServer := health.NewServer()
	healthServer.SetServingStatus(serviceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	go func() {
		if err := grpcServer.Serve(grpcListener); err != nil {
			logger.Fatal("Failed to start gRPC server", zap.Error(err))
		}
	}()

	logger.Info("Order Service gRPC health server started", zap.String("port", cfg.Server.GRPCPort))

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down servers...")
	healthServer.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := restSrv.Shutdown(ctx); err != nil {
		logger.Error("REST server forced to shutdown", zap.Error(err))
	}

	grpcServer.GracefulStop()

	logger.Info("Servers exited")
}
