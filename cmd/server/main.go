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

	"farm-market/config"
	"farm-market/internal/api"
	"farm-market/internal/auth"
	"farm-market/internal/broker"
	"farm-market/internal/redisclient"
	"farm-market/internal/service"
	"farm-market/internal/store"
	"farm-market/internal/util"
	"farm-market/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type stopper interface {
	Stop() error
}

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting farm market service", zap.String("env", cfg.Server.Env))

	tp, err := util.InitTracer(cfg.Observ.TracingEnabled, cfg.Observ.JaegerEndpoint)
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Error("Error shutting down tracer", zap.Error(err))
		}
	}()

	db, err := store.NewStore(cfg.Database.Driver, cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if err := db.EnsureSchema(context.Background()); err != nil {
		logger.Fatal("Failed to apply schema", zap.Error(err))
	}
	logger.Info("Database connected", zap.String("driver", cfg.Database.Driver))

	// Idempotency keys fall back to the orders table when Redis is down.
	var idempotency service.IdempotencyStore
	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Warn("Redis unavailable, idempotency keys checked against the database only", zap.Error(err))
	} else {
		defer redisClient.Close()
		idempotency = redisClient
		logger.Info("Redis connected", zap.String("addr", cfg.Redis.Addr))
	}

	var eventPublisher service.EventPublisher = broker.NopPublisher{}
	if cfg.Kafka.Enabled {
		producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicEvents)
		defer producer.Close()
		eventPublisher = broker.NewEventPublisher(producer)
		logger.Info("Kafka producer initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
	}

	tokens := auth.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL, cfg.Auth.RefreshTokenTTL)
	mailer := service.NewLogMailer()
	sealer, err := auth.NewSealer(cfg.Auth.EncryptionKey)
	if err != nil {
		logger.Fatal("Failed to initialize field encryption", zap.Error(err))
	}

	productService := service.NewProductService(db, eventPublisher)
	orderService := service.NewOrderService(db, idempotency, eventPublisher, cfg.Business.TaxRate, cfg.Business.IdempotencyTTL)
	alertService := service.NewAlertService(db)
	services := api.Services{
		Auth: service.NewAuthService(db, tokens, mailer, service.LoginPolicy{
			MaxAttempts:     cfg.Auth.MaxLoginAttempts,
			LockoutDuration: cfg.Auth.LockoutDuration,
		}),
		Products: productService,
		Catalog:  service.NewCatalogService(db),
		Carts:    service.NewCartService(db, cfg.Business.TaxRate),
		Orders:   orderService,
		Farmers:  service.NewFarmerService(db, sealer),
		Profiles: service.NewProfileService(db),
		Wishlist: service.NewWishlistService(db),
		Alerts:   alertService,
		Admin:    service.NewAdminService(db, productService, orderService),
	}

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	var workers []stopper
	if cfg.Kafka.Enabled {
		// Each worker needs its own group so both see every event.
		alertConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicEvents, cfg.Kafka.ConsumerGroup+"-alerts")
		alertWorker := worker.NewStockAlertWorker(alertConsumer, alertService)
		go func() {
			if err := alertWorker.Start(workerCtx); err != nil {
				logger.Error("Stock alert worker error", zap.Error(err))
			}
		}()

		notifyConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicEvents, cfg.Kafka.ConsumerGroup+"-notifications")
		notifyWorker := worker.NewOrderNotificationWorker(notifyConsumer, service.NewNotificationService(db, mailer))
		go func() {
			if err := notifyWorker.Start(workerCtx); err != nil {
				logger.Error("Order notification worker error", zap.Error(err))
			}
		}()

		workers = append(workers, alertWorker, notifyWorker)
	}

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(services, tokens, db, cfg.Auth.RatePerMinute)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	workerCancel()
	for _, w := range workers {
		if err := w.Stop(); err != nil {
			logger.Error("Failed to stop worker", zap.Error(err))
		}
	}

	logger.Info("Server exited")
}
