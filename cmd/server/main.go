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

	"checkout-service/config"
	"checkout-service/internal/api"
	"checkout-service/internal/broker"
	"checkout-service/internal/catalog"
	"checkout-service/internal/discount"
	"checkout-service/internal/inventory"
	"checkout-service/internal/redisclient"
	"checkout-service/internal/service"
	"checkout-service/internal/store"
	"checkout-service/internal/util"
	"checkout-service/internal/worker"

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
	logger.Info("Starting checkout service")

	tp, err := util.InitTracer("checkout-service", cfg.Observ.JaegerEndpoint)
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

	dependencies := map[string]api.Pinger{}

	var db *store.Store
	if cfg.UsesPostgres() {
		db, err = store.NewStore(cfg.Database.URL)
		if err != nil {
			logger.Fatal("Failed to connect to database", zap.Error(err))
		}
		defer db.Close()
		dependencies["postgres"] = db
		logger.Info("Database connected")
	}

	// Products come from Postgres whenever it is configured; the demo catalog otherwise.
	sample := catalog.SampleRepository()
	var products catalog.ProductReader = sample
	if db != nil {
		products = db
	}

	var invStore inventory.Store
	switch cfg.Business.InventoryBackend {
	case config.InventoryRedis:
		redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer redisClient.Close()
		dependencies["redis"] = redisClient
		logger.Info("Redis connected")

		redisStore := inventory.NewRedisStore(redisClient)
		if err := redisStore.SyncFrom(context.Background(), db); err != nil {
			logger.Error("Failed to sync inventory to Redis", zap.Error(err))
		}
		invStore = redisStore
	case config.InventoryPostgres:
		invStore = inventory.NewPostgresStore(db)
	case config.InventoryMemory:
		invStore = sample
	default:
		logger.Fatal("Unknown inventory backend", zap.String("backend", cfg.Business.InventoryBackend))
	}

	var discounts discount.ConfigSource = discount.StaticSource{Config: discount.DefaultConfig()}
	if cfg.Business.DiscountSource == config.DiscountPostgres {
		discounts = db
	}

	var checkouts service.CheckoutStore = service.NewMemoryCheckoutStore()
	var processed worker.ProcessedEvents
	if db != nil {
		checkouts = db
		processed = db
	}

	manager := inventory.NewManager(invStore, cfg.Business.ReservationLockTimeout)

	var publisher service.EventPublisher
	var releaseWorker *worker.ReleaseWorker
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	if cfg.Kafka.Enabled {
		producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicCheckout)
		defer producer.Close()
		publisher = broker.NewEventPublisher(producer)
		logger.Info("Kafka producer initialized", zap.String("topic", cfg.Kafka.TopicCheckout))

		consumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicCheckout, cfg.Kafka.ConsumerGroup)
		releaseWorker = worker.NewReleaseWorker(consumer, manager, processed)
		go func() {
			if err := releaseWorker.Start(workerCtx); err != nil && err != context.Canceled {
				logger.Error("Release worker error", zap.Error(err))
			}
		}()
	}

	repo := catalog.Composite{Products: products, Inventory: invStore}
	checkoutService := service.NewCheckoutService(repo, discounts, manager, checkouts, publisher, cfg.Business.RepositoryTimeout)

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(checkoutService, dependencies)
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

	logger.Info("Shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	workerCancel()
	if releaseWorker != nil {
		_ = releaseWorker.Stop()
	}

	logger.Info("Server exited")
}
