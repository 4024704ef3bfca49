package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/stockscan/stockscan-backend/internal/inventory/events"
	"github.com/stockscan/stockscan-backend/internal/inventory/handler"
	"github.com/stockscan/stockscan-backend/internal/inventory/repository"
	"github.com/stockscan/stockscan-backend/internal/inventory/service"
	"github.com/stockscan/stockscan-backend/pkg/cache"
	"github.com/stockscan/stockscan-backend/pkg/config"
	"github.com/stockscan/stockscan-backend/pkg/database"
	"github.com/stockscan/stockscan-backend/pkg/httputil"
	"github.com/stockscan/stockscan-backend/pkg/logger"
	"github.com/stockscan/stockscan-backend/pkg/messaging"
)

func main() {
	// Load configuration with validation (fails fast in production if required config is missing)
	cfg, err := config.LoadWithValidation("inventory-service")
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	log := logger.New("inventory-service", cfg.Server.Environment)
	log.Info().Msg("starting Inventory Service")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Connect to database
	db, err := database.New(&cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	if err := repository.Migrate(ctx, db); err != nil {
		log.Fatal().Err(err).Msg("failed to apply schema")
	}

	// Connect to RabbitMQ
	rmq, err := messaging.New(&cfg.RabbitMQ, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to RabbitMQ")
	}
	defer rmq.Close()

	publisher, err := events.NewInventoryEventPublisher(rmq, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create event publisher")
	}

	// Redis is optional outside production; replays are then caught by the
	// batch_id unique constraint alone.
	var (
		idem        *cache.Idempotency
		idempotency service.Idempotency
	)
	redisClient, err := cache.NewClient(ctx, &cfg.Redis)
	switch {
	case err == nil:
		defer redisClient.Close()
		idem = cache.NewIdempotency(redisClient, cfg.Redis.IdempotencyTTL)
		idempotency = idem
	case config.IsDeployed(cfg.Server.Environment):
		log.Fatal().Err(err).Msg("failed to connect to Redis")
	default:
		log.Warn().Err(err).Msg("redis unavailable, batch idempotency falls back to the database")
	}

	// Initialize repositories
	productRepo := repository.NewProductRepository(db)
	inventoryRepo := repository.NewInventoryRepository(db)
	catalogRepo := repository.NewCatalogRepository(db)

	inventoryService := service.NewInventoryService(productRepo, inventoryRepo, catalogRepo, idempotency, publisher, log)
	inventoryHandler := handler.NewInventoryHandler(inventoryService, log)

	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(httputil.RequestID)
	r.Use(httputil.Logger(log))
	r.Use(httputil.Recoverer(log))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		redisStatus := map[string]string{"status": "disabled"}
		if idem != nil {
			redisStatus["status"] = "up"
			if err := idem.Health(r.Context()); err != nil {
				redisStatus["status"] = "down"
				redisStatus["error"] = err.Error()
			}
		}
		httputil.JSON(w, http.StatusOK, map[string]interface{}{
			"status":   "healthy",
			"service":  "inventory-service",
			"database": db.Health(r.Context()),
			"rabbitmq": rmq.Health(),
			"redis":    redisStatus,
		})
	})

	r.Route("/api/v1/inventory", inventoryHandler.Routes)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
