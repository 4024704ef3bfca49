package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/stockscan/stockscan-backend/internal/scan/client"
	"github.com/stockscan/stockscan-backend/internal/scan/handler"
	"github.com/stockscan/stockscan-backend/internal/scan/service"
	"github.com/stockscan/stockscan-backend/pkg/config"
	"github.com/stockscan/stockscan-backend/pkg/httputil"
	"github.com/stockscan/stockscan-backend/pkg/logger"
)

// events long-poll holds a response for up to a minute
const minWriteTimeout = 75 * time.Second

func main() {
	// Load configuration with validation (fails fast in production if required config is missing)
	cfg, err := config.LoadWithValidation("scan-service")
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	log := logger.New("scan-service", cfg.Server.Environment)
	log.Info().
		Str("inventory_service", cfg.Services.InventoryServiceURL).
		Str("default_mode", cfg.Session.DefaultMode).
		Msg("starting Scan Service")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	inventory := client.NewInventoryClient(cfg.Services.InventoryServiceURL, cfg.Services.RequestTimeout, log)
	manager := service.NewManager(inventory, cfg.Session, log)
	go manager.Run(ctx)

	sessionHandler := handler.NewSessionHandler(manager, log)

	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(httputil.RequestID)
	r.Use(httputil.Logger(log))
	r.Use(httputil.Recoverer(log))

	r.Use(cors.Handler(cors.Options{
		AllowOriginFunc: func(r *http.Request, origin string) bool {
			for _, allowed := range cfg.Server.AllowedOrigins {
				if origin == allowed {
					return true
				}
				// "*.example.com" matches any subdomain
				if strings.HasPrefix(allowed, "*.") && strings.HasSuffix(origin, allowed[1:]) {
					return true
				}
			}
			return false
		},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.JSON(w, http.StatusOK, map[string]interface{}{
			"status":   "healthy",
			"service":  "scan-service",
			"sessions": manager.Len(),
		})
	})

	r.Route("/api/v1/sessions", sessionHandler.Routes)

	writeTimeout := cfg.Server.WriteTimeout
	if writeTimeout < minWriteTimeout {
		writeTimeout = minWriteTimeout
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: writeTimeout,
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

	// Stops the sweeper
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
