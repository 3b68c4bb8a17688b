// storefrontd keeps shopper cart, wishlist and recently-viewed state and
// syncs it with the storefront API. Serves REST and MCP on one port.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/afero"

	"storefront/internal/catalog"
	"storefront/internal/config"
	"storefront/internal/engine"
	"storefront/internal/handler"
	"storefront/internal/middleware"
	"storefront/internal/remote"
	"storefront/internal/storage"
	"storefront/internal/transport"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Initialize structured logger
	logger := initLogger()

	// Load configuration
	ctx := context.Background()
	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	policy, err := engine.ParsePolicy(cfg.LoginCartPolicy)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger.Info("configuration loaded",
		slog.String("storefront_id", cfg.StorefrontID),
		slog.String("environment", cfg.Environment),
		slog.String("api_base_url", cfg.API.BaseURL),
		slog.String("login_cart_policy", string(policy)),
		slog.String("tls_fingerprint", string(cfg.TLSFingerprint)),
	)

	// Remote storefront API and the catalog built on it
	client, err := remote.NewClient(remote.Config{
		BaseURL:    cfg.API.BaseURL,
		APIKey:     cfg.API.APIKey,
		APIVersion: cfg.API.Version,
		Timeout:    cfg.SyncTimeout,
		Transport:  transport.New(cfg.TLSFingerprint, cfg.SyncTimeout),
	})
	if err != nil {
		return fmt.Errorf("creating storefront client: %w", err)
	}

	products := catalog.NewCached(client, catalog.CachedConfig{
		TTL:          cfg.CatalogTTL,
		FetchTimeout: cfg.SyncTimeout,
		Logger:       logger,
	})
	// Warm the catalog; lookups retry on their own if this fails
	if err := products.Refresh(ctx); err != nil {
		logger.Warn("initial catalog fetch failed", slog.String("error", err.Error()))
	}

	// One engine per shopper session, each with its own storage directory
	root := storage.New(afero.NewOsFs(), cfg.DataDir, logger)
	registry := engine.NewRegistry(func(id string) *engine.Engine {
		return engine.New(engine.Config{
			API:         client,
			Catalog:     products,
			Storage:     root.Sub(id),
			Policy:      policy,
			SyncTimeout: cfg.SyncTimeout,
			RecentLimit: cfg.RecentLimit,
			Logger:      logger.With(slog.String("session", id)),
		})
	}, func(id string) bool {
		return root.Sub(id).Exists()
	}, logger)

	h := handler.New(registry, logger)

	// Setup routes
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	// Apply middleware chain: recovery → request id → logging → handler
	// Recovery must be outermost to catch panics from logging middleware
	httpHandler := middleware.Chain(
		middleware.Recovery(logger),
		middleware.RequestID(),
		middleware.Logging(logger),
	)(mux)

	// Create HTTP server with timeouts
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      httpHandler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Channel for shutdown signals
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Channel for server errors
	serverErr := make(chan error, 1)

	// Start server in goroutine
	go func() {
		logger.Info("server starting",
			slog.String("port", cfg.Port),
			slog.String("addr", server.Addr),
		)
		serverErr <- server.ListenAndServe()
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-serverErr:
		if err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-shutdown:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		// Give outstanding requests time to complete
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			// Force close if graceful shutdown fails
			server.Close()
			return fmt.Errorf("shutdown error: %w", err)
		}
	}

	// Let queued sync calls reach the API before exiting
	logger.Info("draining sync lanes", slog.Int("sessions", registry.Len()))
	registry.Drain()

	logger.Info("server stopped")
	return nil
}

// initLogger creates a structured logger configured for the environment.
// Production uses JSON format for GCP Cloud Logging compatibility.
// Development uses text format for readability.
func initLogger() *slog.Logger {
	level := slog.LevelInfo
	if os.Getenv("LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{
		Level: level,
		// Add source location in debug mode
		AddSource: level == slog.LevelDebug,
	}

	// JSON for production (Cloud Logging compatible), text for development
	if os.Getenv("ENVIRONMENT") == "production" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
