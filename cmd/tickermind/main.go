// Tickermind server — staged multi-agent equity analysis over HTTP with
// NDJSON progress streaming.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/tickermind/tickermind/pkg/api"
	"github.com/tickermind/tickermind/pkg/catalog"
	"github.com/tickermind/tickermind/pkg/config"
	"github.com/tickermind/tickermind/pkg/engine"
	"github.com/tickermind/tickermind/pkg/session"
)

const shutdownTimeout = 15 * time.Second

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		_ = level.UnmarshalText([]byte(v))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func main() {
	// Parse command-line flags
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./config"),
		"Path to configuration directory")
	flag.Parse()

	logger := newLogger()
	slog.SetDefault(logger)

	// Load .env file from config directory
	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment",
			"path", envPath, "error", err)
	} else {
		slog.Info("Loaded environment", "path", envPath)
	}

	ctx := context.Background()

	// 1. Load engine settings and the agent catalogue
	settings, err := config.LoadSettings(filepath.Join(*configDir, "engine.yaml"))
	if err != nil {
		slog.Error("Failed to load settings", "error", err)
		os.Exit(1)
	}

	registry, err := config.NewRegistry(*configDir, logger)
	if err != nil {
		slog.Error("Failed to load agent catalogue", "error", err)
		os.Exit(1)
	}
	slog.Info("Agent catalogue loaded",
		"agents", len(registry.List()),
		"profile", registry.State().SelectedProfile)

	// 2. Open the stock catalog. The catalog is best effort: when the
	// database is unreachable the server runs without history.
	var store *catalog.Store
	if settings.Catalog.DatabaseURL != "" {
		store, err = catalog.Open(ctx, settings.Catalog.DatabaseURL, logger)
		if err != nil {
			slog.Warn("Catalog unavailable, continuing without history", "error", err)
			store = nil
		} else {
			defer func() {
				if err := store.Close(); err != nil {
					slog.Error("Error closing catalog", "error", err)
				}
			}()
			slog.Info("Connected to PostgreSQL catalog")
		}
	}

	// 3. Assemble the analysis engine and the session manager
	eng := engine.New(registry, settings, logger, engine.Options{})
	manager := session.NewManager(eng, settings.Sessions, settings.Server.StreamCapacity, logger)
	if store != nil {
		manager.SetRecorder(store)
	}

	// 4. Create the HTTP server
	gin.SetMode(gin.ReleaseMode)
	server := api.NewServer(eng, manager, store, logger)
	httpServer := &http.Server{
		Addr:    settings.Server.ListenAddr,
		Handler: server.Router(),
	}

	// 5. Start the HTTP server (non-blocking)
	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", settings.Server.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	// 6. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// 7. Graceful shutdown: stop accepting requests, then cancel running
	// sessions and wait for their goroutines.
	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	// Sessions first: cancelling them closes their streams, which releases
	// any in-flight NDJSON responses Shutdown would otherwise wait on.
	if err := manager.Stop(shutdownCtx); err != nil {
		slog.Warn("Session manager shutdown incomplete", "error", err)
	}
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Warn("HTTP server shutdown incomplete", "error", err)
	}

	slog.Info("Shutdown complete")
}
