// tariffd serves the fee resolution engine: every answer traces back to
// a stored, versioned rule.

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

	"github.com/openbk/tariff/internal/api"
	"github.com/openbk/tariff/internal/bus"
	"github.com/openbk/tariff/internal/domain"
	"github.com/openbk/tariff/internal/feeval"
	"github.com/openbk/tariff/internal/notes"
	"github.com/openbk/tariff/internal/repository"
	"github.com/openbk/tariff/internal/resolver"
	"github.com/openbk/tariff/internal/session"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// Initialize structured logger
	logLevel := slog.LevelInfo
	if os.Getenv("TARIFF_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("starting tariffd",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	// Load configuration
	cfg := domain.DefaultConfig()
	if os.Getenv("TARIFF_CLUSTER") == "true" {
		cfg = domain.ClusterConfig()
		slog.Info("running in cluster mode")
	}
	applyEnvOverrides(cfg)

	slog.Info("configuration loaded",
		"repository", cfg.Repository.Driver,
		"session_store", cfg.Session.Type,
		"eventbus", cfg.EventBus.Type,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Initialize Rule Store
	store, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize rule store", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	slog.Info("rule store initialized", "driver", cfg.Repository.Driver)

	// Integrity audit at startup: the trigger should make this
	// impossible, but imported snapshots predating it have slipped
	// through before.
	if n, err := store.CountOverlaps(ctx); err != nil {
		slog.Warn("overlap audit failed", "error", err)
	} else if n > 0 {
		slog.Error("rule store contains overlapping active rules", "pairs", n)
		os.Exit(1)
	}

	// Initialize Session Store
	sessions, err := session.New(cfg.Session)
	if err != nil {
		slog.Error("failed to initialize session store", "error", err)
		os.Exit(1)
	}
	defer sessions.Close()
	slog.Info("session store initialized", "type", cfg.Session.Type, "ttl", cfg.Session.TTL)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Notes registry and evaluator
	registry := notes.NewRegistry(store, 5*time.Minute)
	evaluator := feeval.New(registry)

	// Resolver
	res := resolver.New(store, evaluator)
	slog.Info("resolver initialized")

	// Initialize Server
	srv := api.NewServer(cfg.Server, store, sessions, busImpl, res, registry, cfg.Session.TTL, Version)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("tariffd is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printEndpoints(cfg)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("tariffd shutdown complete")
}

// applyEnvOverrides maps deployment environment variables onto the
// config. Only the handful of knobs operations actually turns.
func applyEnvOverrides(cfg *domain.Config) {
	if v := os.Getenv("TARIFF_DB_PATH"); v != "" {
		cfg.Repository.SQLitePath = v
	}
	if v := os.Getenv("TARIFF_PG_HOST"); v != "" {
		cfg.Repository.PostgresHost = v
	}
	if v := os.Getenv("TARIFF_PG_USER"); v != "" {
		cfg.Repository.PostgresUser = v
	}
	if v := os.Getenv("TARIFF_PG_PASSWORD"); v != "" {
		cfg.Repository.PostgresPassword = v
	}
	if v := os.Getenv("TARIFF_PG_DB"); v != "" {
		cfg.Repository.PostgresDB = v
	}
	if v := os.Getenv("TARIFF_REDIS_ADDR"); v != "" {
		cfg.Session.RedisAddr = v
	}
	if v := os.Getenv("TARIFF_NATS_URL"); v != "" {
		cfg.EventBus.NATSUrl = v
	}
}

func printEndpoints(cfg *domain.Config) {
	fmt.Println()
	fmt.Printf("  tariffd %s listening on http://%s:%d\n", Version, cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /fees/calculate               - Resolve a card fee")
	fmt.Println("    POST /retail-asset-charges/query   - Resolve a retail asset charge")
	fmt.Println("    GET  /rules?family=...             - List active rules")
	fmt.Println("    GET  /rules/{id}                   - Get rule by id")
	fmt.Println("    POST /rules                        - Insert a rule version")
	fmt.Println("    POST /rules/{id}/supersede         - Close and replace a rule version")
	fmt.Println("    GET  /notes/{number}               - Get a schedule note")
	fmt.Println("    PUT  /notes/{number}               - Upsert a schedule note")
	fmt.Println("    GET  /integrity/overlaps           - No-overlap invariant audit")
	fmt.Println("    GET  /health                       - Health check")
	fmt.Println()
}
