// Package main is the entry point for the sandplane controller.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sandplane/internal/config"
	"sandplane/internal/controller"
	"sandplane/internal/controller/handlers"
	"sandplane/internal/controller/middleware"
	"sandplane/internal/logger"
	"sandplane/internal/observability"
	"sandplane/internal/orchestrator"
	"sandplane/internal/provider"
	"sandplane/internal/sandbox"
	"sandplane/internal/store/postgres"
	"sandplane/internal/stream"
)

func main() {
	// Parse flags
	migrateFlag := flag.Bool("migrate", false, "Run database migrations before starting")
	flag.Parse()

	// Load Config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	slogger := logger.New()

	// Setup Database
	ctx := context.Background()
	store, err := postgres.New(ctx, cfg.DatabaseURL, cfg.ArtifactDir, slogger)
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	defer store.Close()

	// Run migrations if requested
	if *migrateFlag {
		log.Println("Running database migrations...")
		if err := postgres.Migrate(store.DB()); err != nil {
			log.Fatalf("Migration failed: %v", err)
		}
		log.Println("Migrations completed successfully")
	}

	// Tracing
	shutdownTracer, err := observability.Init(ctx, "sandplane-controller", cfg.OTELEndpoint)
	if err != nil {
		log.Fatalf("Failed to init tracing: %v", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			log.Printf("Failed to shutdown tracer: %v", err)
		}
	}()

	// Metrics
	metricsHandler, shutdownMetrics, err := observability.InitMetrics()
	if err != nil {
		log.Fatalf("Failed to init metrics: %v", err)
	}
	defer func() {
		if err := shutdownMetrics(context.Background()); err != nil {
			log.Printf("Failed to shutdown metrics: %v", err)
		}
	}()

	// An observable gauge that queries the DB only when scraped.
	if err := observability.RegisterRunningExecutionsGauge(store.CountRunning); err != nil {
		log.Printf("Failed to register running executions gauge: %v", err)
	}

	// Provider catalog and instances
	registry, err := provider.LoadRegistry()
	if err != nil {
		log.Fatalf("Failed to load provider catalog: %v", err)
	}

	manager := sandbox.NewManager()
	registerProviders(manager, cfg, slogger)

	// Orchestrator and SSE gateway
	configs := orchestrator.NewCatalogConfigSource(registry, "docker")
	orch := orchestrator.New(manager, registry, store, configs, slogger, orchestrator.Options{
		DefaultGracePeriod: cfg.StopGracePeriod,
	})

	tracker := stream.NewTracker(cfg.MaxSSEPerIP, slogger)
	streamer := stream.NewStreamer(store, tracker, slogger)

	// Retention: prune terminal executions past the configured age.
	retentionCtx, stopRetention := context.WithCancel(ctx)
	defer stopRetention()
	go retentionLoop(retentionCtx, store, cfg.Retention, slogger)

	// Start Server
	h := handlers.New(store, orch, registry, streamer, cfg.StopGracePeriod)
	limiter := middleware.NewRateLimiter(slogger)

	addr := fmt.Sprintf(":%d", cfg.HTTPPort)
	srv := controller.New(addr, h, limiter, metricsHandler)

	go func() {
		log.Printf("Sandplane Controller starting on %s", addr)
		if err := srv.Run(ctx); err != nil {
			log.Printf("Server stopped: %v", err)
		}
	}()

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down controller...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}
	log.Println("Server exited properly")
}

// registerProviders instantiates the docker provider and any remote stub
// whose credential is present. A missing credential skips the stub instead of
// failing startup; an unreachable docker daemon is discoverable via the
// provider's get_info, not fatal here.
func registerProviders(manager *sandbox.Manager, cfg *config.Config, slogger *slog.Logger) {
	docker, err := provider.NewDockerProvider(slogger)
	if err != nil {
		slogger.Warn("docker provider unavailable", "error", err.Error())
	} else {
		manager.RegisterProvider("docker", docker)
	}

	stubs := []struct {
		name       string
		credential string
		construct  func(*slog.Logger, string) (*provider.RemoteStub, error)
	}{
		{"e2b", cfg.E2BAPIKey, provider.NewE2BProvider},
		{"modal", cfg.ModalToken, provider.NewModalProvider},
		{"fly", cfg.FlyAPIToken, provider.NewFlyProvider},
	}
	for _, s := range stubs {
		if s.credential == "" {
			slogger.Warn("skipping remote provider, credential not configured", "provider", s.name)
			continue
		}
		stub, err := s.construct(slogger, s.credential)
		if err != nil {
			slogger.Warn("failed to construct remote provider", "provider", s.name, "error", err.Error())
			continue
		}
		manager.RegisterProvider(s.name, stub)
	}
}

// retentionLoop periodically prunes terminal executions older than the
// retention window, along with their logs and artifacts.
func retentionLoop(ctx context.Context, store interface {
	DeleteStale(ctx context.Context, cutoff time.Time) (int64, error)
}, retention time.Duration, slogger *slog.Logger) {
	if retention <= 0 {
		return
	}

	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := store.DeleteStale(ctx, time.Now().Add(-retention))
			if err != nil {
				slogger.Error("failed to prune stale executions", "error", err.Error())
				continue
			}
			if removed > 0 {
				slogger.Info("pruned stale executions", "removed", removed)
			}
		}
	}
}
