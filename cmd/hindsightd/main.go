// Command hindsightd runs the Hindsight temporal context service: storage,
// the context engine with its pattern recalculation worker, and the HTTP API.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/scrypster/hindsight/internal/config"
	"github.com/scrypster/hindsight/internal/engine"
	"github.com/scrypster/hindsight/internal/server"
	"github.com/scrypster/hindsight/internal/services"
	"github.com/scrypster/hindsight/internal/storage"
	"github.com/scrypster/hindsight/internal/storage/postgres"
	"github.com/scrypster/hindsight/internal/storage/sqlite"
	"github.com/scrypster/hindsight/pkg/types"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config file (overrides HINDSIGHT_CONFIG)")
	flag.Parse()

	if *configPath != "" {
		os.Setenv("HINDSIGHT_CONFIG", *configPath)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	store, err := openStore(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	settings, err := services.NewSettingsService(store)
	if err != nil {
		log.Fatalf("Failed to create settings service: %v", err)
	}
	if err := settings.Start(ctx); err != nil {
		log.Fatalf("Failed to start settings service: %v", err)
	}

	eng, err := engine.NewEngine(store, settings, engine.DefaultConfig())
	if err != nil {
		log.Fatalf("Failed to initialize context engine: %v", err)
	}
	if err := eng.Start(ctx); err != nil {
		log.Fatalf("Failed to start context engine: %v", err)
	}

	addr, hub, err := server.Start(ctx, cfg, store, eng, settings)
	if err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}

	// Stream build telemetry to connected analytics clients.
	eng.Composer().SetOnTelemetry(func(record types.TelemetryRecord) {
		hub.Broadcast(record)
	})

	log.Printf("Hindsight running at http://%s", addr)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutting down gracefully...")

	// Reverse order of startup: engine (worker) first, then settings, then
	// the server via context cancellation.
	if err := eng.Shutdown(ctx); err != nil {
		log.Printf("Error shutting down context engine: %v", err)
	}
	settings.Stop()

	cancel()
	time.Sleep(1 * time.Second) // Give time for connections to close
}

// openStore selects the storage backend from config.
func openStore(cfg *config.Config) (storage.Store, error) {
	switch cfg.Storage.StorageEngine {
	case "postgres":
		return postgres.NewStore(cfg.Storage.PostgresDSN)
	default:
		if err := os.MkdirAll(cfg.Storage.DataPath, 0o755); err != nil {
			return nil, err
		}
		return sqlite.NewStore(filepath.Join(cfg.Storage.DataPath, "hindsight.db"))
	}
}
