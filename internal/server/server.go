// Package server provides HTTP server initialization and lifecycle
// management for the Hindsight API.
package server

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/scrypster/hindsight/internal/config"
	"github.com/scrypster/hindsight/internal/engine"
	"github.com/scrypster/hindsight/internal/services"
	"github.com/scrypster/hindsight/internal/storage"
	"github.com/scrypster/hindsight/web/handlers"
)

// Start initializes and starts the HTTP server. It returns the actual
// address being listened on (useful for testing with port 0) and the
// TelemetryHub for wiring prompt-build broadcasts.
func Start(ctx context.Context, cfg *config.Config, store storage.Store, eng *engine.Engine, settings *services.SettingsService) (string, *handlers.TelemetryHub, error) {
	mux := http.NewServeMux()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)

	hub := handlers.NewTelemetryHub([]string{addr, fmt.Sprintf("localhost:%d", cfg.Server.Port)})
	go hub.Run()

	rateLimiter := handlers.NewRateLimiter(cfg.Server.RateLimitPerSecond, cfg.Server.RateLimitBurst)

	api := handlers.NewAPIHandlers(store, eng, settings)

	mux.HandleFunc("GET /api/health", api.Health)
	mux.HandleFunc("GET /api/cameras/{id}/pattern", api.GetCameraPattern)
	mux.HandleFunc("GET /api/entities", api.ListEntities)
	mux.HandleFunc("GET /api/entities/{id}", api.GetEntity)
	mux.HandleFunc("POST /api/events", api.IngestEvent)
	mux.HandleFunc("GET /api/settings", api.GetSettings)
	mux.HandleFunc("PUT /api/settings", api.UpdateSettings)
	mux.Handle("/ws/telemetry", hub)

	handler := handlers.RequireAuth(mux, cfg)
	handler = handlers.RateLimitMiddleware(handler, rateLimiter)
	handler = handlers.SecurityHeaders(handler)
	handler = handlers.RequestLogger(handler)

	server := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return "", nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	actualAddr := listener.Addr().String()

	go func() {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Printf("server: ERROR %v", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("server: shutdown error: %v", err)
		}
		hub.Stop()
	}()

	log.Printf("server: listening on %s", actualAddr)
	return actualAddr, hub, nil
}
