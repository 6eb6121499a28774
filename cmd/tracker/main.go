package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/koreameme/daegu-bus-realtime/internal/api"
	"github.com/koreameme/daegu-bus-realtime/internal/cache"
	"github.com/koreameme/daegu-bus-realtime/internal/config"
	"github.com/koreameme/daegu-bus-realtime/internal/resolve"
	"github.com/koreameme/daegu-bus-realtime/internal/tracker"
	"github.com/koreameme/daegu-bus-realtime/internal/upstream"
)

func main() {
	log.Println("Starting Daegu Bus Tracker...")

	// Load base .env first, then .env.local (which overrides for local development)
	_ = godotenv.Load(".env")
	_ = godotenv.Overload(".env.local")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}
	log.Printf("Config loaded: poll_interval=%v, inactivity_window=%v, format=%s",
		cfg.PollInterval, cfg.InactivityWindow, cfg.ResponseFormat)

	// Persistent cache tier: Redis when configured, embedded SQLite otherwise.
	var store cache.Store
	if cfg.RedisAddr != "" {
		log.Printf("Connecting to Redis cache at %s", cfg.RedisAddr)
		store, err = cache.OpenRedis(cfg.RedisAddr)
	} else {
		log.Printf("Opening SQLite cache at %s", cfg.CachePath)
		store, err = cache.OpenSQLite(cfg.CachePath)
	}
	if err != nil {
		log.Fatalf("Failed to open cache store: %v", err)
	}
	defer store.Close()

	tieredCache := cache.New(store)

	client, err := upstream.NewClient(cfg, nil)
	if err != nil {
		log.Fatalf("Failed to create upstream client: %v", err)
	}

	resolver := resolve.New(client, tieredCache, cfg.StationCacheTTL)
	history := resolve.NewHistory(store, cfg.HistoryLimit)
	presence := tracker.NewPresence(cfg.InactivityWindow, nil)
	tr := tracker.New(client, resolver, presence, cfg.PollInterval, nil)
	board := tracker.NewBoard(client, presence, cfg.DefaultStopID, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go tr.Run(ctx)
	go board.Run(ctx, cfg.PollInterval)

	server := api.NewServer(tr, board, history, cfg.AllowedOrigins)
	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: server.Router(),
	}

	go func() {
		log.Printf("API server starting on %s", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Println("Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP shutdown error: %v", err)
	}
	log.Println("Goodbye!")
}
