package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ignite/attribution-engine/internal/api"
	"github.com/ignite/attribution-engine/internal/cache"
	"github.com/ignite/attribution-engine/internal/config"
	"github.com/ignite/attribution-engine/internal/intelligence"
	"github.com/ignite/attribution-engine/internal/journey"
	"github.com/ignite/attribution-engine/internal/registry"
	"github.com/ignite/attribution-engine/internal/repository/postgres"
	"github.com/ignite/attribution-engine/internal/worker"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"
)

// checkPortAvailable verifies that the target port is not already in use.
func checkPortAvailable(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("port %d is already in use (addr %s): %v", port, addr, err)
	}
	ln.Close()
	return nil
}

func main() {
	log.Println("Attribution Engine API server starting")

	cfg, err := config.LoadFromEnv("config/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	host := cfg.Server.GetHost()
	port := cfg.Server.Port
	if err := checkPortAvailable(host, port); err != nil {
		log.Fatalf("Pre-flight check failed: %v", err)
	}

	// Postgres (optional): registry persistence + journey backlog.
	var modelRepo *postgres.ModelRepo
	var journeyRepo *postgres.JourneyRepo
	var db *sql.DB
	if cfg.Database.Enabled && cfg.Database.URL != "" {
		db, err = sql.Open("postgres", cfg.Database.URL)
		if err != nil {
			log.Fatalf("Failed to open database: %v", err)
		}
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := db.PingContext(pingCtx); err != nil {
			log.Printf("Database unreachable, continuing in-memory: %v", err)
			db.Close()
			db = nil
		} else {
			modelRepo = postgres.NewModelRepo(db)
			journeyRepo = postgres.NewJourneyRepo(db)
			log.Println("Database connected")
		}
		cancel()
	}
	if db != nil {
		defer db.Close()
	}

	// Redis (optional): channel report snapshot cache.
	var snapshots *cache.SnapshotStore
	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := client.Ping(pingCtx).Err(); err != nil {
			log.Printf("Redis unreachable, snapshot cache disabled: %v", err)
		} else {
			snapshots = cache.NewSnapshotStore(client, cfg.Redis.SnapshotTTL())
			log.Println("Redis snapshot cache enabled")
		}
		cancel()
	}

	// Core wiring. The registry loads persisted models first, then fills
	// in any missing standard models.
	var reg *registry.Registry
	if modelRepo != nil {
		reg = registry.New(modelRepo)
	} else {
		reg = registry.New(nil)
	}
	registry.SeedStandardModels(context.Background(), reg, cfg.Attribution.DefaultLookbackDays)

	builder := journey.NewBuilder(cfg.Attribution.DefaultLookbackDays)
	recommender := intelligence.NewRecommender(reg)

	var repo worker.Repository
	if journeyRepo != nil {
		repo = journeyRepo
	}
	recomputer := worker.NewRecomputer(reg, repo, snapshots, cfg.Attribution.DefaultLookbackDays, worker.Options{
		Concurrency: cfg.Worker.Concurrency,
		BatchSize:   cfg.Worker.BatchSize,
		Deadline:    cfg.Worker.Deadline(),
		BacklogDays: cfg.Worker.BacklogDays,
	})

	handlers := api.NewHandlers(reg, builder, recommender, recomputer, snapshots)
	router := api.SetupRoutes(handlers)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", host, port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
	}

	go func() {
		log.Printf("Listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	log.Println("All services initialized — server is ready")

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	<-done

	log.Println("Shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
	log.Println("Server stopped")
}
