package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ignite/attribution-engine/internal/cache"
	"github.com/ignite/attribution-engine/internal/config"
	"github.com/ignite/attribution-engine/internal/pkg/distlock"
	"github.com/ignite/attribution-engine/internal/registry"
	"github.com/ignite/attribution-engine/internal/repository/postgres"
	"github.com/ignite/attribution-engine/internal/worker"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
)

func main() {
	log.Println("Starting attribution recompute worker...")

	cfg, err := config.LoadFromEnv("config/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	dbURL := cfg.Database.URL
	if dbURL == "" {
		log.Fatal("DATABASE_URL is required for the recompute worker")
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}
	log.Println("Connected to database")

	var snapshots *cache.SnapshotStore
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(context.Background()).Err(); err != nil {
			log.Printf("Redis unreachable, snapshots disabled: %v", err)
		} else {
			redisClient = client
			snapshots = cache.NewSnapshotStore(client, cfg.Redis.SnapshotTTL())
		}
	}

	modelRepo := postgres.NewModelRepo(db)
	journeyRepo := postgres.NewJourneyRepo(db)

	reg := registry.New(modelRepo)
	registry.SeedStandardModels(context.Background(), reg, cfg.Attribution.DefaultLookbackDays)

	recomputer := worker.NewRecomputer(reg, journeyRepo, snapshots, cfg.Attribution.DefaultLookbackDays, worker.Options{
		Concurrency: cfg.Worker.Concurrency,
		BatchSize:   cfg.Worker.BatchSize,
		Deadline:    cfg.Worker.Deadline(),
		BacklogDays: cfg.Worker.BacklogDays,
	})

	// Only one instance should run each scheduled recompute.
	recomputer.UseLock(distlock.New(redisClient, db, "recompute", 2*time.Hour))

	// Run once at startup, then nightly.
	if _, err := recomputer.RunBacklog(context.Background(), ""); err != nil {
		log.Printf("Initial recompute failed: %v", err)
	}
	recomputer.Start(24 * time.Hour)

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	<-done

	log.Println("Shutting down...")
	recomputer.Stop()
	log.Println("Worker stopped")
}
