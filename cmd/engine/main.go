package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/kanchu397/Chatogram/internal/config"
	"github.com/kanchu397/Chatogram/internal/engine"
	"github.com/kanchu397/Chatogram/internal/messaging"
	"github.com/kanchu397/Chatogram/internal/metrics"
	"github.com/kanchu397/Chatogram/internal/profile"
	"github.com/kanchu397/Chatogram/internal/ratelimit"
	"github.com/kanchu397/Chatogram/internal/report"
)

func main() {
	log.Println("Starting Chatogram matching engine...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// --- PostgreSQL ---
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	if err := db.Ping(); err != nil {
		log.Fatalf("failed to connect to PostgreSQL: %v", err)
	}
	if err := profile.Migrate(db); err != nil {
		log.Fatalf("failed to migrate schema: %v", err)
	}

	// --- Redis ---
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := rdb.Ping(ctx).Err(); err != nil {
		cancel()
		log.Fatalf("failed to connect to Redis: %v", err)
	}
	cancel()

	// --- NATS ---
	natsConfig := messaging.DefaultConfig()
	natsConfig.URL = cfg.NATSURL
	natsClient, err := messaging.Connect(natsConfig)
	if err != nil {
		log.Fatalf("failed to connect to NATS: %v", err)
	}

	store := profile.NewPostgresStore(db)
	reports := report.NewStore(db)
	limiter := ratelimit.NewLimiter(rdb)

	svc := engine.New(store, reports, limiter, natsClient, cfg.DecayInterval)
	if err := svc.Start(); err != nil {
		log.Fatalf("failed to start engine: %v", err)
	}

	// Metrics endpoint.
	go func() {
		http.Handle("/metrics", metrics.Handler())
		if err := http.ListenAndServe(cfg.MetricsAddr, nil); err != nil {
			log.Printf("metrics server stopped: %v", err)
		}
	}()

	log.Printf("Chatogram matching engine running")
	log.Printf("  nats_url:     %s", cfg.NATSURL)
	log.Printf("  redis_addr:   %s", cfg.RedisAddr)
	log.Printf("  metrics_addr: %s", cfg.MetricsAddr)

	// Graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("received signal %v, shutting down...", sig)

	svc.Stop()
	natsClient.Close()
	rdb.Close()
	db.Close()
}
