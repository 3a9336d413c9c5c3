package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/inboxforge/warmline/internal/aigen"
	"github.com/inboxforge/warmline/internal/config"
	"github.com/inboxforge/warmline/internal/domaincheck"
	"github.com/inboxforge/warmline/internal/engine"
	"github.com/inboxforge/warmline/internal/jobs"
	"github.com/inboxforge/warmline/internal/ratelimit"
	"github.com/inboxforge/warmline/internal/store"
	"github.com/inboxforge/warmline/internal/tracking"
	"github.com/inboxforge/warmline/internal/vault"
)

func main() {
	log.Println("Starting warmline worker...")

	cfg, err := config.LoadFromEnv("config/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := db.PingContext(pingCtx); err != nil {
		pingCancel()
		log.Fatalf("Failed to ping database: %v", err)
	}
	pingCancel()
	log.Println("[Worker] Connected to database")

	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		log.Fatalf("Invalid REDIS_URL: %v", err)
	}
	rdb := redis.NewClient(redisOpts)
	defer rdb.Close()
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("Failed to ping redis: %v", err)
	}
	log.Println("[Worker] Connected to redis")

	asynqOpt, err := asynq.ParseRedisURI(cfg.Redis.URL)
	if err != nil {
		log.Fatalf("Invalid REDIS_URL for task broker: %v", err)
	}

	st := store.NewStore(db)
	vlt := vault.New(cfg.Vault.EncryptionKey)

	keys := config.DiscoverProviderKeys()
	if len(keys) == 0 {
		log.Println("[Worker] WARNING: no AI provider keys discovered, content generation will use canned fallbacks")
	}
	ledgerKeys := make([]ratelimit.Key, 0, len(keys))
	for _, k := range keys {
		ledgerKeys = append(ledgerKeys, ratelimit.Key{ID: k.ID, Provider: k.Provider})
	}
	ledger := ratelimit.NewRedisLedger(rdb, ledgerKeys)

	topics := aigen.NewTopicSource(cfg.Topics)
	generator := aigen.NewGenerator(cfg.AI, keys, ledger, topics)
	checker := domaincheck.NewChecker(10 * time.Second)
	tokens := tracking.NewService(cfg.Tracking.SecretKey, cfg.Tracking.APIBaseURL)
	signer, err := aigen.NewSignatureRenderer(cfg.Warmup.SignatureTemplate)
	if err != nil {
		log.Fatalf("Invalid WARMUP_SIGNATURE_TEMPLATE: %v", err)
	}

	eng := engine.New(st, vlt, generator, checker, tokens, signer, cfg)

	client := jobs.NewClient(asynqOpt)
	defer client.Close()

	handler := jobs.NewHandler(eng, st, db, rdb, client)

	srv := asynq.NewServer(asynqOpt, asynq.Config{
		Concurrency: 5,
	})
	if err := srv.Start(handler.Mux()); err != nil {
		log.Fatalf("Failed to start task server: %v", err)
	}
	log.Println("[Worker] Task server started (concurrency 5)")

	cron := jobs.NewCron(asynqOpt)
	if err := cron.Register(); err != nil {
		log.Fatalf("Failed to register cron entries: %v", err)
	}
	if err := cron.Start(); err != nil {
		log.Fatalf("Failed to start cron scheduler: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go jobs.RunHeartbeat(ctx, rdb)

	log.Println("Worker running...")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down worker...")
	cancel()
	cron.Shutdown()
	srv.Shutdown()

	log.Println("Worker stopped")
}
