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

	"github.com/hibiken/asynq"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"

	"github.com/inboxforge/warmline/internal/aigen"
	"github.com/inboxforge/warmline/internal/api"
	"github.com/inboxforge/warmline/internal/config"
	"github.com/inboxforge/warmline/internal/domaincheck"
	"github.com/inboxforge/warmline/internal/engine"
	"github.com/inboxforge/warmline/internal/health"
	"github.com/inboxforge/warmline/internal/ratelimit"
	"github.com/inboxforge/warmline/internal/store"
	"github.com/inboxforge/warmline/internal/tracking"
	"github.com/inboxforge/warmline/internal/vault"
)

// checkPortAvailable verifies that the target port is not already in use.
// This prevents confusion from stale processes occupying the port.
func checkPortAvailable(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("port %d is already in use (addr %s): %v\n"+
			"  Hint: Run 'lsof -i :%d' to find the blocking process", port, addr, err, port)
	}
	ln.Close()
	return nil
}

func main() {
	log.Println("Starting warmline API server...")

	cfg, err := config.LoadFromEnv("config/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if os.Getenv("DATABASE_URL") != "" {
		log.Println("[Config] DATABASE_URL env override active")
	}

	// Pre-flight check: verify the target port is available
	host := cfg.Server.GetHost()
	port := cfg.Server.Port
	if port == 0 {
		port = 8080
	}
	if err := checkPortAvailable(host, port); err != nil {
		log.Fatalf("Pre-flight check FAILED: %v", err)
	}
	log.Printf("Pre-flight check passed: port %d is available", port)

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
	log.Println("[Server] Connected to database")

	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		log.Fatalf("Invalid REDIS_URL: %v", err)
	}
	rdb := redis.NewClient(redisOpts)
	defer rdb.Close()
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("Failed to ping redis: %v", err)
	}
	log.Println("[Server] Connected to redis")

	asynqOpt, err := asynq.ParseRedisURI(cfg.Redis.URL)
	if err != nil {
		log.Fatalf("Invalid REDIS_URL for task broker: %v", err)
	}
	inspector := asynq.NewInspector(asynqOpt)
	defer inspector.Close()

	st := store.NewStore(db)
	vlt := vault.New(cfg.Vault.EncryptionKey)

	keys := config.DiscoverProviderKeys()
	if len(keys) == 0 {
		log.Println("[Server] WARNING: no AI provider keys discovered, content generation will use canned fallbacks")
	} else {
		log.Printf("[Server] Discovered %d AI provider key(s)", len(keys))
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

	handlers := api.NewHandlers(st, eng, vlt, checker, ledger, db, rdb)
	trk := tracking.NewHandler(tokens, st)
	hlth := health.NewHandler(db, rdb, inspector)

	server := api.NewServer(cfg, handlers, trk, hlth)

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		addr := fmt.Sprintf("%s:%d", host, port)
		log.Printf("[Server] Listening on %s", addr)
		if err := server.ListenAndServe(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	log.Println("All services initialized — server is ready")

	<-done
	log.Println("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("Server stopped")
}
