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
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"

	"github.com/ignite/tabular-ingest/internal/api"
	"github.com/ignite/tabular-ingest/internal/archive"
	"github.com/ignite/tabular-ingest/internal/config"
	"github.com/ignite/tabular-ingest/internal/parser"
	"github.com/ignite/tabular-ingest/internal/progress"
	"github.com/ignite/tabular-ingest/internal/queue"
	"github.com/ignite/tabular-ingest/internal/repository"
	"github.com/ignite/tabular-ingest/internal/repository/dynamo"
	"github.com/ignite/tabular-ingest/internal/repository/postgres"
	"github.com/ignite/tabular-ingest/internal/service/ingest"
	"github.com/ignite/tabular-ingest/internal/worker"
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

func extractHost(dsn string) string {
	at := strings.Index(dsn, "@")
	if at < 0 {
		return "(unknown)"
	}
	rest := dsn[at+1:]
	slash := strings.Index(rest, "/")
	if slash >= 0 {
		rest = rest[:slash]
	}
	return rest
}

// openPostgres connects with conservative server-side timeouts appended
// to the DSN so a stuck statement can never wedge a worker.
func openPostgres(dsn string) (*sql.DB, error) {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	if !strings.Contains(dsn, "connect_timeout") {
		dsn += sep + "connect_timeout=5"
		sep = "&"
	}
	dsn += sep + "options=-c%20statement_timeout%3D30000"
	log.Printf("DB URL host portion: ...@%s/...", extractHost(dsn))

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func main() {
	log.Println("╔════════════════════════════════════════════╗")
	log.Println("║  Tabular Ingest Server (cmd/server)        ║")
	log.Println("╚════════════════════════════════════════════╝")

	// Load configuration
	cfg, err := config.LoadFromEnv("config/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if os.Getenv("DATABASE_URL") != "" {
		log.Println("[config] DATABASE_URL env override active")
	}

	// Pre-flight check: verify the target port is available
	host := cfg.Server.GetHost()
	port := cfg.Server.Port
	if err := checkPortAvailable(host, port); err != nil {
		log.Fatalf("Pre-flight check FAILED: %v", err)
	}
	log.Printf("Pre-flight check passed: port %d is available", port)

	ctx := context.Background()

	// Repository backend
	var store repository.Store
	var db *sql.DB
	switch cfg.Store.Backend {
	case "dynamo":
		client, err := dynamo.Connect(ctx, cfg.Store.AWSRegion, cfg.Store.GetAWSProfile())
		if err != nil {
			log.Fatalf("Failed to connect to DynamoDB: %v", err)
		}
		if !dynamo.TableExists(ctx, client, cfg.Store.DynamoDBTable) {
			log.Fatalf("DynamoDB table %q does not exist in %s", cfg.Store.DynamoDBTable, cfg.Store.AWSRegion)
		}
		store = dynamo.NewStore(client, cfg.Store.DynamoDBTable)
		log.Printf("Store: DynamoDB table %s (%s)", cfg.Store.DynamoDBTable, cfg.Store.AWSRegion)
	case "postgres":
		if cfg.Database.URL == "" {
			log.Fatal("database.url (or DATABASE_URL) is required for the postgres backend")
		}
		db, err = openPostgres(cfg.Database.URL)
		if err != nil {
			log.Fatalf("Failed to connect to PostgreSQL: %v", err)
		}
		defer db.Close()
		store = postgres.NewStore(db)
		log.Println("Store: PostgreSQL")
	default:
		log.Fatalf("Unknown store backend %q (want postgres or dynamo)", cfg.Store.Backend)
	}

	// Redis progress tracker (optional)
	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			log.Printf("Warning: Redis unreachable, live progress disabled: %v", err)
			redisClient.Close()
			redisClient = nil
		} else {
			log.Printf("Redis connected: %s", cfg.Redis.Addr)
		}
		cancel()
	} else {
		log.Println("Redis not configured, live progress disabled")
	}
	tracker := progress.NewTracker(redisClient)

	// Sweep jobs left Processing by a previous run. Their queue tasks died
	// with the process, so nobody will ever finish them.
	if n, err := store.Jobs.FailStaleProcessing(ctx, "interrupted by shutdown"); err != nil {
		log.Printf("Warning: stale job sweep failed: %v", err)
	} else if n > 0 {
		log.Printf("Swept %d stale processing job(s) to Failed", n)
	}

	// Processing machinery
	jobQueue := queue.New(cfg.Engine.QueueCapacity)
	registry := parser.DefaultRegistry()

	var archiver ingest.Archiver
	if cfg.Archive.Enabled && cfg.Archive.S3Bucket != "" {
		s3Archiver, err := archive.NewS3Archiver(ctx, cfg.Archive.S3Bucket, cfg.Archive.S3Region, cfg.Archive.GetAWSProfile())
		if err != nil {
			log.Printf("Warning: archive disabled: %v", err)
		} else {
			archiver = s3Archiver
			log.Printf("Upload archive: s3://%s", cfg.Archive.S3Bucket)
		}
	}

	svc := ingest.NewService(store, jobQueue, registry, tracker, archiver)

	pool := worker.NewPool(jobQueue, store, registry, tracker, worker.Config{
		Workers:        cfg.Engine.Workers,
		BufferCapacity: cfg.Engine.BufferCapacity,
	})
	poolCtx, poolCancel := context.WithCancel(context.Background())
	poolDone := make(chan struct{})
	go func() {
		defer close(poolDone)
		pool.Run(poolCtx)
	}()
	log.Printf("Worker pool started: %d workers, queue capacity %d", cfg.Engine.Workers, cfg.Engine.QueueCapacity)

	// HTTP surface
	handlers := api.NewHandlers(svc)
	healthChecker := api.NewHealthChecker(db, redisClient, jobQueue, cfg.Store.Backend)
	server := api.NewServer(handlers, healthChecker)

	// Setup graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		addr := cfg.Server.Addr()
		log.Printf("Starting server on %s", addr)
		if err := server.ListenAndServe(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	log.Println("All services initialized — server is ready")

	<-done
	log.Println("Shutting down...")

	// Stop accepting requests first so no new jobs are queued.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	// Then stop the pool. In-flight jobs observe the cancellation and
	// exit; whatever stays Processing is swept on the next start.
	poolCancel()
	select {
	case <-poolDone:
		log.Println("Worker pool drained")
	case <-time.After(30 * time.Second):
		log.Println("Worker pool drain timed out")
	}

	if redisClient != nil {
		redisClient.Close()
	}

	log.Println("Server stopped")
}
