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

	"github.com/ignite/outreach-guard/internal/api"
	"github.com/ignite/outreach-guard/internal/config"
	"github.com/ignite/outreach-guard/internal/guard"
	"github.com/ignite/outreach-guard/internal/pkg/distlock"
	"github.com/ignite/outreach-guard/internal/pkg/logger"
	"github.com/ignite/outreach-guard/internal/rejection"
	"github.com/ignite/outreach-guard/internal/repository/postgres"
	"github.com/ignite/outreach-guard/internal/worker"
)

// checkPortAvailable verifies that the target port is not already in use.
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
	if slash := strings.Index(rest, "/"); slash >= 0 {
		rest = rest[:slash]
	}
	return rest
}

func openRedis(ctx context.Context, rawURL string) *redis.Client {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		opts = &redis.Options{Addr: rawURL}
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		// Keep the client: it reconnects on its own and the store falls
		// back to the local directory meanwhile.
		logger.Warn("redis ping failed at startup", "addr", opts.Addr, "error", err)
	} else {
		logger.Info("redis connected", "addr", opts.Addr)
	}
	return client
}

func openDatabase(ctx context.Context, dbURL string) *sql.DB {
	sep := "?"
	if strings.Contains(dbURL, "?") {
		sep = "&"
	}
	if !strings.Contains(dbURL, "connect_timeout") {
		dbURL += sep + "connect_timeout=5"
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		logger.Warn("decision log disabled", "error", err)
		return nil
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(3)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(30 * time.Second)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		logger.Warn("decision database ping failed, decision log disabled", "host", extractHost(dbURL), "error", err)
		db.Close()
		return nil
	}
	logger.Info("decision database connected", "host", extractHost(dbURL))
	return db
}

func allowedOrigins() []string {
	var out []string
	for _, o := range strings.Split(os.Getenv("CORS_ALLOWED_ORIGINS"), ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

func main() {
	configPath := os.Getenv("GUARD_CONFIG")
	if configPath == "" {
		configPath = "config/config.yaml"
	}
	cfg, err := config.LoadFromEnv(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger.SetLevel(logger.ParseLevel(cfg.Log.Level))
	logger.SetRedactPII(cfg.Log.ShouldRedact())

	host := cfg.Server.GetHost()
	port := cfg.Server.Port
	if err := checkPortAvailable(host, port); err != nil {
		log.Fatalf("Pre-flight check FAILED: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var redisClient *redis.Client
	if cfg.Storage.Backend == "redis" {
		redisClient = openRedis(ctx, cfg.Redis.URL)
		defer redisClient.Close()
	}

	store, err := rejection.NewStoreFromConfig(ctx, cfg, redisClient)
	if err != nil {
		log.Fatalf("Failed to initialize rejection memory: %v", err)
	}
	logger.Info("rejection memory initialized",
		"backends", strings.Join(store.BackendNames(), ","),
		"ttl_days", store.TTLDays())

	var (
		db        *sql.DB
		decisions *postgres.DecisionRepo
		stats     api.StatsSource
		opts      []guard.Option
	)
	if cfg.Database.URL != "" {
		db = openDatabase(ctx, cfg.Database.URL)
	}
	if db != nil {
		defer db.Close()
		decisions = postgres.NewDecisionRepo(db)
		stats = decisions
		opts = append(opts, guard.WithDecisionRecorder(decisions))
	}

	g, err := guard.New(store, cfg.Guard, opts...)
	if err != nil {
		log.Fatalf("Failed to initialize quality guard: %v", err)
	}
	logger.Info("quality guard initialized",
		"mode", string(g.Mode()),
		"max_rejections", g.MaxRejections(),
		"banned_openers", len(g.BannedOpeners()))

	if cfg.Sweeper.Enabled {
		var purger worker.DecisionPurger
		if decisions != nil {
			purger = decisions
		}
		lock := distlock.New(redisClient, db, "rejection-sweeper", 10*time.Minute)
		sweeper := worker.NewRejectionSweeper(store, purger, lock, cfg.Sweeper.Interval(), cfg.Sweeper.DecisionRetention())
		if cfg.Sweeper.Schedule != "" {
			go func() {
				if err := sweeper.StartCron(ctx, cfg.Sweeper.Schedule); err != nil {
					logger.Error("sweeper not started", "error", err)
				}
			}()
		} else {
			go sweeper.Start(ctx)
		}
	}

	router := api.SetupRoutes(
		api.NewHandlers(g, store, stats),
		api.NewHealthChecker(db, redisClient, store, g),
		allowedOrigins(),
	)
	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", host, port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("starting server", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-done
	logger.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	logger.Info("server stopped")
}
