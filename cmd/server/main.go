/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the settlement engine server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env, environment, flags)
  2. Configure logging
  3. Initialize SQLite store
  4. Build the engine with the split-plan codec
  5. Connect Redis for the sweep lock (optional)
  6. Start the recurrence scheduler
  7. Configure HTTP router and start serving

COMMAND-LINE FLAGS:
  -port       HTTP server port (default: 8080, env PORT)
  -db         SQLite database path (default: splitledger.db, env DB_PATH)
              Use ":memory:" for an in-memory database
  -log-level  debug, info, warn, error (env LOG_LEVEL)
  -redis      Redis address for the sweep lock (env REDIS_ADDR)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the scheduler (waits for an in-flight sweep)
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close Redis and database connections

EXAMPLES:
  # Run with file database
  JWT_SECRET=change-me ./server -db="./data/splitledger.db"

  # Run in memory with a dev secret
  ./server -db=":memory:"

SEE ALSO:
  - config/config.go: All settings
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"github.com/warp/splitledger/api"
	"github.com/warp/splitledger/auth"
	"github.com/warp/splitledger/config"
	"github.com/warp/splitledger/engine"
	"github.com/warp/splitledger/factory"
	"github.com/warp/splitledger/logging"
	"github.com/warp/splitledger/store/sqlite"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := logging.Setup(logging.ParseLevel(cfg.LogLevel))

	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer store.Close()

	eng := engine.New(store, engine.Options{
		Codec:           factory.NewPlanFactory(),
		Logger:          logger,
		DefaultCurrency: engine.Currency(cfg.DefaultCurrency),
	})

	metrics := api.NewMetrics()
	scheduler := api.NewRecurrenceScheduler(eng, logger)
	scheduler.Interval = cfg.SchedulerInterval
	scheduler.Enabled = cfg.SchedulerEnabled
	scheduler.Metrics = metrics

	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()

		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			// The conditional nextRun claim still prevents duplicates without the lock.
			logger.Warn("redis unavailable, sweeping without a distributed lock", "addr", cfg.RedisAddr, "error", err)
		} else {
			scheduler.Locker = redislock.New(rdb)
			logger.Info("connected to redis", "addr", cfg.RedisAddr)
		}
	}

	tokens := auth.NewManager(cfg.JWTSecret, 24*time.Hour)
	handler := api.NewHandler(eng, tokens, scheduler, logger)
	router := api.NewRouter(handler, api.RouterOptions{
		CORSOrigins: cfg.CORSOrigins,
		CronSecret:  cfg.CronSecret,
		Metrics:     metrics,
		Health:      store.Ping,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	scheduler.Start()
	defer scheduler.Stop()

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", server.Addr, "db", cfg.DBPath)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-quit:
		logger.Info("shutting down server", "signal", sig.String())
	}

	scheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}
