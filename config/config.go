/*
Package config loads server settings.

SOURCES (later wins):
  1. Built-in defaults
  2. .env file in the working directory, if present (godotenv)
  3. Environment variables
  4. Command-line flags (-port, -db, -log-level, -redis)

ENVIRONMENT:
  PORT                HTTP port (default 8080)
  DB_PATH             SQLite path, ":memory:" allowed (default splitledger.db)
  LOG_LEVEL           debug, info, warn, error (default info)
  JWT_SECRET          HMAC secret for bearer tokens (required outside dev)
  REDIS_ADDR          Redis address for the sweep lock; empty disables the lock
  SCHEDULER_INTERVAL  Sweep period as a Go duration (default 1h)
  SCHEDULER_ENABLED   true/false (default true)
  DEFAULT_CURRENCY    Reporting currency (default USD)
  CRON_SECRET         Shared secret for POST /api/cron/recurring; empty disables it
  CORS_ORIGINS        Comma-separated allowed origins
*/
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port              int
	DBPath            string
	LogLevel          string
	JWTSecret         string
	RedisAddr         string
	SchedulerInterval time.Duration
	SchedulerEnabled  bool
	DefaultCurrency   string
	CronSecret        string
	CORSOrigins       []string
}

// devSecret is used when JWT_SECRET is unset and the database is in memory.
const devSecret = "splitledger-dev-secret"

// Load reads .env, the environment and then args (usually os.Args[1:]).
func Load(args []string) (*Config, error) {
	// A missing .env is normal.
	_ = godotenv.Load()
	return FromEnv(os.Getenv, args)
}

// FromEnv builds a Config from a getenv function and flag arguments.
func FromEnv(getenv func(string) string, args []string) (*Config, error) {
	cfg := &Config{
		Port:              8080,
		DBPath:            "splitledger.db",
		LogLevel:          "info",
		SchedulerInterval: time.Hour,
		SchedulerEnabled:  true,
		DefaultCurrency:   "USD",
		CORSOrigins:       []string{"http://localhost:5173", "http://localhost:3000"},
	}

	var errs []error
	if v := getenv("PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("PORT: %w", err))
		}
		cfg.Port = p
	}
	if v := getenv("DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	cfg.JWTSecret = getenv("JWT_SECRET")
	cfg.RedisAddr = getenv("REDIS_ADDR")
	cfg.CronSecret = getenv("CRON_SECRET")
	if v := getenv("SCHEDULER_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("SCHEDULER_INTERVAL: %w", err))
		}
		cfg.SchedulerInterval = d
	}
	if v := getenv("SCHEDULER_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("SCHEDULER_ENABLED: %w", err))
		}
		cfg.SchedulerEnabled = b
	}
	if v := getenv("DEFAULT_CURRENCY"); v != "" {
		cfg.DefaultCurrency = strings.ToUpper(v)
	}
	if v := getenv("CORS_ORIGINS"); v != "" {
		cfg.CORSOrigins = splitList(v)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	fs := flag.NewFlagSet("splitledger", flag.ContinueOnError)
	fs.IntVar(&cfg.Port, "port", cfg.Port, "HTTP server port")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite database path")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	fs.StringVar(&cfg.RedisAddr, "redis", cfg.RedisAddr, "Redis address for the recurring sweep lock")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if cfg.JWTSecret == "" {
		if cfg.DBPath != ":memory:" {
			return nil, errors.New("JWT_SECRET is required")
		}
		cfg.JWTSecret = devSecret
	}
	if cfg.SchedulerInterval <= 0 {
		return nil, fmt.Errorf("SCHEDULER_INTERVAL must be positive, got %s", cfg.SchedulerInterval)
	}
	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
