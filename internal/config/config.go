package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

type Config struct {
	Server    ServerConfig
	Postgres  PostgresConfig
	Redis     RedisConfig
	Store     StoreConfig
	Holds     HoldsConfig
	Checkout  CheckoutConfig
	Sweep     SweepConfig
	Messaging MessagingConfig
}

type ServerConfig struct {
	Host string
	Port int
}

type RedisConfig struct {
	// Addr empty disables every redis-backed feature.
	Addr     string
	Password string
	DB       int
}

type PostgresConfig struct {
	User     string
	Password string
	Name     string
	Host     string
	Port     int
	SSLMode  string
	MaxConns int32
	Migrate  bool
}

func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User,
		p.Password,
		p.Host,
		p.Port,
		p.Name,
		p.SSLMode,
	)
}

type StoreConfig struct {
	Driver string
}

type HoldsConfig struct {
	DefaultTTL      time.Duration
	MinTTL          time.Duration
	MaxTTL          time.Duration
	MaxLifetime     time.Duration
	MaxRenewals     int
	MaxSeats        int
	RateLimit       int
	RateWindow      time.Duration
	IdempotencyTTL  time.Duration
	CatalogCacheTTL time.Duration
}

type CheckoutConfig struct {
	Timeout time.Duration
}

type SweepConfig struct {
	Interval      time.Duration
	BatchSize     int
	MaxBatches    int
	CheckoutBatch int
}

type MessagingConfig struct {
	Enabled bool
}

func New() (*Config, error) {
	const op = "config.New"

	_ = godotenv.Load()

	var (
		cfg Config
		err error
	)

	cfg.Server.Host = envString("SERVER_HOST", "localhost")
	if cfg.Server.Port, err = envInt("SERVER_PORT", 8080); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	cfg.Store.Driver = envString("STORE_DRIVER", StorePostgres)
	switch cfg.Store.Driver {
	case StoreMemory, StorePostgres:
	default:
		return nil, fmt.Errorf("%s: invalid STORE_DRIVER %q", op, cfg.Store.Driver)
	}

	if cfg.Postgres, err = postgresConfig(cfg.Store.Driver == StorePostgres); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	cfg.Redis.Addr = os.Getenv("REDIS_ADDR")
	cfg.Redis.Password = os.Getenv("REDIS_PASSWORD")
	if cfg.Redis.DB, err = envInt("REDIS_DB", 0); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if cfg.Holds, err = holdsConfig(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if cfg.Checkout.Timeout, err = envDuration("CHECKOUT_TIMEOUT", 8*time.Minute); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if cfg.Checkout.Timeout > cfg.Holds.DefaultTTL {
		return nil, fmt.Errorf("%s: CHECKOUT_TIMEOUT %s exceeds HOLD_DEFAULT_TTL %s", op, cfg.Checkout.Timeout, cfg.Holds.DefaultTTL)
	}

	if cfg.Sweep, err = sweepConfig(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if cfg.Messaging.Enabled, err = envBool("MESSAGING_ENABLED", cfg.Redis.Addr != ""); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if cfg.Messaging.Enabled && cfg.Redis.Addr == "" {
		return nil, fmt.Errorf("%s: MESSAGING_ENABLED requires REDIS_ADDR", op)
	}

	return &cfg, nil
}

func postgresConfig(required bool) (PostgresConfig, error) {
	var (
		p   PostgresConfig
		err error
	)

	p.Host = envString("POSTGRES_HOST", "localhost")
	if p.Port, err = envInt("POSTGRES_PORT", 5432); err != nil {
		return p, err
	}
	p.SSLMode = envString("POSTGRES_SSLMODE", "disable")
	p.User = os.Getenv("POSTGRES_USER")
	p.Password = os.Getenv("POSTGRES_PASSWORD")
	p.Name = os.Getenv("POSTGRES_DB")

	maxConns, err := envInt("POSTGRES_MAX_CONNS", 0)
	if err != nil {
		return p, err
	}
	p.MaxConns = int32(maxConns)

	if p.Migrate, err = envBool("POSTGRES_MIGRATE", false); err != nil {
		return p, err
	}

	if !required {
		return p, nil
	}
	switch {
	case p.User == "":
		return p, fmt.Errorf("missing POSTGRES_USER")
	case p.Password == "":
		return p, fmt.Errorf("missing POSTGRES_PASSWORD")
	case p.Name == "":
		return p, fmt.Errorf("missing POSTGRES_DB")
	}

	return p, nil
}

func holdsConfig() (HoldsConfig, error) {
	var (
		h   HoldsConfig
		err error
	)

	if h.DefaultTTL, err = envDuration("HOLD_DEFAULT_TTL", 10*time.Minute); err != nil {
		return h, err
	}
	if h.MinTTL, err = envDuration("HOLD_MIN_TTL", 30*time.Second); err != nil {
		return h, err
	}
	if h.MaxTTL, err = envDuration("HOLD_MAX_TTL", 15*time.Minute); err != nil {
		return h, err
	}
	if h.MaxLifetime, err = envDuration("HOLD_MAX_LIFETIME", 30*time.Minute); err != nil {
		return h, err
	}
	if h.MaxRenewals, err = envInt("HOLD_MAX_RENEWALS", 2); err != nil {
		return h, err
	}
	if h.MaxSeats, err = envInt("HOLD_MAX_SEATS", 10); err != nil {
		return h, err
	}
	if h.RateLimit, err = envInt("HOLD_RATE_LIMIT", 10); err != nil {
		return h, err
	}
	if h.RateWindow, err = envDuration("HOLD_RATE_WINDOW", time.Minute); err != nil {
		return h, err
	}
	if h.IdempotencyTTL, err = envDuration("HOLD_IDEMPOTENCY_TTL", 2*time.Hour); err != nil {
		return h, err
	}
	if h.CatalogCacheTTL, err = envDuration("CATALOG_CACHE_TTL", 10*time.Minute); err != nil {
		return h, err
	}

	if h.MinTTL > h.MaxTTL {
		return h, fmt.Errorf("HOLD_MIN_TTL %s exceeds HOLD_MAX_TTL %s", h.MinTTL, h.MaxTTL)
	}
	if h.DefaultTTL < h.MinTTL || h.DefaultTTL > h.MaxTTL {
		return h, fmt.Errorf("HOLD_DEFAULT_TTL %s outside [%s, %s]", h.DefaultTTL, h.MinTTL, h.MaxTTL)
	}

	return h, nil
}

func sweepConfig() (SweepConfig, error) {
	var (
		s   SweepConfig
		err error
	)

	if s.Interval, err = envDuration("SWEEP_INTERVAL", 5*time.Second); err != nil {
		return s, err
	}
	if s.BatchSize, err = envInt("SWEEP_BATCH_SIZE", 500); err != nil {
		return s, err
	}
	if s.MaxBatches, err = envInt("SWEEP_MAX_BATCHES", 20); err != nil {
		return s, err
	}
	if s.CheckoutBatch, err = envInt("SWEEP_CHECKOUT_BATCH", 100); err != nil {
		return s, err
	}

	return s, nil
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func envBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}
