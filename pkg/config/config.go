// Package config loads server configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"time"
)

// Store kinds accepted for the chain and replay backends.
const (
	StoreFile     = "file"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
	StoreMemory   = "memory"
	StoreRedis    = "redis"
)

// Config holds server configuration.
type Config struct {
	Port     string
	LogLevel string

	PolicyPath string

	LedgerStore string
	LedgerPath  string
	LedgerDSN   string

	ReplayStore   string
	ReplayPath    string
	RedisAddr     string
	ReplayWindow  time.Duration
	SkewTolerance time.Duration

	SigningKeyID string
	JWTSecret    string
	OTLPEndpoint string
}

// Load loads configuration from environment variables. The replay store
// defaults to sqlite so recorded submissions survive a restart; the memory
// store must be opted into explicitly.
func Load() (*Config, error) {
	cfg := &Config{
		Port:         getenv("SPINE_PORT", "8080"),
		LogLevel:     getenv("SPINE_LOG_LEVEL", "INFO"),
		PolicyPath:   getenv("SPINE_POLICY_PATH", "policy.yaml"),
		LedgerStore:  getenv("SPINE_LEDGER_STORE", StoreFile),
		LedgerPath:   getenv("SPINE_LEDGER_PATH", "spine-chain.jsonl"),
		LedgerDSN:    os.Getenv("SPINE_LEDGER_DSN"),
		ReplayStore:  getenv("SPINE_REPLAY_STORE", StoreSQLite),
		ReplayPath:   getenv("SPINE_REPLAY_PATH", "spine-replay.db"),
		RedisAddr:    getenv("SPINE_REDIS_ADDR", "localhost:6379"),
		SigningKeyID: getenv("SPINE_SIGNING_KEY_ID", "spine-ledger"),
		JWTSecret:    os.Getenv("SPINE_JWT_SECRET"),
		OTLPEndpoint: os.Getenv("SPINE_OTLP_ENDPOINT"),
	}

	var err error
	if cfg.ReplayWindow, err = getduration("SPINE_REPLAY_WINDOW", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.SkewTolerance, err = getduration("SPINE_SKEW_TOLERANCE", 5*time.Minute); err != nil {
		return nil, err
	}

	switch cfg.LedgerStore {
	case StoreFile, StoreSQLite, StorePostgres:
	default:
		return nil, fmt.Errorf("SPINE_LEDGER_STORE: unknown store %q", cfg.LedgerStore)
	}
	if cfg.LedgerStore == StorePostgres && cfg.LedgerDSN == "" {
		return nil, fmt.Errorf("SPINE_LEDGER_DSN is required for the postgres ledger store")
	}

	switch cfg.ReplayStore {
	case StoreMemory, StoreSQLite, StoreRedis:
	default:
		return nil, fmt.Errorf("SPINE_REPLAY_STORE: unknown store %q", cfg.ReplayStore)
	}

	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getduration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s: duration must be positive", key)
	}
	return d, nil
}
