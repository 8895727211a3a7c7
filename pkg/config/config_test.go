package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainbridge-labs/spine/pkg/config"
)

// TestLoad_Defaults verifies that Load() returns sensible defaults
// when no environment variables are set.
func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{
		"SPINE_PORT", "SPINE_LOG_LEVEL", "SPINE_POLICY_PATH",
		"SPINE_LEDGER_STORE", "SPINE_LEDGER_PATH", "SPINE_LEDGER_DSN",
		"SPINE_REPLAY_STORE", "SPINE_REPLAY_PATH",
		"SPINE_REPLAY_WINDOW", "SPINE_SKEW_TOLERANCE",
	} {
		t.Setenv(key, "")
	}

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.Equal(t, config.StoreFile, cfg.LedgerStore)
	// The default replay store is durable: recorded submissions must
	// survive a restart without any configuration.
	assert.Equal(t, config.StoreSQLite, cfg.ReplayStore)
	assert.Equal(t, "spine-replay.db", cfg.ReplayPath)
	assert.Equal(t, 24*time.Hour, cfg.ReplayWindow)
	assert.Equal(t, 5*time.Minute, cfg.SkewTolerance)
}

// TestLoad_Overrides verifies that environment variables correctly
// override default values.
func TestLoad_Overrides(t *testing.T) {
	t.Setenv("SPINE_PORT", "9090")
	t.Setenv("SPINE_LEDGER_STORE", "postgres")
	t.Setenv("SPINE_LEDGER_DSN", "postgres://spine@localhost:5432/spine?sslmode=disable")
	t.Setenv("SPINE_REPLAY_STORE", "redis")
	t.Setenv("SPINE_REDIS_ADDR", "redis:6379")
	t.Setenv("SPINE_REPLAY_WINDOW", "1h")
	t.Setenv("SPINE_SKEW_TOLERANCE", "30s")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, config.StorePostgres, cfg.LedgerStore)
	assert.Equal(t, config.StoreRedis, cfg.ReplayStore)
	assert.Equal(t, "redis:6379", cfg.RedisAddr)
	assert.Equal(t, time.Hour, cfg.ReplayWindow)
	assert.Equal(t, 30*time.Second, cfg.SkewTolerance)
}

func TestLoad_Rejections(t *testing.T) {
	t.Run("unknown ledger store", func(t *testing.T) {
		t.Setenv("SPINE_LEDGER_STORE", "etcd")
		_, err := config.Load()
		assert.Error(t, err)
	})

	t.Run("postgres without dsn", func(t *testing.T) {
		t.Setenv("SPINE_LEDGER_STORE", "postgres")
		t.Setenv("SPINE_LEDGER_DSN", "")
		_, err := config.Load()
		assert.Error(t, err)
	})

	t.Run("bad window duration", func(t *testing.T) {
		t.Setenv("SPINE_REPLAY_WINDOW", "yesterday")
		_, err := config.Load()
		assert.Error(t, err)
	})

	t.Run("negative skew", func(t *testing.T) {
		t.Setenv("SPINE_SKEW_TOLERANCE", "-5m")
		_, err := config.Load()
		assert.Error(t, err)
	})
}
