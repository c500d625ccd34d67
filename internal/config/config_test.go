package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg := Load()

		assert.Equal(t, "0.0.0.0", cfg.ServerHost)
		assert.Equal(t, 8080, cfg.ServerPort)
		assert.Equal(t, "postgres", cfg.DBDriver)
		assert.Equal(t, "info", cfg.LogLevel)
		assert.Equal(t, 3072, cfg.KeyPairBits)
		assert.Equal(t, 5*time.Minute, cfg.ResolverCacheTTL)
		assert.Equal(t, 100, cfg.MigrationBatchSize)
		assert.Equal(t, 4, cfg.MigrationWorkers)
		assert.Equal(t, 2*time.Minute, cfg.MigrationLeaseDuration)
		assert.Equal(t, uint64(3), cfg.MigrationStageMaxRetries)
		assert.Equal(t, 5*time.Second, cfg.AuditInterval)
		assert.Equal(t, 100, cfg.AuditBatchSize)
		assert.Equal(t, 3, cfg.AuditMaxRetries)
		assert.True(t, cfg.MetricsEnabled)
		assert.Equal(t, "pii_vault", cfg.MetricsNamespace)
		assert.Empty(t, cfg.KMSProvider)
	})

	t.Run("environment overrides", func(t *testing.T) {
		t.Setenv("SERVER_PORT", "9090")
		t.Setenv("DB_DRIVER", "mysql")
		t.Setenv("LOG_LEVEL", "debug")
		t.Setenv("KEYPAIR_BITS", "2048")
		t.Setenv("RESOLVER_CACHE_TTL_SECONDS", "60")
		t.Setenv("MIGRATION_WORKERS", "8")
		t.Setenv("METRICS_ENABLED", "false")
		t.Setenv("KMS_PROVIDER", "hashivault")

		cfg := Load()

		assert.Equal(t, 9090, cfg.ServerPort)
		assert.Equal(t, "mysql", cfg.DBDriver)
		assert.Equal(t, "debug", cfg.LogLevel)
		assert.Equal(t, 2048, cfg.KeyPairBits)
		assert.Equal(t, time.Minute, cfg.ResolverCacheTTL)
		assert.Equal(t, 8, cfg.MigrationWorkers)
		assert.False(t, cfg.MetricsEnabled)
		assert.Equal(t, "hashivault", cfg.KMSProvider)
	})
}

func TestConfig_GetGinMode(t *testing.T) {
	tests := []struct {
		logLevel string
		want     string
	}{
		{"debug", "debug"},
		{"info", "release"},
		{"warn", "release"},
		{"error", "release"},
		{"unknown", "release"},
	}

	for _, tt := range tests {
		t.Run(tt.logLevel, func(t *testing.T) {
			cfg := &Config{LogLevel: tt.logLevel}
			assert.Equal(t, tt.want, cfg.GetGinMode())
		})
	}
}
