package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noEnvFile(t *testing.T) string {
	return filepath.Join(t.TempDir(), "missing.env")
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("FEELEDGER_AUTH_JWT_SECRET", "s3cret")

	cfg, err := Load(noEnvFile(t))
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, DriverBolt, cfg.Store.Driver)
	assert.Equal(t, "feeledger.db", cfg.Store.BoltPath)
	assert.Equal(t, 24*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, 30*time.Second, cfg.Auth.MaxClockSkew)
	assert.Empty(t, cfg.Kafka.Brokers)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("FEELEDGER_AUTH_JWT_SECRET", "s3cret")
	t.Setenv("FEELEDGER_HTTP_ADDR", ":9090")
	t.Setenv("FEELEDGER_STORE_DRIVER", "postgres")
	t.Setenv("FEELEDGER_STORE_POSTGRES_URL", "postgres://ledger@localhost/ledger")
	t.Setenv("FEELEDGER_AUTH_TOKEN_TTL", "15m")
	t.Setenv("FEELEDGER_KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("FEELEDGER_METRICS_ENABLED", "false")

	cfg, err := Load(noEnvFile(t))
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.HTTP.Addr)
	assert.Equal(t, DriverPostgres, cfg.Store.Driver)
	assert.Equal(t, 15*time.Minute, cfg.Auth.TokenTTL)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.False(t, cfg.Metrics.Enabled)
}

func TestLoad_EnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("FEELEDGER_AUTH_JWT_SECRET=from-file\nFEELEDGER_LOG_LEVEL=debug\n"), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("FEELEDGER_AUTH_JWT_SECRET")
		os.Unsetenv("FEELEDGER_LOG_LEVEL")
	})

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.Auth.JWTSecret)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestConfig_Validate(t *testing.T) {
	valid := func() Config {
		return Config{
			Store: StoreConfig{Driver: DriverBolt, BoltPath: "x.db"},
			Auth:  AuthConfig{JWTSecret: "s", TokenTTL: time.Hour},
			Kafka: KafkaConfig{Topic: "t"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"Valid", func(c *Config) {}, false},
		{"MissingSecret", func(c *Config) { c.Auth.JWTSecret = "" }, true},
		{"ZeroTTL", func(c *Config) { c.Auth.TokenTTL = 0 }, true},
		{"UnknownDriver", func(c *Config) { c.Store.Driver = "sqlite" }, true},
		{"BoltWithoutPath", func(c *Config) { c.Store.BoltPath = "" }, true},
		{"PostgresWithoutURL", func(c *Config) { c.Store.Driver = DriverPostgres }, true},
		{"BrokersWithoutTopic", func(c *Config) {
			c.Kafka.Brokers = []string{"k:9092"}
			c.Kafka.Topic = ""
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)
			err := c.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
