package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Store drivers
const (
	DriverBolt     = "bolt"
	DriverPostgres = "postgres"
)

// Config is the server configuration
type Config struct {
	HTTP    HTTPConfig
	Metrics MetricsConfig
	Store   StoreConfig
	Auth    AuthConfig
	Kafka   KafkaConfig
	Log     LogConfig
}

type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

type StoreConfig struct {
	Driver      string `mapstructure:"driver"`
	BoltPath    string `mapstructure:"bolt_path"`
	PostgresURL string `mapstructure:"postgres_url"`
}

type AuthConfig struct {
	JWTSecret    string        `mapstructure:"jwt_secret"`
	TokenTTL     time.Duration `mapstructure:"token_ttl"`
	MaxClockSkew time.Duration `mapstructure:"max_clock_skew"`
}

// KafkaConfig enables the Kafka event sink when Brokers is non-empty
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("store.driver", DriverBolt)
	v.SetDefault("store.bolt_path", "feeledger.db")
	v.SetDefault("store.postgres_url", "")
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl", 24*time.Hour)
	v.SetDefault("auth.max_clock_skew", 30*time.Second)
	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "feeledger.events")
	v.SetDefault("log.level", "info")
}

// Load reads configuration from the environment, after loading any .env
// files given (or ./.env when none are). Variables use the FEELEDGER_ prefix,
// e.g. FEELEDGER_STORE_DRIVER for store.driver.
func Load(envFiles ...string) (*Config, error) {
	// A missing .env is fine; variables may come from the real environment
	_ = godotenv.Load(envFiles...)

	v := viper.New()
	v.SetEnvPrefix("FEELEDGER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that the settings are usable together
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required")
	}
	if c.Auth.TokenTTL <= 0 {
		return errors.New("auth.token_ttl must be positive")
	}
	switch c.Store.Driver {
	case DriverBolt:
		if c.Store.BoltPath == "" {
			return errors.New("store.bolt_path is required for the bolt driver")
		}
	case DriverPostgres:
		if c.Store.PostgresURL == "" {
			return errors.New("store.postgres_url is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		return errors.New("kafka.topic is required when brokers are set")
	}
	return nil
}
