package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	// Application-level settings (public base URL, link policy knobs)
	App AppConfig `mapstructure:"app"`

	// PostgreSQL
	Postgres PostgresConfig `mapstructure:"postgres"`

	// Redis
	Redis RedisConfig `mapstructure:"redis"`

	// NATS
	NATS NATSConfig `mapstructure:"nats"`

	// Google Safe Browsing
	SafeBrowsing SafeBrowsingConfig `mapstructure:"safebrowsing"`

	// Billing provider (subscription API + webhook verification)
	Billing BillingConfig `mapstructure:"billing"`

	// Prometheus
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
}

type AppConfig struct {
	// BaseURL is the public origin short links are built from, e.g. https://lit.example
	BaseURL string `mapstructure:"base_url"`
	// Secret is the server-side base secret for link encryption.
	Secret string `mapstructure:"secret"`
	// AnonExpiryMonths is the default lifetime for links created without a subscription.
	AnonExpiryMonths int `mapstructure:"anon_expiry_months"`
	// CustomLinkQuota is the monthly custom-slug ceiling for non-subscribed users.
	CustomLinkQuota int `mapstructure:"custom_link_quota"`
}

type PostgresConfig struct {
	Host              string `mapstructure:"host"`
	User              string `mapstructure:"user"`
	Password          string `mapstructure:"password"`
	Database          string `mapstructure:"database"`
	Port              int    `mapstructure:"port"`
	SSLMode           string `mapstructure:"sslmode"`
	MaxConns          int32  `mapstructure:"max_conns"`
	MinConns          int32  `mapstructure:"min_conns"`
	MaxConnLifetime   string `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   string `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod string `mapstructure:"health_check_period"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type NATSConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
}

type SafeBrowsingConfig struct {
	// Enabled toggles the lookup entirely; when false every URL passes.
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
	// Endpoint overrides the Safe Browsing API base, mainly for tests.
	Endpoint string `mapstructure:"endpoint"`
	// CacheTTL bounds the Redis verdict cache, e.g. "1h".
	CacheTTL string `mapstructure:"cache_ttl"`
}

type BillingConfig struct {
	// APIBase is the provider's REST origin used by subscription verification.
	APIBase       string `mapstructure:"api_base"`
	ClientID      string `mapstructure:"client_id"`
	ClientSecret  string `mapstructure:"client_secret"`
	WebhookSecret string `mapstructure:"webhook_secret"`
}

type PrometheusConfig struct {
	Port int `mapstructure:"port"`
}

func Load() (*Config, error) {
	// Load local .env for development (ignored when missing).
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	v := viper.New()

	// Search for config/config.yaml (plus root for overrides).
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// Allow environment variables to override YAML entries.
	v.SetEnvPrefix("")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("app.base_url", "http://localhost:8080")
	v.SetDefault("app.anon_expiry_months", 6)
	v.SetDefault("app.custom_link_quota", 5)
	v.SetDefault("safebrowsing.endpoint", "https://safebrowsing.googleapis.com")
	v.SetDefault("safebrowsing.cache_ttl", "1h")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Preserve legacy env variable names.
	bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func bindEnvVars(v *viper.Viper) {
	// Application
	v.BindEnv("app.base_url", "PUBLIC_BASE_URL")
	v.BindEnv("app.secret", "SECRET_KEY")
	v.BindEnv("app.anon_expiry_months", "ANON_EXPIRY_MONTHS")
	v.BindEnv("app.custom_link_quota", "CUSTOM_LINK_QUOTA")

	// PostgreSQL
	v.BindEnv("postgres.host", "PG_HOST")
	v.BindEnv("postgres.user", "PG_USER")
	v.BindEnv("postgres.password", "PG_PASSWORD")
	v.BindEnv("postgres.database", "PG_DB")
	v.BindEnv("postgres.port", "PG_PORT")
	v.BindEnv("postgres.sslmode", "PG_SSLMODE")

	// Redis
	v.BindEnv("redis.host", "REDIS_HOST")
	v.BindEnv("redis.port", "REDIS_PORT")
	v.BindEnv("redis.password", "REDIS_PASSWORD")
	v.BindEnv("redis.db", "REDIS_DB")

	// NATS
	v.BindEnv("nats.host", "NATS_HOST")
	v.BindEnv("nats.port", "NATS_PORT")
	v.BindEnv("nats.user", "NATS_USER")
	v.BindEnv("nats.password", "NATS_PASSWORD")

	// Safe Browsing
	v.BindEnv("safebrowsing.enabled", "ENABLE_SAFE_BROWSING")
	v.BindEnv("safebrowsing.api_key", "SAFE_BROWSING_API_KEY")

	// Billing
	v.BindEnv("billing.api_base", "BILLING_API_BASE")
	v.BindEnv("billing.client_id", "BILLING_CLIENT_ID")
	v.BindEnv("billing.client_secret", "BILLING_CLIENT_SECRET")
	v.BindEnv("billing.webhook_secret", "BILLING_WEBHOOK_SECRET")

	// Prometheus
	v.BindEnv("prometheus.port", "PROM_PORT")
}
