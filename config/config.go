package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	DatabaseURL         string
	Port                string
	GoEnv               string
	Auth0Domain         string
	Auth0Audience       string
	StripeSecretKey     string
	StripeWebhookSecret string
	StripeCurrency      string
	GatewayTimeout      time.Duration
	RabbitMQURL         string
	OrderEventsExchange string
	OutboxPollInterval  time.Duration
	OutboxBatchSize     int
	CORSAllowedOrigins  []string
	LogLevel            string
}

var appConfig *Config

// Load loads the configuration from .env files, an optional config.yaml and the environment.
// It automatically determines which .env file to load based on GO_ENV
func Load() (*Config, error) {
	// Determine which environment file to load
	env := os.Getenv("GO_ENV")
	if env == "" {
		env = "development"
	}

	// Try to load environment-specific file first
	envFile := fmt.Sprintf(".env.%s", env)
	if err := godotenv.Load(envFile); err != nil {
		// In production variables are set directly, so missing .env files are fine
		if err := godotenv.Load(); err != nil {
			slog.Debug("No .env file found, using system environment variables")
		}
	} else {
		slog.Info("Loaded configuration", "file", envFile)
	}

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/farmlink")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	config := &Config{
		DatabaseURL:         v.GetString("DATABASE_URL"),
		Port:                v.GetString("PORT"),
		GoEnv:               v.GetString("GO_ENV"),
		Auth0Domain:         v.GetString("AUTH0_DOMAIN"),
		Auth0Audience:       v.GetString("AUTH0_AUDIENCE"),
		StripeSecretKey:     v.GetString("STRIPE_SECRET_KEY"),
		StripeWebhookSecret: v.GetString("STRIPE_WEBHOOK_SECRET"),
		StripeCurrency:      strings.ToLower(v.GetString("STRIPE_CURRENCY")),
		GatewayTimeout:      v.GetDuration("GATEWAY_TIMEOUT"),
		RabbitMQURL:         v.GetString("RABBITMQ_URL"),
		OrderEventsExchange: v.GetString("ORDER_EVENTS_EXCHANGE"),
		OutboxPollInterval:  v.GetDuration("OUTBOX_POLL_INTERVAL"),
		OutboxBatchSize:     v.GetInt("OUTBOX_BATCH_SIZE"),
		CORSAllowedOrigins:  splitList(v.GetString("CORS_ALLOWED_ORIGINS")),
		LogLevel:            v.GetString("LOG_LEVEL"),
	}

	// Validate required configuration
	if err := config.Validate(); err != nil {
		return nil, err
	}

	appConfig = config
	return config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "8080")
	v.SetDefault("GO_ENV", "development")
	v.SetDefault("STRIPE_CURRENCY", "usd")
	v.SetDefault("GATEWAY_TIMEOUT", "10s")
	v.SetDefault("ORDER_EVENTS_EXCHANGE", "farmlink.orders")
	v.SetDefault("OUTBOX_POLL_INTERVAL", "5s")
	v.SetDefault("OUTBOX_BATCH_SIZE", 100)
	v.SetDefault("CORS_ALLOWED_ORIGINS", "http://localhost:3000")
	v.SetDefault("LOG_LEVEL", "info")
}

// Validate checks that all required configuration values are set.
// Payment secrets are required: the service must never run without webhook verification.
func (c *Config) Validate() error {
	required := []struct {
		key   string
		value string
	}{
		{"DATABASE_URL", c.DatabaseURL},
		{"STRIPE_SECRET_KEY", c.StripeSecretKey},
		{"STRIPE_WEBHOOK_SECRET", c.StripeWebhookSecret},
		{"AUTH0_DOMAIN", c.Auth0Domain},
		{"AUTH0_AUDIENCE", c.Auth0Audience},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return fmt.Errorf("%s is required", r.key)
		}
	}
	if c.GatewayTimeout <= 0 {
		return fmt.Errorf("GATEWAY_TIMEOUT must be positive")
	}
	if c.OutboxBatchSize <= 0 {
		return fmt.Errorf("OUTBOX_BATCH_SIZE must be positive")
	}
	return nil
}

// IsProduction returns true if the application is running in production mode
func (c *Config) IsProduction() bool {
	return c.GoEnv == "production"
}

// IsTest returns true if the application is running in test mode
func (c *Config) IsTest() bool {
	return c.GoEnv == "test"
}

// EventsEnabled reports whether order events are published to a broker
func (c *Config) EventsEnabled() bool {
	return c.RabbitMQURL != ""
}

// GetConfig returns the configuration loaded by Load
func GetConfig() *Config {
	return appConfig
}

// SetConfig sets the configuration (primarily for testing)
func SetConfig(cfg *Config) {
	appConfig = cfg
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
