// Package config содержит логику чтения конфигурации сервиса обслуживания столиков.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

const defaultRunAddress = "localhost:8080"

// Config содержит параметры конфигурации сервиса.
type Config struct {
	RunAddress            string `env:"RUN_ADDRESS"`
	DatabaseURI           string `env:"DATABASE_URI"`
	PayoutSystemAddress   string `env:"PAYOUT_SYSTEM_ADDRESS"`
	CatalogServiceAddress string `env:"CATALOG_SERVICE_ADDRESS"`

	RedisAddress string   `env:"REDIS_ADDRESS"`
	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic   string   `env:"KAFKA_TOPIC" envDefault:"table-sessions"`

	StripeWebhookSecret string `env:"STRIPE_WEBHOOK_SECRET"`
	JWTSecret           string `env:"JWT_SECRET"`

	// PlatformFeePercent: доля платформы в процентах от итога счёта.
	PlatformFeePercent decimal.Decimal `env:"PLATFORM_FEE_PERCENT" envDefault:"0"`
	OutboxInterval     time.Duration   `env:"OUTBOX_INTERVAL" envDefault:"1s"`
}

// Parse считывает конфигурацию из файла .env, флагов командной строки и переменных окружения.
// Переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envPayoutAddress := cfg.PayoutSystemAddress
	envCatalogAddress := cfg.CatalogServiceAddress

	flag.StringVar(&cfg.RunAddress, "a", defaultRunAddress, "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI, in-memory store when empty")
	flag.StringVar(&cfg.PayoutSystemAddress, "r", "", "payout system address")
	flag.StringVar(&cfg.CatalogServiceAddress, "c", "", "menu catalog service address")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envPayoutAddress != "" {
		cfg.PayoutSystemAddress = envPayoutAddress
	}
	if envCatalogAddress != "" {
		cfg.CatalogServiceAddress = envCatalogAddress
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = defaultRunAddress
	}
	if cfg.PlatformFeePercent.IsNegative() || cfg.PlatformFeePercent.GreaterThan(decimal.NewFromInt(100)) {
		return nil, fmt.Errorf("PLATFORM_FEE_PERCENT must be within [0, 100], got %s", cfg.PlatformFeePercent)
	}
	if cfg.OutboxInterval <= 0 {
		return nil, fmt.Errorf("OUTBOX_INTERVAL must be positive, got %s", cfg.OutboxInterval)
	}

	return cfg, nil
}
