package config

import (
	"fmt"
	"os"
	"strconv"
	"strings" // For LogLevel normalization
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// AppConfig holds all configuration for the application
type AppConfig struct {
	DatabaseURL      string
	RPCURL           string
	SigningKeySecret string
	HTTPAddr         string

	RedisAddr     string // Empty means process-local leases
	RedisPassword string

	TelegramToken   string // Empty disables the bot and Telegram notifications
	AdminTelegramID int64

	SMTPHost     string // Empty disables email receipts
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string

	LogLevel    string
	Environment string

	CronSpecGeneralTick     string
	CronSpecConditionalTick string
	TickTimeout             time.Duration
	RPCTimeout              time.Duration
	ConfirmationTimeout     time.Duration
	LeaseTTL                time.Duration
	DefaultFeeEstimate      decimal.Decimal
}

// Load reads configuration from environment variables and .env file (if present).
func Load() (*AppConfig, error) {
	// godotenv.Load will not override existing env variables; a missing file is fine.
	_ = godotenv.Load()

	cfg := &AppConfig{}
	var err error

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is not set")
	}

	cfg.RPCURL = os.Getenv("RPC_URL")
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("RPC_URL is not set")
	}

	cfg.SigningKeySecret = os.Getenv("SIGNING_KEY_SECRET")
	if cfg.SigningKeySecret == "" {
		return nil, fmt.Errorf("SIGNING_KEY_SECRET is not set")
	}

	cfg.HTTPAddr = envOr("HTTP_ADDR", ":8080")
	cfg.RedisAddr = os.Getenv("REDIS_ADDR")
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")

	cfg.TelegramToken = os.Getenv("TELEGRAM_TOKEN")
	if adminIDStr := os.Getenv("ADMIN_TELEGRAM_ID"); adminIDStr != "" {
		cfg.AdminTelegramID, err = strconv.ParseInt(adminIDStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid ADMIN_TELEGRAM_ID: %w", err)
		}
	}
	if cfg.TelegramToken != "" && cfg.AdminTelegramID == 0 {
		return nil, fmt.Errorf("ADMIN_TELEGRAM_ID is required when TELEGRAM_TOKEN is set")
	}

	cfg.SMTPHost = os.Getenv("SMTP_HOST")
	cfg.SMTPPort, err = strconv.Atoi(envOr("SMTP_PORT", "587"))
	if err != nil {
		return nil, fmt.Errorf("invalid SMTP_PORT: %w", err)
	}
	cfg.SMTPUsername = os.Getenv("SMTP_USERNAME")
	cfg.SMTPPassword = os.Getenv("SMTP_PASSWORD")
	cfg.SMTPFrom = os.Getenv("SMTP_FROM")
	if cfg.SMTPHost != "" && cfg.SMTPFrom == "" {
		return nil, fmt.Errorf("SMTP_FROM is required when SMTP_HOST is set")
	}

	cfg.LogLevel = strings.ToLower(envOr("LOG_LEVEL", "info"))
	cfg.Environment = strings.ToLower(envOr("ENVIRONMENT", "development"))

	cfg.CronSpecGeneralTick = envOr("CRON_SPEC_GENERAL_TICK", "@every 60s")
	cfg.CronSpecConditionalTick = envOr("CRON_SPEC_CONDITIONAL_TICK", "@every 30s")

	if cfg.TickTimeout, err = durationEnv("TICK_TIMEOUT", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.RPCTimeout, err = durationEnv("RPC_TIMEOUT", 15*time.Second); err != nil {
		return nil, err
	}
	if cfg.ConfirmationTimeout, err = durationEnv("CONFIRMATION_TIMEOUT", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.LeaseTTL, err = durationEnv("LEASE_TTL", 10*time.Minute); err != nil {
		return nil, err
	}

	cfg.DefaultFeeEstimate, err = decimal.NewFromString(envOr("DEFAULT_FEE_ESTIMATE", "0.001"))
	if err != nil {
		return nil, fmt.Errorf("invalid DEFAULT_FEE_ESTIMATE: %w", err)
	}
	if cfg.DefaultFeeEstimate.IsNegative() {
		return nil, fmt.Errorf("DEFAULT_FEE_ESTIMATE must not be negative")
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive", key)
	}
	return d, nil
}
