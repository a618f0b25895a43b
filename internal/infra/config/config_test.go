package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/payments?sslmode=disable")
	t.Setenv("RPC_URL", "http://localhost:8545")
	t.Setenv("SIGNING_KEY_SECRET", "test-secret")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "@every 60s", cfg.CronSpecGeneralTick)
	assert.Equal(t, "@every 30s", cfg.CronSpecConditionalTick)
	assert.Equal(t, 15*time.Second, cfg.RPCTimeout)
	assert.Equal(t, 5*time.Minute, cfg.ConfirmationTimeout)
	assert.Equal(t, "0.001", cfg.DefaultFeeEstimate.String())
	assert.Empty(t, cfg.TelegramToken)
}

func TestLoadMissingRequired(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("RPC_URL", "http://localhost:8545")
	t.Setenv("SIGNING_KEY_SECRET", "test-secret")

	_, err := Load()
	assert.EqualError(t, err, "DATABASE_URL is not set")
}

func TestLoadOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("RPC_TIMEOUT", "3s")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("TELEGRAM_TOKEN", "token")
	t.Setenv("ADMIN_TELEGRAM_ID", "42")
	t.Setenv("DEFAULT_FEE_ESTIMATE", "0.0005")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, cfg.RPCTimeout)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, int64(42), cfg.AdminTelegramID)
	assert.Equal(t, "0.0005", cfg.DefaultFeeEstimate.String())
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := map[string]string{
		"RPC_TIMEOUT":          "soon",
		"LEASE_TTL":            "-1m",
		"DEFAULT_FEE_ESTIMATE": "lots",
		"ADMIN_TELEGRAM_ID":    "admin",
	}
	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			setRequired(t)
			t.Setenv(key, value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestLoadTelegramRequiresAdmin(t *testing.T) {
	setRequired(t)
	t.Setenv("TELEGRAM_TOKEN", "token")
	t.Setenv("ADMIN_TELEGRAM_ID", "")

	_, err := Load()
	assert.Error(t, err)
}
