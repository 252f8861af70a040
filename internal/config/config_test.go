package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, 8000, cfg.Port)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "claude-sonnet-4-20250514", cfg.ClaudeModel)
	assert.True(t, cfg.EnableAnalytics)
	assert.False(t, cfg.EnablePayments)
	assert.Equal(t, 6, cfg.UsageResetIntervalHours)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/gobot_test")
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-test")
	t.Setenv("PORT", "9000")
	t.Setenv("ENABLE_PAYMENTS", "true")
	t.Setenv("STRIPE_SECRET_KEY", "sk_test_123")
	t.Setenv("STRIPE_WEBHOOK_SECRET", "whsec_123")
	t.Setenv("MAILGUN_API_KEY", "key-123")
	t.Setenv("MAILGUN_DOMAIN", "mg.example.com")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, "postgres://localhost/gobot_test", cfg.DatabaseURL)
	assert.True(t, cfg.HasDatabase())
	assert.True(t, cfg.HasLLM())
	assert.True(t, cfg.HasMailgun())
	assert.True(t, cfg.EnablePayments)
	require.NoError(t, Validate(cfg))
}

func TestValidateRejectsPaymentsWithoutStripe(t *testing.T) {
	cfg := &Config{Port: 8000, EnablePayments: true}
	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STRIPE_SECRET_KEY")

	cfg.StripeSecretKey = "sk_test_123"
	err = Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STRIPE_WEBHOOK_SECRET")
}

func TestValidateRejectsBadPort(t *testing.T) {
	assert.Error(t, Validate(&Config{Port: 0}))
	assert.Error(t, Validate(&Config{Port: 70000}))
	assert.NoError(t, Validate(&Config{Port: 8000}))
}
