package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config holds the full application configuration. Keys are flat so that the
// conventional env var names (DATABASE_URL, ANTHROPIC_API_KEY, ...) bind
// directly without a prefix.
type Config struct {
	Port        int    `koanf:"port"`
	Environment string `koanf:"environment"`

	DatabaseURL string `koanf:"database_url"`

	AnthropicAPIKey string `koanf:"anthropic_api_key"`
	ClaudeModel     string `koanf:"claude_model"`

	StripeSecretKey     string `koanf:"stripe_secret_key"`
	StripeWebhookSecret string `koanf:"stripe_webhook_secret"`
	StripeProPriceID    string `koanf:"stripe_pro_price_id"`
	StripeTeamPriceID   string `koanf:"stripe_team_price_id"`

	MailgunAPIKey string `koanf:"mailgun_api_key"`
	MailgunDomain string `koanf:"mailgun_domain"`
	MailFrom      string `koanf:"mail_from"`

	EnableRateLimiting bool `koanf:"enable_rate_limiting"`
	EnablePayments     bool `koanf:"enable_payments"`
	EnableAnalytics    bool `koanf:"enable_analytics"`

	RateLimitPerSecond float64 `koanf:"rate_limit_per_second"`

	// UsageResetIntervalHours controls how often the scheduler sweeps for
	// keys whose monthly usage is due for a reset.
	UsageResetIntervalHours int `koanf:"usage_reset_interval_hours"`
}

// LoadConfig loads defaults, an optional TOML file, and environment variables
// (in that order of precedence, lowest first).
func LoadConfig(configPath string) (*Config, error) {
	var k = koanf.New(".")

	k.Load(confmap.Provider(map[string]interface{}{
		"port":                       8000,
		"environment":                "development",
		"claude_model":               "claude-sonnet-4-20250514",
		"mail_from":                  "GoBot <noreply@gobot.dev>",
		"enable_rate_limiting":       true,
		"enable_payments":            false,
		"enable_analytics":           true,
		"rate_limit_per_second":      20,
		"usage_reset_interval_hours": 6,
	}, "."), nil)

	// Load from TOML file if it exists
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
			return nil, fmt.Errorf("error loading config: %w", err)
		}
	} else {
		defaultPaths := []string{"./gobot.toml", "$HOME/.gobot.toml"}
		for _, path := range defaultPaths {
			path = os.ExpandEnv(path)
			if _, err := os.Stat(path); err == nil {
				if err := k.Load(file.Provider(path), toml.Parser()); err == nil {
					break
				}
			}
		}
	}

	// Environment variables win. No prefix: keys are flat, so DATABASE_URL
	// becomes database_url and binds to the matching struct field.
	k.Load(env.Provider("", ".", strings.ToLower), nil)

	var config Config
	if err := k.Unmarshal("", &config); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	return &config, nil
}

// HasLLM reports whether a completion-provider credential is configured.
func (c *Config) HasLLM() bool { return c.AnthropicAPIKey != "" }

// HasDatabase reports whether a store connection string is configured.
func (c *Config) HasDatabase() bool { return c.DatabaseURL != "" }

// HasMailgun reports whether the email provider is configured.
func (c *Config) HasMailgun() bool { return c.MailgunAPIKey != "" && c.MailgunDomain != "" }

// Validate checks the combinations that cannot work at runtime.
func Validate(c *Config) error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.EnablePayments && c.StripeSecretKey == "" {
		return fmt.Errorf("payments enabled but STRIPE_SECRET_KEY is not set")
	}
	if c.EnablePayments && c.StripeWebhookSecret == "" {
		return fmt.Errorf("payments enabled but STRIPE_WEBHOOK_SECRET is not set")
	}
	return nil
}
