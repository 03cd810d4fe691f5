package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/ehr/healthassist/internal/platform/auth"
)

type Config struct {
	Env                 string        `mapstructure:"ENV"`
	LogLevel            string        `mapstructure:"LOG_LEVEL"`
	APIURL              string        `mapstructure:"ASSESSMENT_API_URL"`
	AuthToken           string        `mapstructure:"AUTH_TOKEN"`
	AuthSigningKey      string        `mapstructure:"AUTH_SIGNING_KEY"`
	AuthSubject         string        `mapstructure:"AUTH_SUBJECT"`
	AuthIssuer          string        `mapstructure:"AUTH_ISSUER"`
	HTTPTimeout         time.Duration `mapstructure:"HTTP_TIMEOUT"`
	HistoryLimit        int           `mapstructure:"HISTORY_LIMIT"`
	Port                string        `mapstructure:"PORT"`
	DatabaseURL         string        `mapstructure:"DATABASE_URL"`
	DBMaxConns          int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns          int32         `mapstructure:"DB_MIN_CONNS"`
	SandboxMaxQuestions int           `mapstructure:"SANDBOX_MAX_QUESTIONS"`
	SandboxBodyLimit    string        `mapstructure:"SANDBOX_BODY_LIMIT"`
	RateLimitRPS        float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst      int           `mapstructure:"RATE_LIMIT_BURST"`
}

var keys = []string{
	"ENV",
	"LOG_LEVEL",
	"ASSESSMENT_API_URL",
	"AUTH_TOKEN",
	"AUTH_SIGNING_KEY",
	"AUTH_SUBJECT",
	"AUTH_ISSUER",
	"HTTP_TIMEOUT",
	"HISTORY_LIMIT",
	"PORT",
	"DATABASE_URL",
	"DB_MAX_CONNS",
	"DB_MIN_CONNS",
	"SANDBOX_MAX_QUESTIONS",
	"SANDBOX_BODY_LIMIT",
	"RATE_LIMIT_RPS",
	"RATE_LIMIT_BURST",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("ASSESSMENT_API_URL", "http://localhost:8000/api/v1")
	v.SetDefault("AUTH_SUBJECT", auth.DevSubject)
	v.SetDefault("HTTP_TIMEOUT", "30s")
	v.SetDefault("HISTORY_LIMIT", 10)
	v.SetDefault("PORT", "8000")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 1)
	v.SetDefault("SANDBOX_MAX_QUESTIONS", 6)
	v.SetDefault("SANDBOX_BODY_LIMIT", "64K")
	v.SetDefault("RATE_LIMIT_RPS", 20)
	v.SetDefault("RATE_LIMIT_BURST", 40)

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range keys {
		v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.APIURL = strings.TrimRight(strings.TrimSpace(cfg.APIURL), "/")
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the client is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// UsesMemoryStore reports whether the sandbox keeps sessions in memory.
func (c *Config) UsesMemoryStore() bool {
	return c.DatabaseURL == ""
}

// Validate checks that the configuration is usable. In production a bearer
// token or a signing key must be configured.
func (c *Config) Validate() error {
	u, err := url.Parse(c.APIURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("ASSESSMENT_API_URL must be an http(s) URL, got %q", c.APIURL)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("LOG_LEVEL must be debug, info, warn or error, got %q", c.LogLevel)
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT must be positive, got %s", c.HTTPTimeout)
	}
	if c.HistoryLimit <= 0 {
		return fmt.Errorf("HISTORY_LIMIT must be a positive integer, got %d", c.HistoryLimit)
	}
	if c.SandboxMaxQuestions < 3 {
		return fmt.Errorf("SANDBOX_MAX_QUESTIONS must be at least 3, got %d", c.SandboxMaxQuestions)
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		return fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive")
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) must not exceed DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if c.IsProduction() && c.AuthToken == "" && c.AuthSigningKey == "" {
		return fmt.Errorf("AUTH_TOKEN or AUTH_SIGNING_KEY is required in production")
	}
	return nil
}
