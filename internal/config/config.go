package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the compareboard server.
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	CompareAPI CompareAPIConfig
	Checkout   CheckoutConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

// CompareAPIConfig points at the upstream job-submission and credits API.
type CompareAPIConfig struct {
	BaseURL string
	Timeout time.Duration
}

// CheckoutConfig controls the trusted-domain check applied to checkout
// URLs before they are handed to the browser.
type CheckoutConfig struct {
	TrustedDomain string
	PacksCacheTTL time.Duration
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("COMPAREBOARD_PORT", 8080),
			Env:  envString("COMPAREBOARD_ENV", "development"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		CompareAPI: CompareAPIConfig{
			BaseURL: os.Getenv("COMPARE_API_BASE_URL"),
			Timeout: envDuration("COMPARE_API_TIMEOUT", 30*time.Second),
		},
		Checkout: CheckoutConfig{
			TrustedDomain: envString("CHECKOUT_TRUSTED_DOMAIN", "stripe.com"),
			PacksCacheTTL: envDuration("CREDIT_PACKS_CACHE_TTL", 10*time.Minute),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.CompareAPI.BaseURL == "" {
		return fmt.Errorf("COMPARE_API_BASE_URL is required")
	}
	if !strings.HasPrefix(c.CompareAPI.BaseURL, "http://") && !strings.HasPrefix(c.CompareAPI.BaseURL, "https://") {
		return fmt.Errorf("COMPARE_API_BASE_URL must start with http:// or https://, got %q", c.CompareAPI.BaseURL)
	}

	if c.Checkout.TrustedDomain == "" {
		return fmt.Errorf("CHECKOUT_TRUSTED_DOMAIN must not be empty")
	}
	if strings.Contains(c.Checkout.TrustedDomain, "/") {
		return fmt.Errorf("CHECKOUT_TRUSTED_DOMAIN must be a bare domain, got %q", c.Checkout.TrustedDomain)
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
