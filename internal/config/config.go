// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Security SecurityConfig `mapstructure:"security"`
	Scraper  ScraperConfig  `mapstructure:"scraper"`
	Headless HeadlessConfig `mapstructure:"headless"`
	DB       DBConfig       `mapstructure:"db"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port            int `mapstructure:"port"`
	ShutdownSeconds int `mapstructure:"shutdown_seconds"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// SecurityConfig lists the domains the service is allowed to scrape.
// An exact hostname matches itself; a ".suffix" entry matches subdomains.
type SecurityConfig struct {
	AllowedDomains []string `mapstructure:"allowed_domains"`
}

// ScraperConfig governs batch execution and per-page collection limits.
type ScraperConfig struct {
	MaxConcurrent   int     `mapstructure:"max_concurrent"`
	MaxBatchURLs    int     `mapstructure:"max_batch_urls"`
	MinDelaySeconds float64 `mapstructure:"min_delay_seconds"`
	MaxDelaySeconds float64 `mapstructure:"max_delay_seconds"`
	MaxImages       int     `mapstructure:"max_images"`
	MaxLinks        int     `mapstructure:"max_links"`
}

// HeadlessConfig configures the headless rendering subsystem.
type HeadlessConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	NavTimeoutSec int  `mapstructure:"nav_timeout_seconds"`
}

// DBConfig controls access to the relational database. An empty DSN
// selects the in-memory job store.
type DBConfig struct {
	DSN          string `mapstructure:"dsn"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SCRAPER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_seconds", 15)
	v.SetDefault("scraper.max_concurrent", 3)
	v.SetDefault("scraper.max_batch_urls", 50)
	v.SetDefault("scraper.min_delay_seconds", 0.5)
	v.SetDefault("scraper.max_delay_seconds", 10.0)
	v.SetDefault("scraper.max_images", 100)
	v.SetDefault("scraper.max_links", 200)
	v.SetDefault("headless.enabled", true)
	v.SetDefault("headless.nav_timeout_seconds", 30)
	v.SetDefault("db.max_open_conns", 8)
	v.SetDefault("logging.development", false)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Scraper.MaxConcurrent <= 0 {
		return fmt.Errorf("scraper.max_concurrent must be > 0")
	}
	if c.Scraper.MaxBatchURLs <= 0 {
		return fmt.Errorf("scraper.max_batch_urls must be > 0")
	}
	if c.Scraper.MinDelaySeconds <= 0 || c.Scraper.MaxDelaySeconds < c.Scraper.MinDelaySeconds {
		return fmt.Errorf("scraper delay bounds are inverted or non-positive")
	}
	if len(c.Security.AllowedDomains) == 0 {
		return fmt.Errorf("security.allowed_domains must list at least one domain")
	}
	if c.Headless.Enabled && c.Headless.NavTimeoutSec <= 0 {
		return fmt.Errorf("headless.nav_timeout_seconds must be > 0 when headless is enabled")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	return nil
}

// NavTimeout converts the headless navigation budget into a duration.
func (c Config) NavTimeout() time.Duration {
	return time.Duration(c.Headless.NavTimeoutSec) * time.Second
}

// ShutdownTimeout bounds graceful HTTP server shutdown.
func (c Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Server.ShutdownSeconds) * time.Second
}
