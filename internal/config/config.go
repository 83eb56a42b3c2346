// Package config loads and validates crawler configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Crawl   CrawlConfig   `mapstructure:"crawl"`
	Browser BrowserConfig `mapstructure:"browser"`
	Ratings RatingsConfig `mapstructure:"ratings"`
	Storage StorageConfig `mapstructure:"storage"`
	Debug   DebugConfig   `mapstructure:"debug"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// CrawlConfig governs the crawl engine.
type CrawlConfig struct {
	StartURL         string `mapstructure:"start_url"`
	ItemMaxAttempts  int    `mapstructure:"item_max_attempts"`
	PageBackoffMs    int    `mapstructure:"page_backoff_ms"`
	PageBackoffMaxMs int    `mapstructure:"page_backoff_max_ms"`
	ItemBackoffMs    int    `mapstructure:"item_backoff_ms"`
	ItemBackoffMaxMs int    `mapstructure:"item_backoff_max_ms"`
}

// BrowserConfig configures the headless browsing session.
type BrowserConfig struct {
	UserAgent         string  `mapstructure:"user_agent"`
	NavTimeoutSeconds int     `mapstructure:"nav_timeout_seconds"`
	QPS               float64 `mapstructure:"qps"`
}

// RatingsConfig configures the rating feed client.
type RatingsConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	PageSize       int    `mapstructure:"page_size"`
}

// StorageConfig sets the session directory layout.
type StorageConfig struct {
	BaseDir string `mapstructure:"base_dir"`
	Prefix  string `mapstructure:"prefix"`
}

// DebugConfig controls the optional metrics listener.
type DebugConfig struct {
	// Addr enables the /metrics listener when non-empty, e.g. ":9090".
	Addr string `mapstructure:"addr"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("BGG")
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
	v.SetDefault("crawl.start_url", "https://boardgamegeek.com/browse/boardgame")
	v.SetDefault("crawl.item_max_attempts", 10)
	v.SetDefault("crawl.page_backoff_ms", 500)
	v.SetDefault("crawl.page_backoff_max_ms", 30000)
	v.SetDefault("crawl.item_backoff_ms", 250)
	v.SetDefault("crawl.item_backoff_max_ms", 5000)
	v.SetDefault("browser.user_agent", "bgg-crawler/0.1")
	v.SetDefault("browser.nav_timeout_seconds", 45)
	v.SetDefault("browser.qps", 1.0)
	v.SetDefault("ratings.timeout_seconds", 15)
	v.SetDefault("ratings.page_size", 50)
	v.SetDefault("storage.base_dir", ".")
	v.SetDefault("storage.prefix", "bgg-details")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Crawl.StartURL == "" {
		return fmt.Errorf("crawl.start_url must be set")
	}
	if c.Crawl.ItemMaxAttempts <= 0 {
		return fmt.Errorf("crawl.item_max_attempts must be > 0")
	}
	if c.Browser.NavTimeoutSeconds <= 0 {
		return fmt.Errorf("browser.nav_timeout_seconds must be > 0")
	}
	if c.Ratings.PageSize <= 0 {
		return fmt.Errorf("ratings.page_size must be > 0")
	}
	if c.Storage.Prefix == "" {
		return fmt.Errorf("storage.prefix must be set")
	}
	return nil
}

// NavTimeout converts the configured navigation timeout to a duration.
func (c Config) NavTimeout() time.Duration {
	return time.Duration(c.Browser.NavTimeoutSeconds) * time.Second
}

// RatingsTimeout converts the feed timeout to a duration.
func (c Config) RatingsTimeout() time.Duration {
	return time.Duration(c.Ratings.TimeoutSeconds) * time.Second
}
