// Package config handles configuration loading for niftypulse.
// It supports YAML config files, an optional .env file and environment
// variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/seenimoa/niftypulse/internal/datasource"
	"github.com/seenimoa/niftypulse/internal/infra"
	"github.com/seenimoa/niftypulse/internal/logging"
	"github.com/seenimoa/niftypulse/pkg/models"
)

// EnvPrefix is the prefix of every environment override.
const EnvPrefix = "NIFTYPULSE"

// Config represents the complete application configuration.
type Config struct {
	Fetch     FetchConfig          `json:"fetch" mapstructure:"fetch" yaml:"fetch"`
	Sources   SourcesConfig        `json:"sources" mapstructure:"sources" yaml:"sources"`
	Basket    []models.IndexMember `json:"basket" mapstructure:"basket" yaml:"basket"`
	Dashboard DashboardConfig      `json:"dashboard" mapstructure:"dashboard" yaml:"dashboard"`
	API       APIConfig            `json:"api" mapstructure:"api" yaml:"api"`
	Logging   LoggingConfig        `json:"logging" mapstructure:"logging" yaml:"logging"`
}

// FetchConfig holds the HTTP timeout and retry policy.
type FetchConfig struct {
	Timeout     time.Duration `json:"timeout" mapstructure:"timeout" yaml:"timeout"`
	MaxAttempts int           `json:"max_attempts" mapstructure:"max_attempts" yaml:"max_attempts"`
	RetryDelay  time.Duration `json:"retry_delay" mapstructure:"retry_delay" yaml:"retry_delay"`
	UserAgent   string        `json:"user_agent" mapstructure:"user_agent" yaml:"user_agent"`
}

// SourcesConfig holds the upstream endpoints.
type SourcesConfig struct {
	ListingURL   string                `json:"listing_url" mapstructure:"listing_url" yaml:"listing_url"`
	GainersURL   string                `json:"gainers_url" mapstructure:"gainers_url" yaml:"gainers_url"`
	LosersURL    string                `json:"losers_url" mapstructure:"losers_url" yaml:"losers_url"`
	SparkURL     string                `json:"spark_url" mapstructure:"spark_url" yaml:"spark_url"`
	QuoteURL     string                `json:"quote_url" mapstructure:"quote_url" yaml:"quote_url"`
	ChartURL     string                `json:"chart_url" mapstructure:"chart_url" yaml:"chart_url"`
	HistoryRange string                `json:"history_range" mapstructure:"history_range" yaml:"history_range"` // spark window for index snapshots
	NewsFeeds    []datasource.NewsFeed `json:"news_feeds" mapstructure:"news_feeds" yaml:"news_feeds"`
}

// DashboardConfig holds the composition of a dashboard snapshot.
type DashboardConfig struct {
	OverviewSymbol string `json:"overview_symbol" mapstructure:"overview_symbol" yaml:"overview_symbol"`
	HeadlineLimit  int    `json:"headline_limit" mapstructure:"headline_limit" yaml:"headline_limit"`
}

// APIConfig holds HTTP API server settings.
type APIConfig struct {
	Host        string   `json:"host" mapstructure:"host" yaml:"host"`
	Port        int      `json:"port" mapstructure:"port" yaml:"port"`
	CORSOrigins []string `json:"cors_origins" mapstructure:"cors_origins" yaml:"cors_origins"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level" mapstructure:"level" yaml:"level"`    // "debug", "info", "warn", "error"
	Format string `json:"format" mapstructure:"format" yaml:"format"` // "text" or "json"
}

// Load reads the configuration from file and environment variables.
// Config file search order:
//  1. ./config/config.yaml (project root)
//  2. ~/.niftypulse/config.yaml (home directory)
//  3. /etc/niftypulse/config.yaml (system)
//
// A .env file in the working directory is loaded into the environment first
// if present. Environment variables override config file values.
// Format: NIFTYPULSE_<SECTION>_<KEY>, e.g., NIFTYPULSE_FETCH_MAX_ATTEMPTS
func Load() (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	v := newViper()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(filepath.Join(homeDir(), ".niftypulse"))
	v.AddConfigPath("/etc/niftypulse")

	// Read config file (not required to exist)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	return decode(v)
}

// LoadFromFile reads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}
	return decode(v)
}

// Default returns the configuration made of defaults only, ignoring the
// environment.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg, err := decode(v)
	if err != nil {
		// Defaults are static; a decode failure is a programming error.
		panic(err)
	}
	return cfg
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// loadDotEnv loads path into the process environment. Variables already set
// take precedence; a missing file is not an error.
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("error loading %s: %w", path, err)
	}
	return nil
}

// setDefaults sets sensible defaults for all config values.
func setDefaults(v *viper.Viper) {
	fetch := infra.DefaultFetchConfig()
	v.SetDefault("fetch.timeout", fetch.Timeout)
	v.SetDefault("fetch.max_attempts", fetch.MaxAttempts)
	v.SetDefault("fetch.retry_delay", fetch.RetryDelay)
	v.SetDefault("fetch.user_agent", fetch.UserAgent)

	nse := datasource.DefaultNSEEndpoints()
	yahoo := datasource.DefaultYahooEndpoints()
	v.SetDefault("sources.listing_url", nse.ListingURL)
	v.SetDefault("sources.gainers_url", nse.GainersURL)
	v.SetDefault("sources.losers_url", nse.LosersURL)
	v.SetDefault("sources.spark_url", yahoo.SparkURL)
	v.SetDefault("sources.quote_url", yahoo.QuoteURL)
	v.SetDefault("sources.chart_url", yahoo.ChartURL)
	v.SetDefault("sources.history_range", datasource.DefaultSparkRange)

	feeds := make([]map[string]any, 0, len(datasource.DefaultNewsFeeds))
	for _, f := range datasource.DefaultNewsFeeds {
		feeds = append(feeds, map[string]any{"name": f.Name, "url": f.URL})
	}
	v.SetDefault("sources.news_feeds", feeds)

	basket := make([]map[string]any, 0, len(models.DefaultIndexBasket))
	for _, m := range models.DefaultIndexBasket {
		basket = append(basket, map[string]any{"symbol": m.Symbol, "display_name": m.DisplayName})
	}
	v.SetDefault("basket", basket)

	v.SetDefault("dashboard.overview_symbol", datasource.DefaultOverviewSymbol)
	v.SetDefault("dashboard.headline_limit", datasource.DefaultHeadlineLimit)

	v.SetDefault("api.host", "0.0.0.0")
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.cors_origins", []string{"http://localhost:3000"})

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// Validate rejects settings the retrievers can not run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Fetch.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("fetch.timeout must be positive, got %s", c.Fetch.Timeout))
	}
	if c.Fetch.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("fetch.max_attempts must be at least 1, got %d", c.Fetch.MaxAttempts))
	}
	if c.Fetch.RetryDelay < 0 {
		errs = append(errs, fmt.Errorf("fetch.retry_delay must not be negative, got %s", c.Fetch.RetryDelay))
	}
	if len(c.Basket) == 0 {
		errs = append(errs, errors.New("basket must list at least one index"))
	}
	for i, m := range c.Basket {
		if strings.TrimSpace(m.Symbol) == "" {
			errs = append(errs, fmt.Errorf("basket[%d]: symbol is required", i))
		}
	}
	if c.API.Port < 0 || c.API.Port > 65535 {
		errs = append(errs, fmt.Errorf("api.port out of range: %d", c.API.Port))
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "console", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// FetchPolicy converts the fetch section for infra.NewFetcher.
func (c *Config) FetchPolicy() infra.FetchConfig {
	return infra.FetchConfig{
		Timeout:     c.Fetch.Timeout,
		UserAgent:   c.Fetch.UserAgent,
		MaxAttempts: c.Fetch.MaxAttempts,
		RetryDelay:  c.Fetch.RetryDelay,
	}
}

// NSEEndpoints returns the configured NSE endpoints.
func (c *Config) NSEEndpoints() datasource.NSEEndpoints {
	return datasource.NSEEndpoints{
		ListingURL: c.Sources.ListingURL,
		GainersURL: c.Sources.GainersURL,
		LosersURL:  c.Sources.LosersURL,
	}
}

// YahooEndpoints returns the configured Yahoo Finance endpoints.
func (c *Config) YahooEndpoints() datasource.YahooEndpoints {
	return datasource.YahooEndpoints{
		SparkURL: c.Sources.SparkURL,
		QuoteURL: c.Sources.QuoteURL,
		ChartURL: c.Sources.ChartURL,
	}
}

// LoggingOptions converts the logging section for logging.New.
func (c *Config) LoggingOptions() logging.Options {
	return logging.Options{Level: c.Logging.Level, Format: c.Logging.Format}
}

// homeDir returns the user's home directory.
func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
